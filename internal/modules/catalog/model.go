package catalog

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/georgemunganga/pharma-gateway/internal/validation"
)

// Stage is a drug's position in the supply chain as tracked by the contract.
type Stage uint8

const (
	StageManufactured Stage = iota
	StageDistributed
	StageInPharmacy
	StageSold
	StageSoldOut
)

var stageLabels = map[Stage]string{
	StageManufactured: "Manufactured",
	StageDistributed:  "Distributed",
	StageInPharmacy:   "In Pharmacy",
	StageSold:         "Sold",
	StageSoldOut:      "Sold out",
}

// Label is total: unknown stages render as "Unknown".
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return "Unknown"
}

func (s Stage) Valid() bool {
	_, ok := stageLabels[s]
	return ok
}

// Next returns the following stage and false when s is terminal.
func (s Stage) Next() (Stage, bool) {
	if s >= StageSoldOut {
		return s, false
	}
	return s + 1, true
}

// IsPublic reports whether drugs in this stage are shown to shoppers.
func (s Stage) IsPublic() bool { return s != StageSoldOut }

// DefaultRating is assigned to chain and backend items, which carry none.
const DefaultRating = 4.5

// Drug is the normalised catalog entry. Price is in ETH.
type Drug struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Batch       string          `json:"batch"`
	Price       decimal.Decimal `json:"price"`
	Stage       Stage           `json:"stage"`
	StageLabel  string          `json:"stage_label"`
	Owner       string          `json:"owner"`
	ImageURL    string          `json:"image_url,omitempty"`
	Description string          `json:"description"`
	Rating      float64         `json:"rating"`
}

// DrugInput is the editable part of a drug for admin writes.
type DrugInput struct {
	Name  string          `json:"name" validate:"notblank"`
	Batch string          `json:"batch" validate:"notblank"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
}

var drugInputMessages = map[string]string{
	"name":  "name is required",
	"batch": "batch is required",
	"price": "price must not be negative",
}

func (in DrugInput) validate() error {
	err := validation.Struct(in)
	if err == nil {
		return nil
	}
	if field, _, ok := validation.FirstField(err); ok {
		return fmt.Errorf("%w: %s", ErrInvalidDrug, drugInputMessages[field])
	}
	return fmt.Errorf("%w: %v", ErrInvalidDrug, err)
}

var weiPerEther = decimal.New(1, 18)

// WeiToEther converts an integer wei amount to ETH.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

// EtherToWei converts ETH to wei, dropping sub-wei precision.
func EtherToWei(eth decimal.Decimal) *big.Int {
	return eth.Mul(weiPerEther).Truncate(0).BigInt()
}

// ResolveImageURL makes a backend-relative image path absolute. Absolute,
// blob: and data: URLs pass through unchanged.
func ResolveImageURL(baseURL, image string) string {
	image = strings.TrimSpace(image)
	switch {
	case image == "":
		return ""
	case strings.HasPrefix(image, "http://"), strings.HasPrefix(image, "https://"),
		strings.HasPrefix(image, "blob:"), strings.HasPrefix(image, "data:"):
		return image
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(image, "/")
}

// ShortAddress renders 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func describe(batch, owner string) string {
	return fmt.Sprintf("Batch: %s | Owner: %s", batch, ShortAddress(owner))
}

func newDrug(id int64, name, batch string, priceWei *big.Int, stage Stage, owner string) Drug {
	return Drug{
		ID:          id,
		Name:        name,
		Batch:       batch,
		Price:       WeiToEther(priceWei),
		Stage:       stage,
		StageLabel:  stage.Label(),
		Owner:       owner,
		Description: describe(batch, owner),
		Rating:      DefaultRating,
	}
}
