package pharmaapi

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Auth flow actions returned by /api/auth/start.
const (
	ActionVerifyOTP = "VERIFY_OTP"
	ActionLogin     = "LOGIN"
)

// Drug is the backend's mirror of an on-chain drug record. Price is in wei.
type Drug struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	Batch string      `json:"batch"`
	Price json.Number `json:"price,omitempty"`
	Stage int         `json:"stage"`
	Owner string      `json:"owner"`
	Image string      `json:"image,omitempty"`
}

type searchResponse struct {
	Items []Drug `json:"items"`
}

type StartAuthResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	Action       string `json:"action"`
	OTPDisplayed string `json:"otp_displayed,omitempty"`
}

type VerifyOTPResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	TempToken string `json:"temp_token"`
}

type MessageResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// User is the authenticated account behind a bearer token.
type User struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
}

// Medicine is one purchased line as recorded by the backend.
type Medicine struct {
	ID       int64   `json:"id,omitempty"`
	Name     string  `json:"name"`
	Qty      int     `json:"qty"`
	PriceUSD float64 `json:"price_usd"`
}

// MedicineList accepts the structured list as well as the flattened string
// ("Name (x2), Other (x1)") the revenue endpoint returns.
type MedicineList []Medicine

func (m *MedicineList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*m = nil
		return nil
	case strings.HasPrefix(trimmed, "\""):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = parseFlattened(s)
		return nil
	case strings.HasPrefix(trimmed, "{"):
		var one Medicine
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*m = MedicineList{one}
		return nil
	}
	var list []Medicine
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*m = list
	return nil
}

// Transaction is a backend-owned revenue record.
type Transaction struct {
	Customer string       `json:"customer"`
	Medicine MedicineList `json:"medicine"`
	PriceETH float64      `json:"price_eth"`
	Date     string       `json:"date"`
	TxHash   string       `json:"tx_hash,omitempty"`
}

type Revenue struct {
	Total        float64       `json:"total"`
	Transactions []Transaction `json:"transactions"`
}

// Purchase is the record posted after an on-chain payment is mined.
type Purchase struct {
	Customer    string      `json:"customer"`
	Medicine    []Medicine  `json:"medicine"`
	PriceETH    json.Number `json:"price_eth"`
	TxHash      string      `json:"tx_hash"`
	ChainID     string      `json:"chain_id,omitempty"`
	BlockNumber *uint64     `json:"block_number"`
}

type PurchaseReceipt struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// UserStat is one aggregated customer row from /api/user-stats.
type UserStat struct {
	Customer   string  `json:"customer"`
	TotalSpent float64 `json:"totalSpent"`
	OrderCount int     `json:"orderCount"`
	ItemCount  int     `json:"itemCount"`
	LastOrder  string  `json:"lastOrder,omitempty"`
}

type userStatsResponse struct {
	Data []UserStat `json:"data"`
}

type ImageUploadResponse struct {
	ID    json.Number `json:"id,omitempty"`
	Image string      `json:"image"`
}

// flattenedEntry matches one leading "Name (xN)" entry and its separator.
var flattenedEntry = regexp.MustCompile(`^(.+?) \(x(\d+)\)(?:, |$)`)

// parseFlattened splits "Name (x2), Other (x1)" into lines. Text without a
// count becomes a single line of quantity 1.
func parseFlattened(s string) MedicineList {
	var out MedicineList
	rest := strings.TrimSpace(s)
	for rest != "" {
		loc := flattenedEntry.FindStringSubmatchIndex(rest)
		if loc == nil {
			out = append(out, Medicine{Name: rest, Qty: 1})
			break
		}
		qty, _ := strconv.Atoi(rest[loc[4]:loc[5]])
		out = append(out, Medicine{Name: rest[loc[2]:loc[3]], Qty: qty})
		rest = rest[loc[1]:]
	}
	return out
}
