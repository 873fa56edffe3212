package checkout

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle of a checkout attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// validTransitions defines the allowed checkout state machine.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusSubmitted, StatusError},
	StatusSubmitted: {StatusSuccess, StatusError},
}

// RateSource tells whether a quote used a live rate or the fallback.
type RateSource string

const (
	RateLive     RateSource = "live"
	RateFallback RateSource = "fallback"
)

var (
	ErrNotFound = errors.New("checkout not found")
	// ErrTransaction wraps submission and mining failures. The cart is left
	// untouched when it is returned.
	ErrTransaction = errors.New("payment transaction failed")
	// ErrPending comes with a submitted record when the transfer was sent
	// but not mined while the caller waited. The record is finished in the
	// background.
	ErrPending    = errors.New("payment submitted, awaiting confirmation")
	ErrInProgress = errors.New("a checkout is already running for this cart")
)

// Line is one purchased cart row.
type Line struct {
	DrugID   int64           `json:"drug_id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	PriceUSD decimal.Decimal `json:"price_usd"`
}

// Quote is the ETH amount due for a USD total.
type Quote struct {
	TotalUSD   decimal.Decimal `json:"total_usd"`
	AmountETH  decimal.Decimal `json:"amount_eth"`
	USDPerETH  decimal.Decimal `json:"usd_per_eth"`
	RateSource RateSource      `json:"rate_source"`
	Receiver   string          `json:"receiver"`
}

// Record is the gateway's ledger entry for one checkout attempt.
type Record struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   string          `json:"session_id"`
	Customer    string          `json:"customer"`
	Items       []Line          `json:"items"`
	TotalUSD    decimal.Decimal `json:"total_usd"`
	AmountETH   decimal.Decimal `json:"amount_eth"`
	USDPerETH   decimal.Decimal `json:"usd_per_eth"`
	RateSource  RateSource      `json:"rate_source"`
	Receiver    string          `json:"receiver"`
	TxHash      string          `json:"tx_hash,omitempty"`
	ChainID     string          `json:"chain_id,omitempty"`
	BlockNumber *uint64         `json:"block_number,omitempty"`
	Status      Status          `json:"status"`
	Recorded    bool            `json:"recorded"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (r *Record) transition(to Status) error {
	for _, allowed := range validTransitions[r.Status] {
		if allowed == to {
			r.Status = to
			r.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid checkout transition %s -> %s", r.Status, to)
}

// Terminal reports whether the record reached success or error.
func (r *Record) Terminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusError
}
