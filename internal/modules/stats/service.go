package stats

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

var ErrInvalidPeriod = errors.New("month must be 1-12 and year positive")

// Backend is the slice of the backend client stats reads from.
type Backend interface {
	Revenue(ctx context.Context, month, year int) (*pharmaapi.Revenue, error)
	UserStats(ctx context.Context, token string) ([]pharmaapi.UserStat, error)
}

// TokenRunner runs fn with the bearer token held for a session.
type TokenRunner interface {
	WithToken(ctx context.Context, sessionID string, fn func(token string) error) error
}

// MonthTotal is one month of a yearly revenue series.
type MonthTotal struct {
	Month int     `json:"month"`
	Total float64 `json:"total"`
	// Failed marks a month whose fetch failed and was counted as zero.
	Failed bool `json:"failed,omitempty"`
}

type YearlyRevenue struct {
	Year   int             `json:"year"`
	Months []MonthTotal    `json:"months"`
	Total  decimal.Decimal `json:"total"`
}

// UserStatsView is the filtered customer table with its summary cards.
type UserStatsView struct {
	Filter      string               `json:"filter,omitempty"`
	Rows        []pharmaapi.UserStat `json:"rows"`
	Customers   int                  `json:"customers"`
	TotalSpent  decimal.Decimal      `json:"total_spent"`
	TotalOrders int                  `json:"total_orders"`
	TotalItems  int                  `json:"total_items"`
}

// Service defines the read-only revenue and customer views.
type Service interface {
	Revenue(ctx context.Context, month, year int) (*pharmaapi.Revenue, error)
	// YearlyRevenue fetches the twelve months one after another. A month
	// that fails counts as zero.
	YearlyRevenue(ctx context.Context, year int) (*YearlyRevenue, error)
	// UserStats lists customers whose address contains filter, case
	// insensitively. A 401 purges the session.
	UserStats(ctx context.Context, sessionID, filter string) (*UserStatsView, error)
}

type service struct {
	backend Backend
	tokens  TokenRunner
}

func NewService(backend Backend, tokens TokenRunner) Service {
	return &service{backend: backend, tokens: tokens}
}

func (s *service) Revenue(ctx context.Context, month, year int) (*pharmaapi.Revenue, error) {
	if err := validPeriod(month, year); err != nil {
		return nil, err
	}
	rev, err := s.backend.Revenue(ctx, month, year)
	if err != nil {
		return nil, err
	}
	if rev.Transactions == nil {
		rev.Transactions = []pharmaapi.Transaction{}
	}
	return rev, nil
}

func (s *service) YearlyRevenue(ctx context.Context, year int) (*YearlyRevenue, error) {
	if err := validPeriod(1, year); err != nil {
		return nil, err
	}
	out := &YearlyRevenue{Year: year, Months: make([]MonthTotal, 0, 12), Total: decimal.Zero}
	for month := 1; month <= 12; month++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mt := MonthTotal{Month: month}
		rev, err := s.backend.Revenue(ctx, month, year)
		if err != nil {
			log.Printf("stats: revenue %d-%02d unavailable, counting zero: %v", year, month, err)
			mt.Failed = true
		} else {
			mt.Total = rev.Total
		}
		out.Months = append(out.Months, mt)
		out.Total = out.Total.Add(decimal.NewFromFloat(mt.Total))
	}
	return out, nil
}

func (s *service) UserStats(ctx context.Context, sessionID, filter string) (*UserStatsView, error) {
	var rows []pharmaapi.UserStat
	err := s.tokens.WithToken(ctx, sessionID, func(token string) error {
		var err error
		rows, err = s.backend.UserStats(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summarize(rows, filter), nil
}

func summarize(rows []pharmaapi.UserStat, filter string) *UserStatsView {
	q := strings.ToLower(strings.TrimSpace(filter))
	view := &UserStatsView{Filter: q, Rows: []pharmaapi.UserStat{}, TotalSpent: decimal.Zero}
	for _, row := range rows {
		if q != "" && !strings.Contains(strings.ToLower(row.Customer), q) {
			continue
		}
		view.Rows = append(view.Rows, row)
		view.TotalSpent = view.TotalSpent.Add(decimal.NewFromFloat(row.TotalSpent))
		view.TotalOrders += row.OrderCount
		view.TotalItems += row.ItemCount
	}
	view.Customers = len(view.Rows)
	return view
}

func validPeriod(month, year int) error {
	if month < 1 || month > 12 || year < 1 {
		return ErrInvalidPeriod
	}
	return nil
}
