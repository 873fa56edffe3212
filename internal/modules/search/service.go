package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
)

// SortOrder selects the post-ranking order.
type SortOrder string

const (
	SortRelevance  SortOrder = "relevance"
	SortPriceAsc   SortOrder = "price-asc"
	SortPriceDesc  SortOrder = "price-desc"
	SortRatingDesc SortOrder = "rating-desc"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortPriceAsc, SortPriceDesc, SortRatingDesc:
		return o, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Query is a search request. Nil bounds are open.
type Query struct {
	Text     string
	Sort     SortOrder
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// Apply sorts and price-filters ranked results. The input is not modified.
func Apply(results []catalog.Drug, q Query) []catalog.Drug {
	out := make([]catalog.Drug, 0, len(results))
	for _, d := range results {
		if q.MinPrice != nil && d.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && d.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		out = append(out, d)
	}

	switch q.Sort {
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case SortRatingDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	}
	return out
}

// Catalog supplies the candidate list.
type Catalog interface {
	ListPublic(ctx context.Context) ([]catalog.Drug, error)
}

// Service defines search business logic.
type Service interface {
	Search(ctx context.Context, q Query) ([]catalog.Drug, error)
}

type service struct {
	catalog  Catalog
	pipeline *Pipeline
}

func NewService(source Catalog, pipeline *Pipeline) Service {
	return &service{catalog: source, pipeline: pipeline}
}

func (s *service) Search(ctx context.Context, q Query) ([]catalog.Drug, error) {
	candidates, err := s.catalog.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	ranked := s.pipeline.Run(ctx, q.Text, candidates)
	return Apply(ranked, q), nil
}
