package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"strings"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

var (
	ErrNotFound    = errors.New("drug not found")
	ErrInvalidDrug = errors.New("invalid drug")
	ErrReadOnly    = errors.New("catalog writes require a wallet and contract")
)

// Repository defines the read side of a drug listing source.
type Repository interface {
	List(ctx context.Context) ([]Drug, error)
	ListByOwner(ctx context.Context, owner string) ([]Drug, error)
}

// BackendAPI is the slice of the backend client the catalog reads from.
type BackendAPI interface {
	BaseURL() string
	PublicDrugs(ctx context.Context) ([]pharmaapi.Drug, error)
}

type backendRepo struct{ api BackendAPI }

// NewBackendRepository reads the backend's mirror of the contract.
func NewBackendRepository(api BackendAPI) Repository { return &backendRepo{api: api} }

func (r *backendRepo) List(ctx context.Context) ([]Drug, error) {
	items, err := r.api.PublicDrugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch public drugs: %w", err)
	}
	drugs := make([]Drug, 0, len(items))
	for _, it := range items {
		d, err := FromBackend(r.api.BaseURL(), it)
		if err != nil {
			log.Printf("catalog: skipping backend record: %v", err)
			continue
		}
		drugs = append(drugs, d)
	}
	return drugs, nil
}

func (r *backendRepo) ListByOwner(ctx context.Context, owner string) ([]Drug, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var mine []Drug
	for _, d := range all {
		if strings.EqualFold(d.Owner, owner) {
			mine = append(mine, d)
		}
	}
	return mine, nil
}

// FromBackend normalises a backend drug record (price in wei).
func FromBackend(baseURL string, it pharmaapi.Drug) (Drug, error) {
	id, err := it.ID.Int64()
	if err != nil {
		return Drug{}, fmt.Errorf("drug id %q: %w", it.ID, err)
	}
	wei := new(big.Int)
	if p := it.Price.String(); p != "" {
		if _, ok := wei.SetString(p, 10); !ok {
			return Drug{}, fmt.Errorf("drug %d: invalid price %q", id, p)
		}
	}
	stage, err := stageFrom(it.Stage)
	if err != nil {
		return Drug{}, fmt.Errorf("drug %d: %w", id, err)
	}
	d := newDrug(id, it.Name, it.Batch, wei, stage, it.Owner)
	d.ImageURL = ResolveImageURL(baseURL, it.Image)
	return d, nil
}

// stageFrom narrows a wire stage, rejecting values outside the contract's
// uint8.
func stageFrom(v int) (Stage, error) {
	if v < 0 || v > math.MaxUint8 {
		return 0, fmt.Errorf("%w: stage %d out of range", ErrInvalidDrug, v)
	}
	return Stage(v), nil
}

// FromSearchHit maps a remote keyword-search item. Search hits carry no
// usable price, so it is left at zero.
func FromSearchHit(baseURL string, it pharmaapi.Drug) (Drug, error) {
	id, _ := it.ID.Int64()
	stage, err := stageFrom(it.Stage)
	if err != nil {
		return Drug{}, fmt.Errorf("search hit %d: %w", id, err)
	}
	return Drug{
		ID:          id,
		Name:        it.Name,
		Batch:       it.Batch,
		Stage:       stage,
		StageLabel:  stage.Label(),
		Owner:       it.Owner,
		ImageURL:    ResolveImageURL(baseURL, it.Image),
		Description: fmt.Sprintf("Batch %s • Owner %s", it.Batch, ShortAddress(it.Owner)),
		Rating:      DefaultRating,
	}, nil
}
