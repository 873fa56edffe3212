package catalog

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

// Service defines catalog business logic.
type Service interface {
	ListPublic(ctx context.Context) ([]Drug, error)
	ListAll(ctx context.Context) ([]Drug, error)
	GetDrug(ctx context.Context, id int64) (*Drug, error)
	ListByOwner(ctx context.Context, owner string) ([]Drug, error)
	AddDrug(ctx context.Context, in DrugInput) (*WriteResult, error)
	UpdateDrug(ctx context.Context, id int64, in DrugInput) (*WriteResult, error)
	RemoveDrug(ctx context.Context, id int64) (*WriteResult, error)
	AdvanceStage(ctx context.Context, id int64) (*WriteResult, error)
	UploadImage(ctx context.Context, token string, id int64, filename string, content io.Reader) (string, error)
}

// Writer performs contract writes. *ContractWriter implements it.
type Writer interface {
	AddDrug(ctx context.Context, in DrugInput) (*types.Receipt, error)
	UpdateDrug(ctx context.Context, id int64, in DrugInput) (*types.Receipt, error)
	RemoveDrug(ctx context.Context, id int64) (*types.Receipt, error)
	TransferDrug(ctx context.Context, id int64, stage Stage) (*types.Receipt, error)
}

// Invalidator is implemented by caching repositories.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type ImageUploader interface {
	BaseURL() string
	UploadDrugImage(ctx context.Context, token string, drugID int64, filename string, content io.Reader) (*pharmaapi.ImageUploadResponse, error)
}

// WriteResult reports a mined admin transaction.
type WriteResult struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Stage       *Stage `json:"stage,omitempty"`
}

type service struct {
	repo     Repository
	writer   Writer
	uploader ImageUploader
}

// NewService wires the catalog. writer and uploader may be nil, in which
// case the corresponding operations fail.
func NewService(repo Repository, writer Writer, uploader ImageUploader) Service {
	return &service{repo: repo, writer: writer, uploader: uploader}
}

func (s *service) ListPublic(ctx context.Context) ([]Drug, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	public := make([]Drug, 0, len(all))
	for _, d := range all {
		if d.Stage.IsPublic() {
			public = append(public, d)
		}
	}
	return public, nil
}

func (s *service) ListAll(ctx context.Context) ([]Drug, error) {
	return s.repo.List(ctx)
}

func (s *service) GetDrug(ctx context.Context, id int64) (*Drug, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
}

func (s *service) ListByOwner(ctx context.Context, owner string) ([]Drug, error) {
	return s.repo.ListByOwner(ctx, owner)
}

func (s *service) AddDrug(ctx context.Context, in DrugInput) (*WriteResult, error) {
	if s.writer == nil {
		return nil, ErrReadOnly
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	receipt, err := s.writer.AddDrug(ctx, in)
	return s.finish(ctx, receipt, err)
}

func (s *service) UpdateDrug(ctx context.Context, id int64, in DrugInput) (*WriteResult, error) {
	if s.writer == nil {
		return nil, ErrReadOnly
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	receipt, err := s.writer.UpdateDrug(ctx, id, in)
	return s.finish(ctx, receipt, err)
}

func (s *service) RemoveDrug(ctx context.Context, id int64) (*WriteResult, error) {
	if s.writer == nil {
		return nil, ErrReadOnly
	}
	receipt, err := s.writer.RemoveDrug(ctx, id)
	return s.finish(ctx, receipt, err)
}

// AdvanceStage moves a drug to the next supply-chain stage.
func (s *service) AdvanceStage(ctx context.Context, id int64) (*WriteResult, error) {
	if s.writer == nil {
		return nil, ErrReadOnly
	}
	d, err := s.GetDrug(ctx, id)
	if err != nil {
		return nil, err
	}
	next, ok := d.Stage.Next()
	if !ok {
		return nil, fmt.Errorf("%w: drug %d is already %s", ErrInvalidDrug, id, d.Stage.Label())
	}
	receipt, err := s.writer.TransferDrug(ctx, id, next)
	res, err := s.finish(ctx, receipt, err)
	if err != nil {
		return nil, err
	}
	res.Stage = &next
	return res, nil
}

func (s *service) UploadImage(ctx context.Context, token string, id int64, filename string, content io.Reader) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("image upload is not configured")
	}
	resp, err := s.uploader.UploadDrugImage(ctx, token, id, filename, content)
	if err != nil {
		return "", err
	}
	s.invalidate(ctx)
	return ResolveImageURL(s.uploader.BaseURL(), resp.Image), nil
}

func (s *service) finish(ctx context.Context, receipt *types.Receipt, err error) (*WriteResult, error) {
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	res := &WriteResult{TxHash: receipt.TxHash.Hex()}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res, nil
}

func (s *service) invalidate(ctx context.Context) {
	inv, ok := s.repo.(Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx); err != nil {
		log.Printf("catalog: cache invalidation failed: %v", err)
	}
}
