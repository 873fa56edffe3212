package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
	"github.com/georgemunganga/pharma-gateway/internal/validation"
)

// Service defines cart business logic.
type Service interface {
	NewSession() string
	Get(ctx context.Context, sessionID string) (*Cart, error)
	AddItem(ctx context.Context, sessionID string, drugID int64, qty int) (*Cart, error)
	SetQuantity(ctx context.Context, sessionID string, drugID int64, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, sessionID string, drugID int64) (*Cart, error)
	Clear(ctx context.Context, sessionID string) error
	// RemovePaid deducts paid quantities by drug id, leaving anything added
	// since the payment was priced.
	RemovePaid(ctx context.Context, sessionID string, paid map[int64]int) (*Cart, error)
}

// DrugLookup resolves drugs being added to a cart.
type DrugLookup interface {
	GetDrug(ctx context.Context, id int64) (*catalog.Drug, error)
}

// addInput bounds a single add to one row's worth of MaxQuantity.
type addInput struct {
	Quantity int `json:"quantity" validate:"min=1,max=99"`
}

type service struct {
	repo  Repository
	drugs DrugLookup
	// mu serialises read-modify-write cycles on a cart.
	mu sync.Mutex
}

func NewService(repo Repository, drugs DrugLookup) Service {
	return &service{repo: repo, drugs: drugs}
}

func (s *service) NewSession() string { return uuid.NewString() }

func (s *service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, sessionID)
}

func (s *service) AddItem(ctx context.Context, sessionID string, drugID int64, qty int) (*Cart, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	if err := validation.Struct(addInput{Quantity: qty}); err != nil {
		return nil, ErrInvalidQuantity
	}
	d, err := s.drugs.GetDrug(ctx, drugID)
	if err != nil {
		return nil, err
	}
	if !d.Stage.IsPublic() {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnavailable, d.Name, d.Stage.Label())
	}

	return s.update(ctx, sessionID, func(c *Cart) error {
		return c.Add(Item{
			DrugID:    d.ID,
			Name:      d.Name,
			Batch:     d.Batch,
			ImageURL:  d.ImageURL,
			UnitPrice: d.Price,
			Quantity:  qty,
		})
	})
}

func (s *service) SetQuantity(ctx context.Context, sessionID string, drugID int64, qty int) (*Cart, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	return s.update(ctx, sessionID, func(c *Cart) error { return c.SetQuantity(drugID, qty) })
}

func (s *service) RemoveItem(ctx context.Context, sessionID string, drugID int64) (*Cart, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	return s.update(ctx, sessionID, func(c *Cart) error { return c.Remove(drugID) })
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	if err := validSession(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Delete(ctx, sessionID)
}

func (s *service) RemovePaid(ctx context.Context, sessionID string, paid map[int64]int) (*Cart, error) {
	if err := validSession(sessionID); err != nil {
		return nil, err
	}
	return s.update(ctx, sessionID, func(c *Cart) error {
		c.Deduct(paid)
		return nil
	})
}

func (s *service) update(ctx context.Context, sessionID string, fn func(*Cart) error) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func validSession(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSession, id)
	}
	return nil
}
