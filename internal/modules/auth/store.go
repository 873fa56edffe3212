package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FlowStore keeps in-progress flows.
type FlowStore interface {
	Save(ctx context.Context, f *Flow) error
	Get(ctx context.Context, id uuid.UUID) (*Flow, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memoryFlows struct {
	mu    sync.Mutex
	ttl   time.Duration
	flows map[uuid.UUID]Flow
}

// NewMemoryFlowStore keeps flows for ttl after their last update.
func NewMemoryFlowStore(ttl time.Duration) FlowStore {
	return &memoryFlows{ttl: ttl, flows: make(map[uuid.UUID]Flow)}
}

func (s *memoryFlows) Save(ctx context.Context, f *Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.ID] = *f
	return nil
}

func (s *memoryFlows) Get(ctx context.Context, id uuid.UUID) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	if s.ttl > 0 && time.Since(f.UpdatedAt) > s.ttl {
		delete(s.flows, id)
		return nil, ErrFlowNotFound
	}
	return &f, nil
}

func (s *memoryFlows) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, id)
	return nil
}
