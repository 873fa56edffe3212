package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Repository stores carts by session id. Get returns an empty cart for an
// unknown session.
type Repository interface {
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

type memoryRepo struct {
	mu    sync.RWMutex
	carts map[string]Cart
}

func NewMemoryRepository() Repository {
	return &memoryRepo{carts: make(map[string]Cart)}
}

func (r *memoryRepo) Get(ctx context.Context, sessionID string) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[sessionID]
	if !ok {
		return &Cart{SessionID: sessionID}, nil
	}
	c.Items = append([]Item(nil), c.Items...)
	return &c, nil
}

func (r *memoryRepo) Save(ctx context.Context, c *Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	r.carts[c.SessionID] = cp
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, sessionID)
	return nil
}

const redisKeyPrefix = "cart:"

type redisRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisRepository keeps carts as JSON with a sliding TTL.
func NewRedisRepository(rdb *redis.Client, ttl time.Duration) Repository {
	return &redisRepo{rdb: rdb, ttl: ttl}
}

func (r *redisRepo) Get(ctx context.Context, sessionID string) (*Cart, error) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Cart{SessionID: sessionID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &c, nil
}

func (r *redisRepo) Save(ctx context.Context, c *Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+c.SessionID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *redisRepo) Delete(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, redisKeyPrefix+sessionID).Err()
}
