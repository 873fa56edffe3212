package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyAll         = "catalog:drugs:all"
	cacheKeyOwnerPrefix = "catalog:drugs:owner:"
)

// CachedRepository keeps listings from another Repository in Redis. Redis
// failures are logged and fall through to the source.
type CachedRepository struct {
	source Repository
	rdb    *redis.Client
	ttl    time.Duration
}

func NewCachedRepository(source Repository, rdb *redis.Client, ttl time.Duration) *CachedRepository {
	return &CachedRepository{source: source, rdb: rdb, ttl: ttl}
}

func (c *CachedRepository) List(ctx context.Context) ([]Drug, error) {
	return c.load(ctx, cacheKeyAll, c.source.List)
}

func (c *CachedRepository) ListByOwner(ctx context.Context, owner string) ([]Drug, error) {
	return c.load(ctx, cacheKeyOwnerPrefix+strings.ToLower(owner), func(ctx context.Context) ([]Drug, error) {
		return c.source.ListByOwner(ctx, owner)
	})
}

func (c *CachedRepository) load(ctx context.Context, key string, fetch func(context.Context) ([]Drug, error)) ([]Drug, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var drugs []Drug
		if err := json.Unmarshal(raw, &drugs); err == nil {
			return drugs, nil
		}
		log.Printf("catalog cache: discarding corrupt entry %s", key)
	case !errors.Is(err, redis.Nil):
		log.Printf("catalog cache: get %s: %v", key, err)
	}

	drugs, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(drugs); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			log.Printf("catalog cache: set %s: %v", key, err)
		}
	}
	return drugs, nil
}

// Invalidate drops every cached listing after a contract write.
func (c *CachedRepository) Invalidate(ctx context.Context) error {
	keys := []string{cacheKeyAll}
	iter := c.rdb.Scan(ctx, 0, cacheKeyOwnerPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return c.rdb.Del(ctx, keys...).Err()
}
