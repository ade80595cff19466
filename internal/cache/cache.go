package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache provides type-safe caching operations.
type Cache[T any] struct {
	store     Store
	keyPrefix string
	ttl       time.Duration
}

// New creates a typed cache whose keys are "<prefix>:<key>".
func New[T any](store Store, prefix string, ttl time.Duration) (*Cache[T], error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if prefix == "" {
		return nil, errors.New("key prefix is required")
	}
	if ttl <= 0 {
		return nil, errors.New("TTL must be positive")
	}
	return &Cache[T]{store: store, keyPrefix: prefix, ttl: ttl}, nil
}

// Key returns the full key for key.
func (c *Cache[T]) Key(key string) string {
	return c.keyPrefix + ":" + key
}

// Get retrieves a cached value. Returns ErrCacheMiss if absent.
func (c *Cache[T]) Get(ctx context.Context, key string) (*T, error) {
	data, err := c.store.Get(ctx, c.Key(key))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("cache unmarshal: %w", err)
	}
	return &value, nil
}

// Set stores a value with the cache TTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.store.Set(ctx, c.Key(key), data, c.ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
