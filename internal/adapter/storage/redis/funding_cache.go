package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// FundingCache implements ports.FundingCache using Redis.
// Entries are JSON-encoded FundingStatus values keyed by order ID.
type FundingCache struct {
	client *goredis.Client
	prefix string
}

// NewFundingCache creates a new Redis-backed funding cache.
func NewFundingCache(client *goredis.Client) *FundingCache {
	return &FundingCache{
		client: client,
		prefix: "funding:",
	}
}

// Get returns the cached funding status for orderID.
// Returns nil, nil if the key does not exist.
func (c *FundingCache) Get(ctx context.Context, orderID string) (*domain.FundingStatus, error) {
	val, err := c.client.Get(ctx, c.prefix+orderID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis funding get: %w", err)
	}

	status := &domain.FundingStatus{}
	if err := json.Unmarshal(val, status); err != nil {
		return nil, fmt.Errorf("decode cached funding for %s: %w", orderID, err)
	}
	return status, nil
}

// Set stores a funding status with TTL.
func (c *FundingCache) Set(ctx context.Context, status *domain.FundingStatus, ttl time.Duration) error {
	val, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode funding for %s: %w", status.OrderID, err)
	}
	if err := c.client.Set(ctx, c.prefix+status.OrderID, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis funding set: %w", err)
	}
	return nil
}

// Invalidate drops the cached funding status for orderID.
func (c *FundingCache) Invalidate(ctx context.Context, orderID string) error {
	if err := c.client.Del(ctx, c.prefix+orderID).Err(); err != nil {
		return fmt.Errorf("redis funding invalidate: %w", err)
	}
	return nil
}
