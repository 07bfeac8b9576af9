package promo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
	"github.com/himanshu-firke/shopsphere-backend/pkg/redis"
)

const defaultCacheTTL = 5 * time.Minute

// negative cache sentinel so unknown codes do not hammer the database
const missPayload = "__miss__"

// CachedSource wraps a RuleSource with a Redis read-through cache. Cache
// faults fall back to the underlying source; the cache is an optimization,
// never a source of truth.
type CachedSource struct {
	source RuleSource
	client *redis.Client
	ttl    time.Duration
}

// NewCachedSource builds the caching decorator.
func NewCachedSource(source RuleSource, client *redis.Client, ttl time.Duration) (*CachedSource, error) {
	if source == nil {
		return nil, errors.New("rule source is required")
	}
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedSource{source: source, client: client, ttl: ttl}, nil
}

// RuleByCode checks the cache, then the underlying source, caching both hits
// and misses.
func (c *CachedSource) RuleByCode(ctx context.Context, code string) (*models.PromoRule, error) {
	key := c.client.PromoCacheKey(NormalizeCode(code))

	if raw, err := c.client.Get(ctx, key); err == nil {
		if raw == missPayload {
			return nil, nil
		}
		var rule models.PromoRule
		if jsonErr := json.Unmarshal([]byte(raw), &rule); jsonErr == nil {
			return &rule, nil
		}
		// Undecodable cache entry: drop it and fall through.
		_ = c.client.Del(ctx, key)
	}

	rule, err := c.source.RuleByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		_ = c.client.Set(ctx, key, missPayload, c.ttl)
		return nil, nil
	}
	if payload, jsonErr := json.Marshal(rule); jsonErr == nil {
		_ = c.client.Set(ctx, key, payload, c.ttl)
	}
	return rule, nil
}
