package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/m365ctl/internal/core/ports/driven"
	"github.com/custodia-labs/m365ctl/internal/logger"
)

// DefaultCacheTTL is how long a cached read stays fresh.
const DefaultCacheTTL = time.Minute

// Query cache keys.
const keyTenants = "tenants"

func licensesKey(tenantID int64) string { return fmt.Sprintf("licenses:%d", tenantID) }
func usersKey(tenantID int64) string    { return fmt.Sprintf("users:%d", tenantID) }
func domainsKey(tenantID int64) string  { return fmt.Sprintf("domains:%d", tenantID) }

// tenantKeys lists every key scoped to a tenant.
func tenantKeys(tenantID int64) []string {
	return []string{licensesKey(tenantID), usersKey(tenantID), domainsKey(tenantID)}
}

// queryCache wraps an optional driven.QueryCache. Cache failures are logged
// and never fail the read or write they accompany.
type queryCache struct {
	store driven.QueryCache
	ttl   time.Duration
}

func newQueryCache(store driven.QueryCache, ttl time.Duration) queryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return queryCache{store: store, ttl: ttl}
}

// invalidate drops keys and everything nested below them. It runs even when
// ctx is already cancelled: the mutation it follows may have reached the server.
func (c queryCache) invalidate(ctx context.Context, keys ...string) {
	if c.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := c.store.Invalidate(ctx, key); err != nil {
			logger.Warn("failed to invalidate cache key %q: %v", key, err)
		}
	}
}

// put stores v under key.
func (c queryCache) put(ctx context.Context, key string, v any) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("failed to encode cache entry %q: %v", key, err)
		return
	}
	if err := c.store.Put(ctx, key, data); err != nil {
		logger.Warn("failed to write cache entry %q: %v", key, err)
	}
}

// readThrough returns the cached value for key, or calls fetch and caches its result.
func readThrough[T any](ctx context.Context, c queryCache, key string, fetch func() (T, error)) (T, error) {
	if c.store != nil {
		data, ok, err := c.store.Get(ctx, key, c.ttl)
		switch {
		case err != nil:
			logger.Warn("failed to read cache entry %q: %v", key, err)
		case ok:
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				logger.Debug("cache hit: %s", key)
				return v, nil
			}
			logger.Debug("discarding undecodable cache entry %q", key)
		}
	}

	v, err := fetch()
	if err != nil {
		return v, err
	}
	c.put(ctx, key, v)
	return v, nil
}
