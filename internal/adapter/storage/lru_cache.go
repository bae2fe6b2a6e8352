package storage

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is the in-process CacheRepository used when no Redis address is
// configured. Idempotency keys are bounded by size and expire after
// idempotencyKeyTTL. Revoked tokens are never evicted for space, only once
// tokenTTL has passed, and each also carries its own expiry.
type LRUCache struct {
	mu          sync.Mutex
	idempotency *expirable.LRU[string, struct{}]
	revoked     *expirable.LRU[string, time.Time]
	now         func() time.Time
}

// NewLRUCache creates a cache holding at most size idempotency keys, zero
// meaning unbounded. tokenTTL is the longest lifetime of an issued token.
func NewLRUCache(size int, tokenTTL time.Duration) *LRUCache {
	return &LRUCache{
		idempotency: expirable.NewLRU[string, struct{}](size, nil, idempotencyKeyTTL),
		revoked:     expirable.NewLRU[string, time.Time](0, nil, tokenTTL),
		now:         time.Now,
	}
}

func (c *LRUCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.idempotency.Contains(key) {
		return false, nil
	}
	c.idempotency.Add(key, struct{}{})
	return true, nil
}

func (c *LRUCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idempotency.Remove(key)
	return nil
}

func (c *LRUCache) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	c.revoked.Add(tokenID, c.now().Add(ttl))
	return nil
}

func (c *LRUCache) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	expiresAt, ok := c.revoked.Get(tokenID)
	if !ok {
		return false, nil
	}
	if !c.now().Before(expiresAt) {
		c.revoked.Remove(tokenID)
		return false, nil
	}
	return true, nil
}
