package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key claimed by SetIdempotency so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// RevokeToken remembers a token ID as logged out until ttl elapses
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsTokenRevoked reports whether RevokeToken was called for the token ID
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}
