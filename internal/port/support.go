package port

import (
	"time"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
)

type IDGenerator interface {
	// NextID returns a unique, time ordered identifier
	NextID() int64
}

type TokenClaims struct {
	Subject   string
	TokenID   string
	ExpiresAt time.Time
}

type TokenIssuer interface {
	// Issue signs a token for subject that expires after ttl
	Issue(subject string, ttl time.Duration) (token string, claims TokenClaims, err error)

	// Verify checks signature and expiry and returns the token's claims
	Verify(token string) (TokenClaims, error)
}

type TransitionRecorder interface {
	// RecordTransition observes one attempted transition and its outcome
	RecordTransition(action domain.Action, err error, elapsed time.Duration)
}
