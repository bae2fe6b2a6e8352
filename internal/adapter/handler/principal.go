package handler

import (
	"context"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom returns the associate resolved by the auth middleware or
// interceptor, or nil when the request was not authenticated.
func principalFrom(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey{}).(*domain.Principal)
	return p
}
