package handler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rl1809/warehouse-inventory/internal/adapter/identity"
	"github.com/rl1809/warehouse-inventory/internal/adapter/storage"
	"github.com/rl1809/warehouse-inventory/internal/core/service"
)

type sequenceIDs struct{ n atomic.Int64 }

func (s *sequenceIDs) NextID() int64 { return s.n.Add(1) }

type testEnv struct {
	inventory    *service.InventoryService
	auth         *service.AuthService
	workerToken  string
	managerToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	repo := storage.NewMemoryAdapter()
	cache := storage.NewLRUCache(0, time.Hour)
	ids := &sequenceIDs{}
	issuer, err := identity.NewJWTIssuer("handler-test-secret")
	require.NoError(t, err)

	env := &testEnv{
		inventory: service.NewInventoryService(repo, ids, service.WithCache(cache)),
		auth:      service.NewAuthService(repo, ids, issuer, cache, time.Hour, nil),
	}

	_, err = env.auth.Register(ctx, "alice", "alice-pw", false)
	require.NoError(t, err)
	_, err = env.auth.Register(ctx, "bob", "bob-pw", true)
	require.NoError(t, err)

	worker, err := env.auth.Login(ctx, "alice", "alice-pw")
	require.NoError(t, err)
	manager, err := env.auth.Login(ctx, "bob", "bob-pw")
	require.NoError(t, err)
	env.workerToken = worker.Token
	env.managerToken = manager.Token
	return env
}
