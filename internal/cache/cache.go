package cache

import (
	"context"
	"time"

	"dapurpos/backend/internal/domain"
)

// SessionCache holds the current-session snapshot so the hot session-status
// path does not hit the database on every poll. Entries are invalidated on
// every lifecycle transition.
type SessionCache interface {
	Get(ctx context.Context, key string) (*domain.Session, bool, error)
	Set(ctx context.Context, key string, value *domain.Session, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopSessionCache struct{}

func (NoopSessionCache) Get(_ context.Context, _ string) (*domain.Session, bool, error) {
	return nil, false, nil
}

func (NoopSessionCache) Set(_ context.Context, _ string, _ *domain.Session, _ time.Duration) error {
	return nil
}

func (NoopSessionCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
