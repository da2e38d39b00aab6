package cache

import (
	"context"
	"time"

	"github.com/floradistro/websitev2-sub022/internal/domain"
)

// SessionCache answers "which session is open on this register" without a
// database round trip. Misses and errors both fall through to the store, so
// a broken cache degrades to slower reads, never wrong ones.
type SessionCache interface {
	GetOpenSession(ctx context.Context, registerID string) (*domain.DrawerSession, bool, error)
	SetOpenSession(ctx context.Context, registerID string, session *domain.DrawerSession, ttl time.Duration) error
	InvalidateRegister(ctx context.Context, registerID string) error
}

type NoopSessionCache struct{}

func (NoopSessionCache) GetOpenSession(_ context.Context, _ string) (*domain.DrawerSession, bool, error) {
	return nil, false, nil
}

func (NoopSessionCache) SetOpenSession(_ context.Context, _ string, _ *domain.DrawerSession, _ time.Duration) error {
	return nil
}

func (NoopSessionCache) InvalidateRegister(_ context.Context, _ string) error {
	return nil
}
