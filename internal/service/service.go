package service

import (
	"context"
	"log"
	"time"

	"github.com/floradistro/websitev2-sub022/internal/cache"
	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/store"
	"github.com/floradistro/websitev2-sub022/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const openSessionCacheTTL = 5 * time.Minute

type Service struct {
	repo              store.Repository
	sessions          cache.SessionCache
	defaultLocationID string
}

func New(repo store.Repository, sessions cache.SessionCache, defaultLocationID string) *Service {
	if sessions == nil {
		sessions = cache.NoopSessionCache{}
	}
	if defaultLocationID == "" {
		defaultLocationID = "loc-main"
	}

	return &Service{
		repo:              repo,
		sessions:          sessions,
		defaultLocationID: defaultLocationID,
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if date == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrValidation
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		Actor:      actor.Username,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) actorUsername(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "system"
	}
	return actor.Username
}
