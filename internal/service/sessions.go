package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/metrics"
	"github.com/floradistro/websitev2-sub022/internal/store"
)

// OpenSession opens a drawer session on a register, or returns the one that
// is already open there. Re-sending the open request is safe: the register
// can never end up with two open sessions.
func (s *Service) OpenSession(ctx context.Context, req domain.SessionOpenRequest) (domain.SessionOpenResult, error) {
	if req.RegisterID == "" {
		return domain.SessionOpenResult{}, fmt.Errorf("%w: register_id is required", store.ErrValidation)
	}
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	if req.OpeningCash.Sign() < 0 {
		return domain.SessionOpenResult{}, fmt.Errorf("%w: opening_cash cannot be negative", store.ErrValidation)
	}

	sess, created, err := s.repo.OpenSession(ctx, domain.DrawerSession{
		RegisterID:  req.RegisterID,
		LocationID:  req.LocationID,
		VendorID:    req.VendorID,
		OpenedBy:    s.actorUsername(ctx),
		OpeningCash: req.OpeningCash,
		OpenedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.SessionOpenResult{}, err
	}

	if created {
		metrics.SessionsOpened.Inc()
		s.logAudit(ctx, "session_open", "session", sess.ID, fmt.Sprintf("register=%s,opening_cash=%s", sess.RegisterID, sess.OpeningCash.String()))
	}
	if err := s.sessions.SetOpenSession(ctx, sess.RegisterID, sess, openSessionCacheTTL); err != nil {
		log.Printf("[session-cache] WARN: failed to cache open session register=%s: %v", sess.RegisterID, err)
	}

	return domain.SessionOpenResult{Session: *sess, Created: created}, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.DrawerSession, error) {
	if sessionID == "" {
		return domain.DrawerSession{}, fmt.Errorf("%w: session id is required", store.ErrValidation)
	}
	sess, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return domain.DrawerSession{}, err
	}
	return *sess, nil
}

func (s *Service) GetOpenSessionByRegister(ctx context.Context, registerID string) (domain.DrawerSession, error) {
	if registerID == "" {
		return domain.DrawerSession{}, fmt.Errorf("%w: register_id is required", store.ErrValidation)
	}

	if cached, ok, err := s.sessions.GetOpenSession(ctx, registerID); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[session-cache] WARN: lookup failed register=%s: %v", registerID, err)
	}

	sess, err := s.repo.GetOpenSessionByRegister(ctx, registerID)
	if err != nil {
		return domain.DrawerSession{}, err
	}
	if err := s.sessions.SetOpenSession(ctx, registerID, sess, openSessionCacheTTL); err != nil {
		log.Printf("[session-cache] WARN: failed to cache open session register=%s: %v", registerID, err)
	}
	return *sess, nil
}

func (s *Service) ListSessions(ctx context.Context, locationID string, status string, limit int) ([]domain.DrawerSession, error) {
	return s.repo.ListSessions(ctx, locationID, status, limit)
}

func (s *Service) RecordSale(ctx context.Context, sessionID string, req domain.SaleAccrualRequest) (domain.AccrualResult, error) {
	if sessionID == "" {
		return domain.AccrualResult{}, fmt.Errorf("%w: session id is required", store.ErrValidation)
	}
	if req.Amount.Sign() < 0 || req.CashAmount.Sign() < 0 {
		return domain.AccrualResult{}, fmt.Errorf("%w: sale amounts cannot be negative", store.ErrValidation)
	}
	if req.CashAmount.GreaterThan(req.Amount) {
		return domain.AccrualResult{}, fmt.Errorf("%w: cash_amount cannot exceed amount", store.ErrValidation)
	}

	accrual := store.SessionAccrual{
		Sales:        req.Amount,
		Cash:         req.CashAmount,
		Transactions: 1,
	}
	if req.WalkIn {
		accrual.WalkIns = 1
	}
	if req.PickupOrder {
		accrual.PickupOrders = 1
	}
	return s.applyAccrual(ctx, sessionID, "sale", accrual)
}

func (s *Service) RecordRefund(ctx context.Context, sessionID string, req domain.ReversalAccrualRequest) (domain.AccrualResult, error) {
	return s.recordReversal(ctx, sessionID, "refund", req)
}

func (s *Service) RecordVoid(ctx context.Context, sessionID string, req domain.ReversalAccrualRequest) (domain.AccrualResult, error) {
	return s.recordReversal(ctx, sessionID, "void", req)
}

func (s *Service) recordReversal(ctx context.Context, sessionID string, kind string, req domain.ReversalAccrualRequest) (domain.AccrualResult, error) {
	if sessionID == "" {
		return domain.AccrualResult{}, fmt.Errorf("%w: session id is required", store.ErrValidation)
	}
	if req.Amount.Sign() < 0 || req.CashAmount.Sign() < 0 {
		return domain.AccrualResult{}, fmt.Errorf("%w: %s amounts cannot be negative", store.ErrValidation, kind)
	}

	return s.applyAccrual(ctx, sessionID, kind, store.SessionAccrual{
		Sales:        req.Amount.Neg(),
		Cash:         req.CashAmount.Neg(),
		Transactions: -1,
	})
}

func (s *Service) applyAccrual(ctx context.Context, sessionID string, kind string, accrual store.SessionAccrual) (domain.AccrualResult, error) {
	sess, clamped, err := s.repo.ApplySessionAccrual(ctx, sessionID, accrual)
	if err != nil {
		return domain.AccrualResult{}, err
	}
	if clamped {
		log.Printf("[session] WARN: accrual clamped at zero session=%s kind=%s", sessionID, kind)
	}

	metrics.SessionAccruals.WithLabelValues(kind).Inc()
	if err := s.sessions.SetOpenSession(ctx, sess.RegisterID, sess, openSessionCacheTTL); err != nil {
		log.Printf("[session-cache] WARN: failed to refresh open session register=%s: %v", sess.RegisterID, err)
	}
	return domain.AccrualResult{Session: *sess, Clamped: clamped}, nil
}

// CloseSession settles the drawer. Expected cash is opening cash plus the
// accrued cash total; the difference against the counted amount decides the
// balanced, over, or short verdict. Closing an already closed session returns
// the stored summary without recomputing anything.
func (s *Service) CloseSession(ctx context.Context, sessionID string, req domain.SessionCloseRequest) (domain.SessionCloseResult, error) {
	if sessionID == "" {
		return domain.SessionCloseResult{}, fmt.Errorf("%w: session id is required", store.ErrValidation)
	}
	if req.ClosingCash == nil {
		return domain.SessionCloseResult{}, fmt.Errorf("%w: closing_cash is required", store.ErrValidation)
	}
	if req.ClosingCash.Sign() < 0 {
		return domain.SessionCloseResult{}, fmt.Errorf("%w: closing_cash cannot be negative", store.ErrValidation)
	}

	sess, alreadyClosed, err := s.repo.CloseSession(ctx, sessionID, *req.ClosingCash, s.actorUsername(ctx), req.ClosingNotes, time.Now().UTC())
	if err != nil {
		return domain.SessionCloseResult{}, err
	}

	if !alreadyClosed {
		metrics.SessionsClosed.WithLabelValues(sess.CloseStatus).Inc()
		if sess.CashDifference != nil {
			variance, _ := sess.CashDifference.Float64()
			metrics.LastCloseVariance.Set(variance)
		}
		s.logAudit(ctx, "session_close", "session", sess.ID, fmt.Sprintf("closing_cash=%s,status=%s", req.ClosingCash.String(), sess.CloseStatus))
		if err := s.sessions.InvalidateRegister(ctx, sess.RegisterID); err != nil {
			log.Printf("[session-cache] WARN: failed to invalidate register=%s: %v", sess.RegisterID, err)
		}
	}

	return domain.SessionCloseResult{Session: *sess, AlreadyClosed: alreadyClosed}, nil
}
