package service

import (
	"context"
	"errors"

	"dapurpos/backend/internal/clock"
	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/store"
)

// CheckSessionRollover detects a session left open past its calendar day and
// flags it PENDING_CLOSE. The check is idempotent: a session already flagged
// stays flagged, and nothing is auto-closed without operator input.
func (s *Service) CheckSessionRollover(ctx context.Context) (domain.SessionCheckResponse, error) {
	current, err := s.repo.GetCurrentSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SessionCheckResponse{Outcome: domain.AdvisoryNoSessionOpen}, nil
		}
		return domain.SessionCheckResponse{}, err
	}

	if current.Status == domain.SessionStatusPendingClose {
		return domain.SessionCheckResponse{Outcome: domain.AdvisoryMustReconcile, Session: current}, nil
	}

	now := s.clock.Now()
	if clock.SameDay(current.SessionDate, now, s.loc) {
		return domain.SessionCheckResponse{Outcome: domain.AdvisoryNormal, Session: current}, nil
	}

	flagged, err := s.repo.MarkSessionPendingClose(ctx, current.ID)
	if err != nil {
		if errors.Is(err, store.ErrSessionAlreadyClosed) {
			return domain.SessionCheckResponse{Outcome: domain.AdvisoryNoSessionOpen}, nil
		}
		return domain.SessionCheckResponse{}, err
	}

	s.invalidateSessionCache(ctx)
	s.logAudit(ctx, "session_flag_pending_close", "session", flagged.ID, flagged.SessionDate.Format("2006-01-02"))
	return domain.SessionCheckResponse{Outcome: domain.AdvisoryMustReconcile, Session: flagged}, nil
}
