package service

import (
	"context"
	"testing"
	"time"

	"dapurpos/backend/internal/domain"
)

func TestRolloverWithoutSession(t *testing.T) {
	svc, _, _ := newTestService()

	check, err := svc.CheckSessionRollover(context.Background())
	if err != nil {
		t.Fatalf("rollover check failed: %v", err)
	}
	if check.Outcome != domain.AdvisoryNoSessionOpen {
		t.Fatalf("expected no_session_open, got %s", check.Outcome)
	}
}

func TestRolloverSameDayIsNormal(t *testing.T) {
	svc, _, clk := newTestService()

	if _, err := svc.StartSession(managerCtx()); err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	// Late evening of the same calendar day.
	clk.now = time.Date(2024, 3, 10, 23, 45, 0, 0, time.UTC)
	check, err := svc.CheckSessionRollover(context.Background())
	if err != nil {
		t.Fatalf("rollover check failed: %v", err)
	}
	if check.Outcome != domain.AdvisoryNormal {
		t.Fatalf("expected normal, got %s", check.Outcome)
	}
	if check.Session == nil || check.Session.Status != domain.SessionStatusActive {
		t.Fatalf("expected ACTIVE session in response, got %+v", check.Session)
	}
}

func TestRolloverFlagsCrossedDay(t *testing.T) {
	svc, repo, clk := newTestService()

	session, err := svc.StartSession(managerCtx())
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	clk.now = time.Date(2024, 3, 11, 0, 5, 0, 0, time.UTC)
	check, err := svc.CheckSessionRollover(context.Background())
	if err != nil {
		t.Fatalf("rollover check failed: %v", err)
	}
	if check.Outcome != domain.AdvisoryMustReconcile {
		t.Fatalf("expected must_reconcile, got %s", check.Outcome)
	}
	if check.Session == nil || check.Session.Status != domain.SessionStatusPendingClose {
		t.Fatalf("expected PENDING_CLOSE session, got %+v", check.Session)
	}

	stored, err := repo.GetSessionByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Status != domain.SessionStatusPendingClose {
		t.Fatalf("expected stored session PENDING_CLOSE, got %s", stored.Status)
	}
}

func TestRolloverIsIdempotent(t *testing.T) {
	svc, _, clk := newTestService()

	if _, err := svc.StartSession(managerCtx()); err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	clk.now = time.Date(2024, 3, 12, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		check, err := svc.CheckSessionRollover(context.Background())
		if err != nil {
			t.Fatalf("rollover check %d failed: %v", i, err)
		}
		if check.Outcome != domain.AdvisoryMustReconcile {
			t.Fatalf("rollover check %d: expected must_reconcile, got %s", i, check.Outcome)
		}
	}
}

func TestRolloverNeverCloses(t *testing.T) {
	svc, repo, clk := newTestService()

	session, err := svc.StartSession(managerCtx())
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}

	// Several days pass without anyone reconciling.
	clk.now = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	if _, err := svc.CheckSessionRollover(context.Background()); err != nil {
		t.Fatalf("rollover check failed: %v", err)
	}

	stored, err := repo.GetSessionByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Status == domain.SessionStatusClosed {
		t.Fatalf("rollover must never close a session")
	}
	if stored.ClosedAt != nil {
		t.Fatalf("expected nil ClosedAt, got %v", stored.ClosedAt)
	}
}
