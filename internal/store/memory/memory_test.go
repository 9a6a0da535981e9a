package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/store"
)

func openSession(t *testing.T, s *Store) *domain.Session {
	t.Helper()
	session, err := s.CreateSession(context.Background(), domain.Session{
		SessionDate: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		OpenedBy:    "manager",
		CreatedAt:   time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestSingleOpenSession(t *testing.T) {
	s := New()
	openSession(t, s)

	_, err := s.CreateSession(context.Background(), domain.Session{
		SessionDate: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, store.ErrSessionAlreadyOpen) {
		t.Fatalf("expected ErrSessionAlreadyOpen, got %v", err)
	}
}

func TestMarkPendingCloseIsIdempotent(t *testing.T) {
	s := New()
	session := openSession(t, s)
	ctx := context.Background()

	first, err := s.MarkSessionPendingClose(ctx, session.ID)
	if err != nil {
		t.Fatalf("mark pending close: %v", err)
	}
	if first.Status != domain.SessionStatusPendingClose {
		t.Fatalf("expected PENDING_CLOSE, got %s", first.Status)
	}

	second, err := s.MarkSessionPendingClose(ctx, session.ID)
	if err != nil {
		t.Fatalf("second mark pending close: %v", err)
	}
	if second.Status != domain.SessionStatusPendingClose {
		t.Fatalf("expected PENDING_CLOSE on repeat, got %s", second.Status)
	}
}

func TestCommitSessionCloseIsAllOrNothing(t *testing.T) {
	s := New()
	session := openSession(t, s)
	ctx := context.Background()

	dish, err := s.CreateDish(ctx, domain.Dish{Name: "Nasi Goreng", PriceCents: 100000, CostPriceCents: 10000, Stock: 5})
	if err != nil {
		t.Fatalf("create dish: %v", err)
	}
	ingredient, err := s.CreateIngredient(ctx, domain.Ingredient{Name: "Beras", Unit: "kg", Stock: 10, CostPerUnitCents: 8000})
	if err != nil {
		t.Fatalf("create ingredient: %v", err)
	}

	// An unknown ingredient in the write set must fail the whole commit.
	_, err = s.CommitSessionClose(ctx, store.SessionClose{
		SessionID:       session.ID,
		ClosedBy:        "manager",
		ClosedAt:        time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC),
		DishStockResets: []string{dish.ID},
		IngredientLevels: []store.IngredientLevelWrite{
			{IngredientID: ingredient.ID, Quantity: 3},
			{IngredientID: "ing-ghost", Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ingredient, got %v", err)
	}

	current, err := s.GetCurrentSession(ctx)
	if err != nil {
		t.Fatalf("get current session: %v", err)
	}
	if current.Status != domain.SessionStatusActive {
		t.Fatalf("expected session still ACTIVE, got %s", current.Status)
	}
	gotDish, err := s.GetDishByID(ctx, dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if gotDish.Stock != 5 {
		t.Fatalf("expected dish stock untouched at 5, got %d", gotDish.Stock)
	}
	gotIng, err := s.GetIngredientByID(ctx, ingredient.ID)
	if err != nil {
		t.Fatalf("get ingredient: %v", err)
	}
	if gotIng.Stock != 10 {
		t.Fatalf("expected ingredient stock untouched at 10, got %v", gotIng.Stock)
	}

	// A clean commit applies every write and retires the current session.
	closed, err := s.CommitSessionClose(ctx, store.SessionClose{
		SessionID:       session.ID,
		ClosedBy:        "manager",
		ClosedAt:        time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC),
		TotalSalesCents: 500000,
		DishStockResets: []string{dish.ID},
		IngredientLevels: []store.IngredientLevelWrite{
			{IngredientID: ingredient.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("commit session close: %v", err)
	}
	if closed.Status != domain.SessionStatusClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}
	if _, err := s.GetCurrentSession(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no current session after close, got %v", err)
	}

	if _, err := s.CommitSessionClose(ctx, store.SessionClose{SessionID: session.ID}); !errors.Is(err, store.ErrSessionAlreadyClosed) {
		t.Fatalf("expected ErrSessionAlreadyClosed on recommit, got %v", err)
	}
}

func TestSumCompletedSalesWindow(t *testing.T) {
	s := New()
	ctx := context.Background()

	dish, err := s.CreateDish(ctx, domain.Dish{Name: "Es Teh", PriceCents: 5000, Stock: 10})
	if err != nil {
		t.Fatalf("create dish: %v", err)
	}

	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	orders := []domain.SalesOrder{
		{ID: "so-1", OrderDate: base.Add(9 * time.Hour), Status: domain.OrderStatusCompleted, TotalCents: 10000,
			Items: []domain.SalesOrderLine{{DishID: dish.ID, Quantity: 2}}},
		{ID: "so-2", OrderDate: base.Add(10 * time.Hour), Status: domain.OrderStatusCancelled, TotalCents: 5000,
			Items: []domain.SalesOrderLine{{DishID: dish.ID, Quantity: 1}}},
		{ID: "so-3", OrderDate: base.Add(-time.Hour), Status: domain.OrderStatusCompleted, TotalCents: 7000,
			Items: []domain.SalesOrderLine{{DishID: dish.ID, Quantity: 1}}},
	}
	for _, order := range orders {
		if _, err := s.CreateSalesOrder(ctx, order); err != nil {
			t.Fatalf("create order %s: %v", order.ID, err)
		}
	}

	// Cancelled orders and orders before the window do not count.
	total, err := s.SumCompletedSales(ctx, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("sum completed sales: %v", err)
	}
	if total != 10000 {
		t.Fatalf("expected total 10000, got %d", total)
	}
}

func TestCreateSalesOrderChecksStockUpfront(t *testing.T) {
	s := New()
	ctx := context.Background()

	dish, err := s.CreateDish(ctx, domain.Dish{Name: "Bakso", PriceCents: 15000, Stock: 2})
	if err != nil {
		t.Fatalf("create dish: %v", err)
	}

	_, err = s.CreateSalesOrder(ctx, domain.SalesOrder{
		ID:        "so-over",
		OrderDate: time.Now().UTC(),
		Status:    domain.OrderStatusCompleted,
		Items:     []domain.SalesOrderLine{{DishID: dish.ID, Quantity: 3}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	got, err := s.GetDishByID(ctx, dish.ID)
	if err != nil {
		t.Fatalf("get dish: %v", err)
	}
	if got.Stock != 2 {
		t.Fatalf("expected stock untouched at 2, got %d", got.Stock)
	}
}
