package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dapurpos/backend/internal/cache"
	"dapurpos/backend/internal/clock"
	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/store"
	"dapurpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const currentSessionCacheKey = "session:current"

type Service struct {
	repo     store.Repository
	sessions cache.SessionCache
	clock    clock.Clock
	loc      *time.Location
	cacheTTL time.Duration
}

func New(repo store.Repository, sessions cache.SessionCache, clk clock.Clock, loc *time.Location, cacheTTL time.Duration) *Service {
	if sessions == nil {
		sessions = cache.NoopSessionCache{}
	}
	if clk == nil {
		clk = clock.System()
	}
	if loc == nil {
		loc = time.UTC
	}
	if cacheTTL < time.Second {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		sessions: sessions,
		clock:    clk,
		loc:      loc,
		cacheTTL: cacheTTL,
	}
}

// CurrentSession returns the session that is ACTIVE or PENDING_CLOSE, or
// store.ErrNoActiveSession when the day has not been opened.
func (s *Service) CurrentSession(ctx context.Context) (domain.Session, error) {
	if cached, hit, err := s.sessions.Get(ctx, currentSessionCacheKey); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: session cache read failed: %v", err)
	}

	current, err := s.repo.GetCurrentSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, store.ErrNoActiveSession
		}
		return domain.Session{}, err
	}

	if err := s.sessions.Set(ctx, currentSessionCacheKey, current, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: session cache write failed: %v", err)
	}
	return *current, nil
}

// StartSession opens the business day. At most one session can be open;
// opening while one is ACTIVE or PENDING_CLOSE fails with
// store.ErrSessionAlreadyOpen.
func (s *Service) StartSession(ctx context.Context) (domain.Session, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Session{}, fmt.Errorf("manager role required")
	}

	if _, err := s.repo.GetCurrentSession(ctx); err == nil {
		return domain.Session{}, store.ErrSessionAlreadyOpen
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, err
	}

	now := s.clock.Now()
	session := domain.Session{
		ID:          xid.New("sess"),
		SessionDate: clock.StartOfDay(now, s.loc),
		Status:      domain.SessionStatusActive,
		OpenedBy:    actor.Username,
		CreatedAt:   now,
	}

	created, err := s.repo.CreateSession(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}

	s.invalidateSessionCache(ctx)
	s.logAudit(ctx, "session_start", "session", created.ID, created.SessionDate.Format("2006-01-02"))
	return *created, nil
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit < 1 {
		limit = 30
	}
	return s.repo.ListSessions(ctx, limit)
}

// SessionReport returns a closed or open session together with the waste and
// usage records its reconciliation produced.
func (s *Service) SessionReport(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	session, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return domain.SessionReport{}, err
	}

	waste, err := s.repo.ListWasteRecordsBySession(ctx, sessionID)
	if err != nil {
		return domain.SessionReport{}, err
	}
	usage, err := s.repo.ListUsageRecordsBySession(ctx, sessionID)
	if err != nil {
		return domain.SessionReport{}, err
	}

	return domain.SessionReport{
		Session:                *session,
		WasteRecords:           waste,
		IngredientUsageRecords: usage,
	}, nil
}

func (s *Service) ListDishes(ctx context.Context) ([]domain.Dish, error) {
	return s.repo.ListDishes(ctx)
}

func (s *Service) CreateDish(ctx context.Context, req domain.DishCreateRequest) (domain.Dish, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Dish{}, fmt.Errorf("manager role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		req.Category = "main"
	}
	if req.Name == "" || req.PriceCents < 1 || req.CostPriceCents < 0 || req.InitialStock < 0 {
		return domain.Dish{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateDish(ctx, domain.Dish{
		Name:           req.Name,
		Description:    strings.TrimSpace(req.Description),
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		CostPriceCents: req.CostPriceCents,
		Stock:          req.InitialStock,
	})
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, "dish_create", "dish", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, created.Stock))
	return *created, nil
}

func (s *Service) UpdateDish(ctx context.Context, dishID string, req domain.DishUpdateRequest) (domain.Dish, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Dish{}, fmt.Errorf("manager role required")
	}

	existing, err := s.repo.GetDishByID(ctx, dishID)
	if err != nil {
		return domain.Dish{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Dish{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Dish{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Dish{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostPriceCents != nil {
		if *req.CostPriceCents < 0 {
			return domain.Dish{}, store.ErrInvalidInput
		}
		updated.CostPriceCents = *req.CostPriceCents
	}

	saved, err := s.repo.UpdateDish(ctx, updated)
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, "dish_update", "dish", saved.ID, fmt.Sprintf("price=%d,cost=%d", saved.PriceCents, saved.CostPriceCents))
	return *saved, nil
}

// RestockDish adds cooked portions to a dish's showcase stock for the current
// day. A session must be open; leftover stock becomes waste at closing.
func (s *Service) RestockDish(ctx context.Context, dishID string, req domain.DishRestockRequest) (domain.Dish, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Dish{}, fmt.Errorf("manager role required")
	}
	if req.Quantity < 1 {
		return domain.Dish{}, store.ErrInvalidInput
	}

	if _, err := s.CurrentSession(ctx); err != nil {
		return domain.Dish{}, err
	}

	updated, err := s.repo.AddDishStock(ctx, dishID, req.Quantity)
	if err != nil {
		return domain.Dish{}, err
	}

	s.logAudit(ctx, "dish_restock", "dish", updated.ID, fmt.Sprintf("qty=%d,stock=%d", req.Quantity, updated.Stock))
	return *updated, nil
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Ingredient{}, fmt.Errorf("manager role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" || req.Unit == "" || req.InitialStock < 0 || req.MinimumStock < 0 || req.CostPerUnitCents < 0 {
		return domain.Ingredient{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateIngredient(ctx, domain.Ingredient{
		Name:             req.Name,
		Unit:             req.Unit,
		Stock:            req.InitialStock,
		MinimumStock:     req.MinimumStock,
		CostPerUnitCents: req.CostPerUnitCents,
	})
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_create", "ingredient", created.ID, fmt.Sprintf("name=%s,stock=%.3f%s", created.Name, created.Stock, created.Unit))
	return *created, nil
}

func (s *Service) UpdateIngredient(ctx context.Context, ingredientID string, req domain.IngredientUpdateRequest) (domain.Ingredient, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Ingredient{}, fmt.Errorf("manager role required")
	}

	existing, err := s.repo.GetIngredientByID(ctx, ingredientID)
	if err != nil {
		return domain.Ingredient{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Ingredient{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return domain.Ingredient{}, store.ErrInvalidInput
		}
		updated.Unit = unit
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Ingredient{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.MinimumStock != nil {
		if *req.MinimumStock < 0 {
			return domain.Ingredient{}, store.ErrInvalidInput
		}
		updated.MinimumStock = *req.MinimumStock
	}
	if req.CostPerUnitCents != nil {
		if *req.CostPerUnitCents < 0 {
			return domain.Ingredient{}, store.ErrInvalidInput
		}
		updated.CostPerUnitCents = *req.CostPerUnitCents
	}

	saved, err := s.repo.UpdateIngredient(ctx, updated)
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_update", "ingredient", saved.ID, fmt.Sprintf("stock=%.3f,cost=%d", saved.Stock, saved.CostPerUnitCents))
	return *saved, nil
}

// RecordSale creates a completed sale against the current ACTIVE session.
// Dish prices are snapshotted into the order lines; stock is decremented in
// the same storage transaction that records the order.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SalesOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SalesOrder{}, fmt.Errorf("authentication required")
	}

	current, err := s.CurrentSession(ctx)
	if err != nil {
		return domain.SalesOrder{}, err
	}
	if current.Status == domain.SessionStatusPendingClose {
		return domain.SalesOrder{}, store.ErrSessionPendingClose
	}

	items := normalizeSaleItems(req.Items)
	if len(items) == 0 {
		return domain.SalesOrder{}, store.ErrInvalidInput
	}

	paymentMethod := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if paymentMethod == "" {
		paymentMethod = "cash"
	}
	switch paymentMethod {
	case "cash", "qris", "card":
	default:
		return domain.SalesOrder{}, store.ErrInvalidInput
	}

	now := s.clock.Now()
	lines := make([]domain.SalesOrderLine, 0, len(items))
	totalCents := int64(0)
	for _, item := range items {
		dish, err := s.repo.GetDishByID(ctx, item.DishID)
		if err != nil {
			return domain.SalesOrder{}, err
		}
		subtotal := dish.PriceCents * int64(item.Quantity)
		lines = append(lines, domain.SalesOrderLine{
			DishID:         dish.ID,
			Quantity:       item.Quantity,
			UnitPriceCents: dish.PriceCents,
			SubtotalCents:  subtotal,
		})
		totalCents += subtotal
	}

	order := domain.SalesOrder{
		ID:              xid.New("so"),
		OrderNumber:     "ORD-" + now.In(s.loc).Format("20060102-150405"),
		OrderDate:       now,
		CashierUsername: actor.Username,
		PaymentMethod:   paymentMethod,
		Status:          domain.OrderStatusCompleted,
		TotalCents:      totalCents,
		Items:           lines,
		CreatedAt:       now,
	}

	created, err := s.repo.CreateSalesOrder(ctx, order)
	if err != nil {
		return domain.SalesOrder{}, err
	}

	s.logAudit(ctx, "sale_record", "sales_order", created.ID, fmt.Sprintf("total=%d,items=%d", created.TotalCents, len(created.Items)))
	return *created, nil
}

// ListSales returns orders in [from, to). A zero range defaults to the
// current calendar day.
func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesOrder, error) {
	if from.IsZero() || to.IsZero() {
		now := s.clock.Now()
		from = clock.StartOfDay(now, s.loc)
		to = from.Add(24 * time.Hour)
	}
	if !to.After(from) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListSalesOrders(ctx, from, to, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return nil, fmt.Errorf("manager role required")
	}
	if from.IsZero() || to.IsZero() {
		now := s.clock.Now()
		to = now
		from = now.Add(-7 * 24 * time.Hour)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) invalidateSessionCache(ctx context.Context) {
	if err := s.sessions.Invalidate(ctx, currentSessionCacheKey); err != nil {
		log.Printf("[service] WARN: session cache invalidation failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clock.Now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func normalizeSaleItems(items []domain.SaleItem) []domain.SaleItem {
	agg := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.DishID == "" || item.Quantity < 1 {
			continue
		}
		if _, seen := agg[item.DishID]; !seen {
			order = append(order, item.DishID)
		}
		agg[item.DishID] += item.Quantity
	}

	normalized := make([]domain.SaleItem, 0, len(agg))
	for _, dishID := range order {
		normalized = append(normalized, domain.SaleItem{DishID: dishID, Quantity: agg[dishID]})
	}
	return normalized
}
