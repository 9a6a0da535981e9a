package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/store"
	"dapurpos/backend/internal/xid"
)

// PrepareReconciliation builds the end-of-day worksheet for the current
// session: every ingredient pre-filled with its current stock as the
// remaining count, the dishes that still have showcase stock, and the
// completed-sales total so far.
func (s *Service) PrepareReconciliation(ctx context.Context) (domain.ReconciliationWorksheet, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.ReconciliationWorksheet{}, fmt.Errorf("manager role required")
	}

	current, err := s.repo.GetCurrentSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ReconciliationWorksheet{}, store.ErrNoActiveSession
		}
		return domain.ReconciliationWorksheet{}, err
	}

	ingredients, err := s.repo.ListIngredients(ctx)
	if err != nil {
		return domain.ReconciliationWorksheet{}, err
	}
	inputs := make([]domain.RemainingIngredientInput, 0, len(ingredients))
	for _, ing := range ingredients {
		inputs = append(inputs, domain.RemainingIngredientInput{
			IngredientID:      ing.ID,
			IngredientName:    ing.Name,
			StartingQuantity:  ing.Stock,
			RemainingQuantity: ing.Stock,
			Unit:              ing.Unit,
			CostPerUnitCents:  ing.CostPerUnitCents,
		})
	}

	unsold, err := s.repo.ListDishesWithStock(ctx)
	if err != nil {
		return domain.ReconciliationWorksheet{}, err
	}

	now := s.clock.Now()
	sales, err := s.repo.SumCompletedSales(ctx, current.SessionDate, now)
	if err != nil {
		return domain.ReconciliationWorksheet{}, err
	}

	return domain.ReconciliationWorksheet{
		Session:         *current,
		UnsoldDishes:    unsold,
		Ingredients:     inputs,
		SalesSoFarCents: sales,
	}, nil
}

// CloseSession runs end-of-day reconciliation for the current session and
// commits it as one transaction. On any error the session and all inventory
// are left untouched.
func (s *Service) CloseSession(ctx context.Context, req domain.SessionCloseRequest) (domain.ReconciliationResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.ReconciliationResult{}, fmt.Errorf("manager role required")
	}

	current, err := s.repo.GetCurrentSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ReconciliationResult{}, store.ErrNoActiveSession
		}
		return domain.ReconciliationResult{}, err
	}

	return s.processEndOfDay(ctx, current, req, actor.Username)
}

// processEndOfDay derives waste and ingredient usage, totals the day, and
// commits everything through the repository. Validation happens wholesale
// before any write is attempted.
func (s *Service) processEndOfDay(ctx context.Context, session *domain.Session, req domain.SessionCloseRequest, closedBy string) (domain.ReconciliationResult, error) {
	if session.Status == domain.SessionStatusClosed {
		return domain.ReconciliationResult{}, store.ErrSessionAlreadyClosed
	}

	now := s.clock.Now()

	violations, levels, usageRecords, err := s.buildUsage(ctx, session, req.RemainingIngredients, closedBy, now)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}
	if len(violations) > 0 {
		return domain.ReconciliationResult{}, &InvalidRemainingQuantityError{Violations: violations}
	}

	wasteRecords, dishResets, err := s.buildWaste(ctx, session, closedBy, now)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}

	totalSales, err := s.repo.SumCompletedSales(ctx, session.SessionDate, now)
	if err != nil {
		return domain.ReconciliationResult{}, &PersistenceError{Op: "sum completed sales", Err: err}
	}

	totalWaste := int64(0)
	for _, record := range wasteRecords {
		totalWaste += record.TotalLossCents
	}
	totalIngredientCost := int64(0)
	for _, record := range usageRecords {
		totalIngredientCost += record.TotalCostCents
	}
	totalProfit := totalSales - totalWaste - totalIngredientCost

	closed, err := s.repo.CommitSessionClose(ctx, store.SessionClose{
		SessionID:                session.ID,
		ClosedBy:                 closedBy,
		ClosedAt:                 now,
		TotalSalesCents:          totalSales,
		TotalWasteCents:          totalWaste,
		TotalIngredientCostCents: totalIngredientCost,
		TotalProfitCents:         totalProfit,
		WasteRecords:             wasteRecords,
		UsageRecords:             usageRecords,
		DishStockResets:          dishResets,
		IngredientLevels:         levels,
	})
	if err != nil {
		if errors.Is(err, store.ErrSessionAlreadyClosed) {
			return domain.ReconciliationResult{}, store.ErrSessionAlreadyClosed
		}
		return domain.ReconciliationResult{}, &PersistenceError{Op: "commit session close", Err: err}
	}

	s.invalidateSessionCache(ctx)
	s.logAudit(ctx, "session_close", "session", closed.ID,
		fmt.Sprintf("sales=%d,waste=%d,ingredient_cost=%d,profit=%d", totalSales, totalWaste, totalIngredientCost, totalProfit))

	return domain.ReconciliationResult{
		SessionID:                closed.ID,
		WasteRecords:             wasteRecords,
		IngredientUsageRecords:   usageRecords,
		TotalSalesCents:          totalSales,
		TotalWasteCents:          totalWaste,
		TotalIngredientCostCents: totalIngredientCost,
		TotalProfitCents:         totalProfit,
		ClosedAt:                 now,
	}, nil
}

// buildUsage validates every remaining count against the ingredient's current
// stock and derives usage records. All violations are collected; a non-empty
// violation list means nothing may be written.
func (s *Service) buildUsage(ctx context.Context, session *domain.Session, inputs []domain.RemainingIngredientInput, closedBy string, at time.Time) ([]RemainingQuantityViolation, []store.IngredientLevelWrite, []domain.IngredientUsageRecord, error) {
	violations := make([]RemainingQuantityViolation, 0)
	levels := make([]store.IngredientLevelWrite, 0, len(inputs))
	records := make([]domain.IngredientUsageRecord, 0, len(inputs))

	seen := make(map[string]struct{}, len(inputs))
	for _, input := range inputs {
		if input.IngredientID == "" {
			violations = append(violations, RemainingQuantityViolation{
				IngredientID: input.IngredientID,
				Remaining:    input.RemainingQuantity,
				Reason:       "missing ingredient id",
			})
			continue
		}
		if _, dup := seen[input.IngredientID]; dup {
			violations = append(violations, RemainingQuantityViolation{
				IngredientID:   input.IngredientID,
				IngredientName: input.IngredientName,
				Remaining:      input.RemainingQuantity,
				Reason:         "duplicate entry",
			})
			continue
		}
		seen[input.IngredientID] = struct{}{}

		ingredient, err := s.repo.GetIngredientByID(ctx, input.IngredientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				violations = append(violations, RemainingQuantityViolation{
					IngredientID:   input.IngredientID,
					IngredientName: input.IngredientName,
					Remaining:      input.RemainingQuantity,
					Reason:         "unknown ingredient",
				})
				continue
			}
			return nil, nil, nil, err
		}

		starting := ingredient.Stock
		remaining := input.RemainingQuantity
		if remaining < 0 {
			violations = append(violations, RemainingQuantityViolation{
				IngredientID:   ingredient.ID,
				IngredientName: ingredient.Name,
				Remaining:      remaining,
				Starting:       starting,
				Reason:         "remaining quantity is negative",
			})
			continue
		}
		if remaining > starting {
			violations = append(violations, RemainingQuantityViolation{
				IngredientID:   ingredient.ID,
				IngredientName: ingredient.Name,
				Remaining:      remaining,
				Starting:       starting,
				Reason:         "remaining quantity exceeds starting stock",
			})
			continue
		}

		// The operator may correct the wholesale cost on the worksheet; a
		// positive input cost replaces the stored cost basis and prices the
		// day's usage.
		costPerUnit := ingredient.CostPerUnitCents
		if input.CostPerUnitCents > 0 {
			costPerUnit = input.CostPerUnitCents
		}

		levels = append(levels, store.IngredientLevelWrite{
			IngredientID:     ingredient.ID,
			Quantity:         remaining,
			CostPerUnitCents: costPerUnit,
		})

		used := starting - remaining
		if used <= 0 {
			continue
		}
		records = append(records, domain.IngredientUsageRecord{
			ID:               xid.New("usage"),
			SessionID:        session.ID,
			IngredientID:     ingredient.ID,
			IngredientName:   ingredient.Name,
			QuantityUsed:     used,
			Unit:             ingredient.Unit,
			CostPerUnitCents: costPerUnit,
			TotalCostCents:   int64(math.Round(used * float64(costPerUnit))),
			RecordedBy:       closedBy,
			CreatedAt:        at,
		})
	}

	return violations, levels, records, nil
}

// buildWaste turns every dish with leftover showcase stock into an UNSOLD
// waste record valued at the dish's cost price.
func (s *Service) buildWaste(ctx context.Context, session *domain.Session, closedBy string, at time.Time) ([]domain.WasteRecord, []string, error) {
	unsold, err := s.repo.ListDishesWithStock(ctx)
	if err != nil {
		return nil, nil, err
	}

	records := make([]domain.WasteRecord, 0, len(unsold))
	resets := make([]string, 0, len(unsold))
	for _, dish := range unsold {
		if dish.Stock < 1 {
			continue
		}
		records = append(records, domain.WasteRecord{
			ID:             xid.New("waste"),
			SessionID:      session.ID,
			DishID:         dish.ID,
			DishName:       dish.Name,
			Quantity:       dish.Stock,
			UnitCostCents:  dish.CostPriceCents,
			TotalLossCents: dish.CostPriceCents * int64(dish.Stock),
			Reason:         domain.WasteReasonUnsold,
			RecordedBy:     closedBy,
			CreatedAt:      at,
		})
		resets = append(resets, dish.ID)
	}

	return records, resets, nil
}
