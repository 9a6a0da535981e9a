package store

import (
	"context"
	"errors"
	"time"

	"dapurpos/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionAlreadyOpen   = errors.New("session already open")
	ErrSessionAlreadyClosed = errors.New("session already closed")
	ErrSessionPendingClose  = errors.New("session pending close")
	ErrInsufficientStock    = errors.New("insufficient stock")
)

// IngredientLevelWrite sets an ingredient's stock to the operator-counted
// remaining quantity and, when the operator adjusted it, its new cost basis.
type IngredientLevelWrite struct {
	IngredientID     string
	Quantity         float64
	CostPerUnitCents int64
}

// SessionClose is the unit of work for an end-of-day commit: every pending
// write collected up front, applied by the repository as one indivisible
// transaction. The repository must re-check that the session is not already
// CLOSED inside that transaction and fail with ErrSessionAlreadyClosed
// without applying anything.
type SessionClose struct {
	SessionID                string
	ClosedBy                 string
	ClosedAt                 time.Time
	TotalSalesCents          int64
	TotalWasteCents          int64
	TotalIngredientCostCents int64
	TotalProfitCents         int64
	WasteRecords             []domain.WasteRecord
	UsageRecords             []domain.IngredientUsageRecord
	DishStockResets          []string
	IngredientLevels         []IngredientLevelWrite
}

type Repository interface {
	GetCurrentSession(ctx context.Context) (*domain.Session, error)
	GetSessionByID(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)
	CreateSession(ctx context.Context, session domain.Session) (*domain.Session, error)
	MarkSessionPendingClose(ctx context.Context, sessionID string) (*domain.Session, error)
	CommitSessionClose(ctx context.Context, close SessionClose) (*domain.Session, error)

	ListDishes(ctx context.Context) ([]domain.Dish, error)
	ListDishesWithStock(ctx context.Context) ([]domain.Dish, error)
	GetDishByID(ctx context.Context, id string) (*domain.Dish, error)
	CreateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error)
	UpdateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error)
	AddDishStock(ctx context.Context, dishID string, quantity int) (*domain.Dish, error)

	ListIngredients(ctx context.Context) ([]domain.Ingredient, error)
	GetIngredientByID(ctx context.Context, id string) (*domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	UpdateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)

	CreateSalesOrder(ctx context.Context, order domain.SalesOrder) (*domain.SalesOrder, error)
	ListSalesOrders(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesOrder, error)
	SumCompletedSales(ctx context.Context, from time.Time, to time.Time) (int64, error)

	ListWasteRecordsBySession(ctx context.Context, sessionID string) ([]domain.WasteRecord, error)
	ListUsageRecordsBySession(ctx context.Context, sessionID string) ([]domain.IngredientUsageRecord, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
