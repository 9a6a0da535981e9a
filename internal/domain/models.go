package domain

import "time"

// Session is the record of one business day, from opening to reconciliation.
// At most one session is ACTIVE or PENDING_CLOSE at a time; CLOSED sessions
// are immutable history.
type Session struct {
	ID                       string     `json:"id"`
	SessionDate              time.Time  `json:"session_date"`
	Status                   string     `json:"status"`
	OpenedBy                 string     `json:"opened_by,omitempty"`
	ClosedBy                 string     `json:"closed_by,omitempty"`
	TotalSalesCents          int64      `json:"total_sales_cents"`
	TotalWasteCents          int64      `json:"total_waste_cents"`
	TotalIngredientCostCents int64      `json:"total_ingredient_cost_cents"`
	TotalProfitCents         int64      `json:"total_profit_cents"`
	CreatedAt                time.Time  `json:"created_at"`
	ClosedAt                 *time.Time `json:"closed_at,omitempty"`
}

const (
	SessionStatusActive       = "ACTIVE"
	SessionStatusPendingClose = "PENDING_CLOSE"
	SessionStatusClosed       = "CLOSED"
)

// WasteRecord is the accounting entry for a showcase dish that still had
// stock at closing time. DishName is a point-in-time snapshot, not a live
// reference.
type WasteRecord struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	DishID         string    `json:"dish_id"`
	DishName       string    `json:"dish_name"`
	Quantity       int       `json:"quantity"`
	UnitCostCents  int64     `json:"unit_cost_cents"`
	TotalLossCents int64     `json:"total_loss_cents"`
	Reason         string    `json:"reason"`
	RecordedBy     string    `json:"recorded_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const WasteReasonUnsold = "UNSOLD"

// IngredientUsageRecord is the accounting entry for ingredient quantity
// consumed during a session, derived from the operator's remaining-stock
// count at closing time.
type IngredientUsageRecord struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	IngredientID     string    `json:"ingredient_id"`
	IngredientName   string    `json:"ingredient_name"`
	QuantityUsed     float64   `json:"quantity_used"`
	Unit             string    `json:"unit"`
	CostPerUnitCents int64     `json:"cost_per_unit_cents"`
	TotalCostCents   int64     `json:"total_cost_cents"`
	RecordedBy       string    `json:"recorded_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RemainingIngredientInput is the operator-entered closing count for one
// ingredient. It is a pure staging value: nothing is persisted until the
// whole list validates and the close commits.
type RemainingIngredientInput struct {
	IngredientID      string  `json:"ingredient_id"`
	IngredientName    string  `json:"ingredient_name"`
	StartingQuantity  float64 `json:"starting_quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	Unit              string  `json:"unit"`
	CostPerUnitCents  int64   `json:"cost_per_unit_cents"`
}

type SessionCloseRequest struct {
	RemainingIngredients []RemainingIngredientInput `json:"remaining_ingredients"`
}

// ReconciliationWorksheet is the pre-filled end-of-day entry form: every
// ingredient with its current stock as the default remaining count, plus the
// unsold dishes and the running sales total for the operator to review.
type ReconciliationWorksheet struct {
	Session         Session                    `json:"session"`
	UnsoldDishes    []Dish                     `json:"unsold_dishes"`
	Ingredients     []RemainingIngredientInput `json:"ingredients"`
	SalesSoFarCents int64                      `json:"sales_so_far_cents"`
}

// ReconciliationResult is what a successful end-of-day close produced.
type ReconciliationResult struct {
	SessionID                string                  `json:"session_id"`
	WasteRecords             []WasteRecord           `json:"waste_records"`
	IngredientUsageRecords   []IngredientUsageRecord `json:"ingredient_usage_records"`
	TotalSalesCents          int64                   `json:"total_sales_cents"`
	TotalWasteCents          int64                   `json:"total_waste_cents"`
	TotalIngredientCostCents int64                   `json:"total_ingredient_cost_cents"`
	TotalProfitCents         int64                   `json:"total_profit_cents"`
	ClosedAt                 time.Time               `json:"closed_at"`
}

// SessionAdvisory is the outcome of the day-rollover check.
type SessionAdvisory string

const (
	AdvisoryNoSessionOpen SessionAdvisory = "no_session_open"
	AdvisoryMustReconcile SessionAdvisory = "must_reconcile"
	AdvisoryNormal        SessionAdvisory = "normal"
)

type SessionCheckResponse struct {
	Outcome SessionAdvisory `json:"outcome"`
	Session *Session        `json:"session,omitempty"`
}

type SessionReport struct {
	Session                Session                 `json:"session"`
	WasteRecords           []WasteRecord           `json:"waste_records"`
	IngredientUsageRecords []IngredientUsageRecord `json:"ingredient_usage_records"`
}

// Dish is a showcase dish: actively offered for sale with a tracked per-day
// stock count.
type Dish struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category"`
	PriceCents     int64     `json:"price_cents"`
	CostPriceCents int64     `json:"cost_price_cents"`
	Stock          int       `json:"stock"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type DishCreateRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	PriceCents     int64  `json:"price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
	InitialStock   int    `json:"initial_stock"`
}

type DishUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	Category       *string `json:"category,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty"`
}

type DishRestockRequest struct {
	Quantity int `json:"quantity"`
}

// Ingredient is a raw-material stock item measured in fractional units
// (kg, liter, pcs).
type Ingredient struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Unit             string    `json:"unit"`
	Stock            float64   `json:"stock"`
	MinimumStock     float64   `json:"minimum_stock"`
	CostPerUnitCents int64     `json:"cost_per_unit_cents"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type IngredientCreateRequest struct {
	Name             string  `json:"name"`
	Unit             string  `json:"unit"`
	InitialStock     float64 `json:"initial_stock"`
	MinimumStock     float64 `json:"minimum_stock"`
	CostPerUnitCents int64   `json:"cost_per_unit_cents"`
}

type IngredientUpdateRequest struct {
	Name             *string  `json:"name,omitempty"`
	Unit             *string  `json:"unit,omitempty"`
	Stock            *float64 `json:"stock,omitempty"`
	MinimumStock     *float64 `json:"minimum_stock,omitempty"`
	CostPerUnitCents *int64   `json:"cost_per_unit_cents,omitempty"`
}

// SalesOrder is a completed sale. Order creation decrements dish stock in the
// same storage transaction that records the order.
type SalesOrder struct {
	ID              string           `json:"id"`
	OrderNumber     string           `json:"order_number"`
	OrderDate       time.Time        `json:"order_date"`
	CashierUsername string           `json:"cashier_username,omitempty"`
	PaymentMethod   string           `json:"payment_method"`
	Status          string           `json:"status"`
	TotalCents      int64            `json:"total_cents"`
	Items           []SalesOrderLine `json:"items"`
	CreatedAt       time.Time        `json:"created_at"`
}

type SalesOrderLine struct {
	DishID         string `json:"dish_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

const (
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

type SaleItem struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

type SaleCreateRequest struct {
	PaymentMethod string     `json:"payment_method"`
	Items         []SaleItem `json:"items"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type EmployeeCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type EmployeeUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
