package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/store"
	"dapurpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const sessionColumns = `
	id, session_date, status, opened_by, COALESCE(closed_by,''),
	total_sales_cents, total_waste_cents, total_ingredient_cost_cents, total_profit_cents,
	created_at, closed_at
`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var session domain.Session
	var closedAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.SessionDate,
		&session.Status,
		&session.OpenedBy,
		&session.ClosedBy,
		&session.TotalSalesCents,
		&session.TotalWasteCents,
		&session.TotalIngredientCostCents,
		&session.TotalProfitCents,
		&session.CreatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	session.SessionDate = session.SessionDate.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return &session, nil
}

func (s *Store) GetCurrentSession(ctx context.Context) (*domain.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM daily_sessions
		WHERE status IN ($1, $2)
		ORDER BY created_at DESC
		LIMIT 1
	`, domain.SessionStatusActive, domain.SessionStatusPendingClose))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM daily_sessions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM daily_sessions
		ORDER BY session_date DESC, created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession relies on a partial unique index over rows whose status is
// not CLOSED, so two concurrent opens cannot both succeed.
func (s *Store) CreateSession(ctx context.Context, session domain.Session) (*domain.Session, error) {
	if session.ID == "" {
		session.ID = xid.New("sess")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusActive
	session.ClosedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_sessions (
			id, session_date, status, opened_by, total_sales_cents, total_waste_cents,
			total_ingredient_cost_cents, total_profit_cents, created_at
		)
		VALUES ($1,$2,$3,$4,0,0,0,0,$5)
	`, session.ID, session.SessionDate, session.Status, session.OpenedBy, session.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrSessionAlreadyOpen
		}
		return nil, err
	}

	created := session
	return &created, nil
}

func (s *Store) MarkSessionPendingClose(ctx context.Context, sessionID string) (*domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM daily_sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	switch session.Status {
	case domain.SessionStatusClosed:
		return nil, store.ErrSessionAlreadyClosed
	case domain.SessionStatusPendingClose:
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return session, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE daily_sessions
		SET status = $2
		WHERE id = $1
	`, sessionID, domain.SessionStatusPendingClose)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatusPendingClose
	return session, nil
}

// CommitSessionClose applies the whole end-of-day unit of work in one
// serializable transaction. The session status is re-read under a row lock
// inside the transaction; finding it already CLOSED aborts the commit with
// nothing applied.
func (s *Store) CommitSessionClose(ctx context.Context, close store.SessionClose) (*domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM daily_sessions
		WHERE id = $1
		FOR UPDATE
	`, close.SessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if session.Status == domain.SessionStatusClosed {
		return nil, store.ErrSessionAlreadyClosed
	}

	closedAt := close.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	for _, record := range close.WasteRecords {
		if record.ID == "" {
			record.ID = xid.New("waste")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO waste_records (
				id, session_id, dish_id, dish_name, quantity, unit_cost_cents,
				total_loss_cents, reason, recorded_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, record.ID, close.SessionID, record.DishID, record.DishName, record.Quantity,
			record.UnitCostCents, record.TotalLossCents, record.Reason, record.RecordedBy, closedAt)
		if err != nil {
			return nil, err
		}
	}

	for _, record := range close.UsageRecords {
		if record.ID == "" {
			record.ID = xid.New("usage")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ingredient_usage_records (
				id, session_id, ingredient_id, ingredient_name, quantity_used, unit,
				cost_per_unit_cents, total_cost_cents, recorded_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, record.ID, close.SessionID, record.IngredientID, record.IngredientName, record.QuantityUsed,
			record.Unit, record.CostPerUnitCents, record.TotalCostCents, record.RecordedBy, closedAt)
		if err != nil {
			return nil, err
		}
	}

	for _, dishID := range close.DishStockResets {
		res, err := tx.ExecContext(ctx, `
			UPDATE dishes
			SET stock = 0, updated_at = now()
			WHERE id = $1
		`, dishID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	for _, level := range close.IngredientLevels {
		if level.Quantity < 0 {
			return nil, store.ErrInvalidInput
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE ingredients
			SET stock = $2,
				cost_per_unit_cents = CASE WHEN $3 > 0 THEN $3 ELSE cost_per_unit_cents END,
				updated_at = now()
			WHERE id = $1
		`, level.IngredientID, level.Quantity, level.CostPerUnitCents)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE daily_sessions
		SET status = $2, closed_by = $3, closed_at = $4,
			total_sales_cents = $5, total_waste_cents = $6,
			total_ingredient_cost_cents = $7, total_profit_cents = $8
		WHERE id = $1
	`, close.SessionID, domain.SessionStatusClosed, close.ClosedBy, closedAt,
		close.TotalSalesCents, close.TotalWasteCents, close.TotalIngredientCostCents, close.TotalProfitCents)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	session.Status = domain.SessionStatusClosed
	session.ClosedBy = close.ClosedBy
	session.ClosedAt = &closedAt
	session.TotalSalesCents = close.TotalSalesCents
	session.TotalWasteCents = close.TotalWasteCents
	session.TotalIngredientCostCents = close.TotalIngredientCostCents
	session.TotalProfitCents = close.TotalProfitCents
	return session, nil
}

const dishColumns = `
	id, name, COALESCE(description,''), category, price_cents, cost_price_cents,
	stock, created_at, updated_at
`

func scanDish(row interface{ Scan(...any) error }) (*domain.Dish, error) {
	var dish domain.Dish
	err := row.Scan(
		&dish.ID,
		&dish.Name,
		&dish.Description,
		&dish.Category,
		&dish.PriceCents,
		&dish.CostPriceCents,
		&dish.Stock,
		&dish.CreatedAt,
		&dish.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	dish.CreatedAt = dish.CreatedAt.UTC()
	dish.UpdatedAt = dish.UpdatedAt.UTC()
	return &dish, nil
}

func (s *Store) ListDishes(ctx context.Context) ([]domain.Dish, error) {
	return s.listDishes(ctx, false)
}

func (s *Store) ListDishesWithStock(ctx context.Context) ([]domain.Dish, error) {
	return s.listDishes(ctx, true)
}

func (s *Store) listDishes(ctx context.Context, onlyWithStock bool) ([]domain.Dish, error) {
	query := `
		SELECT ` + dishColumns + `
		FROM dishes
	`
	if onlyWithStock {
		query += ` WHERE stock > 0`
	}
	query += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dishes := make([]domain.Dish, 0, 64)
	for rows.Next() {
		dish, err := scanDish(rows)
		if err != nil {
			return nil, err
		}
		dishes = append(dishes, *dish)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dishes, nil
}

func (s *Store) GetDishByID(ctx context.Context, id string) (*domain.Dish, error) {
	dish, err := scanDish(s.db.QueryRowContext(ctx, `
		SELECT `+dishColumns+`
		FROM dishes
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return dish, nil
}

func (s *Store) CreateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error) {
	if dish.Name == "" || dish.PriceCents < 1 || dish.CostPriceCents < 0 || dish.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if dish.ID == "" {
		dish.ID = xid.New("dish")
	}
	now := time.Now().UTC()
	if dish.CreatedAt.IsZero() {
		dish.CreatedAt = now
	}
	dish.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dishes (id, name, description, category, price_cents, cost_price_cents, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, dish.ID, dish.Name, dish.Description, dish.Category, dish.PriceCents, dish.CostPriceCents, dish.Stock, dish.CreatedAt, dish.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := dish
	return &created, nil
}

func (s *Store) UpdateDish(ctx context.Context, dish domain.Dish) (*domain.Dish, error) {
	if dish.Name == "" || dish.PriceCents < 1 || dish.CostPriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE dishes
		SET name = $2, description = $3, category = $4, price_cents = $5,
			cost_price_cents = $6, stock = $7, updated_at = now()
		WHERE id = $1
	`, dish.ID, dish.Name, dish.Description, dish.Category, dish.PriceCents, dish.CostPriceCents, dish.Stock)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := dish
	updated.UpdatedAt = time.Now().UTC()
	return &updated, nil
}

func (s *Store) AddDishStock(ctx context.Context, dishID string, quantity int) (*domain.Dish, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	dish, err := scanDish(s.db.QueryRowContext(ctx, `
		UPDATE dishes
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+dishColumns+`
	`, dishID, quantity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return dish, nil
}

const ingredientColumns = `
	id, name, unit, stock, minimum_stock, cost_per_unit_cents, created_at, updated_at
`

func scanIngredient(row interface{ Scan(...any) error }) (*domain.Ingredient, error) {
	var ingredient domain.Ingredient
	err := row.Scan(
		&ingredient.ID,
		&ingredient.Name,
		&ingredient.Unit,
		&ingredient.Stock,
		&ingredient.MinimumStock,
		&ingredient.CostPerUnitCents,
		&ingredient.CreatedAt,
		&ingredient.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ingredient.CreatedAt = ingredient.CreatedAt.UTC()
	ingredient.UpdatedAt = ingredient.UpdatedAt.UTC()
	return &ingredient, nil
}

func (s *Store) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ingredientColumns+`
		FROM ingredients
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make([]domain.Ingredient, 0, 64)
	for rows.Next() {
		ingredient, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, *ingredient)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ingredients, nil
}

func (s *Store) GetIngredientByID(ctx context.Context, id string) (*domain.Ingredient, error) {
	ingredient, err := scanIngredient(s.db.QueryRowContext(ctx, `
		SELECT `+ingredientColumns+`
		FROM ingredients
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return ingredient, nil
}

func (s *Store) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if ingredient.Name == "" || ingredient.Unit == "" || ingredient.Stock < 0 || ingredient.CostPerUnitCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if ingredient.ID == "" {
		ingredient.ID = xid.New("ing")
	}
	now := time.Now().UTC()
	if ingredient.CreatedAt.IsZero() {
		ingredient.CreatedAt = now
	}
	ingredient.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, stock, minimum_stock, cost_per_unit_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ingredient.ID, ingredient.Name, ingredient.Unit, ingredient.Stock, ingredient.MinimumStock, ingredient.CostPerUnitCents, ingredient.CreatedAt, ingredient.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := ingredient
	return &created, nil
}

func (s *Store) UpdateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if ingredient.Name == "" || ingredient.Unit == "" || ingredient.Stock < 0 || ingredient.CostPerUnitCents < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE ingredients
		SET name = $2, unit = $3, stock = $4, minimum_stock = $5,
			cost_per_unit_cents = $6, updated_at = now()
		WHERE id = $1
	`, ingredient.ID, ingredient.Name, ingredient.Unit, ingredient.Stock, ingredient.MinimumStock, ingredient.CostPerUnitCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := ingredient
	updated.UpdatedAt = time.Now().UTC()
	return &updated, nil
}

// CreateSalesOrder records the order and decrements dish stock in the same
// serializable transaction, locking each dish row before the check.
func (s *Store) CreateSalesOrder(ctx context.Context, order domain.SalesOrder) (*domain.SalesOrder, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("so")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range order.Items {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}

		var stock int
		err := tx.QueryRowContext(ctx, `
			SELECT stock
			FROM dishes
			WHERE id = $1
			FOR UPDATE
		`, line.DishID).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if stock < line.Quantity {
			return nil, store.ErrInsufficientStock
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE dishes
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1
		`, line.DishID, line.Quantity)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_orders (
			id, order_number, order_date, cashier_username, payment_method, status, total_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, order.ID, order.OrderNumber, order.OrderDate, order.CashierUsername, order.PaymentMethod, order.Status, order.TotalCents, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for _, line := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_order_items (order_id, dish_id, quantity, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, line.DishID, line.Quantity, line.UnitPriceCents, line.SubtotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) ListSalesOrders(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesOrder, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_number, order_date, COALESCE(cashier_username,''), payment_method, status, total_cents, created_at
		FROM sales_orders
		WHERE order_date >= $1 AND order_date < $2
		ORDER BY order_date DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.SalesOrder, 0, limit)
	orderIndex := make(map[string]int, limit)
	for rows.Next() {
		var order domain.SalesOrder
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.OrderDate, &order.CashierUsername, &order.PaymentMethod, &order.Status, &order.TotalCents, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.OrderDate = order.OrderDate.UTC()
		order.CreatedAt = order.CreatedAt.UTC()
		order.Items = make([]domain.SalesOrderLine, 0, 4)
		orderIndex[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	orderIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		orderIDs = append(orderIDs, order.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, dish_id, quantity, unit_price_cents, subtotal_cents
		FROM sales_order_items
		WHERE order_id = ANY($1)
		ORDER BY id ASC
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID string
		var line domain.SalesOrderLine
		if err := itemRows.Scan(&orderID, &line.DishID, &line.Quantity, &line.UnitPriceCents, &line.SubtotalCents); err != nil {
			return nil, err
		}
		if idx, ok := orderIndex[orderID]; ok {
			orders[idx].Items = append(orders[idx].Items, line)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *Store) SumCompletedSales(ctx context.Context, from time.Time, to time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents),0)::bigint
		FROM sales_orders
		WHERE status = $1
			AND order_date >= $2
			AND order_date < $3
	`, domain.OrderStatusCompleted, from, to).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListWasteRecordsBySession(ctx context.Context, sessionID string) ([]domain.WasteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, dish_id, dish_name, quantity, unit_cost_cents,
			total_loss_cents, reason, COALESCE(recorded_by,''), created_at
		FROM waste_records
		WHERE session_id = $1
		ORDER BY dish_name
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.WasteRecord, 0, 16)
	for rows.Next() {
		var record domain.WasteRecord
		if err := rows.Scan(&record.ID, &record.SessionID, &record.DishID, &record.DishName, &record.Quantity, &record.UnitCostCents, &record.TotalLossCents, &record.Reason, &record.RecordedBy, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListUsageRecordsBySession(ctx context.Context, sessionID string) ([]domain.IngredientUsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, ingredient_id, ingredient_name, quantity_used, unit,
			cost_per_unit_cents, total_cost_cents, COALESCE(recorded_by,''), created_at
		FROM ingredient_usage_records
		WHERE session_id = $1
		ORDER BY ingredient_name
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.IngredientUsageRecord, 0, 16)
	for rows.Next() {
		var record domain.IngredientUsageRecord
		if err := rows.Scan(&record.ID, &record.SessionID, &record.IngredientID, &record.IngredientName, &record.QuantityUsed, &record.Unit, &record.CostPerUnitCents, &record.TotalCostCents, &record.RecordedBy, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
