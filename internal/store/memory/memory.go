package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/store"
	"dapurpos/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	sessionsByID     map[string]domain.Session
	currentSessionID string
	dishesByID       map[string]domain.Dish
	ingredientsByID  map[string]domain.Ingredient
	ordersByID       map[string]domain.SalesOrder
	wasteBySession   map[string][]domain.WasteRecord
	usageBySession   map[string][]domain.IngredientUsageRecord
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
	orderSeq         int
}

func New() *Store {
	return &Store{
		sessionsByID:    make(map[string]domain.Session),
		dishesByID:      make(map[string]domain.Dish),
		ingredientsByID: make(map[string]domain.Ingredient),
		ordersByID:      make(map[string]domain.SalesOrder),
		wasteBySession:  make(map[string][]domain.WasteRecord),
		usageBySession:  make(map[string][]domain.IngredientUsageRecord),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials are read from SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables; hardcoded dev defaults are used with a warning when
// unset. The backend uses PostgreSQL accounts when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, "manager"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	dishes := []domain.Dish{
		{ID: "dish-nasi-goreng", Name: "Nasi Goreng Spesial", Category: "main", PriceCents: 2500000, CostPriceCents: 1000000, Stock: 0},
		{ID: "dish-ayam-bakar", Name: "Ayam Bakar", Category: "main", PriceCents: 2800000, CostPriceCents: 1200000, Stock: 0},
		{ID: "dish-gado-gado", Name: "Gado-Gado", Category: "main", PriceCents: 1800000, CostPriceCents: 700000, Stock: 0},
		{ID: "dish-es-teh", Name: "Es Teh Manis", Category: "beverage", PriceCents: 500000, CostPriceCents: 150000, Stock: 0},
		{ID: "dish-pisang-goreng", Name: "Pisang Goreng", Category: "snack", PriceCents: 1200000, CostPriceCents: 450000, Stock: 0},
	}
	for _, d := range dishes {
		d.CreatedAt = now
		d.UpdatedAt = now
		s.dishesByID[d.ID] = d
	}

	ingredients := []domain.Ingredient{
		{ID: "ing-beras", Name: "Beras", Unit: "kg", Stock: 25, MinimumStock: 5, CostPerUnitCents: 1400000},
		{ID: "ing-ayam", Name: "Ayam Potong", Unit: "kg", Stock: 12, MinimumStock: 3, CostPerUnitCents: 3800000},
		{ID: "ing-minyak", Name: "Minyak Goreng", Unit: "liter", Stock: 10, MinimumStock: 2, CostPerUnitCents: 1800000},
		{ID: "ing-telur", Name: "Telur", Unit: "kg", Stock: 8, MinimumStock: 2, CostPerUnitCents: 2800000},
	}
	for _, ing := range ingredients {
		ing.CreatedAt = now
		ing.UpdatedAt = now
		s.ingredientsByID[ing.ID] = ing
	}

	return s
}

func (s *Store) GetCurrentSession(_ context.Context) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentSessionID == "" {
		return nil, store.ErrNotFound
	}
	session, exists := s.sessionsByID[s.currentSessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := session
	return &found, nil
}

func (s *Store) GetSessionByID(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := session
	return &found, nil
}

func (s *Store) ListSessions(_ context.Context, limit int) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	sessions := make([]domain.Session, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b domain.Session) int {
		if a.SessionDate.Equal(b.SessionDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.SessionDate.After(b.SessionDate) {
			return -1
		}
		return 1
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSessionID != "" {
		return nil, store.ErrSessionAlreadyOpen
	}
	if session.ID == "" {
		session.ID = xid.New("sess")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusActive
	session.ClosedAt = nil

	s.sessionsByID[session.ID] = session
	s.currentSessionID = session.ID
	created := session
	return &created, nil
}

func (s *Store) MarkSessionPendingClose(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	switch session.Status {
	case domain.SessionStatusClosed:
		return nil, store.ErrSessionAlreadyClosed
	case domain.SessionStatusPendingClose:
		found := session
		return &found, nil
	}
	session.Status = domain.SessionStatusPendingClose
	s.sessionsByID[sessionID] = session
	updated := session
	return &updated, nil
}

// CommitSessionClose validates every pending write before mutating anything,
// so a failed commit leaves the store exactly as it was.
func (s *Store) CommitSessionClose(_ context.Context, close store.SessionClose) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[close.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status == domain.SessionStatusClosed {
		return nil, store.ErrSessionAlreadyClosed
	}
	for _, dishID := range close.DishStockResets {
		if _, ok := s.dishesByID[dishID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	for _, level := range close.IngredientLevels {
		if _, ok := s.ingredientsByID[level.IngredientID]; !ok {
			return nil, store.ErrNotFound
		}
		if level.Quantity < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	closedAt := close.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	s.wasteBySession[close.SessionID] = append(s.wasteBySession[close.SessionID], close.WasteRecords...)
	s.usageBySession[close.SessionID] = append(s.usageBySession[close.SessionID], close.UsageRecords...)

	for _, dishID := range close.DishStockResets {
		dish := s.dishesByID[dishID]
		dish.Stock = 0
		dish.UpdatedAt = closedAt
		s.dishesByID[dishID] = dish
	}
	for _, level := range close.IngredientLevels {
		ingredient := s.ingredientsByID[level.IngredientID]
		ingredient.Stock = level.Quantity
		if level.CostPerUnitCents > 0 {
			ingredient.CostPerUnitCents = level.CostPerUnitCents
		}
		ingredient.UpdatedAt = closedAt
		s.ingredientsByID[level.IngredientID] = ingredient
	}

	session.Status = domain.SessionStatusClosed
	session.ClosedBy = close.ClosedBy
	session.ClosedAt = &closedAt
	session.TotalSalesCents = close.TotalSalesCents
	session.TotalWasteCents = close.TotalWasteCents
	session.TotalIngredientCostCents = close.TotalIngredientCostCents
	session.TotalProfitCents = close.TotalProfitCents
	s.sessionsByID[close.SessionID] = session
	if s.currentSessionID == close.SessionID {
		s.currentSessionID = ""
	}

	closed := session
	return &closed, nil
}

func (s *Store) ListDishes(_ context.Context) ([]domain.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dishes := make([]domain.Dish, 0, len(s.dishesByID))
	for _, d := range s.dishesByID {
		dishes = append(dishes, d)
	}
	slices.SortFunc(dishes, func(a, b domain.Dish) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return dishes, nil
}

func (s *Store) ListDishesWithStock(_ context.Context) ([]domain.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dishes := make([]domain.Dish, 0, len(s.dishesByID))
	for _, d := range s.dishesByID {
		if d.Stock > 0 {
			dishes = append(dishes, d)
		}
	}
	slices.SortFunc(dishes, func(a, b domain.Dish) int {
		return cmpString(a.Name, b.Name)
	})
	return dishes, nil
}

func (s *Store) GetDishByID(_ context.Context, id string) (*domain.Dish, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dish, exists := s.dishesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := dish
	return &found, nil
}

func (s *Store) CreateDish(_ context.Context, dish domain.Dish) (*domain.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dish.Name == "" || dish.PriceCents < 1 || dish.CostPriceCents < 0 || dish.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if dish.ID == "" {
		dish.ID = xid.New("dish")
	}
	if _, exists := s.dishesByID[dish.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if dish.CreatedAt.IsZero() {
		dish.CreatedAt = now
	}
	dish.UpdatedAt = now
	s.dishesByID[dish.ID] = dish
	created := dish
	return &created, nil
}

func (s *Store) UpdateDish(_ context.Context, dish domain.Dish) (*domain.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dish.Name == "" || dish.PriceCents < 1 || dish.CostPriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.dishesByID[dish.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	dish.CreatedAt = existing.CreatedAt
	dish.UpdatedAt = time.Now().UTC()
	s.dishesByID[dish.ID] = dish
	updated := dish
	return &updated, nil
}

func (s *Store) AddDishStock(_ context.Context, dishID string, quantity int) (*domain.Dish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	dish, exists := s.dishesByID[dishID]
	if !exists {
		return nil, store.ErrNotFound
	}
	dish.Stock += quantity
	dish.UpdatedAt = time.Now().UTC()
	s.dishesByID[dishID] = dish
	updated := dish
	return &updated, nil
}

func (s *Store) ListIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredients := make([]domain.Ingredient, 0, len(s.ingredientsByID))
	for _, ing := range s.ingredientsByID {
		ingredients = append(ingredients, ing)
	}
	slices.SortFunc(ingredients, func(a, b domain.Ingredient) int {
		return cmpString(a.Name, b.Name)
	})
	return ingredients, nil
}

func (s *Store) GetIngredientByID(_ context.Context, id string) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredient, exists := s.ingredientsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := ingredient
	return &found, nil
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ingredient.Name == "" || ingredient.Unit == "" || ingredient.Stock < 0 || ingredient.CostPerUnitCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if ingredient.ID == "" {
		ingredient.ID = xid.New("ing")
	}
	if _, exists := s.ingredientsByID[ingredient.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if ingredient.CreatedAt.IsZero() {
		ingredient.CreatedAt = now
	}
	ingredient.UpdatedAt = now
	s.ingredientsByID[ingredient.ID] = ingredient
	created := ingredient
	return &created, nil
}

func (s *Store) UpdateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ingredient.Name == "" || ingredient.Unit == "" || ingredient.Stock < 0 || ingredient.CostPerUnitCents < 0 {
		return nil, store.ErrInvalidInput
	}
	existing, exists := s.ingredientsByID[ingredient.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	ingredient.CreatedAt = existing.CreatedAt
	ingredient.UpdatedAt = time.Now().UTC()
	s.ingredientsByID[ingredient.ID] = ingredient
	updated := ingredient
	return &updated, nil
}

func (s *Store) CreateSalesOrder(_ context.Context, order domain.SalesOrder) (*domain.SalesOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, line := range order.Items {
		dish, exists := s.dishesByID[line.DishID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if dish.Stock < line.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	if order.ID == "" {
		order.ID = xid.New("so")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	s.orderSeq++
	for _, line := range order.Items {
		dish := s.dishesByID[line.DishID]
		dish.Stock -= line.Quantity
		dish.UpdatedAt = order.CreatedAt
		s.dishesByID[line.DishID] = dish
	}
	s.ordersByID[order.ID] = order
	created := order
	return &created, nil
}

func (s *Store) ListSalesOrders(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	orders := make([]domain.SalesOrder, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if order.OrderDate.Before(from) || !order.OrderDate.Before(to) {
			continue
		}
		orders = append(orders, order)
	}
	slices.SortFunc(orders, func(a, b domain.SalesOrder) int {
		if a.OrderDate.Equal(b.OrderDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.OrderDate.After(b.OrderDate) {
			return -1
		}
		return 1
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) SumCompletedSales(_ context.Context, from time.Time, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := int64(0)
	for _, order := range s.ordersByID {
		if order.Status != domain.OrderStatusCompleted {
			continue
		}
		if order.OrderDate.Before(from) || !order.OrderDate.Before(to) {
			continue
		}
		total += order.TotalCents
	}
	return total, nil
}

func (s *Store) ListWasteRecordsBySession(_ context.Context, sessionID string) ([]domain.WasteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.wasteBySession[sessionID]
	result := make([]domain.WasteRecord, len(records))
	copy(result, records)
	return result, nil
}

func (s *Store) ListUsageRecordsBySession(_ context.Context, sessionID string) ([]domain.IngredientUsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.usageBySession[sessionID]
	result := make([]domain.IngredientUsageRecord, len(records))
	copy(result, records)
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
