package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dapurpos/backend/internal/cache"
	"dapurpos/backend/internal/clock"
	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/service"
	"dapurpos/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopSessionCache{}, clock.System(), time.UTC, 30*time.Second)
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, repo)
	api := New(svc, auth, "*")
	return api, api.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body, token, csrf string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", body, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed with status %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected non-empty access token")
	}
	return resp.AccessToken
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", `{"username":"manager","password":"wrong"}`, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	_, handler := newTestAPI(t)

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"manager","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last)
	}
}

func TestRequireAuth(t *testing.T) {
	_, handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/session/current", "", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/session/current", "", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestCashierCannotStartSession(t *testing.T) {
	api, handler := newTestAPI(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/start", "", token, api.generateCSRFToken())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}
}

func TestMutatingRequestNeedsCSRFToken(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "manager", "manager123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/start", "", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestCSRFTokenEndpoint(t *testing.T) {
	api, handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/csrf-token", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	if !api.validateCSRFToken(resp.CSRFToken) {
		t.Fatalf("issued CSRF token does not validate")
	}
}

func TestSessionCurrentWithoutOpenDay(t *testing.T) {
	_, handler := newTestAPI(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/session/current", "", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no open session, got %d", rec.Code)
	}
}

func TestSessionCheckWithoutOpenDay(t *testing.T) {
	api, handler := newTestAPI(t)
	token := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/check", "", token, api.generateCSRFToken())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.SessionCheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode check response: %v", err)
	}
	if resp.Outcome != domain.AdvisoryNoSessionOpen {
		t.Fatalf("expected no_session_open, got %s", resp.Outcome)
	}
}

func TestEndOfDayFlowOverHTTP(t *testing.T) {
	api, handler := newTestAPI(t)
	managerToken := loginAs(t, handler, "manager", "manager123")
	cashierToken := loginAs(t, handler, "cashier", "cashier123")
	csrf := api.generateCSRFToken()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/start", "", managerToken, csrf)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/session/start", "", managerToken, csrf)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/dishes",
		`{"name":"Soto Ayam","price_cents":100000,"cost_price_cents":10000,"initial_stock":7}`,
		managerToken, csrf)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create dish: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var dishResp struct {
		Dish domain.Dish `json:"dish"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dishResp); err != nil {
		t.Fatalf("decode dish response: %v", err)
	}

	saleBody := fmt.Sprintf(`{"payment_method":"cash","items":[{"dish_id":%q,"quantity":2}]}`, dishResp.Dish.ID)
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", saleBody, cashierToken, csrf)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/session/close/preview", "", managerToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close preview: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sheet domain.ReconciliationWorksheet
	if err := json.Unmarshal(rec.Body.Bytes(), &sheet); err != nil {
		t.Fatalf("decode worksheet: %v", err)
	}
	if sheet.SalesSoFarCents != 200000 {
		t.Fatalf("expected sales so far 200000, got %d", sheet.SalesSoFarCents)
	}
	if len(sheet.UnsoldDishes) != 1 {
		t.Fatalf("expected 1 unsold dish, got %d", len(sheet.UnsoldDishes))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/session/close",
		`{"remaining_ingredients":[{"ingredient_id":"ing-beras","remaining_quantity":20}]}`,
		managerToken, csrf)
	if rec.Code != http.StatusOK {
		t.Fatalf("close session: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var closeResp struct {
		Result domain.ReconciliationResult `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &closeResp); err != nil {
		t.Fatalf("decode close response: %v", err)
	}
	if closeResp.Result.TotalSalesCents != 200000 {
		t.Fatalf("expected sales 200000, got %d", closeResp.Result.TotalSalesCents)
	}
	// Five leftover dishes at cost 10000 each.
	if closeResp.Result.TotalWasteCents != 50000 {
		t.Fatalf("expected waste 50000, got %d", closeResp.Result.TotalWasteCents)
	}
	// Five kg of rice used at 1400000 per kg.
	if closeResp.Result.TotalIngredientCostCents != 7000000 {
		t.Fatalf("expected ingredient cost 7000000, got %d", closeResp.Result.TotalIngredientCostCents)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/session/current", "", managerToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}

	reportPath := "/api/v1/sessions/" + closeResp.Result.SessionID + "/report"
	rec = doJSON(t, handler, http.MethodGet, reportPath, "", managerToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("session report: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report domain.SessionReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Session.Status != domain.SessionStatusClosed {
		t.Fatalf("expected CLOSED session in report, got %s", report.Session.Status)
	}
	if len(report.WasteRecords) != 1 || len(report.IngredientUsageRecords) != 1 {
		t.Fatalf("expected 1 waste and 1 usage record, got %d and %d",
			len(report.WasteRecords), len(report.IngredientUsageRecords))
	}
}

func TestCloseSessionRejectsBadRemainingCounts(t *testing.T) {
	api, handler := newTestAPI(t)
	managerToken := loginAs(t, handler, "manager", "manager123")
	csrf := api.generateCSRFToken()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/start", "", managerToken, csrf)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: expected 201, got %d", rec.Code)
	}

	// Seeded rice stock is 25 kg; reporting 26 remaining must be rejected.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/session/close",
		`{"remaining_ingredients":[{"ingredient_id":"ing-beras","remaining_quantity":26}]}`,
		managerToken, csrf)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error      string                               `json:"error"`
		Violations []service.RemainingQuantityViolation `json:"violations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode violation response: %v", err)
	}
	if len(resp.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(resp.Violations))
	}
	if resp.Violations[0].IngredientID != "ing-beras" {
		t.Fatalf("unexpected violation ingredient: %s", resp.Violations[0].IngredientID)
	}

	// The session must still be open after a rejected close.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/session/current", "", managerToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected session still open, got %d", rec.Code)
	}
}

func TestCloseWithoutSessionConflicts(t *testing.T) {
	api, handler := newTestAPI(t)
	managerToken := loginAs(t, handler, "manager", "manager123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/session/close",
		`{"remaining_ingredients":[]}`, managerToken, api.generateCSRFToken())
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSaleWithoutSessionConflicts(t *testing.T) {
	api, handler := newTestAPI(t)
	cashierToken := loginAs(t, handler, "cashier", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales",
		`{"items":[{"dish_id":"dish-nasi-goreng","quantity":1}]}`,
		cashierToken, api.generateCSRFToken())
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	api, handler := newTestAPI(t)
	managerToken := loginAs(t, handler, "manager", "manager123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/dishes",
		`{"name":"X","price_cents":1000,"bogus":true}`,
		managerToken, api.generateCSRFToken())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestOptionsPreflight(t *testing.T) {
	_, handler := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected CORS headers on preflight response")
	}
}
