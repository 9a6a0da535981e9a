package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"dapurpos/backend/internal/domain"
	"dapurpos/backend/internal/store/memory"
)

func TestLoginAndParseToken(t *testing.T) {
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "manager", Password: "manager123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "manager" {
		t.Fatalf("expected manager role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "manager" || actor.Role != "manager" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsForgedToken(t *testing.T) {
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, memory.NewSeeded())
	other := NewAuthManager("another-secret-key-fedcba98765432", time.Hour, memory.NewSeeded())

	resp, err := other.Login(domain.LoginRequest{Username: "manager", Password: "manager123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := auth.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, memory.NewSeeded())

	token, err := auth.sign("manager", "manager", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.New()
	err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plaintext-password",
		Role:      "cashier",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plaintext-password"}); err != nil {
		t.Fatalf("login with upgraded password failed: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected stored password to be bcrypt hashed, got %q", users[0].Password)
	}
}

func TestCreateEmployeeValidation(t *testing.T) {
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, memory.NewSeeded())

	if _, err := auth.CreateEmployee(domain.EmployeeCreateRequest{Username: "ab", Password: "secret123"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateEmployee(domain.EmployeeCreateRequest{Username: "budi sant", Password: "secret123"}); err == nil {
		t.Fatalf("expected username with spaces to be rejected")
	}
	if _, err := auth.CreateEmployee(domain.EmployeeCreateRequest{Username: "budi", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := auth.CreateEmployee(domain.EmployeeCreateRequest{Username: "cashier", Password: "secret123"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}

func TestCreateEmployeeAndLogin(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, repo)

	employee, err := auth.CreateEmployee(domain.EmployeeCreateRequest{Username: "Budi", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("create employee failed: %v", err)
	}
	if employee.Username != "budi" || employee.Role != "cashier" {
		t.Fatalf("unexpected employee: %+v", employee)
	}

	resp, err := auth.Login(domain.LoginRequest{Username: "budi", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("login as new employee failed: %v", err)
	}
	if resp.Role != "cashier" {
		t.Fatalf("expected cashier role, got %s", resp.Role)
	}

	employees := auth.ListEmployees()
	found := false
	for _, e := range employees {
		if e.Role != "cashier" {
			t.Fatalf("expected only cashiers in employee list, got %s", e.Role)
		}
		if e.Username == "budi" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected budi in employee list")
	}
}
