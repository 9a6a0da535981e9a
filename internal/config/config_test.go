package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGIN", "")
	t.Setenv("STORE_TIMEZONE", "")
	t.Setenv("SESSION_CACHE_TTL_SECONDS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.StoreTimezone != "Asia/Jakarta" {
		t.Fatalf("expected default timezone Asia/Jakarta, got %s", cfg.StoreTimezone)
	}
	if cfg.SessionCacheTTLSeconds != 30 {
		t.Fatalf("expected default cache TTL 30, got %d", cfg.SessionCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token TTL 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_TIMEZONE", "Asia/Makassar")
	t.Setenv("SESSION_CACHE_TTL_SECONDS", "5")
	t.Setenv("AUTH_SECRET", "  secret-with-padding  ")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.StoreTimezone != "Asia/Makassar" {
		t.Fatalf("expected timezone Asia/Makassar, got %s", cfg.StoreTimezone)
	}
	if cfg.SessionCacheTTLSeconds != 5 {
		t.Fatalf("expected cache TTL 5, got %d", cfg.SessionCacheTTLSeconds)
	}
	if cfg.AuthSecret != "secret-with-padding" {
		t.Fatalf("expected trimmed auth secret, got %q", cfg.AuthSecret)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("SESSION_CACHE_TTL_SECONDS", "zero")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-10")

	cfg := Load()
	if cfg.SessionCacheTTLSeconds != 30 {
		t.Fatalf("expected fallback cache TTL 30, got %d", cfg.SessionCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback token TTL 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
