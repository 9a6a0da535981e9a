package main

import (
	"strings"
	"testing"

	"dapurpos/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty secret", "", true},
		{"short secret", "too-short", true},
		{"long enough secret", strings.Repeat("a", 32), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(config.Config{AuthSecret: tc.secret})
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.secret)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
