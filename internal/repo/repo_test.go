package repo

import (
	"strings"
	"testing"
)

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should map to NULL")
	}
	if got := nullString("x"); got == nil || *got != "x" {
		t.Errorf("expected pointer to %q, got %v", "x", got)
	}
	if deref(nil) != "" || deref(nullString("y")) != "y" {
		t.Error("deref returned unexpected value")
	}
}

func TestSchema(t *testing.T) {
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS executions",
		"request         JSONB",
		"WHERE idempotency_key IS NOT NULL",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}

func TestPoolConfig(t *testing.T) {
	cfg, err := PoolConfig(DefaultDSN)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConns != 10 {
		t.Errorf("expected MaxConns 10, got %d", cfg.MaxConns)
	}
	if cfg.ConnConfig.Database != "agentflow" {
		t.Errorf("expected database %q, got %q", "agentflow", cfg.ConnConfig.Database)
	}

	if _, err := PoolConfig("postgres://%zz"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}
