package setup

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- CapabilitiesFromEnv Tests ---

func TestCapabilitiesFromEnv_Defaults(t *testing.T) {
	t.Setenv("KNOWLEDGE_PATH", "")
	t.Setenv("KNOWLEDGE_DIR", "")
	t.Setenv("TOOLS_FILE", "")

	caps, err := CapabilitiesFromEnv(context.Background(), discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caps.LLM == nil || caps.Knowledge == nil || caps.Tools == nil {
		t.Fatalf("expected all capabilities, got %+v", caps)
	}
	if !caps.Tools.Has("current_time") {
		t.Error("expected builtin tools to be registered")
	}
}

func TestCapabilitiesFromEnv_ToolsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	data := "tools:\n  - name: crm_lookup\n    url: http://localhost:9/lookup\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KNOWLEDGE_PATH", "")
	t.Setenv("KNOWLEDGE_DIR", "")
	t.Setenv("TOOLS_FILE", path)

	caps, err := CapabilitiesFromEnv(context.Background(), discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !caps.Tools.Has("crm_lookup") {
		t.Errorf("expected crm_lookup tool, got %v", caps.Tools.Names())
	}
}

func TestCapabilitiesFromEnv_MissingToolsFile(t *testing.T) {
	t.Setenv("KNOWLEDGE_PATH", "")
	t.Setenv("KNOWLEDGE_DIR", "")
	t.Setenv("TOOLS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := CapabilitiesFromEnv(context.Background(), discardLogger()); err == nil {
		t.Error("expected error for missing tools file")
	}
}

// --- Orchestrator Tests ---

func TestOrchestrator_MaxSteps(t *testing.T) {
	caps := &Capabilities{}

	tests := []struct {
		value   string
		wantErr bool
	}{
		{"", false},
		{"10", false},
		{"0", true},
		{"many", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("MAX_STEPS", tt.value)
			o, err := caps.Orchestrator(discardLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && o == nil {
				t.Error("expected orchestrator")
			}
		})
	}
}

// --- Env Tests ---

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("AGENTFLOW_TEST_VAR=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENTFLOW_TEST_VAR", "")
	os.Unsetenv("AGENTFLOW_TEST_VAR")

	if err := LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("AGENTFLOW_TEST_VAR"); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}
}

func TestAddr(t *testing.T) {
	t.Setenv("AGENTFLOW_TEST_PORT", "")
	if got := Addr("AGENTFLOW_TEST_PORT", "8080"); got != ":8080" {
		t.Errorf("expected :8080, got %q", got)
	}
	t.Setenv("AGENTFLOW_TEST_PORT", "9000")
	if got := Addr("AGENTFLOW_TEST_PORT", "8080"); got != ":9000" {
		t.Errorf("expected :9000, got %q", got)
	}
}

func TestOpsMux(t *testing.T) {
	mux := OpsMux()

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
