package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable applyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GEMINI_API_KEY", "GEMINI_MODEL", "DATABASE_PATH", "BACKEND_BASE_URL", "BAAGENT_ADDR",
		"ACS_CONNECTION_STRING", "ACS_SENDER_ADDRESS", "APPROVAL_RECIPIENT_EMAIL",
		"ADO_ORGANIZATION_URL", "ADO_PROJECT_NAME", "ADO_PERSONAL_ACCESS_TOKEN",
		"KROKI_URL", "BAAGENT_LOG_LEVEL", "BAAGENT_MAX_PARALLEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "ba-agent" {
		t.Errorf("expected Name=ba-agent, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected Provider=gemini, got %s", cfg.LLM.Provider)
	}
	if cfg.Pipeline.MaxParallel != 4 {
		t.Errorf("expected MaxParallel=4, got %d", cfg.Pipeline.MaxParallel)
	}
	if cfg.Server.BaseURL != "http://127.0.0.1:5000" {
		t.Errorf("unexpected BaseURL %s", cfg.Server.BaseURL)
	}
	if cfg.LLM.APIKey != "" {
		t.Error("default config must not ship an API key")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "g-test"
	cfg.Pipeline.MaxParallel = 2
	cfg.Integrations.Tracker.Project = "Apollo"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.LLM.APIKey != "g-test" {
		t.Errorf("expected APIKey=g-test, got %s", loaded.LLM.APIKey)
	}
	if loaded.Pipeline.MaxParallel != 2 {
		t.Errorf("expected MaxParallel=2, got %d", loaded.Pipeline.MaxParallel)
	}
	if loaded.Integrations.Tracker.Project != "Apollo" {
		t.Errorf("expected Project=Apollo, got %s", loaded.Integrations.Tracker.Project)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DatabasePath != DefaultConfig().Storage.DatabasePath {
		t.Errorf("expected default database path, got %s", cfg.Storage.DatabasePath)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without API key")
	}

	cfg.LLM.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.LLM.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestDurationGetters_FallBackOnInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval.RecordTTL = "soon"
	cfg.LLM.Timeout = ""
	cfg.Pipeline.RunTimeout = "-5s"

	if got := cfg.GetRecordTTL(); got != 7*24*time.Hour {
		t.Errorf("GetRecordTTL = %v", got)
	}
	if got := cfg.GetLLMTimeout(); got != 300*time.Second {
		t.Errorf("GetLLMTimeout = %v", got)
	}
	if got := cfg.GetRunTimeout(); got != 15*time.Minute {
		t.Errorf("GetRunTimeout = %v", got)
	}
	if got := cfg.GetSweepInterval(); got != time.Hour {
		t.Errorf("GetSweepInterval = %v", got)
	}
}
