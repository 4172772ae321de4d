package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultProvidesSinkSettings(t *testing.T) {
	cfg := Default()
	if cfg.Environment != EnvProd {
		t.Fatalf("expected default environment prod, got %s", cfg.Environment)
	}
	if cfg.Sink.Kind != SinkPocketBase {
		t.Fatalf("expected default pocketbase sink, got %s", cfg.Sink.Kind)
	}
	if cfg.Source.BaseURL == "" || cfg.Source.RatePerSecond <= 0 {
		t.Fatal("expected default source URL and rate budget")
	}
	if cfg.Runner.Workers <= 0 || cfg.Runner.MaxAttempts <= 0 {
		t.Fatal("expected bounded default runner settings")
	}
}

func TestFromEnvOverridesValues(t *testing.T) {
	t.Setenv("RACESYNC_ENV", "STAGING")
	t.Setenv("RACESYNC_SOURCE_BASE_URL", "https://source.test")
	t.Setenv("RACESYNC_SOURCE_TIMEOUT", "12s")
	t.Setenv("RACESYNC_SINK", "postgres")
	t.Setenv("RACESYNC_PG_DSN", "postgresql://test")
	t.Setenv("POCKETBASE_EMAIL", "ops@test")
	t.Setenv("POCKETBASE_PASSWORD", "secret")
	t.Setenv("RACESYNC_WORKERS", "8")
	t.Setenv("RACESYNC_MAX_ATTEMPTS", "3")

	cfg := FromEnv()
	if cfg.Environment != EnvStaging {
		t.Fatalf("expected staging environment, got %s", cfg.Environment)
	}
	if cfg.Source.BaseURL != "https://source.test" || cfg.Source.HTTPTimeout != 12*time.Second {
		t.Fatalf("expected source overrides, got %+v", cfg.Source)
	}
	if cfg.Sink.Kind != SinkPostgres || cfg.Sink.Postgres.DSN != "postgresql://test" {
		t.Fatalf("expected postgres sink overrides, got %+v", cfg.Sink)
	}
	if cfg.Sink.PocketBase.Credentials.Email != "ops@test" {
		t.Fatal("expected pocketbase credential override")
	}
	if cfg.Runner.Workers != 8 || cfg.Runner.MaxAttempts != 3 {
		t.Fatalf("expected runner overrides, got %+v", cfg.Runner)
	}
}

func TestApplyLeavesBaseUntouched(t *testing.T) {
	base := Default()
	derived := Apply(base,
		WithEnvironment(EnvDev),
		WithSinkKind(SinkMemory),
		WithWorkers(16),
		WithRetry(2, time.Second, 10*time.Second),
	)

	if derived.Environment != EnvDev || derived.Sink.Kind != SinkMemory {
		t.Fatalf("expected options applied, got %+v", derived)
	}
	if derived.Runner.Workers != 16 || derived.Runner.MaxAttempts != 2 {
		t.Fatalf("expected runner options applied, got %+v", derived.Runner)
	}
	if base.Sink.Kind != SinkPocketBase || base.Runner.Workers == 16 {
		t.Fatal("expected base settings untouched")
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	doc := []byte(`
environment: dev
source:
  baseUrl: https://file.test
  ratePerSecond: 5
sink:
  kind: memory
runner:
  workers: 2
  maxAttempts: 7
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, loaded, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !loaded {
		t.Fatal("expected file to be loaded")
	}
	if cfg.Environment != EnvDev || cfg.Source.BaseURL != "https://file.test" {
		t.Fatalf("expected file overrides, got %+v", cfg)
	}
	if cfg.Sink.Kind != SinkMemory || cfg.Runner.MaxAttempts != 7 {
		t.Fatalf("expected sink and runner overrides, got %+v", cfg)
	}

	_, loaded, err = LoadOrDefault(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if loaded {
		t.Fatal("expected missing file to report not loaded")
	}
}
