package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so tests see a clean
// environment regardless of the shell they run in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"ENV", "SERVICE_NAME", "SERVICE_VERSION", "PORT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_HEADERS",
		"CACHE_DEFAULT_TTL_MS", "CACHE_CLEANUP_INTERVAL_MS",
		"RATE_LIMIT_MAX_REQUESTS", "RATE_LIMIT_WINDOW_MS",
		"ORIGIN_BASE_URL", "ORIGIN_TIMEOUT_MS", "ORIGIN_CACHE_TTL_MS", "ORIGIN_WARM_KEYS",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "development" {
		t.Errorf("expected env 'development', got %q", cfg.Env)
	}
	if cfg.ServiceName != "warden" {
		t.Errorf("expected service name 'warden', got %q", cfg.ServiceName)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("expected default TTL 5m, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.CleanupInterval != 0 {
		t.Errorf("expected cleanup disabled by default, got %v", cfg.Cache.CleanupInterval)
	}
	if cfg.RateLimit.MaxRequests != 100 {
		t.Errorf("expected 100 max requests, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("expected 1m window, got %v", cfg.RateLimit.Window)
	}
	if cfg.Origin.CacheTTL != cfg.Cache.DefaultTTL {
		t.Errorf("expected origin cache TTL to inherit the default TTL, got %v", cfg.Origin.CacheTTL)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_DEFAULT_TTL_MS", "30000")
	t.Setenv("CACHE_CLEANUP_INTERVAL_MS", "60000")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "25")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "10000")
	t.Setenv("ORIGIN_BASE_URL", "https://origin.internal")
	t.Setenv("ORIGIN_WARM_KEYS", "alpha, beta ,,gamma")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Cache.DefaultTTL != 30*time.Second {
		t.Errorf("expected 30s TTL, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.CleanupInterval != time.Minute {
		t.Errorf("expected 1m cleanup interval, got %v", cfg.Cache.CleanupInterval)
	}
	if cfg.RateLimit.MaxRequests != 25 {
		t.Errorf("expected 25 max requests, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window != 10*time.Second {
		t.Errorf("expected 10s window, got %v", cfg.RateLimit.Window)
	}
	if cfg.Origin.BaseURL != "https://origin.internal" {
		t.Errorf("unexpected origin base URL %q", cfg.Origin.BaseURL)
	}

	want := []string{"alpha", "beta", "gamma"}
	if len(cfg.Origin.WarmKeys) != len(want) {
		t.Fatalf("expected %d warm keys, got %v", len(want), cfg.Origin.WarmKeys)
	}
	for i, k := range want {
		if cfg.Origin.WarmKeys[i] != k {
			t.Errorf("warm key %d: expected %q, got %q", i, k, cfg.Origin.WarmKeys[i])
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"negative default TTL", "CACHE_DEFAULT_TTL_MS", "-1000"},
		{"negative cleanup interval", "CACHE_CLEANUP_INTERVAL_MS", "-1"},
		{"zero-via-negative max requests", "RATE_LIMIT_MAX_REQUESTS", "-5"},
		{"negative window", "RATE_LIMIT_WINDOW_MS", "-60000"},
		{"non-numeric TTL", "CACHE_DEFAULT_TTL_MS", "five minutes"},
		{"non-numeric max requests", "RATE_LIMIT_MAX_REQUESTS", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("expected Load() to fail with %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	configContent := `cache:
  default_ttl_ms: 120000
  cleanup_interval_ms: 30000
rate_limit:
  max_requests: 50
  window_ms: 5000
origin:
  base_url: https://catalog.internal
  timeout_ms: 2000
  cache_ttl_ms: 60000
  warm_keys:
    - featured
    - trending`

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.yaml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cfg := &Config{}
	err = cfg.LoadFromYAML(configPath)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if cfg.Cache.DefaultTTL != 2*time.Minute {
		t.Errorf("expected 2m default TTL, got %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Cache.CleanupInterval != 30*time.Second {
		t.Errorf("expected 30s cleanup interval, got %v", cfg.Cache.CleanupInterval)
	}
	if cfg.RateLimit.MaxRequests != 50 {
		t.Errorf("expected 50 max requests, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window != 5*time.Second {
		t.Errorf("expected 5s window, got %v", cfg.RateLimit.Window)
	}
	if cfg.Origin.BaseURL != "https://catalog.internal" {
		t.Errorf("unexpected origin base URL %q", cfg.Origin.BaseURL)
	}
	if len(cfg.Origin.WarmKeys) != 2 || cfg.Origin.WarmKeys[0] != "featured" {
		t.Errorf("unexpected warm keys %v", cfg.Origin.WarmKeys)
	}
}

func TestLoadFromYAMLPartial(t *testing.T) {
	configContent := `rate_limit:
  max_requests: 10`

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config_partial.yaml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cfg := &Config{}
	err = cfg.LoadFromYAML(configPath)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}
	cfg.SetDomainDefaults()

	if cfg.RateLimit.MaxRequests != 10 {
		t.Errorf("expected 10 max requests from YAML, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("expected default window, got %v", cfg.RateLimit.Window)
	}
	if cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("expected default TTL, got %v", cfg.Cache.DefaultTTL)
	}
}

func TestLoadFromYAMLMissingFile(t *testing.T) {
	cfg := &Config{}
	if err := cfg.LoadFromYAML(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Errorf("missing file should not be an error, got %v", err)
	}
}
