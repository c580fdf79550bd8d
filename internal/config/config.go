package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env            string
	ServiceName    string
	ServiceVersion string

	OtelExporterOTLPEndpoint string
	OtelExporterOTLPHeaders  string

	Port string

	Cache     CacheConfig
	RateLimit RateLimitConfig
	Origin    OriginConfig
}

type CacheConfig struct {
	// DefaultTTL is applied to entries stored without an explicit TTL.
	DefaultTTL time.Duration
	// CleanupInterval drives the background sweep of expired entries.
	// Zero disables the sweeper; expiry then happens only on reads.
	CleanupInterval time.Duration
}

type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

type OriginConfig struct {
	// BaseURL of the origin backing read-through lookups. Empty
	// disables the lookup surface entirely.
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// WarmKeys are fetched from the origin at startup.
	WarmKeys []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      os.Getenv("ENV"),
		ServiceName:              os.Getenv("SERVICE_NAME"),
		ServiceVersion:           os.Getenv("SERVICE_VERSION"),
		OtelExporterOTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterOTLPHeaders:  os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		Port:                     os.Getenv("PORT"),
	}

	var err error
	if cfg.Cache.DefaultTTL, err = envMillis("CACHE_DEFAULT_TTL_MS"); err != nil {
		return nil, err
	}
	if cfg.Cache.CleanupInterval, err = envMillis("CACHE_CLEANUP_INTERVAL_MS"); err != nil {
		return nil, err
	}
	if cfg.RateLimit.MaxRequests, err = envInt("RATE_LIMIT_MAX_REQUESTS"); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Window, err = envMillis("RATE_LIMIT_WINDOW_MS"); err != nil {
		return nil, err
	}
	cfg.Origin.BaseURL = os.Getenv("ORIGIN_BASE_URL")
	if cfg.Origin.Timeout, err = envMillis("ORIGIN_TIMEOUT_MS"); err != nil {
		return nil, err
	}
	if cfg.Origin.CacheTTL, err = envMillis("ORIGIN_CACHE_TTL_MS"); err != nil {
		return nil, err
	}
	cfg.Origin.WarmKeys = splitList(os.Getenv("ORIGIN_WARM_KEYS"))

	// Load from YAML file if available
	if err := cfg.LoadFromYAML("config.yaml"); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	// Set defaults
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "warden"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "1.0.0"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.SetDomainDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func (c *Config) LoadFromYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is not an error
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlConfig struct {
		Cache struct {
			DefaultTTLMS      int64 `yaml:"default_ttl_ms"`
			CleanupIntervalMS int64 `yaml:"cleanup_interval_ms"`
		} `yaml:"cache"`
		RateLimit struct {
			MaxRequests int   `yaml:"max_requests"`
			WindowMS    int64 `yaml:"window_ms"`
		} `yaml:"rate_limit"`
		Origin struct {
			BaseURL    string   `yaml:"base_url"`
			TimeoutMS  int64    `yaml:"timeout_ms"`
			CacheTTLMS int64    `yaml:"cache_ttl_ms"`
			WarmKeys   []string `yaml:"warm_keys"`
		} `yaml:"origin"`
	}

	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// YAML values override whatever the environment provided
	if yamlConfig.Cache.DefaultTTLMS != 0 {
		c.Cache.DefaultTTL = time.Duration(yamlConfig.Cache.DefaultTTLMS) * time.Millisecond
	}
	if yamlConfig.Cache.CleanupIntervalMS != 0 {
		c.Cache.CleanupInterval = time.Duration(yamlConfig.Cache.CleanupIntervalMS) * time.Millisecond
	}
	if yamlConfig.RateLimit.MaxRequests != 0 {
		c.RateLimit.MaxRequests = yamlConfig.RateLimit.MaxRequests
	}
	if yamlConfig.RateLimit.WindowMS != 0 {
		c.RateLimit.Window = time.Duration(yamlConfig.RateLimit.WindowMS) * time.Millisecond
	}
	if yamlConfig.Origin.BaseURL != "" {
		c.Origin.BaseURL = yamlConfig.Origin.BaseURL
	}
	if yamlConfig.Origin.TimeoutMS != 0 {
		c.Origin.Timeout = time.Duration(yamlConfig.Origin.TimeoutMS) * time.Millisecond
	}
	if yamlConfig.Origin.CacheTTLMS != 0 {
		c.Origin.CacheTTL = time.Duration(yamlConfig.Origin.CacheTTLMS) * time.Millisecond
	}
	if len(yamlConfig.Origin.WarmKeys) > 0 {
		c.Origin.WarmKeys = yamlConfig.Origin.WarmKeys
	}

	return nil
}

func (c *Config) SetDomainDefaults() {
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = 5 * time.Minute
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Origin.Timeout == 0 {
		c.Origin.Timeout = 10 * time.Second
	}
	if c.Origin.CacheTTL == 0 {
		c.Origin.CacheTTL = c.Cache.DefaultTTL
	}
}

func (c *Config) validate() error {
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("CACHE_DEFAULT_TTL_MS must be positive")
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL_MS must not be negative")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive")
	}
	if c.Origin.BaseURL != "" && c.Origin.Timeout <= 0 {
		return fmt.Errorf("ORIGIN_TIMEOUT_MS must be positive when ORIGIN_BASE_URL is set")
	}
	return nil
}

// envMillis reads a millisecond count from the environment. An unset
// or empty variable yields zero.
func envMillis(name string) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer millisecond count: %w", name, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func envInt(name string) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
