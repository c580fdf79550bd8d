package main

import (
	"context"
	"encoding/json"
	_ "github.com/joho/godotenv/autoload"
	"log"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/riandyrn/otelchi"
	otelchimetric "github.com/riandyrn/otelchi/metric"
	"github.com/stashd/warden/internal/api"
	"github.com/stashd/warden/internal/cache"
	"github.com/stashd/warden/internal/config"
	"github.com/stashd/warden/internal/logger"
	"github.com/stashd/warden/internal/metrics"
	"github.com/stashd/warden/internal/middleware"
	"github.com/stashd/warden/internal/origin"
	"github.com/stashd/warden/internal/ratelimit"
	"github.com/stashd/warden/internal/telemetry"
	"github.com/stashd/warden/internal/warmup"
	"go.opentelemetry.io/otel"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize telemetry
	if cfg.OtelExporterOTLPEndpoint != "" {
		headers := telemetry.ParseHeaders(cfg.OtelExporterOTLPHeaders)
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.Env, cfg.OtelExporterOTLPEndpoint, headers)
		if err != nil {
			slog.Warn("Failed to init telemetry", "error", err)
		} else {
			defer shutdown(ctx)
		}
	}

	// Initialize business metrics
	if err := metrics.Init(); err != nil {
		slog.Warn("Failed to init business metrics", "error", err)
	}

	// Initialize logger with OTel support
	logger := logger.New(cfg.Env)
	slog.SetDefault(logger) // Set as default so slog.Info() uses our handler

	// Per-cache counters, shared with the admin stats surface
	kvStats := metrics.NewCollector("kv")
	lookupStats := metrics.NewCollector("lookup")

	kv, err := cache.New[json.RawMessage](cache.Config{
		DefaultTTL: cfg.Cache.DefaultTTL,
		Metrics:    kvStats,
	})
	if err != nil {
		log.Fatalf("Failed to create kv cache: %v", err)
	}

	lookups, err := cache.New[[]byte](cache.Config{
		DefaultTTL: cfg.Origin.CacheTTL,
		Metrics:    lookupStats,
	})
	if err != nil {
		log.Fatalf("Failed to create lookup cache: %v", err)
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window,
	})
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}

	// Origin client for read-through lookups; absent URL disables the surface
	var originClient *origin.Client
	if cfg.Origin.BaseURL != "" {
		originClient = origin.NewClient(cfg.Origin.BaseURL, cfg.Origin.Timeout)
	}

	if originClient != nil && len(cfg.Origin.WarmKeys) > 0 {
		result := warmup.Run(ctx, cfg.Origin.WarmKeys, lookups, originClient, logger)
		slog.Info("Lookup cache warmed", "loaded", result.Loaded, "failed", result.Failed)
	}

	// Background sweepers reclaim expired entries; reads stay correct
	// without them
	if cfg.Cache.CleanupInterval > 0 {
		for name, store := range map[string]cache.Sweepable{
			"kv":        kv,
			"lookup":    lookups,
			"ratelimit": limiter,
		} {
			cleaner := cache.NewCleaner(store, cfg.Cache.CleanupInterval, logger.With("store", name), nil)
			go cleaner.Start(ctx)
		}
	}

	// API handlers
	apiServer := api.NewServer(cfg, kv, lookups, limiter, originClient, kvStats, lookupStats)

	// Router
	r := chi.NewRouter()

	// Middleware
	r.Use(otelchi.Middleware("warden-server",
		otelchi.WithChiRoutes(r),
		otelchi.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	))

	// HTTP metrics
	metricCfg := otelchimetric.NewBaseConfig("warden-server", otelchimetric.WithMeterProvider(otel.GetMeterProvider()))
	r.Use(otelchimetric.NewRequestDurationMillis(metricCfg))
	r.Use(otelchimetric.NewRequestInFlight(metricCfg))
	r.Use(otelchimetric.NewResponseSizeBytes(metricCfg))

	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{
			"X-Request-ID",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
			"X-Cache-TTL-Ms",
		},
		AllowCredentials: true,
	}))

	// Health check endpoint
	r.Get("/health", apiServer.HandleHealth)

	// Client-facing routes sit behind the limiter
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		r.Put("/kv/{key}", apiServer.HandleSetKey)
		r.Get("/kv/{key}", apiServer.HandleGetKey)
		r.Delete("/kv/{key}", apiServer.HandleDeleteKey)
		if originClient != nil {
			r.Get("/lookup/{key}", apiServer.HandleLookup)
		}
	})

	// Admin surface stays outside the limiter so operators keep access
	r.Route("/admin", func(r chi.Router) {
		r.Post("/flush", apiServer.HandleFlush)
		r.Get("/keys", apiServer.HandleKeys)
		r.Get("/stats", apiServer.HandleStats)
	})

	slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env)

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
