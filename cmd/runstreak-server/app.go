package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runstreak/adapters/jsonfile"
	mem "runstreak/adapters/memory"
	redisAdapter "runstreak/adapters/redis"
	sqlxAdapter "runstreak/adapters/sqlx"
	"runstreak/analytics"
	"runstreak/api/httpapi"
	"runstreak/config"
	"runstreak/core"
	"runstreak/engine"
	"runstreak/feed"
	"runstreak/observability"
	"runstreak/realtime"
	"runstreak/tracker"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Service *engine.ChallengeService
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(_ context.Context) (*config.Config, error) {
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	return setupStorage(ctx, cfg)
}

func provideFeed(cfg *config.Config) (engine.ActivityFeed, error) {
	return setupFeed(cfg)
}

func provideService(hub *realtime.Hub, storage engine.Storage, activityFeed engine.ActivityFeed) *engine.ChallengeService {
	return tracker.New(
		tracker.WithRealtime(hub),
		tracker.WithStorage(storage),
		tracker.WithFeed(activityFeed),
		tracker.WithDispatchMode(engine.DispatchAsync),
		tracker.WithHook(analytics.Multi{
			analytics.NewChallengeMetrics(),
			observability.EventCounter{},
		}),
	)
}

func provideHandler(svc *engine.ChallengeService, hub *realtime.Hub, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func newMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	return &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(_ context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	case "file":
		return jsonfile.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// setupFeed builds the activity feed pipeline: HTTP client, per-user
// token source, optional Redis cache, and Prometheus instrumentation.
func setupFeed(cfg *config.Config) (engine.ActivityFeed, error) {
	client, err := feed.NewClient(cfg.Feed.BaseURL,
		feed.WithRateLimit(cfg.Feed.RPS, cfg.Feed.Burst),
		feed.WithPerPage(cfg.Feed.PerPage),
	)
	if err != nil {
		return nil, fmt.Errorf("feed client: %w", err)
	}

	tokens := make(feed.StaticTokens, len(cfg.Feed.Tokens))
	for user, token := range cfg.Feed.Tokens {
		id, err := core.NormalizeUserID(core.UserID(user))
		if err != nil {
			return nil, fmt.Errorf("feed tokens: %w", err)
		}
		tokens[id] = token
	}

	var activityFeed engine.ActivityFeed = feed.NewUserFeed(client, tokens)

	if cfg.Feed.CacheEnabled {
		cached, err := redisAdapter.New(cfg.Feed.Redis, activityFeed, cfg.Feed.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("feed cache: %w", err)
		}
		activityFeed = cached
	}

	return observability.InstrumentFeed(activityFeed), nil
}
