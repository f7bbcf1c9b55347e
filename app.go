package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"stockanalyzer/internal/api"
	"stockanalyzer/internal/cache"
	"stockanalyzer/internal/config"
	"stockanalyzer/internal/coordinator"
	"stockanalyzer/internal/engine"
	"stockanalyzer/internal/nasdaq"
	"stockanalyzer/internal/ratelimit"
	"stockanalyzer/internal/session"
	"stockanalyzer/internal/staleness"
	"stockanalyzer/internal/store"
	"stockanalyzer/internal/yahoo"
)

const shutdownTimeout = 10 * time.Second

// app is the fully wired service.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	store  store.Store
	cache  *cache.ResultCache
	coord  *coordinator.Coordinator
	engine *engine.Orchestrator
	router *gin.Engine
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		log.Info("using sqlite store", "path", cfg.SQLitePath)
		return store.NewSQLiteStore(cfg.SQLitePath)
	case "mongo":
		return store.NewMongoStore(ctx, cfg.MongoDBURI, cfg.DatabaseName, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newLimiter builds the shared per-upstream limiter. With no rates set every
// request passes straight through.
func newLimiter(cfg *config.Config, log *slog.Logger) *ratelimit.Limiter {
	if cfg.YahooRPS <= 0 && cfg.NasdaqRPS <= 0 {
		log.Warn("no upstream rate limits configured")
		return ratelimit.Unlimited()
	}
	return ratelimit.New(map[ratelimit.API]float64{
		ratelimit.APIYahoo:  cfg.YahooRPS,
		ratelimit.APINasdaq: cfg.NasdaqRPS,
	})
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	limiter := newLimiter(cfg, log)

	sessions := session.NewManager(session.Config{
		SessionURL: cfg.YahooSessionURL,
		CrumbURL:   cfg.YahooCrumbURL,
		TTL:        cfg.CredentialTTL(),
		Limiter:    limiter,
		Logger:     log,
	})

	backoff := coordinator.DefaultBackoff()
	backoff.Base = cfg.BackoffBase()

	chart := yahoo.NewClient(cfg.YahooBaseURL, sessions, limiter, log)

	coord := coordinator.New(chart, coordinator.Config{
		Concurrency:      cfg.FetchConcurrency,
		Delay:            cfg.FetchDelay(),
		LookbackDays:     cfg.LookbackDays,
		RateLimitRetries: cfg.RateLimitRetries,
		Backoff:          backoff,
		Logger:           log,
	})

	resultCache := cache.New(cache.Config{
		TTL:          cfg.CacheTTL(),
		Capacity:     cfg.CacheCapacity,
		ListCapacity: cfg.ListCacheCapacity,
	})

	orch := engine.New(engine.Deps{
		Lister:      nasdaq.NewClient(cfg.NasdaqBaseURL, limiter, log),
		Gate:        staleness.NewGate(st, cfg.AnalysisInterval(), log),
		Coordinator: coord,
		Store:       st,
		Cache:       resultCache,
	}, engine.Config{
		CycleInterval: cfg.AnalysisInterval(),
		Logger:        log,
	})

	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	return &app{
		cfg:    cfg,
		log:    log,
		store:  st,
		cache:  resultCache,
		coord:  coord,
		engine: orch,
		router: api.NewRouter(api.NewHandler(st, resultCache, orch, chart, log)),
	}, nil
}

// serve warms the cache, then runs the refresh loop and the HTTP server until
// ctx is cancelled or the server fails.
func (a *app) serve(ctx context.Context) error {
	if n, err := a.engine.LoadExisting(ctx); err != nil {
		a.log.Warn("starting with a cold cache", "error", err)
	} else if n == 0 {
		a.log.Info("no stored analyses yet")
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.engine.Start(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// probe runs one blocking batch over n well-known symbols and logs the
// report. It is used to tune concurrency and delay against the live upstream.
func (a *app) probe(ctx context.Context, n int) *coordinator.Report {
	symbols := engine.FallbackSymbols[:min(n, len(engine.FallbackSymbols))]
	a.log.Info("starting rate limit probe",
		"symbols", len(symbols),
		"concurrency", a.cfg.FetchConcurrency,
		"delay", a.cfg.FetchDelay())

	report := a.coord.Run(ctx, symbols)

	a.log.Info("probe complete",
		"source", report.Source,
		"total", report.Total(),
		"successful", len(report.Successful),
		"failed", len(report.Failed),
		"rate_limited", report.RateLimitErrors,
		"success_rate", fmt.Sprintf("%.2f%%", report.SuccessRate()),
		"rate_limit_rate", fmt.Sprintf("%.2f%%", report.RateLimitRate()),
		"duration", report.Duration,
		"avg_per_request", report.AvgPerRequest(),
		"peak_in_flight", a.coord.Peak())
	return report
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		a.log.Warn("closing store", "error", err)
	}
}
