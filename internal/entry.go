// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/macrolog/internal/api"
	"github.com/starford/macrolog/internal/budget"
	"github.com/starford/macrolog/internal/cache"
	"github.com/starford/macrolog/internal/catalog"
	"github.com/starford/macrolog/internal/confidence"
	"github.com/starford/macrolog/internal/gateway"
	"github.com/starford/macrolog/internal/janitor"
	"github.com/starford/macrolog/internal/mcpserver"
	"github.com/starford/macrolog/internal/meallog"
	"github.com/starford/macrolog/internal/pipeline"
	"github.com/starford/macrolog/internal/provider"
	"github.com/starford/macrolog/internal/sse"
	"github.com/starford/macrolog/internal/store"
)

// components are the wired services shared by the HTTP and MCP entry points.
type components struct {
	db       *store.DB
	catalog  *catalog.Holder
	broker   *sse.Broker
	pipeline *pipeline.Pipeline
	closers  []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// build opens storage and wires the pipeline.
func build(ctx context.Context, cfg *Config, logger *slog.Logger) (*components, error) {
	c := &components{}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	c.db = db
	c.closers = append(c.closers, db.Close)

	foods, err := store.DefaultGenericFoods()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("load generic foods: %w", err)
	}
	if n, err := db.SeedGenericFoods(ctx, foods); err != nil {
		c.Close()
		return nil, fmt.Errorf("seed generic foods: %w", err)
	} else if n > 0 {
		logger.Info("Generic foods seeded", slog.Int("count", n))
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	c.catalog = catalog.NewHolder(cat)

	persistent, err := persistentCache(ctx, cfg, db)
	if err != nil {
		c.Close()
		return nil, err
	}
	if closer, ok := persistent.(io.Closer); ok {
		c.closers = append(c.closers, closer.Close)
	}

	providers := []provider.Provider{
		provider.NewBrand(c.catalog, db, cfg.Pipeline.DefaultCountry),
		provider.NewGeneric(db, db, cfg.Pipeline.DefaultCountry),
	}
	var extractor pipeline.Extractor
	if cfg.Gateway.Enabled() {
		gw := gateway.New(gateway.Options{
			URL:     cfg.Gateway.URL,
			APIKey:  cfg.Gateway.APIKey,
			Model:   cfg.Gateway.Model,
			Timeout: cfg.Gateway.Timeout,
		})
		extractor = gw
		providers = append(providers, provider.NewEstimate(gw, cache.NewMemory(), persistent, cfg.Cache.TTL, logger))
	} else {
		logger.Warn("No gateway configured; using the naive parser and skipping estimates")
	}

	c.broker = sse.NewBroker(cfg.Budget.SSEThrottle)
	c.closers = append(c.closers, func() error { c.broker.Close(); return nil })

	c.pipeline = pipeline.New(pipeline.Deps{
		Extractor: extractor,
		Catalog:   c.catalog,
		Resolver:  provider.NewResolver(providers, cfg.Pipeline.ProviderTimeout, logger),
		Gate:      confidence.New(cfg.Confidence.Gate()),
		Meals:     meallog.New(db, logger),
		Budgeter:  budget.New(db, cfg.Budget.FallbackKcal, logger),
		Store:     db,
		Notifier:  c.broker,
		Logger:    logger,
	}, pipeline.Config{
		Concurrency:          cfg.Pipeline.Concurrency,
		NaiveSplitConfidence: cfg.Pipeline.NaiveSplitConfidence,
		BrandHints:           cfg.Pipeline.BrandHints,
	})
	return c, nil
}

func persistentCache(ctx context.Context, cfg *Config, db *store.DB) (cache.Cache, error) {
	if cfg.Cache.Backend == CacheBackendRedis {
		rc, err := cache.DialRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		return rc, nil
	}
	return cache.NewStore(db), nil
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("cache_backend", cfg.Cache.Backend),
		slog.Bool("gateway", cfg.Gateway.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	apiRouter := api.NewRouter(c.pipeline, c.db, c.broker, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the brand catalog when its file changes.
	if cfg.Catalog.Watch {
		g.Go(func() error {
			return catalog.Watch(gCtx, cfg.Catalog.Path, c.catalog, logger, nil)
		})
	}

	// Purge expired estimates.
	if cfg.Cache.Backend == CacheBackendSQLite {
		g.Go(func() error {
			return janitor.New(c.db, cfg.Janitor.Schedule, logger).Run(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close SSE streams first so Shutdown does not wait on them.
		c.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so background jobs stop with the
// server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the meal tools over stdio. Logs go to stderr because stdout
// carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(c.pipeline, app.version).ServeStdio()
}
