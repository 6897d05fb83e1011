// Package main is the entrypoint for the print server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frontier-design/projectory-web-to-print/internal/api"
	"github.com/frontier-design/projectory-web-to-print/internal/api/handler"
	mw "github.com/frontier-design/projectory-web-to-print/internal/api/middleware"
	"github.com/frontier-design/projectory-web-to-print/internal/cache"
	"github.com/frontier-design/projectory-web-to-print/internal/config"
	"github.com/frontier-design/projectory-web-to-print/internal/imagegen"
	"github.com/frontier-design/projectory-web-to-print/internal/notify"
	"github.com/frontier-design/projectory-web-to-print/internal/pipeline"
	"github.com/frontier-design/projectory-web-to-print/internal/progress"
	"github.com/frontier-design/projectory-web-to-print/internal/render"
	"github.com/frontier-design/projectory-web-to-print/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	testSSEInterval = time.Second
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg))
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"batch_size", cfg.Pipeline.BatchSize,
		"progress_backend", cfg.Progress.Backend,
		"images_enabled", cfg.ImageAugmentationEnabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := map[string]handler.Pinger{}

	// 2. Optional Redis: image cache, rate limiting, progress fan-out
	var (
		redisCache  *cache.RedisCache
		sharedCache cache.Cache
	)
	if cfg.Redis.URL != "" {
		redisCache, err = cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		sharedCache = redisCache
		ready["redis"] = redisCache
		slog.Info("redis connected")
	}

	// 3. Optional Postgres: job history and API keys
	var pgStore *store.PostgresStore
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		pgStore = store.NewPostgresStore(pool)
		ready["database"] = pgStore
	}

	// 4. Optional Kafka outcome publisher
	var publisher notify.Publisher = notify.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.Kafka)
		defer kp.Close()
		publisher = kp
		slog.Info("kafka publisher enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// 5. Job pipeline
	registry := newRegistry(cfg.Progress.Backend, redisCache)
	if rr, ok := registry.(*progress.RedisRegistry); ok {
		defer rr.Close()
	}
	loader := render.NewLoader(cfg.Assets.StylesPath, cfg.Assets.Dir)
	images := imagegen.NewAugmenter(cfg.Gemini, sharedCache)
	engine := render.NewChromeEngine(cfg.Pipeline.ChromePath, cfg.Pipeline.PDFTimeout)
	orch := pipeline.New(pipeline.Config{
		BatchSize:      cfg.Pipeline.BatchSize,
		ImageChunkSize: cfg.Pipeline.ImageChunkSize,
		JobTimeout:     cfg.Pipeline.JobTimeout,
	}, engine, loader, images, registry)

	// 6. Build router with dependencies
	genDeps := handler.GenerateDeps{
		Generator:    orch,
		Publisher:    publisher,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		JobTimeout:   cfg.Pipeline.JobTimeout,
	}
	if pgStore != nil {
		genDeps.Jobs = pgStore
	}
	generate, err := handler.NewGenerateHandler(genDeps)
	if err != nil {
		return fmt.Errorf("create generate handler: %w", err)
	}

	deps := api.Dependencies{
		HealthHandler: handler.Health,
		ReadyHandler:  handler.NewReadyHandler(ready),
		DiagnosticsHandler: handler.NewDiagnosticsHandler(handler.DiagnosticsInfo{
			Loader:          loader,
			ImagesEnabled:   images.Enabled(),
			ProgressBackend: cfg.Progress.Backend,
			BatchSize:       orch.BatchSize(),
		}),
		DebugHTMLHandler: handler.NewDebugHTMLHandler(loader),
		GenerateHandler:  generate,
		StatusHandler:    handler.NewStatusHandler(registry, cfg.Server.HeartbeatInterval),
		TestSSEHandler:   handler.NewTestSSEHandler(testSSEInterval),
	}
	if pgStore != nil {
		deps.JobHandler = handler.NewJobHandler(pgStore)
		if cfg.Auth.Enabled {
			deps.Auth = mw.NewAuth(pgStore)
		}
	}
	if sharedCache != nil {
		deps.RateLimit = mw.NewRateLimit(sharedCache, cfg.Redis.RateLimitPerMinute)
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	srv := newHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// newRegistry picks the progress transport. The redis backend needs a
// broker; without one it falls back to memory.
func newRegistry(backend string, broker *cache.RedisCache) progress.Registry {
	if backend == config.ProgressBackendRedis && broker != nil {
		return progress.NewRedisRegistry(broker)
	}
	return progress.NewMemoryRegistry()
}

// newHTTPServer sizes WriteTimeout for a full job. Status streams clear
// their own write deadline.
func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      cfg.Pipeline.JobTimeout + time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
