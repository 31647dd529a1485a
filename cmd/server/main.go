package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"acadium-backend/internal/catalog"
	"acadium-backend/internal/config"
	"acadium-backend/internal/database"
	"acadium-backend/internal/events"
	"acadium-backend/internal/handlers"
	"acadium-backend/internal/logger"
	"acadium-backend/internal/middleware"
	"acadium-backend/internal/progress"
	"acadium-backend/internal/repository"
	"acadium-backend/internal/router"
	"acadium-backend/internal/services"
	"acadium-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

// run owns every resource it opens, so its deferred closers run on all
// return paths.
func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting acadium backend", "env", cfg.Env, "storage", cfg.StorageDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Load Catalog ────
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("catalog load failed: %w", err)
	}
	log.Info("catalog loaded", "tools", len(cat.Tools))

	// ──── Step 3: Open Storage ────
	repo, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("storage initialization failed (%s): %w", cfg.StorageDriver, err)
	}
	defer closeStorage()

	// ──── Step 4: Progress Notifications ────
	bus, closeBus, err := openBus(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("event bus initialization failed: %w", err)
	}
	defer closeBus()

	// ──── Initialize Services & Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	progressService := services.NewProgressService(repo, cat, bus, log)

	progressHandler := handlers.NewProgressHandler(progressService, log)
	functionHandler := handlers.NewFunctionHandler(progressService, jwtAuth, log)
	catalogHandler := handlers.NewCatalogHandler(cat)
	writeLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(bus, jwtAuth, log)
	defer wsHub.Close()

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		progressHandler,
		functionHandler,
		catalogHandler,
		writeLimiter,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("acadium backend ready",
			"api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
			"function", fmt.Sprintf("http://localhost:%s/functions/v1/update-progress", cfg.Port),
			"ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		writeLimiter.Run(gctx.Done())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (progress.Repository, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageDriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := database.InitSQLiteSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("sqlite ready", "path", cfg.SQLitePath)
		return repository.NewSQLiteProgressRepo(db), func() { db.Close() }, nil

	default:
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("postgres connected")

		if cfg.MigrationsEnabled {
			applied, err := database.RunMigrations(ctx, pool, log)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			log.Info("database migrations applied", "count", applied)
		}
		return repository.NewProgressRepo(pool), pool.Close, nil
	}
}

// openBus uses Redis pub/sub when REDIS_URL is set so several server
// processes share notifications, and an in-process bus otherwise.
func openBus(ctx context.Context, cfg *config.Config, log *logger.Logger) (events.Bus, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("using in-process progress bus")
		bus := events.NewLocalBus()
		return bus, func() { bus.Close() }, nil
	}

	clients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("redis connected")
	bus := events.NewRedisBus(clients.Publish, clients.PubSub, log)
	return bus, func() {
		bus.Close()
		clients.Close()
	}, nil
}
