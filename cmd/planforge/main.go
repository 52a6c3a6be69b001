package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	pfhttp "github.com/planforge/planforge/internal/adapter/http"
	pfmcp "github.com/planforge/planforge/internal/adapter/mcp"
	pfnats "github.com/planforge/planforge/internal/adapter/nats"
	"github.com/planforge/planforge/internal/adapter/postgres"
	"github.com/planforge/planforge/internal/adapter/ristretto"
	"github.com/planforge/planforge/internal/adapter/ws"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/logger"
	"github.com/planforge/planforge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := pfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// In-process cache for statistics
	statsCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer statsCache.Close()

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	snapshots := postgres.NewSnapshotStore(pool)

	planSvc := service.NewPlanService(store)
	versionSvc := service.NewVersionService(store, snapshots)
	statsSvc := service.NewStatsService(store, statsCache, hub, queue, cfg.Cache.StatsTTL)
	phaseSvc := service.NewPhaseService(store, versionSvc, statsSvc, hub, queue)
	entitySvc := service.NewEntityService(store, versionSvc, statsSvc, hub, queue)
	batchSvc := service.NewBatchService(store, phaseSvc, entitySvc, statsSvc, cfg.Limits.MaxBatchOperations)

	// --- HTTP ---
	handlers := &pfhttp.Handlers{
		Plans:    planSvc,
		Phases:   phaseSvc,
		Entities: entitySvc,
		Batches:  batchSvc,
		Versions: versionSvc,
		Stats:    statsSvc,
		Limits:   cfg.Limits,
	}

	r := chi.NewRouter()
	r.Use(pfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(pfhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(cfg, queue))
	r.Get("/ws", hub.HandleWS)
	pfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- MCP ---
	mcpSrv := pfmcp.NewServer(
		pfmcp.ServerConfig{Addr: cfg.MCP.Addr, Name: cfg.MCP.Name, Version: cfg.MCP.Version},
		pfmcp.ServerDeps{
			Plans:    planSvc,
			Phases:   phaseSvc,
			Batches:  batchSvc,
			Versions: versionSvc,
			Stats:    statsSvc,
		},
	)
	if err := mcpSrv.Start(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("mcp shutdown: %w", err))
		}
		if err := queue.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, queue *pfnats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		natsState := "disconnected"
		if queue.IsConnected() {
			natsState = "connected"
		}
		status := healthStatus{
			Status:   "ok",
			Postgres: cfg.Postgres.DSN,
			NATS:     natsState,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
