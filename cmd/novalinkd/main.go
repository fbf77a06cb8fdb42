// Command novalinkd runs the NovaLink dashboard server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	nlhttp "github.com/Strob0t/NovaLink/internal/adapter/http"
	"github.com/Strob0t/NovaLink/internal/adapter/memory"
	nlnats "github.com/Strob0t/NovaLink/internal/adapter/nats"
	nlotel "github.com/Strob0t/NovaLink/internal/adapter/otel"
	"github.com/Strob0t/NovaLink/internal/adapter/postgres"
	"github.com/Strob0t/NovaLink/internal/adapter/ristretto"
	"github.com/Strob0t/NovaLink/internal/adapter/ws"
	"github.com/Strob0t/NovaLink/internal/config"
	"github.com/Strob0t/NovaLink/internal/logger"
	"github.com/Strob0t/NovaLink/internal/middleware"
	"github.com/Strob0t/NovaLink/internal/port/broadcast"
	"github.com/Strob0t/NovaLink/internal/port/database"
	"github.com/Strob0t/NovaLink/internal/service"
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
		"store_driver", cfg.Store.Driver,
		"nats_enabled", cfg.NATS.Enabled,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := nlotel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	metrics, err := nlotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Store ---
	var store database.Store
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		store = postgres.NewStore(pool)
	case "memory":
		store = memory.NewStore()
		slog.Info("using in-memory store")
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if err := service.Seed(ctx, store); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	// --- Services ---
	sessions := service.NewSessionService(store, cfg.Auth.SessionTTL, cfg.Auth.BcryptCost)
	snapshots := service.NewSnapshotService(store, cfg.Sim.Seed)
	hub := ws.NewHub(sessions, snapshots, cfg.Broadcast.WelcomeDelay)
	hub.SetConnectionGauge(metrics.ConnectionsActive)

	// NATS relays broadcasts between instances; without it the local
	// hub is the whole fan-out.
	var broadcaster broadcast.Broadcaster = hub
	if cfg.NATS.Enabled {
		queue, err := nlnats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()

		relay, err := nlnats.NewRelay(ctx, queue, hub)
		if err != nil {
			return fmt.Errorf("nats relay: %w", err)
		}
		defer relay.Close()
		broadcaster = relay
		slog.Info("nats relay connected", "url", cfg.NATS.URL)
	}

	publisher := service.NewPublisher(snapshots, broadcaster, metrics)
	commands := service.NewCommandService(store, publisher, metrics, cfg.Broadcast.FollowUpDelay)
	defer commands.Close()
	hub.SetCommandSink(commands)

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	sessions.StartCleanup(cleanupCtx, time.Hour)

	// --- HTTP ---
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	handlers := nlhttp.NewHandlers(store, sessions, commands, publisher, cache, cfg.Cache.TTL)

	r := chi.NewRouter()
	r.Use(nlhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(nlhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(nlotel.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", healthHandler(cfg))
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(middleware.Auth(sessions))
		nlhttp.MountRoutes(r, handlers)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports liveness and which backends are configured.
func healthHandler(cfg *config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status string `json:"status"`
		Store  string `json:"store"`
		NATS   bool   `json:"nats"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status: "ok",
			Store:  cfg.Store.Driver,
			NATS:   cfg.NATS.Enabled,
		})
	}
}
