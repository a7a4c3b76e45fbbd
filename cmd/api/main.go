package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/turfgrid/internal/adapters/firestore"
	"github.com/samirrijal/turfgrid/internal/adapters/http"
	natsadapter "github.com/samirrijal/turfgrid/internal/adapters/nats"
	"github.com/samirrijal/turfgrid/internal/adapters/postgres"
	"github.com/samirrijal/turfgrid/internal/adapters/valkey"
	"github.com/samirrijal/turfgrid/internal/core/arbiter"
	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/core/usecases"
	"github.com/samirrijal/turfgrid/internal/pkg/config"
	"github.com/samirrijal/turfgrid/internal/pkg/logging"
	"github.com/samirrijal/turfgrid/internal/pkg/metrics"
	"github.com/samirrijal/turfgrid/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("turfgrid-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("turfgrid-api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, running uncached", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS
	var pub ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, events will not fan out", "error", err)
	} else {
		defer nc.Close()
		pub = nc
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Ownership lives behind the driver switch; players, ledger and
	// positions always stay in postgres.
	var ownership ports.OwnershipStore
	switch cfg.Database.Driver {
	case "firestore":
		fsClient, err := firestore.New(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			log.Fatalf("firestore: %v", err)
		}
		defer fsClient.Close()
		ownership = firestore.NewOwnershipStore(fsClient, cfg.Firestore.Collection)
	default:
		ownership = postgres.NewOwnershipRepo(db)
	}

	playerRepo := postgres.NewPlayerRepo(db)
	ledger := postgres.NewClaimLedgerRepo(db)

	rules := arbiter.Rules{
		OwnershipDuration: time.Duration(cfg.Game.OwnershipHours) * time.Hour,
		GracePeriod:       time.Duration(cfg.Game.GraceMinutes) * time.Minute,
		ClaimXP:           cfg.Game.ClaimXP,
		ClaimGold:         cfg.Game.ClaimGold,
	}
	clock := ports.SystemClock{}
	guard := usecases.NewClaimGuard(time.Duration(cfg.Game.DebounceSeconds) * time.Second)

	// Use cases
	claimSvc := usecases.NewClaimService(rules, ownership, playerRepo, ledger, cacheSvc, pub, clock, guard)
	territorySvc := usecases.NewTerritoryService(rules, ownership, playerRepo, ledger, cacheSvc, clock, cfg.Game.MaxMapRadiusMeters)
	positionSvc := usecases.NewPositionService(playerRepo, pub, clock, cfg.Game.MaxSpeedMS)

	deps := &http.Dependencies{
		Claims:    claimSvc,
		Territory: territorySvc,
		Positions: positionSvc,
		Players:   playerRepo,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "TurfGrid API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.turfgrid.app",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Player-ID, X-Player-Name",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Pool gauge refresh for the dashboard
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
