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

	natsadapter "github.com/samirrijal/turfgrid/internal/adapters/nats"
	"github.com/samirrijal/turfgrid/internal/adapters/postgres"
	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/pkg/config"
	"github.com/samirrijal/turfgrid/internal/pkg/logging"
	"github.com/samirrijal/turfgrid/internal/pkg/metrics"
)

const (
	batchSize     = 500
	flushInterval = 2 * time.Second
)

func main() {
	cfg, err := config.Load("turfgrid-positiond")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("turfgrid-positiond", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	repo := postgres.NewPositionRepo(db)

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	// Positions ack on enqueue; the flush to the hypertable is best-effort.
	buf := make(chan domain.PlayerPosition, 4*batchSize)
	err = sub.SubscribePositions(ctx, func(ctx context.Context, pos *domain.PlayerPosition) error {
		select {
		case buf <- *pos:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		log.Fatalf("subscribe positions: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		batch := make([]domain.PlayerPosition, 0, batchSize)
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			start := time.Now()
			if err := repo.InsertBatch(context.Background(), batch); err != nil {
				slog.Error("flush positions", "count", len(batch), "error", err)
			} else {
				metrics.PositionBatchFlushDuration.Observe(time.Since(start).Seconds())
				metrics.PositionsIngested.WithLabelValues("stream").Add(float64(len(batch)))
			}
			batch = batch[:0]
		}

		for {
			select {
			case pos := <-buf:
				batch = append(batch, pos)
				if len(batch) >= batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				// Drain whatever is still buffered before exiting.
				for {
					select {
					case pos := <-buf:
						batch = append(batch, pos)
					default:
						flush()
						return
					}
				}
			}
		}
	}()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "TurfGrid Position Consumer",
	})
	app.Get("/metrics", metrics.Handler())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": "turfgrid-positiond"})
	})
	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
			slog.Error("metrics listener", "error", err)
		}
	}()

	slog.Info("positiond started", "batch_size", batchSize, "flush_interval", flushInterval.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()
	<-done
	_ = app.Shutdown()
}
