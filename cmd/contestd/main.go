package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/turfgrid/internal/adapters/firestore"
	natsadapter "github.com/samirrijal/turfgrid/internal/adapters/nats"
	"github.com/samirrijal/turfgrid/internal/adapters/postgres"
	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/pkg/config"
	"github.com/samirrijal/turfgrid/internal/pkg/logging"
	"github.com/samirrijal/turfgrid/internal/workflows"
)

func main() {
	cfg, err := config.Load("turfgrid-contestd")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("turfgrid-contestd", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// The resolver must read and write the same ownership store as the API.
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

	// NATS: publisher for broadcasts, subscriber for contest openings
	var pub ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats publisher unavailable", "error", err)
	} else {
		defer nc.Close()
		pub = nc
	}

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	// Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ContestWorkflow)
	w.RegisterActivity(&workflows.ContestActivities{
		Ownership: ownership,
		Publisher: pub,
		Clock:     ports.SystemClock{},
	})

	// Every opened contest starts one resolution workflow. The workflow id
	// pins cell and opening time so redeliveries do not double-resolve.
	err = sub.SubscribeContests(ctx, func(ctx context.Context, event *domain.ContestEvent) error {
		opts := client.StartWorkflowOptions{
			ID:        fmt.Sprintf("contest-%s-%d", event.CellID, event.OpenedAt.Unix()),
			TaskQueue: cfg.Temporal.TaskQueue,
		}
		input := workflows.ContestInput{
			CellID:     event.CellID,
			AttackerID: event.AttackerID,
			DefenderID: event.DefenderID,
			OpenedAt:   event.OpenedAt,
			Deadline:   event.Deadline,
		}
		if _, err := c.ExecuteWorkflow(ctx, opts, workflows.ContestWorkflow, input); err != nil {
			// Redelivered contest event; the workflow is already running.
			var started *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(err, &started) {
				return nil
			}
			slog.Error("start contest workflow", "cell", event.CellID, "error", err)
			return err
		}
		slog.Info("contest workflow started", "cell", event.CellID, "attacker", event.AttackerID, "deadline", event.Deadline)
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe contests: %v", err)
	}

	slog.Info("contestd worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
