package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/avelarde/leadmap/internal/adapters/nats"
	"github.com/avelarde/leadmap/internal/adapters/postgres"
	"github.com/avelarde/leadmap/internal/adapters/regrid"
	"github.com/avelarde/leadmap/internal/pkg/config"
	"github.com/avelarde/leadmap/internal/pkg/logging"
	"github.com/avelarde/leadmap/internal/workflows"
)

func main() {
	cfg, err := config.Load("leadmap-discovery")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 10)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer publisher.Close()

	parcels := regrid.New(cfg.Regrid.BaseURL, cfg.Regrid.APIKey, cfg.Regrid.TimeoutSeconds)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.DiscoveryWorkflow)
	w.RegisterActivity(&workflows.DiscoveryActivities{
		Pool:      db.Pool,
		Parcels:   parcels,
		Deals:     postgres.NewDealRepo(db),
		Publisher: publisher,
		Usage:     postgres.NewUsageRepo(db),
	})

	slog.Info("discovery worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
