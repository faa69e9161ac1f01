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
	"go.temporal.io/sdk/client"

	"github.com/avelarde/leadmap/internal/adapters/http"
	"github.com/avelarde/leadmap/internal/adapters/imagery"
	natsadapter "github.com/avelarde/leadmap/internal/adapters/nats"
	"github.com/avelarde/leadmap/internal/adapters/postgres"
	"github.com/avelarde/leadmap/internal/adapters/regrid"
	temporaladapter "github.com/avelarde/leadmap/internal/adapters/temporal"
	"github.com/avelarde/leadmap/internal/adapters/valkey"
	"github.com/avelarde/leadmap/internal/core/usecases"
	"github.com/avelarde/leadmap/internal/pkg/config"
	"github.com/avelarde/leadmap/internal/pkg/logging"
	"github.com/avelarde/leadmap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("leadmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), 50)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolMetrics(ctx, 15*time.Second)

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
	}

	// NATS
	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer publisher.Close()
	}
	subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats subscriber unavailable", "error", err)
	} else {
		defer subscriber.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Temporal (bulk discovery jobs)
	temporalClient, err := client.Dial(client.Options{HostPort: cfg.Temporal.HostPort})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer temporalClient.Close()
	runner := temporaladapter.NewRunner(temporalClient, cfg.Temporal.TaskQueue)

	// Providers
	parcels := regrid.New(cfg.Regrid.BaseURL, cfg.Regrid.APIKey, cfg.Regrid.TimeoutSeconds)
	captures := imagery.New(cfg.Imagery.BaseURL, cfg.Imagery.APIKey, cfg.Imagery.DefaultZoom, cfg.Imagery.TimeoutSeconds)

	// Repos
	dealRepo := postgres.NewDealRepo(db)
	propertyRepo := postgres.NewPropertyRepo(db)
	usageRepo := postgres.NewUsageRepo(db)

	// Use cases
	dealSvc := usecases.NewDealService(dealRepo, cache)
	captureSvc := usecases.NewCaptureService(parcels, captures, propertyRepo, dealSvc, publisher, usageRepo)
	discoverySvc := usecases.NewDiscoveryService(runner, subscriber, usageRepo)
	dashboardSvc := usecases.NewDashboardService(dealSvc, captureSvc, discoverySvc, cfg.Server.ViewportQuietMillis)
	usageSvc := usecases.NewUsageService(usageRepo, cache)

	deps := &http.Dependencies{
		Deals:      dealSvc,
		Capture:    captureSvc,
		Discovery:  discoverySvc,
		Dashboard:  dashboardSvc,
		Usage:      usageSvc,
		Subscriber: subscriber,
		NATS:       natsConn,
		DB:         db,
		Cache:      cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "LeadMap API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.leadmap.app",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

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
