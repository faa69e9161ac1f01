package http

import (
	"github.com/nats-io/nats.go"

	natsadapter "github.com/avelarde/leadmap/internal/adapters/nats"
	"github.com/avelarde/leadmap/internal/adapters/postgres"
	"github.com/avelarde/leadmap/internal/adapters/valkey"
	"github.com/avelarde/leadmap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Deals      *usecases.DealService
	Capture    *usecases.CaptureService
	Discovery  *usecases.DiscoveryService
	Dashboard  *usecases.DashboardService
	Usage      *usecases.UsageService
	Subscriber *natsadapter.Subscriber
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
}
