package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/nats-io/nats.go"
)

// Subject layout. Discovery progress rides JetStream so a consumer that
// connects mid-job still sees ordered events; boundary previews are
// fire-and-forget core NATS because a preview for a dead overlay is useless.
const (
	discoverySubjectPrefix = "leads.discovery."
	boundarySubjectPrefix  = "leads.boundary."
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "LEAD_DISCOVERY",
			Subjects:  []string{"leads.discovery.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist — try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishDiscoveryEvent(ctx context.Context, ev *domain.DiscoveryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(discoverySubjectPrefix+ev.JobID, data)
	return err
}

func (p *Publisher) PublishBoundaryPreview(ctx context.Context, overlayID string, boundary *domain.Polygon) error {
	data, err := json.Marshal(boundary)
	if err != nil {
		return err
	}
	return p.conn.Publish(boundarySubjectPrefix+overlayID, data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
