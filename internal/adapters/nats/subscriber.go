package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
	"github.com/nats-io/nats.go"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeDiscoveryEvents opens an ordered per-job subscription. The ordered
// consumer guarantees in-order delivery from sequence 1, so a subscriber that
// attaches before the job launches never misses the first event. Malformed
// payloads are skipped; the counter monotonicity check downstream absorbs any
// redelivery the transport produces.
func (s *Subscriber) SubscribeDiscoveryEvents(ctx context.Context, jobID string, handler func(ev *domain.DiscoveryEvent)) (ports.StreamHandle, error) {
	sub, err := s.js.Subscribe(discoverySubjectPrefix+jobID, func(msg *nats.Msg) {
		var ev domain.DiscoveryEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(&ev)
	},
		nats.OrderedConsumer(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s%s: %w", discoverySubjectPrefix, jobID, err)
	}
	return &streamHandle{sub: sub}, nil
}

// SubscribeBoundaryPreviews relays parcel boundary previews for one overlay.
// Plain core NATS: previews are ephemeral and only the live overlay cares.
func (s *Subscriber) SubscribeBoundaryPreviews(overlayID string, handler func(boundary *domain.Polygon)) (ports.StreamHandle, error) {
	sub, err := s.conn.Subscribe(boundarySubjectPrefix+overlayID, func(msg *nats.Msg) {
		var boundary domain.Polygon
		if err := json.Unmarshal(msg.Data, &boundary); err != nil {
			return
		}
		handler(&boundary)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s%s: %w", boundarySubjectPrefix, overlayID, err)
	}
	return &streamHandle{sub: sub}, nil
}

// Close drains the connection.
func (s *Subscriber) Close() {
	_ = s.conn.Drain()
}

// streamHandle wraps one subscription; Close is idempotent.
type streamHandle struct {
	sub *nats.Subscription
}

func (h *streamHandle) Close() error {
	if !h.sub.IsValid() {
		return nil
	}
	return h.sub.Unsubscribe()
}
