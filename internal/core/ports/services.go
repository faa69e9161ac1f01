package ports

import (
	"context"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// ParcelLookupService queries the third-party property-records provider for
// the parcel at a point. A missing parcel is reported via HasParcel, not an
// error. Lookups are billable; callers must never retry automatically.
type ParcelLookupService interface {
	Lookup(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error)
}

// ImageryService captures satellite imagery and derived measurements for a
// property.
type ImageryService interface {
	Capture(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// EventPublisher publishes dashboard events to a message broker.
type EventPublisher interface {
	PublishDiscoveryEvent(ctx context.Context, ev *domain.DiscoveryEvent) error
	PublishBoundaryPreview(ctx context.Context, overlayID string, boundary *domain.Polygon) error
}

// StreamHandle is an open subscription to a job's progress events.
// Close releases the underlying channel; it is safe to call more than once.
type StreamHandle interface {
	Close() error
}

// EventSubscriber subscribes to a single job's ordered progress events.
type EventSubscriber interface {
	SubscribeDiscoveryEvents(ctx context.Context, jobID string, handler func(ev *domain.DiscoveryEvent)) (StreamHandle, error)
}

// DiscoveryRunner launches bulk discovery jobs. Start is fire-and-forget;
// progress, if any, arrives through the EventSubscriber. RunSync blocks
// until the job finishes and reports only success or failure.
type DiscoveryRunner interface {
	Start(ctx context.Context, jobID string, req domain.DiscoveryRequest) error
	RunSync(ctx context.Context, jobID string, req domain.DiscoveryRequest) error
}
