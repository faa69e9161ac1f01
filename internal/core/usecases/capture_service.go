package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
	"github.com/avelarde/leadmap/internal/pkg/metrics"
)

// Capture workflow states.
const (
	CaptureStateChoice      = "choice"
	CaptureStateLoading     = "loading_regrid"
	CaptureStateRegridReady = "regrid_ready"
	CaptureStateNoParcel    = "no_parcel"
	CaptureStateCapturing   = "capturing"
	CaptureStateComplete    = "complete"
	CaptureStateError       = "error"
)

// ErrOverlayClosed is returned when an action is invoked on a closed overlay.
var ErrOverlayClosed = errors.New("overlay closed")

// ErrRequestInFlight is returned when a second network action is attempted
// while one is pending. Transitions are strictly sequential per overlay.
var ErrRequestInFlight = errors.New("request already in flight")

// capturePhase is the tagged variant for the workflow state. Exactly one
// variant is live at a time and each carries only the data valid for that
// phase, so combinations like "capturing with an error payload" cannot be
// represented.
type capturePhase interface {
	state() string
}

type phaseChoice struct{}
type phaseLoading struct{}
type phaseRegridReady struct{ parcel *domain.Parcel }
type phaseNoParcel struct{}
type phaseCapturing struct{ parcel *domain.Parcel }
type phaseComplete struct{ result *domain.CaptureResult }
type phaseError struct{ message string }

func (phaseChoice) state() string      { return CaptureStateChoice }
func (phaseLoading) state() string     { return CaptureStateLoading }
func (phaseRegridReady) state() string { return CaptureStateRegridReady }
func (phaseNoParcel) state() string    { return CaptureStateNoParcel }
func (phaseCapturing) state() string   { return CaptureStateCapturing }
func (phaseComplete) state() string    { return CaptureStateComplete }
func (phaseError) state() string       { return CaptureStateError }

// CaptureSnapshot is the read-only view of an overlay published to the
// coordinator and rendered by the map overlay widget.
type CaptureSnapshot struct {
	OverlayID string                `json:"overlay_id"`
	State     string                `json:"state"`
	Location  domain.GeoPoint       `json:"location"`
	Parcel    *domain.Parcel        `json:"parcel,omitempty"`
	Result    *domain.CaptureResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// CaptureService runs the per-click single-property workflow: parcel lookup,
// user-confirmed imagery capture, persistence.
type CaptureService struct {
	lookup     ports.ParcelLookupService
	imagery    ports.ImageryService
	properties ports.PropertyRepository
	deals      *DealService
	publisher  ports.EventPublisher
	usage      ports.UsageRepository
}

// NewCaptureService creates a new CaptureService.
func NewCaptureService(
	lookup ports.ParcelLookupService,
	imagery ports.ImageryService,
	properties ports.PropertyRepository,
	deals *DealService,
	publisher ports.EventPublisher,
	usage ports.UsageRepository,
) *CaptureService {
	return &CaptureService{
		lookup:     lookup,
		imagery:    imagery,
		properties: properties,
		deals:      deals,
		publisher:  publisher,
		usage:      usage,
	}
}

// Open creates a fresh overlay instance anchored at a click location. The
// caller owns the instance and must Close it; replacing it with a new click
// is the only way the anchor ever changes.
func (s *CaptureService) Open(p domain.GeoPoint) (*Overlay, error) {
	if !p.Valid() {
		// The map control constrains coordinates, so this is not expected
		// to fire outside of tests.
		return nil, fmt.Errorf("invalid click location %.5f,%.5f", p.Lat, p.Lng)
	}
	return &Overlay{
		id:       newOverlayID(),
		location: p,
		svc:      s,
		phase:    phaseChoice{},
	}, nil
}

// Overlay is one live capture workflow anchored at a click location.
type Overlay struct {
	id       string
	location domain.GeoPoint
	svc      *CaptureService

	mu       sync.Mutex
	phase    capturePhase
	closed   bool
	inFlight bool
}

// ID returns the overlay's identity, used to tag side-channel events.
func (o *Overlay) ID() string { return o.id }

// Snapshot returns the current read-only view of the workflow.
func (o *Overlay) Snapshot() CaptureSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Analyze runs the parcel lookup: choice → loading_regrid, then exactly one
// of regrid_ready, no_parcel, or error. The lookup is billable, so failures
// never retry without an explicit user action.
func (o *Overlay) Analyze(ctx context.Context) (CaptureSnapshot, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return CaptureSnapshot{}, ErrOverlayClosed
	}
	if o.inFlight {
		o.mu.Unlock()
		return CaptureSnapshot{}, ErrRequestInFlight
	}
	if _, ok := o.phase.(phaseChoice); !ok {
		state := o.phase.state()
		o.mu.Unlock()
		return CaptureSnapshot{}, fmt.Errorf("analyze not allowed in state %s", state)
	}
	o.phase = phaseLoading{}
	o.inFlight = true
	loc := o.location
	o.mu.Unlock()

	result, err := o.svc.lookup.Lookup(ctx, loc)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false

	// The overlay may have been closed while the request was in flight.
	// A response for a dead overlay must not mutate anything.
	if o.closed {
		return CaptureSnapshot{}, ErrOverlayClosed
	}

	switch {
	case err != nil:
		metrics.ParcelLookups.WithLabelValues("error").Inc()
		o.phase = phaseError{message: failureMessage(err, "Parcel lookup failed. Please try again.")}
	case !result.HasParcel || result.Parcel == nil || result.Parcel.Boundary.Empty():
		metrics.ParcelLookups.WithLabelValues("no_parcel").Inc()
		o.phase = phaseNoParcel{}
	default:
		metrics.ParcelLookups.WithLabelValues("found").Inc()
		o.phase = phaseRegridReady{parcel: result.Parcel}
		// Boundary preview is a side channel independent of workflow state.
		_ = o.svc.publisher.PublishBoundaryPreview(ctx, o.id, result.Parcel.Boundary)
	}

	if o.svc.usage != nil {
		_ = o.svc.usage.Record(ctx, "parcel_lookup")
	}

	return o.snapshotLocked(), nil
}

// Confirm runs the imagery capture: regrid_ready → capturing, then exactly
// one of complete or error. On success the property is persisted and the
// deal query cache is invalidated so the next rendered list includes it.
func (o *Overlay) Confirm(ctx context.Context, zoom int) (CaptureSnapshot, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return CaptureSnapshot{}, ErrOverlayClosed
	}
	if o.inFlight {
		o.mu.Unlock()
		return CaptureSnapshot{}, ErrRequestInFlight
	}
	ready, ok := o.phase.(phaseRegridReady)
	if !ok {
		state := o.phase.state()
		o.mu.Unlock()
		return CaptureSnapshot{}, fmt.Errorf("capture not allowed in state %s", state)
	}
	o.phase = phaseCapturing{parcel: ready.parcel}
	o.inFlight = true
	loc := o.location
	o.mu.Unlock()

	result, err := o.svc.imagery.Capture(ctx, domain.CaptureRequest{
		Location: loc,
		Address:  ready.parcel.Address,
		Zoom:     zoom,
	})

	var persistErr error
	if err == nil {
		deal := &domain.Deal{
			ID:                     result.PropertyID,
			Status:                 domain.StatusPending,
			Address:                ready.parcel.Address,
			Location:               loc,
			RegridOwner:            ready.parcel.Owner,
			PropertyBoundarySource: ready.parcel.Source,
			DiscoverySource:        "map_click",
		}
		persistErr = o.svc.properties.Create(ctx, deal, result)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight = false

	if o.closed {
		// Never apply a stale result, and never leak a cache invalidation
		// for a workflow that will not reach complete.
		return CaptureSnapshot{}, ErrOverlayClosed
	}

	switch {
	case err != nil:
		metrics.Captures.WithLabelValues("error").Inc()
		o.phase = phaseError{message: failureMessage(err, "Imagery capture failed. Please try again.")}
	case persistErr != nil:
		metrics.Captures.WithLabelValues("error").Inc()
		o.phase = phaseError{message: failureMessage(persistErr, "Could not save the captured property.")}
	default:
		metrics.Captures.WithLabelValues("complete").Inc()
		o.phase = phaseComplete{result: result}
		o.svc.deals.Invalidate(ctx)
		if o.svc.usage != nil {
			_ = o.svc.usage.Record(ctx, "capture")
		}
	}

	return o.snapshotLocked(), nil
}

// Retry returns the workflow to choice from no_parcel or error, discarding
// any lookup or capture payloads. The click location is kept.
func (o *Overlay) Retry() (CaptureSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return CaptureSnapshot{}, ErrOverlayClosed
	}
	switch o.phase.(type) {
	case phaseNoParcel, phaseError:
		o.phase = phaseChoice{}
	default:
		return CaptureSnapshot{}, fmt.Errorf("retry not allowed in state %s", o.phase.state())
	}
	return o.snapshotLocked(), nil
}

// Close destroys the overlay. Safe to call while a request is in flight:
// the response is dropped when it arrives. Safe to call twice.
func (o *Overlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}

// Closed reports whether the overlay has been destroyed.
func (o *Overlay) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Overlay) snapshotLocked() CaptureSnapshot {
	snap := CaptureSnapshot{
		OverlayID: o.id,
		State:     o.phase.state(),
		Location:  o.location,
	}
	switch p := o.phase.(type) {
	case phaseRegridReady:
		snap.Parcel = p.parcel
	case phaseCapturing:
		snap.Parcel = p.parcel
	case phaseComplete:
		snap.Result = p.result
	case phaseError:
		snap.Error = p.message
	}
	return snap
}

// failureMessage extracts a human-readable message from a provider error,
// falling back to a generic one.
func failureMessage(err error, fallback string) string {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return fallback
}

func newOverlayID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "overlay-fallback"
	}
	return "ov-" + hex.EncodeToString(b)
}
