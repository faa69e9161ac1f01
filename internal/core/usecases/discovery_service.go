package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
	"github.com/avelarde/leadmap/internal/pkg/metrics"
)

// ErrStreamActive is returned when a second discovery job is started while
// one is already streaming. At most one active stream per consumer.
var ErrStreamActive = errors.New("a discovery stream is already active")

// defaultIdleTimeout marks a stream stalled when no event arrives for this
// long. The transport does not guarantee a terminal event on every path
// (network drop, backend timeout), so a silent stall is surfaced instead of
// waiting forever. A stalled stream is still recoverable only by an
// explicit user restart.
const defaultIdleTimeout = 5 * time.Minute

// DiscoveryService manages bulk area-discovery jobs: a long-lived
// cancellable streaming path with incremental progress, and a plain
// request/response fallback for job variants that do not need progressive
// feedback. The two paths are mutually exclusive per submission.
type DiscoveryService struct {
	runner     ports.DiscoveryRunner
	subscriber ports.EventSubscriber
	usage      ports.UsageRepository

	idleTimeout time.Duration

	mu       sync.Mutex
	active   bool
	jobID    string
	handle   ports.StreamHandle
	idle     *time.Timer
	progress domain.DiscoveryProgress
}

// NewDiscoveryService creates a new DiscoveryService.
func NewDiscoveryService(runner ports.DiscoveryRunner, subscriber ports.EventSubscriber, usage ports.UsageRepository) *DiscoveryService {
	return &DiscoveryService{
		runner:      runner,
		subscriber:  subscriber,
		usage:       usage,
		idleTimeout: defaultIdleTimeout,
	}
}

// Start submits a discovery job. Streaming mode opens the progress channel
// before launching the job so no early event is missed; sync mode blocks
// until the job finishes and reports only success or failure.
func (s *DiscoveryService) Start(ctx context.Context, req domain.DiscoveryRequest) (*domain.DiscoveryAck, error) {
	if err := validateDiscoveryRequest(req); err != nil {
		return nil, err
	}

	if req.Mode == domain.DiscoveryModeSync {
		jobID := newJobID()
		metrics.DiscoveryJobs.WithLabelValues(domain.DiscoveryModeSync).Inc()
		if s.usage != nil {
			_ = s.usage.Record(ctx, "discovery_job")
		}
		if err := s.runner.RunSync(ctx, jobID, req); err != nil {
			return nil, fmt.Errorf("run discovery job: %w", err)
		}
		return &domain.DiscoveryAck{JobID: jobID, Mode: req.Mode}, nil
	}

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil, ErrStreamActive
	}
	jobID := newJobID()
	s.active = true
	s.jobID = jobID
	s.progress = domain.DiscoveryProgress{JobID: jobID, Active: true, Message: "Starting discovery…", UpdatedAt: time.Now()}
	s.mu.Unlock()

	handle, err := s.subscriber.SubscribeDiscoveryEvents(ctx, jobID, s.apply)
	if err != nil {
		s.reset()
		return nil, fmt.Errorf("subscribe progress: %w", err)
	}

	if err := s.runner.Start(ctx, jobID, req); err != nil {
		_ = handle.Close()
		s.reset()
		return nil, fmt.Errorf("start discovery job: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.armIdleTimerLocked()
	s.mu.Unlock()

	metrics.DiscoveryJobs.WithLabelValues(domain.DiscoveryModeStreaming).Inc()
	if s.usage != nil {
		_ = s.usage.Record(ctx, "discovery_job")
	}

	return &domain.DiscoveryAck{JobID: jobID, Mode: req.Mode, Streaming: true}, nil
}

// Progress returns the accumulated displayable snapshot.
func (s *DiscoveryService) Progress() domain.DiscoveryProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// ClearProgress resets the displayable state to empty. It does not cancel
// an in-flight stream; cancellation is a separate explicit action.
func (s *DiscoveryService) ClearProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		// Keep the identity of the running job but blank the display.
		s.progress = domain.DiscoveryProgress{JobID: s.jobID, Active: true, UpdatedAt: time.Now()}
		return
	}
	s.progress = domain.DiscoveryProgress{}
}

// Cancel stops the active stream and releases the open channel. A no-op
// when nothing is streaming.
func (s *DiscoveryService) Cancel(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	wasActive := s.active
	s.handle = nil
	s.active = false
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	if wasActive {
		s.progress.Active = false
		s.progress.Message = "Discovery cancelled"
		s.progress.UpdatedAt = time.Now()
	}
	s.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			return fmt.Errorf("close stream: %w", err)
		}
	}
	return nil
}

// apply folds one ordered progress event into the snapshot. The latest
// event is authoritative for message and percent; counters must never
// decrease — an event that would move them backwards is discarded.
func (s *DiscoveryService) apply(ev *domain.DiscoveryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || ev.JobID != s.jobID {
		return
	}
	if ev.ParcelsScanned < s.progress.ParcelsScanned || ev.LeadsFound < s.progress.LeadsFound {
		metrics.DiscoveryEventsDropped.Inc()
		return
	}

	if delta := ev.LeadsFound - s.progress.LeadsFound; delta > 0 {
		metrics.DiscoveryLeadsFound.Add(float64(delta))
	}

	s.progress.Message = ev.Message
	s.progress.Percent = ev.Percent
	s.progress.ParcelsScanned = ev.ParcelsScanned
	s.progress.LeadsFound = ev.LeadsFound
	s.progress.Stalled = false
	s.progress.UpdatedAt = time.Now()

	switch ev.Kind {
	case domain.DiscoveryEventComplete:
		s.finishLocked()
	case domain.DiscoveryEventError:
		s.progress.Error = ev.Error
		if s.progress.Error == "" {
			s.progress.Error = "Discovery failed"
		}
		s.finishLocked()
	default:
		s.armIdleTimerLocked()
	}
}

// finishLocked ends the stream on a terminal event, releasing the channel.
func (s *DiscoveryService) finishLocked() {
	s.active = false
	s.progress.Active = false
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	if s.handle != nil {
		handle := s.handle
		s.handle = nil
		go func() { _ = handle.Close() }()
	}
}

// armIdleTimerLocked restarts the stall watchdog. Absence of events is not
// itself an error — the display simply stops advancing and is flagged.
func (s *DiscoveryService) armIdleTimerLocked() {
	if s.idle != nil {
		s.idle.Stop()
	}
	jobID := s.jobID
	s.idle = time.AfterFunc(s.idleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.active || s.jobID != jobID {
			return
		}
		s.progress.Stalled = true
		s.progress.UpdatedAt = time.Now()
		slog.Warn("discovery stream stalled", "job_id", jobID, "idle", s.idleTimeout.String())
	})
}

func (s *DiscoveryService) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.jobID = ""
	s.handle = nil
	s.progress = domain.DiscoveryProgress{}
}

func validateDiscoveryRequest(req domain.DiscoveryRequest) error {
	if req.AreaType == "" || req.Value == "" {
		return fmt.Errorf("area_type and value are required")
	}
	if req.Mode != domain.DiscoveryModeStreaming && req.Mode != domain.DiscoveryModeSync {
		return fmt.Errorf("mode must be %q or %q", domain.DiscoveryModeStreaming, domain.DiscoveryModeSync)
	}
	if req.MaxResults <= 0 || req.MaxResults > 1000 {
		return fmt.Errorf("max_results must be 1-1000")
	}
	if req.MinAcres != nil && req.MaxAcres != nil && *req.MinAcres > *req.MaxAcres {
		return fmt.Errorf("min_acres must not exceed max_acres")
	}
	return nil
}

func newJobID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "job-fallback"
	}
	return "job-" + hex.EncodeToString(b)
}
