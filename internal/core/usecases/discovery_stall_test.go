package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
)

type stubRunner struct{}

func (stubRunner) Start(ctx context.Context, jobID string, req domain.DiscoveryRequest) error {
	return nil
}

func (stubRunner) RunSync(ctx context.Context, jobID string, req domain.DiscoveryRequest) error {
	return nil
}

type stubHandle struct{}

func (stubHandle) Close() error { return nil }

type stubSubscriber struct {
	handler func(ev *domain.DiscoveryEvent)
	jobID   string
}

func (s *stubSubscriber) SubscribeDiscoveryEvents(ctx context.Context, jobID string, handler func(ev *domain.DiscoveryEvent)) (ports.StreamHandle, error) {
	s.jobID = jobID
	s.handler = handler
	return stubHandle{}, nil
}

func waitForStall(t *testing.T, svc *DiscoveryService, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Progress().Stalled == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stream never reached stalled=%v", want)
}

func TestDiscoveryService_SilentStreamFlagsStalled(t *testing.T) {
	sub := &stubSubscriber{}
	svc := NewDiscoveryService(stubRunner{}, sub, nil)
	svc.idleTimeout = 20 * time.Millisecond

	req := domain.DiscoveryRequest{
		AreaType:   "city",
		Value:      "Fort Worth",
		Mode:       domain.DiscoveryModeStreaming,
		MaxResults: 50,
	}
	if _, err := svc.Start(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForStall(t, svc, true)

	p := svc.Progress()
	if !p.Active {
		t.Error("a stalled stream stays active until the user acts")
	}
	if p.Error != "" {
		t.Error("a stall is not an error")
	}

	// The next event recovers the display.
	sub.handler(&domain.DiscoveryEvent{
		JobID:          sub.jobID,
		Kind:           domain.DiscoveryEventProgress,
		Message:        "Back online",
		ParcelsScanned: 10,
	})
	waitForStall(t, svc, false)
}

func TestDiscoveryService_EventsKeepWatchdogQuiet(t *testing.T) {
	sub := &stubSubscriber{}
	svc := NewDiscoveryService(stubRunner{}, sub, nil)
	svc.idleTimeout = 500 * time.Millisecond

	req := domain.DiscoveryRequest{
		AreaType:   "zip",
		Value:      "76102",
		Mode:       domain.DiscoveryModeStreaming,
		MaxResults: 50,
	}
	if _, err := svc.Start(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 1; i <= 5; i++ {
		time.Sleep(20 * time.Millisecond)
		sub.handler(&domain.DiscoveryEvent{
			JobID:          sub.jobID,
			Kind:           domain.DiscoveryEventProgress,
			ParcelsScanned: i * 10,
		})
		if svc.Progress().Stalled {
			t.Fatal("a stream receiving events must not be flagged stalled")
		}
	}
}
