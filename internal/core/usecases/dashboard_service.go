package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/pkg/debounce"
	"github.com/avelarde/leadmap/internal/pkg/metrics"
)

// DashboardState is the single source of truth for what the dashboard is
// currently showing. It is mutated only through Session transitions and
// published as a copy.
type DashboardState struct {
	SelectedDealID  string              `json:"selected_deal_id,omitempty"`
	ClickedLocation *domain.GeoPoint    `json:"clicked_location,omitempty"`
	StatusFilter    string              `json:"status_filter,omitempty"`
	ScoreFilter     domain.ScoreBracket `json:"score_filter,omitempty"`
	PanelOpen       bool                `json:"panel_open"`
	MapLoadedOnce   bool                `json:"map_loaded_once"`
	Capture         *CaptureSnapshot    `json:"capture,omitempty"`
}

// DashboardService creates and tears down dashboard sessions, one per
// connected client.
type DashboardService struct {
	deals     *DealService
	capture   *CaptureService
	discovery *DiscoveryService
	quietMs   int
}

// NewDashboardService creates a new DashboardService. quietMillis is the
// viewport debounce window.
func NewDashboardService(deals *DealService, capture *CaptureService, discovery *DiscoveryService, quietMillis int) *DashboardService {
	if quietMillis <= 0 {
		quietMillis = 500
	}
	return &DashboardService{deals: deals, capture: capture, discovery: discovery, quietMs: quietMillis}
}

// Deals exposes the query layer for handlers that read collections directly.
func (s *DashboardService) Deals() *DealService { return s.deals }

// Discovery exposes the stream consumer.
func (s *DashboardService) Discovery() *DiscoveryService { return s.discovery }

// NewSession opens a coordinator session. onSettledBounds is invoked with
// the map deals for each settled viewport; it runs on a timer goroutine.
func (s *DashboardService) NewSession(onSettledBounds func(deals []domain.Deal, firstLoad bool)) *Session {
	sess := &Session{svc: s, emit: onSettledBounds}
	sess.debouncer = debounce.New(time.Duration(s.quietMs)*time.Millisecond, sess.onViewportSettled)
	return sess
}

// Session holds one client's dashboard state and routes user actions to the
// right subsystem.
type Session struct {
	svc  *DashboardService
	emit func(deals []domain.Deal, firstLoad bool)

	debouncer *debounce.Debouncer[domain.Bounds]

	mu      sync.Mutex
	state   DashboardState
	overlay *Overlay
	closed  bool
}

// State returns a copy of the current dashboard state, including the
// capture workflow snapshot if an overlay is open.
func (s *Session) State() DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// ViewportChanged feeds one raw viewport frame into the debouncer. Only the
// final bounds of a burst ever reach the deal query cache.
func (s *Session) ViewportChanged(b domain.Bounds) error {
	if !b.Valid() {
		return fmt.Errorf("invalid viewport bounds")
	}
	s.debouncer.Trigger(b)
	return nil
}

// SelectDeal opens the side panel on an existing deal. Selecting a deal
// closes any click-based overlay.
func (s *Session) SelectDeal(id string) DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeOverlayLocked()
	s.state.SelectedDealID = id
	s.state.PanelOpen = true
	return s.stateLocked()
}

// ClickMap anchors a fresh capture overlay at a location. A new click
// destroys the current overlay instance, so no cross-location race is
// possible; it also clears any selected deal.
func (s *Session) ClickMap(p domain.GeoPoint) (DashboardState, error) {
	overlay, err := s.svc.capture.Open(p)
	if err != nil {
		return DashboardState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeOverlayLocked()
	s.overlay = overlay
	s.state.SelectedDealID = ""
	s.state.ClickedLocation = &p
	s.state.PanelOpen = true
	return s.stateLocked(), nil
}

// Overlay returns the live capture workflow, or nil when none is open.
func (s *Session) Overlay() *Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// ClosePanel closes the side panel, destroying any open overlay and
// clearing the click location.
func (s *Session) ClosePanel() DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeOverlayLocked()
	s.state.SelectedDealID = ""
	s.state.PanelOpen = false
	return s.stateLocked()
}

// SetStatusFilter changes the fetch-boundary filter. The score filter is
// left untouched: the two compose.
func (s *Session) SetStatusFilter(status string) DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.StatusFilter = status
	return s.stateLocked()
}

// SetScoreFilter changes the in-process bracket filter.
func (s *Session) SetScoreFilter(bracket domain.ScoreBracket) (DashboardState, error) {
	if bracket != "" && !bracket.Known() {
		return DashboardState{}, fmt.Errorf("unknown score bracket %q", bracket)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ScoreFilter = bracket
	return s.stateLocked(), nil
}

// VisibleDeals applies both filters: status at the fetch boundary, score
// bracket in-process.
func (s *Session) VisibleDeals(ctx context.Context) ([]domain.Deal, error) {
	s.mu.Lock()
	status := s.state.StatusFilter
	bracket := s.state.ScoreFilter
	s.mu.Unlock()

	return s.svc.deals.List(ctx, status, bracket)
}

// ChipCounts returns filter-chip totals. Always computed from the
// score-unfiltered collection, so an active score filter never shrinks the
// numbers on the chips.
func (s *Session) ChipCounts(ctx context.Context) (*domain.DealCounts, error) {
	return s.svc.deals.Counts(ctx)
}

// Close tears the session down: the pending debounce timer is cancelled so
// no update can fire after disposal, and any open overlay is destroyed.
func (s *Session) Close() {
	s.debouncer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeOverlayLocked()
}

// onViewportSettled runs once per quiet period with the final bounds of the
// burst.
func (s *Session) onViewportSettled(b domain.Bounds) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	status := s.state.StatusFilter
	firstLoad := !s.state.MapLoadedOnce
	s.mu.Unlock()

	metrics.ViewportSettles.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	deals, err := s.svc.deals.ListForMap(ctx, status, b)
	if err != nil {
		// Map refetches are best-effort; the previous pins stay on screen.
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state.MapLoadedOnce = true
	s.mu.Unlock()

	if s.emit != nil {
		s.emit(deals, firstLoad)
	}
}

func (s *Session) closeOverlayLocked() {
	if s.overlay != nil {
		s.overlay.Close()
		s.overlay = nil
	}
	s.state.ClickedLocation = nil
	s.state.Capture = nil
}

func (s *Session) stateLocked() DashboardState {
	st := s.state
	if s.overlay != nil {
		snap := s.overlay.Snapshot()
		st.Capture = &snap
	}
	return st
}
