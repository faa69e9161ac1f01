package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
	"github.com/avelarde/leadmap/internal/core/usecases"
	"github.com/avelarde/leadmap/internal/pkg/metrics"
)

// wsMessage is one client frame. Viewport frames arrive at pan/zoom rate and
// are debounced server-side; everything else is a discrete user action.
type wsMessage struct {
	Action  string  `json:"action"`
	MinLat  float64 `json:"min_lat,omitempty"`
	MaxLat  float64 `json:"max_lat,omitempty"`
	MinLng  float64 `json:"min_lng,omitempty"`
	MaxLng  float64 `json:"max_lng,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
	DealID  string  `json:"deal_id,omitempty"`
	Status  string  `json:"status,omitempty"`
	Bracket string  `json:"bracket,omitempty"`
	Zoom    int     `json:"zoom,omitempty"`
	JobID   string  `json:"job_id,omitempty"`
}

// wsEvent is one server frame.
type wsEvent struct {
	Type      string                    `json:"type"`
	State     *usecases.DashboardState  `json:"state,omitempty"`
	Deals     []domain.Deal             `json:"deals,omitempty"`
	FirstLoad bool                      `json:"first_load,omitempty"`
	Capture   *usecases.CaptureSnapshot `json:"capture,omitempty"`
	Payload   json.RawMessage           `json:"payload,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// DashboardSocketHandler runs one dashboard session per connection: viewport
// frames in, settled map deals out, capture workflow actions, and NATS relay
// for discovery progress and boundary previews.
func DashboardSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("dashboard client connected", "remote", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		write := func(ev wsEvent) error {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		writeErr := func(msg string) { _ = write(wsEvent{Type: "error", Error: msg}) }
		writeState := func(st usecases.DashboardState) { _ = write(wsEvent{Type: "state", State: &st}) }

		session := deps.Dashboard.NewSession(func(deals []domain.Deal, firstLoad bool) {
			_ = write(wsEvent{Type: "map_deals", Deals: deals, FirstLoad: firstLoad})
		})
		defer session.Close()

		// NATS relay subscriptions, keyed by subject.
		subs := make(map[string]*nats.Subscription)
		var boundaryStream ports.StreamHandle
		defer func() {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			if boundaryStream != nil {
				_ = boundaryStream.Close()
			}
		}()

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				writeErr("invalid JSON")
				continue
			}

			switch m.Action {
			case "viewport":
				b := domain.Bounds{MinLat: m.MinLat, MaxLat: m.MaxLat, MinLng: m.MinLng, MaxLng: m.MaxLng}
				if err := session.ViewportChanged(b); err != nil {
					writeErr(err.Error())
				}

			case "select_deal":
				if m.DealID == "" {
					writeErr("deal_id is required")
					continue
				}
				writeState(session.SelectDeal(m.DealID))

			case "click_map":
				st, err := session.ClickMap(domain.GeoPoint{Lat: m.Lat, Lng: m.Lng})
				if err != nil {
					writeErr(err.Error())
					continue
				}
				// Re-point the boundary relay at the new overlay.
				if boundaryStream != nil {
					_ = boundaryStream.Close()
					boundaryStream = nil
				}
				if overlay := session.Overlay(); overlay != nil && deps.Subscriber != nil {
					boundaryStream, _ = deps.Subscriber.SubscribeBoundaryPreviews(overlay.ID(), func(boundary *domain.Polygon) {
						data, err := json.Marshal(boundary)
						if err != nil {
							return
						}
						_ = write(wsEvent{Type: "boundary", Payload: data})
					})
				}
				writeState(st)

			case "analyze":
				overlay := session.Overlay()
				if overlay == nil {
					writeErr("no overlay open")
					continue
				}
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					snap, err := overlay.Analyze(ctx)
					if err != nil {
						writeErr(err.Error())
						return
					}
					_ = write(wsEvent{Type: "capture", Capture: &snap})
				}()

			case "confirm":
				overlay := session.Overlay()
				if overlay == nil {
					writeErr("no overlay open")
					continue
				}
				zoom := m.Zoom
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
					defer cancel()
					snap, err := overlay.Confirm(ctx, zoom)
					if err != nil {
						writeErr(err.Error())
						return
					}
					_ = write(wsEvent{Type: "capture", Capture: &snap})
				}()

			case "retry":
				overlay := session.Overlay()
				if overlay == nil {
					writeErr("no overlay open")
					continue
				}
				snap, err := overlay.Retry()
				if err != nil {
					writeErr(err.Error())
					continue
				}
				_ = write(wsEvent{Type: "capture", Capture: &snap})

			case "close_panel":
				if boundaryStream != nil {
					_ = boundaryStream.Close()
					boundaryStream = nil
				}
				writeState(session.ClosePanel())

			case "set_status_filter":
				writeState(session.SetStatusFilter(m.Status))

			case "set_score_filter":
				st, err := session.SetScoreFilter(domain.ScoreBracket(m.Bracket))
				if err != nil {
					writeErr(err.Error())
					continue
				}
				writeState(st)

			case "subscribe_progress":
				if m.JobID == "" {
					writeErr("job_id is required")
					continue
				}
				subject := "leads.discovery." + m.JobID
				if _, exists := subs[subject]; exists {
					continue
				}
				s, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
					_ = write(wsEvent{Type: "progress", Payload: json.RawMessage(msg.Data)})
				})
				if err != nil {
					writeErr("subscribe failed: " + err.Error())
					continue
				}
				subs[subject] = s

			case "unsubscribe_progress":
				subject := "leads.discovery." + m.JobID
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
				}

			case "state":
				writeState(session.State())

			default:
				writeErr("unknown action: " + m.Action)
			}
		}

		slog.Info("dashboard client disconnected", "remote", remoteAddr)
	}
}
