package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/avelarde/leadmap/internal/adapters/http"
	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
	"github.com/avelarde/leadmap/internal/core/usecases"
)

// ---- Mock repositories & services ----

type mockDealRepo struct {
	listFn         func(ctx context.Context, status string) ([]domain.Deal, error)
	listInBoundsFn func(ctx context.Context, status string, bounds domain.Bounds) ([]domain.Deal, error)
	getByIDFn      func(ctx context.Context, id string) (*domain.Deal, error)
}

func (m *mockDealRepo) List(ctx context.Context, status string) ([]domain.Deal, error) {
	if m.listFn != nil {
		return m.listFn(ctx, status)
	}
	return nil, nil
}
func (m *mockDealRepo) ListInBounds(ctx context.Context, status string, bounds domain.Bounds) ([]domain.Deal, error) {
	if m.listInBoundsFn != nil {
		return m.listInBoundsFn(ctx, status, bounds)
	}
	return nil, nil
}
func (m *mockDealRepo) GetByID(ctx context.Context, id string) (*domain.Deal, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockDealRepo) Insert(ctx context.Context, d *domain.Deal) error        { return nil }
func (m *mockDealRepo) InsertBatch(ctx context.Context, ds []domain.Deal) error { return nil }

type mockLookup struct {
	lookupFn func(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error)
}

func (m *mockLookup) Lookup(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, p)
	}
	return &domain.ParcelLookup{HasParcel: false}, nil
}

type mockImagery struct {
	captureFn func(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error)
}

func (m *mockImagery) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error) {
	if m.captureFn != nil {
		return m.captureFn(ctx, req)
	}
	return &domain.CaptureResult{PropertyID: "prop-1"}, nil
}

type mockPropertyRepo struct {
	createFn func(ctx context.Context, deal *domain.Deal, capture *domain.CaptureResult) error
}

func (m *mockPropertyRepo) Create(ctx context.Context, deal *domain.Deal, capture *domain.CaptureResult) error {
	if m.createFn != nil {
		return m.createFn(ctx, deal, capture)
	}
	return nil
}

type mockPublisher struct{}

func (m *mockPublisher) PublishDiscoveryEvent(ctx context.Context, ev *domain.DiscoveryEvent) error {
	return nil
}
func (m *mockPublisher) PublishBoundaryPreview(ctx context.Context, overlayID string, boundary *domain.Polygon) error {
	return nil
}

type mockUsageRepo struct {
	summaryFn func(ctx context.Context, days int) (*domain.UsageSummary, error)
	dailyFn   func(ctx context.Context, days int) ([]domain.UsageDay, error)
}

func (m *mockUsageRepo) Record(ctx context.Context, kind string) error { return nil }
func (m *mockUsageRepo) Summary(ctx context.Context, days int) (*domain.UsageSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, days)
	}
	return &domain.UsageSummary{Days: days}, nil
}
func (m *mockUsageRepo) Daily(ctx context.Context, days int) ([]domain.UsageDay, error) {
	if m.dailyFn != nil {
		return m.dailyFn(ctx, days)
	}
	return nil, nil
}

type mockRunner struct {
	startFn   func(ctx context.Context, jobID string, req domain.DiscoveryRequest) error
	runSyncFn func(ctx context.Context, jobID string, req domain.DiscoveryRequest) error
}

func (m *mockRunner) Start(ctx context.Context, jobID string, req domain.DiscoveryRequest) error {
	if m.startFn != nil {
		return m.startFn(ctx, jobID, req)
	}
	return nil
}
func (m *mockRunner) RunSync(ctx context.Context, jobID string, req domain.DiscoveryRequest) error {
	if m.runSyncFn != nil {
		return m.runSyncFn(ctx, jobID, req)
	}
	return nil
}

type noopHandle struct{}

func (noopHandle) Close() error { return nil }

type mockEventSubscriber struct{}

func (m *mockEventSubscriber) SubscribeDiscoveryEvents(ctx context.Context, jobID string, h func(ev *domain.DiscoveryEvent)) (ports.StreamHandle, error) {
	return noopHandle{}, nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	deals := usecases.NewDealService(&mockDealRepo{}, nil)
	capture := usecases.NewCaptureService(&mockLookup{}, &mockImagery{}, &mockPropertyRepo{}, deals, &mockPublisher{}, &mockUsageRepo{})
	discovery := usecases.NewDiscoveryService(&mockRunner{}, &mockEventSubscriber{}, &mockUsageRepo{})

	d := &handler.Dependencies{
		Deals:     deals,
		Capture:   capture,
		Discovery: discovery,
		Dashboard: usecases.NewDashboardService(deals, capture, discovery, 50),
		Usage:     usecases.NewUsageService(&mockUsageRepo{}, nil),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func captureDeps(lookup *mockLookup, imagery *mockImagery, props *mockPropertyRepo) *handler.Dependencies {
	return makeDeps(func(d *handler.Dependencies) {
		d.Capture = usecases.NewCaptureService(lookup, imagery, props, d.Deals, &mockPublisher{}, &mockUsageRepo{})
	})
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func scoreOf(v float64) *float64 { return &v }

func sampleParcel() *domain.Parcel {
	return &domain.Parcel{
		Address:   "200 Main St, Fort Worth, TX",
		Owner:     "Acme Holdings LLC",
		AreaAcres: 1.4,
		Boundary: &domain.Polygon{
			Type: "Polygon",
			Coordinates: [][][2]float64{{
				{-97.33, 32.75}, {-97.32, 32.75}, {-97.32, 32.76}, {-97.33, 32.75},
			}},
		},
		Source: "regrid",
	}
}

// ---- Deal handler tests ----

func TestListDeals_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			listFn: func(ctx context.Context, status string) ([]domain.Deal, error) {
				return []domain.Deal{
					{ID: "d1", Status: "pending", Score: scoreOf(82)},
					{ID: "d2", Status: "contacted", Score: scoreOf(45)},
				}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Deal `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 2 {
		t.Errorf("expected total 2, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 deals, got %d", len(result.Data))
	}
}

func TestListDeals_BracketFilter(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			listFn: func(ctx context.Context, status string) ([]domain.Deal, error) {
				return []domain.Deal{
					{ID: "d1", Score: scoreOf(82)},
					{ID: "d2", Score: scoreOf(45)},
					{ID: "d3", Score: scoreOf(20)},
				}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals?bracket=good", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data []domain.Deal `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Data) != 1 || result.Data[0].ID != "d1" {
		t.Errorf("expected only d1 in good bracket, got %+v", result.Data)
	}
}

func TestListDeals_UnknownBracket(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/deals?bracket=amazing", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %s", apiErr.Code)
	}
}

func TestListDeals_Pagination(t *testing.T) {
	deals := make([]domain.Deal, 7)
	for i := range deals {
		deals[i] = domain.Deal{ID: fmt.Sprintf("d%d", i)}
	}

	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			listFn: func(ctx context.Context, status string) ([]domain.Deal, error) { return deals, nil },
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals?offset=2&limit=3", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Deal `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Pagination.Total != 7 {
		t.Errorf("expected total 7, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 3 {
		t.Errorf("expected 3 deals in page, got %d", len(result.Data))
	}
	if result.Data[0].ID != "d2" {
		t.Errorf("expected page to start at d2, got %s", result.Data[0].ID)
	}
}

func TestMapDeals_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			listInBoundsFn: func(ctx context.Context, status string, bounds domain.Bounds) ([]domain.Deal, error) {
				return []domain.Deal{
					{ID: "d1", Location: domain.GeoPoint{Lat: 32.75, Lng: -97.33}},
				}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals/map?min_lat=32.7&max_lat=32.8&min_lng=-97.4&max_lng=-97.3", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Deals []domain.Deal `json:"deals"`
		Count int           `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Count != 1 {
		t.Errorf("expected count 1, got %d", result.Count)
	}
}

func TestMapDeals_InvalidBounds(t *testing.T) {
	app := setupApp(makeDeps())

	// min above max
	req := httptest.NewRequest("GET", "/v1/deals/map?min_lat=33&max_lat=32&min_lng=-97&max_lng=-96", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDealCounts_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			listFn: func(ctx context.Context, status string) ([]domain.Deal, error) {
				return []domain.Deal{
					{ID: "d1", Status: "pending"},
					{ID: "d2", Status: "pending"},
					{ID: "d3", Status: "contacted"},
				}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals/counts", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var counts domain.DealCounts
	json.NewDecoder(resp.Body).Decode(&counts)
	if counts.All != 3 {
		t.Errorf("expected 3 total, got %d", counts.All)
	}
	if counts.ByStatus["pending"] != 2 {
		t.Errorf("expected 2 pending, got %d", counts.ByStatus["pending"])
	}
}

func TestGetDeal_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			getByIDFn: func(ctx context.Context, id string) (*domain.Deal, error) {
				return &domain.Deal{ID: id, Address: "200 Main St"}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals/deal-42", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var deal domain.Deal
	json.NewDecoder(resp.Body).Decode(&deal)
	if deal.Address != "200 Main St" {
		t.Errorf("unexpected address: %s", deal.Address)
	}
}

func TestGetDeal_NotFound(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			getByIDFn: func(ctx context.Context, id string) (*domain.Deal, error) {
				return nil, fmt.Errorf("not found")
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals/nonexistent", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// ---- Parcel lookup handler tests ----

func TestParcelLookup_Found(t *testing.T) {
	deps := captureDeps(&mockLookup{
		lookupFn: func(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
			return &domain.ParcelLookup{HasParcel: true, Parcel: sampleParcel()}, nil
		},
	}, &mockImagery{}, &mockPropertyRepo{})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/parcel?lat=32.75&lng=-97.33", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result domain.ParcelLookup
	json.NewDecoder(resp.Body).Decode(&result)
	if !result.HasParcel {
		t.Fatal("expected has_parcel true")
	}
	if result.Parcel.Owner != "Acme Holdings LLC" {
		t.Errorf("unexpected owner: %s", result.Parcel.Owner)
	}
}

func TestParcelLookup_NoParcel(t *testing.T) {
	deps := captureDeps(&mockLookup{
		lookupFn: func(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
			return &domain.ParcelLookup{HasParcel: false}, nil
		},
	}, &mockImagery{}, &mockPropertyRepo{})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/parcel?lat=32.75&lng=-97.33", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result domain.ParcelLookup
	json.NewDecoder(resp.Body).Decode(&result)
	if result.HasParcel {
		t.Error("expected has_parcel false")
	}
}

func TestParcelLookup_MissingParams(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/parcel", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestParcelLookup_ProviderError(t *testing.T) {
	deps := captureDeps(&mockLookup{
		lookupFn: func(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
			return nil, &domain.ProviderError{StatusCode: 429, Message: "Rate limit exceeded"}
		},
	}, &mockImagery{}, &mockPropertyRepo{})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/parcel?lat=32.75&lng=-97.33", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	body := readBody(t, resp.Body)
	if !strings.Contains(string(body), "Rate limit exceeded") {
		t.Errorf("expected provider message in body, got %s", body)
	}
}

// ---- Capture handler tests ----

func TestCapture_Complete(t *testing.T) {
	deps := captureDeps(
		&mockLookup{
			lookupFn: func(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
				return &domain.ParcelLookup{HasParcel: true, Parcel: sampleParcel()}, nil
			},
		},
		&mockImagery{
			captureFn: func(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error) {
				return &domain.CaptureResult{
					PropertyID:  "prop-7",
					ImageBase64: "aW1n",
					AreaSqft:    60984,
				}, nil
			},
		},
		&mockPropertyRepo{},
	)
	app := setupApp(deps)

	body := strings.NewReader(`{"lat": 32.75, "lng": -97.33, "zoom": 19}`)
	req := httptest.NewRequest("POST", "/v1/capture", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var snap usecases.CaptureSnapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	if snap.State != usecases.CaptureStateComplete {
		t.Errorf("expected complete, got %s", snap.State)
	}
	if snap.Result == nil || snap.Result.PropertyID != "prop-7" {
		t.Errorf("expected capture result, got %+v", snap.Result)
	}
}

func TestCapture_NoParcelOutcome(t *testing.T) {
	deps := captureDeps(&mockLookup{
		lookupFn: func(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
			return &domain.ParcelLookup{HasParcel: false}, nil
		},
	}, &mockImagery{}, &mockPropertyRepo{})
	app := setupApp(deps)

	body := strings.NewReader(`{"lat": 32.75, "lng": -97.33, "zoom": 19}`)
	req := httptest.NewRequest("POST", "/v1/capture", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)

	// A missing parcel is an outcome the client renders, not an HTTP error.
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var snap usecases.CaptureSnapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	if snap.State != usecases.CaptureStateNoParcel {
		t.Errorf("expected no_parcel, got %s", snap.State)
	}
}

func TestCapture_ImageryFailure(t *testing.T) {
	deps := captureDeps(
		&mockLookup{
			lookupFn: func(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
				return &domain.ParcelLookup{HasParcel: true, Parcel: sampleParcel()}, nil
			},
		},
		&mockImagery{
			captureFn: func(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error) {
				return nil, &domain.ProviderError{StatusCode: 502, Message: "Render backend unavailable"}
			},
		},
		&mockPropertyRepo{},
	)
	app := setupApp(deps)

	body := strings.NewReader(`{"lat": 32.75, "lng": -97.33, "zoom": 19}`)
	req := httptest.NewRequest("POST", "/v1/capture", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var snap usecases.CaptureSnapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	if snap.State != usecases.CaptureStateError {
		t.Errorf("expected error state, got %s", snap.State)
	}
	if snap.Error != "Render backend unavailable" {
		t.Errorf("expected provider message, got %q", snap.Error)
	}
}

func TestCapture_BadBody(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/capture", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Discovery handler tests ----

func discoveryBody(mode string) io.Reader {
	return strings.NewReader(fmt.Sprintf(
		`{"area_type": "city", "value": "Fort Worth", "state": "TX", "max_results": 50, "mode": %q}`, mode))
}

func TestStartDiscovery_Streaming(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/discovery", discoveryBody("streaming"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var ack domain.DiscoveryAck
	json.NewDecoder(resp.Body).Decode(&ack)
	if !ack.Streaming {
		t.Error("expected streaming ack")
	}
	if ack.JobID == "" {
		t.Error("expected a job id")
	}
}

func TestStartDiscovery_SecondStreamConflicts(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/discovery", discoveryBody("streaming"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202 on first submit, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/v1/discovery", discoveryBody("streaming"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 409 {
		t.Fatalf("expected 409 on second submit, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "conflict" {
		t.Errorf("expected conflict, got %s", apiErr.Code)
	}
}

func TestStartDiscovery_Sync(t *testing.T) {
	ran := false
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Discovery = usecases.NewDiscoveryService(&mockRunner{
			runSyncFn: func(ctx context.Context, jobID string, req domain.DiscoveryRequest) error {
				ran = true
				return nil
			},
		}, &mockEventSubscriber{}, &mockUsageRepo{})
	})
	app := setupApp(deps)

	req := httptest.NewRequest("POST", "/v1/discovery", discoveryBody("sync"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if !ran {
		t.Error("expected sync runner to be invoked")
	}
}

func TestStartDiscovery_ValidationFailure(t *testing.T) {
	app := setupApp(makeDeps())

	body := strings.NewReader(`{"area_type": "city", "value": "", "max_results": 50}`)
	req := httptest.NewRequest("POST", "/v1/discovery", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDiscoveryProgress_Lifecycle(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/discovery", discoveryBody("streaming"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/v1/discovery/progress", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var progress domain.DiscoveryProgress
	json.NewDecoder(resp.Body).Decode(&progress)
	if !progress.Active {
		t.Error("expected active progress after submit")
	}

	// Clearing the display leaves the stream running.
	req = httptest.NewRequest("DELETE", "/v1/discovery/progress", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/v1/discovery/cancel", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	json.NewDecoder(resp.Body).Decode(&progress)
	if progress.Active {
		t.Error("expected inactive progress after cancel")
	}
}

// ---- Usage handler tests ----

func TestUsageSummary_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Usage = usecases.NewUsageService(&mockUsageRepo{
			summaryFn: func(ctx context.Context, days int) (*domain.UsageSummary, error) {
				return &domain.UsageSummary{Days: days, ParcelLookups: 12, Captures: 3, EstimatedCost: 0.27}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/usage/summary?days=7", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var summary domain.UsageSummary
	json.NewDecoder(resp.Body).Decode(&summary)
	if summary.Days != 7 {
		t.Errorf("expected 7 days, got %d", summary.Days)
	}
	if summary.ParcelLookups != 12 {
		t.Errorf("expected 12 lookups, got %d", summary.ParcelLookups)
	}
}

func TestUsageSummary_BadDays(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/usage/summary?days=0", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/v1/usage/summary?days=400", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUsageDaily_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Usage = usecases.NewUsageService(&mockUsageRepo{
			dailyFn: func(ctx context.Context, days int) ([]domain.UsageDay, error) {
				return []domain.UsageDay{
					{Date: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), ParcelLookups: 4},
					{Date: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), ParcelLookups: 2},
				}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/usage/daily?days=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Days []domain.UsageDay `json:"days"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Days) != 2 {
		t.Errorf("expected 2 days, got %d", len(result.Days))
	}
}

// ---- Health handler tests ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady_NoDB(t *testing.T) {
	// DB, NATS, Cache are nil → should report not ready
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- Middleware behavior ----

func TestDeals_CacheControlHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/deals", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cc := resp.Header.Get("Cache-Control")
	if cc != "private, max-age=5" {
		t.Errorf("expected short private Cache-Control, got %q", cc)
	}
}

func TestParcel_NeverCached(t *testing.T) {
	deps := captureDeps(&mockLookup{}, &mockImagery{}, &mockPropertyRepo{})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/parcel?lat=32.75&lng=-97.33", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cc := resp.Header.Get("Cache-Control")
	if cc != "private, max-age=0" {
		t.Errorf("expected uncacheable parcel response, got %q", cc)
	}
}

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	v := resp.Header.Get("X-API-Version")
	if v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestDeprecatedLeadsAlias(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			listFn: func(ctx context.Context, status string) ([]domain.Deal, error) {
				return []domain.Deal{{ID: "d1"}}, nil
			},
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/leads", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected alias to still serve, got %d", resp.StatusCode)
	}

	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header on legacy path")
	}
	if resp.Header.Get("Sunset") == "" {
		t.Error("expected Sunset header on legacy path")
	}
	if resp.Header.Get("Warning") == "" {
		t.Error("expected Warning header on legacy path")
	}
}

func TestListDeals_LinkHeader(t *testing.T) {
	deals := make([]domain.Deal, 10)
	for i := range deals {
		deals[i] = domain.Deal{ID: fmt.Sprintf("d%d", i)}
	}

	deps := makeDeps(func(d *handler.Dependencies) {
		d.Deals = usecases.NewDealService(&mockDealRepo{
			listFn: func(ctx context.Context, status string) ([]domain.Deal, error) { return deals, nil },
		}, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/deals?offset=0&limit=3", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	link := resp.Header.Get("Link")
	if link == "" {
		t.Fatal("expected Link header, got empty")
	}
	if !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %s", link)
	}
	if !strings.Contains(link, `rel="last"`) {
		t.Errorf("expected last link, got %s", link)
	}
}

// TestAccessLogMiddleware verifies structured access logging is emitted.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()

	app.Use(handler.AccessLogMiddleware())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}
