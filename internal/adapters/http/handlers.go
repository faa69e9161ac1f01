package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/usecases"
)

// ListDealsHandler returns the full deal list, filtered by status and score
// bracket. Pagination is applied over the cached collection.
func ListDealsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := c.Query("status")
		bracket := domain.ScoreBracket(c.Query("bracket", string(domain.BracketAll)))

		deals, err := deps.Deals.List(c.Context(), status, bracket)
		if err != nil {
			if !bracket.Known() {
				return errBadRequest(c, "unknown score bracket: "+string(bracket))
			}
			return errInternal(c, err.Error())
		}

		page, pg := paginate(deals, c.QueryInt("offset", 0), c.QueryInt("limit", 100))
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// MapDealsHandler returns deals inside a viewport for map pins.
func MapDealsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bounds := domain.Bounds{
			MinLat: c.QueryFloat("min_lat", 0),
			MaxLat: c.QueryFloat("max_lat", 0),
			MinLng: c.QueryFloat("min_lng", 0),
			MaxLng: c.QueryFloat("max_lng", 0),
		}
		if !bounds.Valid() {
			return errBadRequest(c, "min_lat/min_lng/max_lat/max_lng must form a valid viewport")
		}

		deals, err := deps.Deals.ListForMap(c.Context(), c.Query("status"), bounds)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"deals": deals, "count": len(deals)})
	}
}

// DealCountsHandler returns per-status chip totals, always computed from the
// score-unfiltered collection.
func DealCountsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		counts, err := deps.Deals.Counts(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(counts)
	}
}

// GetDealHandler returns a single deal by ID.
func GetDealHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "deal id is required")
		}
		deal, err := deps.Deals.GetByID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "deal not found")
		}
		return c.JSON(deal)
	}
}

// ParcelLookupHandler proxies a point lookup to the records provider. One
// billable call per request; failures are returned as-is and never retried.
func ParcelLookupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := domain.GeoPoint{
			Lat: c.QueryFloat("lat", 0),
			Lng: c.QueryFloat("lng", 0),
		}
		if !p.Valid() || (p.Lat == 0 && p.Lng == 0) {
			return errBadRequest(c, "lat and lng are required")
		}

		overlay, err := deps.Capture.Open(p)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		defer overlay.Close()

		snap, err := overlay.Analyze(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		switch snap.State {
		case usecases.CaptureStateNoParcel:
			return c.JSON(domain.ParcelLookup{HasParcel: false})
		case usecases.CaptureStateError:
			return errInternal(c, snap.Error)
		}
		return c.JSON(domain.ParcelLookup{HasParcel: true, Parcel: snap.Parcel})
	}
}

type captureBody struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom int     `json:"zoom"`
}

// CaptureHandler runs the one-shot capture flow for REST clients: parcel
// lookup, then imagery capture if a parcel is found. Interactive clients use
// the WebSocket session instead, where the workflow pauses at regrid_ready
// for user confirmation.
func CaptureHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body captureBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}

		overlay, err := deps.Capture.Open(domain.GeoPoint{Lat: body.Lat, Lng: body.Lng})
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		defer overlay.Close()

		snap, err := overlay.Analyze(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		if snap.State != usecases.CaptureStateRegridReady {
			// no_parcel and error are reportable outcomes, not HTTP failures.
			return c.JSON(snap)
		}

		snap, err = overlay.Confirm(c.Context(), body.Zoom)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(snap)
	}
}

// StartDiscoveryHandler submits a bulk discovery job.
func StartDiscoveryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.DiscoveryRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if req.Mode == "" {
			req.Mode = domain.DiscoveryModeStreaming
		}

		ack, err := deps.Discovery.Start(c.Context(), req)
		if err != nil {
			if errors.Is(err, usecases.ErrStreamActive) {
				return errConflict(c, "a discovery job is already streaming")
			}
			return errBadRequest(c, err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(ack)
	}
}

// DiscoveryProgressHandler returns the current progress snapshot.
func DiscoveryProgressHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Discovery.Progress())
	}
}

// ClearDiscoveryProgressHandler blanks the progress display without touching
// the stream.
func ClearDiscoveryProgressHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Discovery.ClearProgress()
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// CancelDiscoveryHandler stops the active stream.
func CancelDiscoveryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Discovery.Cancel(c.Context()); err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(deps.Discovery.Progress())
	}
}

// UsageSummaryHandler returns billable-call totals for the trailing window.
func UsageSummaryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		days := c.QueryInt("days", 30)
		if days <= 0 || days > 365 {
			return errBadRequest(c, "days must be between 1 and 365")
		}
		summary, err := deps.Usage.Summary(c.Context(), days)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(summary)
	}
}

// UsageDailyHandler returns per-day usage.
func UsageDailyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		days := c.QueryInt("days", 30)
		if days <= 0 || days > 365 {
			return errBadRequest(c, "days must be between 1 and 365")
		}
		daily, err := deps.Usage.Daily(c.Context(), days)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"days": daily})
	}
}
