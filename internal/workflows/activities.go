package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
	"github.com/avelarde/leadmap/internal/pkg/geospatial"
)

// gridStepMeters is the spacing between scan points. Commercial parcels in
// the target markets are rarely smaller than this, so a coarser grid would
// skip parcels and a finer one would re-hit the same parcel repeatedly.
const gridStepMeters = 250

// DiscoveryActivities holds the activity implementations for the discovery
// workflow.
type DiscoveryActivities struct {
	Pool      *pgxpool.Pool
	Parcels   ports.ParcelLookupService
	Deals     ports.DealRepository
	Publisher ports.EventPublisher
	Usage     ports.UsageRepository
}

// ResolveAreaBounds maps an area request to geographic bounds. Explicit
// bounds are parsed from the value; named areas come from the areas table.
func (a *DiscoveryActivities) ResolveAreaBounds(ctx context.Context, req domain.DiscoveryRequest) (domain.Bounds, error) {
	if req.AreaType == "bounds" {
		return parseBoundsValue(req.Value)
	}

	var b domain.Bounds
	err := a.Pool.QueryRow(ctx, `
		SELECT min_lat, min_lng, max_lat, max_lng
		FROM areas
		WHERE area_type = $1 AND LOWER(name) = LOWER($2)
		  AND ($3 = '' OR state = UPPER($3))
	`, req.AreaType, req.Value, req.State).Scan(&b.MinLat, &b.MinLng, &b.MaxLat, &b.MaxLng)
	if err != nil {
		return domain.Bounds{}, fmt.Errorf("resolve area %s %q: %w", req.AreaType, req.Value, err)
	}
	if !b.Valid() {
		return domain.Bounds{}, fmt.Errorf("area %q has invalid bounds", req.Value)
	}
	return b, nil
}

// BuildScanGrid walks the bounds in fixed steps and returns the scan points.
// The grid is capped so a huge county with a small max_results doesn't burn
// thousands of billable lookups.
func (a *DiscoveryActivities) BuildScanGrid(ctx context.Context, bounds domain.Bounds, maxResults int) ([]domain.GeoPoint, error) {
	latStep := gridStepMeters / 111320.0
	width := geospatial.Haversine(bounds.MinLat, bounds.MinLng, bounds.MinLat, bounds.MaxLng)
	lngSteps := int(width/gridStepMeters) + 1
	lngStep := (bounds.MaxLng - bounds.MinLng) / float64(lngSteps)

	maxPoints := maxResults * 20
	if maxPoints > 5000 {
		maxPoints = 5000
	}

	var grid []domain.GeoPoint
	for lat := bounds.MinLat; lat <= bounds.MaxLat; lat += latStep {
		for lng := bounds.MinLng; lng <= bounds.MaxLng; lng += lngStep {
			grid = append(grid, domain.GeoPoint{Lat: lat, Lng: lng})
			if len(grid) >= maxPoints {
				return grid, nil
			}
		}
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty scan grid for bounds %+v", bounds)
	}
	return grid, nil
}

// ScanAndScoreBatch looks up the parcels at a batch of grid points, filters
// and scores them, and returns the resulting deals. Lookups that error are
// skipped rather than failing the batch; a transient provider failure should
// cost one grid point, not the job.
func (a *DiscoveryActivities) ScanAndScoreBatch(ctx context.Context, jobID string, req domain.DiscoveryRequest, points []domain.GeoPoint) ([]domain.Deal, error) {
	seen := make(map[string]bool)
	var deals []domain.Deal

	for _, p := range points {
		result, err := a.Parcels.Lookup(ctx, p)
		if a.Usage != nil {
			_ = a.Usage.Record(ctx, "parcel_lookup")
		}
		if err != nil {
			slog.Warn("parcel lookup failed during scan", "job_id", jobID, "lat", p.Lat, "lng", p.Lng, "error", err)
			continue
		}
		if !result.HasParcel || result.Parcel == nil {
			continue
		}
		parcel := result.Parcel
		if parcel.Address == "" || seen[parcel.Address] {
			continue
		}
		seen[parcel.Address] = true

		if req.MinAcres != nil && parcel.AreaAcres < *req.MinAcres {
			continue
		}
		if req.MaxAcres != nil && parcel.AreaAcres > *req.MaxAcres {
			continue
		}

		score := scoreParcel(parcel)
		deals = append(deals, domain.Deal{
			ID:                     jobID + "-" + strconv.Itoa(len(deals)),
			Status:                 domain.StatusPending,
			Address:                parcel.Address,
			Location:               p,
			Score:                  &score,
			RegridOwner:            parcel.Owner,
			PropertyBoundarySource: parcel.Source,
			DiscoverySource:        "area_discovery",
		})
	}
	return deals, nil
}

// PersistLeads stores a batch of discovered deals.
func (a *DiscoveryActivities) PersistLeads(ctx context.Context, deals []domain.Deal) error {
	if err := a.Deals.InsertBatch(ctx, deals); err != nil {
		return fmt.Errorf("persist leads: %w", err)
	}
	return nil
}

// PublishProgress emits one progress event on the job's subject.
func (a *DiscoveryActivities) PublishProgress(ctx context.Context, ev *domain.DiscoveryEvent) error {
	return a.Publisher.PublishDiscoveryEvent(ctx, ev)
}

// scoreParcel assigns a heuristic lead score from parcel attributes. Larger
// commercial parcels with a known owner score higher; the evaluation
// pipeline refines this later.
func scoreParcel(p *domain.Parcel) float64 {
	score := 40.0

	areaSqm := 0.0
	if p.Boundary != nil && len(p.Boundary.Coordinates) > 0 {
		areaSqm = geospatial.RingAreaSqMeters(p.Boundary.Coordinates[0])
	}
	switch acres := geospatial.SqMetersToAcres(areaSqm); {
	case acres > 5:
		score += 25
	case acres > 1:
		score += 15
	case acres > 0.25:
		score += 5
	}

	if p.Owner != "" {
		score += 10
	}
	use := strings.ToLower(p.LandUse)
	if strings.Contains(use, "commercial") || strings.Contains(use, "industrial") {
		score += 15
	}

	if score > 100 {
		score = 100
	}
	return score
}

func parseBoundsValue(value string) (domain.Bounds, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("bounds value must be min_lat,min_lng,max_lat,max_lng")
	}
	nums := make([]float64, 4)
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("bounds value: %w", err)
		}
		nums[i] = f
	}
	b := domain.Bounds{MinLat: nums[0], MinLng: nums[1], MaxLat: nums[2], MaxLng: nums[3]}
	if !b.Valid() {
		return domain.Bounds{}, fmt.Errorf("bounds value out of range")
	}
	return b, nil
}
