package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
	"github.com/avelarde/leadmap/internal/pkg/metrics"
)

const (
	dealListTTLSeconds = 120
	dealMapTTLSeconds  = 60
	dealGenKey         = "deals:gen"
)

// DealService is the query layer over discovered deals. It keeps two
// independently cached views of the same backend collection: the full
// status-filtered list and a bounds-scoped projection for the map. The map
// view trades completeness for latency, so the two are never unified into
// one cache entry.
type DealService struct {
	deals ports.DealRepository
	cache ports.CacheService
}

// NewDealService creates a new DealService.
func NewDealService(deals ports.DealRepository, cache ports.CacheService) *DealService {
	return &DealService{deals: deals, cache: cache}
}

// List returns the full deal collection. Status is filtered at the fetch
// boundary; the score bracket is applied here, after the fetch, so the
// cached entry stays bracket-agnostic and chip counts can reuse it.
func (s *DealService) List(ctx context.Context, status string, bracket domain.ScoreBracket) ([]domain.Deal, error) {
	if bracket != "" && !bracket.Known() {
		return nil, fmt.Errorf("unknown score bracket %q", bracket)
	}

	deals, err := s.listUnbracketed(ctx, status)
	if err != nil {
		return nil, err
	}

	if bracket == "" || bracket == domain.BracketAll {
		return deals, nil
	}

	filtered := make([]domain.Deal, 0, len(deals))
	for _, d := range deals {
		if bracket.Matches(d) {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// ListForMap returns the viewport-scoped projection used for map pins.
func (s *DealService) ListForMap(ctx context.Context, status string, bounds domain.Bounds) ([]domain.Deal, error) {
	if !bounds.Valid() {
		return nil, fmt.Errorf("invalid bounds")
	}

	gen := s.generation(ctx)
	cacheKey := fmt.Sprintf("deals:map:%d:%s:%.5f:%.5f:%.5f:%.5f",
		gen, status, bounds.MinLat, bounds.MaxLat, bounds.MinLng, bounds.MaxLng)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var deals []domain.Deal
			if err := json.Unmarshal(data, &deals); err == nil {
				metrics.CacheHits.WithLabelValues("deals_map").Inc()
				return deals, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("deals_map").Inc()
	}

	deals, err := s.deals.ListInBounds(ctx, status, bounds)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(deals); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, dealMapTTLSeconds)
		}
	}

	return deals, nil
}

// Counts returns per-status chip totals from the score-unfiltered
// collection, so the chips always show totals rather than the currently
// visible subset.
func (s *DealService) Counts(ctx context.Context) (*domain.DealCounts, error) {
	deals, err := s.listUnbracketed(ctx, "")
	if err != nil {
		return nil, err
	}

	counts := &domain.DealCounts{
		All:      len(deals),
		ByStatus: make(map[string]int),
	}
	for _, d := range deals {
		counts.ByStatus[d.Status]++
	}
	return counts, nil
}

// GetByID returns a single deal.
func (s *DealService) GetByID(ctx context.Context, id string) (*domain.Deal, error) {
	if id == "" {
		return nil, fmt.Errorf("deal id is required")
	}
	return s.deals.GetByID(ctx, id)
}

// Invalidate bumps the cache generation so the next read of either view
// misses. This is the sole cross-component mutation path: the capture
// workflow calls it after persisting a new property, and the next rendered
// list or map includes it.
func (s *DealService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, dealGenKey); err == nil {
		metrics.CacheInvalidations.Inc()
	}
}

func (s *DealService) listUnbracketed(ctx context.Context, status string) ([]domain.Deal, error) {
	gen := s.generation(ctx)
	cacheKey := fmt.Sprintf("deals:list:%d:%s", gen, status)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var deals []domain.Deal
			if err := json.Unmarshal(data, &deals); err == nil {
				metrics.CacheHits.WithLabelValues("deals_list").Inc()
				return deals, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("deals_list").Inc()
	}

	deals, err := s.deals.List(ctx, status)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(deals); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, dealListTTLSeconds)
		}
	}

	return deals, nil
}

// generation reads the current invalidation counter. A missing key or an
// unavailable cache reads as generation zero, which simply means both views
// share one stable key family.
func (s *DealService) generation(ctx context.Context) int64 {
	if s.cache == nil {
		return 0
	}
	data, err := s.cache.Get(ctx, dealGenKey)
	if err != nil {
		return 0
	}
	gen, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return gen
}
