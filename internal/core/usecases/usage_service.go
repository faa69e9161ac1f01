package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/core/ports"
)

const usageTTLSeconds = 300

// UsageService reads billable-call aggregates for the usage dashboard.
// Summaries are cached briefly; the numbers lag by a few minutes at most,
// which is fine for a cost display.
type UsageService struct {
	usage ports.UsageRepository
	cache ports.CacheService
}

// NewUsageService creates a new UsageService.
func NewUsageService(usage ports.UsageRepository, cache ports.CacheService) *UsageService {
	return &UsageService{usage: usage, cache: cache}
}

// Summary returns trailing-window usage totals.
func (s *UsageService) Summary(ctx context.Context, days int) (*domain.UsageSummary, error) {
	key := fmt.Sprintf("usage:summary:%d", days)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var summary domain.UsageSummary
			if json.Unmarshal(data, &summary) == nil {
				return &summary, nil
			}
		}
	}

	summary, err := s.usage.Summary(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(summary); err == nil {
			_ = s.cache.Set(ctx, key, data, usageTTLSeconds)
		}
	}
	return summary, nil
}

// Daily returns per-day usage, oldest first.
func (s *UsageService) Daily(ctx context.Context, days int) ([]domain.UsageDay, error) {
	key := fmt.Sprintf("usage:daily:%d", days)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var out []domain.UsageDay
			if json.Unmarshal(data, &out) == nil {
				return out, nil
			}
		}
	}

	out, err := s.usage.Daily(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, key, data, usageTTLSeconds)
		}
	}
	return out, nil
}
