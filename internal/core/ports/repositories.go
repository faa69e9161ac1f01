package ports

import (
	"context"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// DealRepository persists discovered deals. Status filtering happens here,
// at the fetch boundary; score-bracket filtering is applied by the caller.
type DealRepository interface {
	List(ctx context.Context, status string) ([]domain.Deal, error)
	ListInBounds(ctx context.Context, status string, bounds domain.Bounds) ([]domain.Deal, error)
	GetByID(ctx context.Context, id string) (*domain.Deal, error)
	Insert(ctx context.Context, deal *domain.Deal) error
	InsertBatch(ctx context.Context, deals []domain.Deal) error
}

// PropertyRepository persists captured properties (imagery + measurements).
type PropertyRepository interface {
	Create(ctx context.Context, deal *domain.Deal, capture *domain.CaptureResult) error
}

// UsageRepository records and reads billable provider usage.
type UsageRepository interface {
	Record(ctx context.Context, kind string) error
	Summary(ctx context.Context, days int) (*domain.UsageSummary, error)
	Daily(ctx context.Context, days int) ([]domain.UsageDay, error)
}
