package postgres

import (
	"context"
	"fmt"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// Billable call kinds tracked in usage_events.
const (
	UsageParcelLookup = "parcel_lookup"
	UsageCapture      = "capture"
	UsageDiscovery    = "discovery_job"
)

// Per-call provider cost estimates in dollars.
var usageCost = map[string]float64{
	UsageParcelLookup: 0.01,
	UsageCapture:      0.05,
	UsageDiscovery:    0.25,
}

// UsageRepo implements ports.UsageRepository with pgx.
type UsageRepo struct {
	db *DB
}

// NewUsageRepo creates a new UsageRepo.
func NewUsageRepo(db *DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// Record appends one billable event.
func (r *UsageRepo) Record(ctx context.Context, kind string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO usage_events (kind) VALUES ($1)
	`, kind)
	return err
}

// Summary aggregates the trailing window of billable events.
func (r *UsageRepo) Summary(ctx context.Context, days int) (*domain.UsageSummary, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT kind, COUNT(*)
		FROM usage_events
		WHERE created_at >= NOW() - make_interval(days => $1)
		GROUP BY kind
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &domain.UsageSummary{Days: days}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		switch kind {
		case UsageParcelLookup:
			summary.ParcelLookups = count
		case UsageCapture:
			summary.Captures = count
		case UsageDiscovery:
			summary.DiscoveryJobs = count
		}
		summary.EstimatedCost += usageCost[kind] * float64(count)
	}
	return summary, rows.Err()
}

// Daily returns per-day usage for the trailing window, oldest first.
func (r *UsageRepo) Daily(ctx context.Context, days int) ([]domain.UsageDay, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day,
		       COUNT(*) FILTER (WHERE kind = $2),
		       COUNT(*) FILTER (WHERE kind = $3),
		       COUNT(*) FILTER (WHERE kind = $4)
		FROM usage_events
		WHERE created_at >= NOW() - make_interval(days => $1)
		GROUP BY day
		ORDER BY day
	`, days, UsageParcelLookup, UsageCapture, UsageDiscovery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UsageDay
	for rows.Next() {
		var d domain.UsageDay
		if err := rows.Scan(&d.Date, &d.ParcelLookups, &d.Captures, &d.DiscoveryJobs); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}
	return out, nil
}
