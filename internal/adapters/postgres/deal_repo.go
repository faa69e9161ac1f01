package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// DealRepo implements ports.DealRepository with pgx.
type DealRepo struct {
	db *DB
}

// NewDealRepo creates a new DealRepo.
func NewDealRepo(db *DB) *DealRepo {
	return &DealRepo{db: db}
}

const dealColumns = `
	id, status, COALESCE(address, ''),
	ST_Y(location::geometry) as lat,
	ST_X(location::geometry) as lng,
	score, COALESCE(business, ''),
	COALESCE(contact_name, ''), COALESCE(contact_email, ''), COALESCE(contact_phone, ''),
	paved_area_sqft, COALESCE(regrid_owner, ''),
	COALESCE(boundary_source, ''), COALESCE(discovery_source, ''), created_at`

func scanDeal(row pgx.Row) (*domain.Deal, error) {
	var d domain.Deal
	err := row.Scan(
		&d.ID, &d.Status, &d.Address,
		&d.Location.Lat, &d.Location.Lng,
		&d.Score, &d.Business,
		&d.ContactName, &d.ContactEmail, &d.ContactPhone,
		&d.PavedAreaSqft, &d.RegridOwner,
		&d.PropertyBoundarySource, &d.DiscoverySource, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDeals(rows pgx.Rows) ([]domain.Deal, error) {
	defer rows.Close()
	var deals []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// List returns all deals, newest first. An empty status means no status
// filter.
func (r *DealRepo) List(ctx context.Context, status string) ([]domain.Deal, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	return collectDeals(rows)
}

// ListInBounds returns deals whose location falls inside the viewport, using
// a PostGIS envelope so the GiST index on location is used.
func (r *DealRepo) ListInBounds(ctx context.Context, status string, bounds domain.Bounds) ([]domain.Deal, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+dealColumns+`
		FROM deals
		WHERE ($1 = '' OR status = $1)
		  AND location::geometry && ST_MakeEnvelope($2, $3, $4, $5, 4326)
		ORDER BY created_at DESC
	`, status, bounds.MinLng, bounds.MinLat, bounds.MaxLng, bounds.MaxLat)
	if err != nil {
		return nil, err
	}
	return collectDeals(rows)
}

// GetByID returns one deal.
func (r *DealRepo) GetByID(ctx context.Context, id string) (*domain.Deal, error) {
	return scanDeal(r.db.Pool.QueryRow(ctx, `
		SELECT `+dealColumns+`
		FROM deals WHERE id = $1
	`, id))
}

// Insert stores a single deal.
func (r *DealRepo) Insert(ctx context.Context, d *domain.Deal) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO deals (id, status, address, location, score, business,
			contact_name, contact_email, contact_phone,
			paved_area_sqft, regrid_owner, boundary_source, discovery_source)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography,
			$6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, score = EXCLUDED.score,
		    paved_area_sqft = EXCLUDED.paved_area_sqft
	`, d.ID, d.Status, d.Address, d.Location.Lng, d.Location.Lat,
		d.Score, d.Business, d.ContactName, d.ContactEmail, d.ContactPhone,
		d.PavedAreaSqft, d.RegridOwner, d.PropertyBoundarySource, d.DiscoverySource)
	return err
}

// InsertBatch stores many deals using pgx.Batch, used by bulk discovery.
func (r *DealRepo) InsertBatch(ctx context.Context, deals []domain.Deal) error {
	if len(deals) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range deals {
		batch.Queue(`
			INSERT INTO deals (id, status, address, location, score, business,
				contact_name, contact_email, contact_phone,
				paved_area_sqft, regrid_owner, boundary_source, discovery_source)
			VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography,
				$6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING
		`, d.ID, d.Status, d.Address, d.Location.Lng, d.Location.Lat,
			d.Score, d.Business, d.ContactName, d.ContactEmail, d.ContactPhone,
			d.PavedAreaSqft, d.RegridOwner, d.PropertyBoundarySource, d.DiscoverySource)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range deals {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}
