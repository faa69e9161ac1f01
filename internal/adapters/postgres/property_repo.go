package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// PropertyRepo implements ports.PropertyRepository. A captured property is
// stored in one transaction: the imagery record plus the deal that makes it
// visible on the dashboard.
type PropertyRepo struct {
	db *DB
}

// NewPropertyRepo creates a new PropertyRepo.
func NewPropertyRepo(db *DB) *PropertyRepo {
	return &PropertyRepo{db: db}
}

// Create persists a captured property and its deal atomically. Either both
// rows land or neither does; a half-captured property must never appear in
// the deal list.
func (r *PropertyRepo) Create(ctx context.Context, deal *domain.Deal, capture *domain.CaptureResult) error {
	regrid, err := json.Marshal(capture.Regrid)
	if err != nil {
		return fmt.Errorf("encode regrid payload: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO properties (id, address, location, image_base64, image_width, image_height,
			area_sqft, regrid_payload)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7, $8, $9)
	`, capture.PropertyID, deal.Address, deal.Location.Lng, deal.Location.Lat,
		capture.ImageBase64, capture.ImageSize.Width, capture.ImageSize.Height,
		capture.AreaSqft, regrid)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO deals (id, status, address, location, paved_area_sqft,
			regrid_owner, boundary_source, discovery_source)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6, $7, $8, $9)
	`, deal.ID, deal.Status, deal.Address, deal.Location.Lng, deal.Location.Lat,
		capture.AreaSqft, deal.RegridOwner, deal.PropertyBoundarySource, deal.DiscoverySource)
	if err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}

	return tx.Commit(ctx)
}
