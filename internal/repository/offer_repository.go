package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdrop/slot-engine/internal/model"
)

// OfferPoolInterface defines the database operations needed by OfferRepository.
type OfferPoolInterface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OfferRepository reads offer policy fields and venue coordinates from the
// catalog tables. The engine never writes them.
type OfferRepository struct {
	pool OfferPoolInterface
}

// NewOfferRepository creates a new OfferRepository with the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// NewOfferRepositoryWithPool creates a new OfferRepository with a custom pool
// interface. This is primarily used for testing.
func NewOfferRepositoryWithPool(pool OfferPoolInterface) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// GetByID retrieves an offer's policy fields together with its venue.
// Returns nil, nil, nil if the offer is not found (service layer handles this).
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*model.Offer, *model.Venue, error) {
	query := `SELECT o.id, o.venue_id, o.per_user_limit, o.cooldown_minutes, o.geofence_km,
	                 v.lat, v.lng
	          FROM offers o
	          JOIN venues v ON v.id = o.venue_id
	          WHERE o.id = $1`

	var offer model.Offer
	venue := model.Venue{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&offer.ID,
		&offer.VenueID,
		&offer.PerUserLimit,
		&offer.CooldownMinutes,
		&offer.GeofenceKm,
		&venue.Lat,
		&venue.Lng,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil // Not found - let service handle
		}
		return nil, nil, fmt.Errorf("get offer %s: %w", id, err)
	}
	venue.ID = offer.VenueID
	return &offer, &venue, nil
}
