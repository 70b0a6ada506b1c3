package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dealdrop/slot-engine/internal/geo"
	"github.com/dealdrop/slot-engine/internal/model"
)

// PolicyReader is the read-only claim access the gate needs.
type PolicyReader interface {
	CountActive(ctx context.Context, userID, offerID string) (int, error)
	LastRedeemedAt(ctx context.Context, userID, offerID string) (*time.Time, error)
}

// PolicyGate decides whether a claim attempt is allowed before any mutation
// happens. All checks are read-only and advisory: the atomic reserve in the
// slot repository remains the sole source of truth for capacity.
type PolicyGate struct {
	claims PolicyReader
}

// NewPolicyGate creates a PolicyGate backed by the given claim reader.
func NewPolicyGate(claims PolicyReader) *PolicyGate {
	return &PolicyGate{claims: claims}
}

// Check runs the gate checks in order, short-circuiting on the first
// failure: slot window, capacity precheck, geofence, cooldown, per-user
// limit. Geofence and cooldown are skipped when their inputs are absent
// (missing coordinates, zero policy values); the permissive geofence
// default means omitting location bypasses the fence, a deliberate
// product decision.
func (g *PolicyGate) Check(
	ctx context.Context,
	offer *model.Offer,
	venue *model.Venue,
	slot *model.OfferSlot,
	userID string,
	lat, lng *float64,
	now time.Time,
) error {
	// 1. Slot window
	if slot.State != model.SlotLive {
		return ErrSlotNotLive
	}
	if now.Before(slot.StartsAt) {
		return ErrSlotNotStarted
	}
	if !now.Before(slot.EndsAt) {
		return ErrSlotEnded
	}

	// 2. Capacity precheck (advisory; the reserve call decides for real)
	if slot.QtyRemaining <= 0 {
		return ErrSlotFull
	}

	// 3. Geofence, inclusive at the boundary
	if offer.GeofenceKm > 0 && venue != nil && venue.Lat != nil && venue.Lng != nil && lat != nil && lng != nil {
		dist := geo.DistanceKm(*lat, *lng, *venue.Lat, *venue.Lng)
		if dist > offer.GeofenceKm {
			return &OutsideGeofenceError{DistanceKm: dist, LimitKm: offer.GeofenceKm}
		}
	}

	// 4. Cooldown since the user's last redemption of this offer
	if offer.CooldownMinutes > 0 {
		redeemedAt, err := g.claims.LastRedeemedAt(ctx, userID, offer.ID)
		if err != nil {
			return fmt.Errorf("cooldown check: %w", err)
		}
		if redeemedAt != nil {
			cooldown := time.Duration(offer.CooldownMinutes) * time.Minute
			elapsed := now.Sub(*redeemedAt)
			if elapsed < cooldown {
				remaining := int(math.Ceil((cooldown - elapsed).Minutes()))
				return &CooldownActiveError{MinutesRemaining: remaining}
			}
		}
	}

	// 5. Per-user limit over RESERVED + REDEEMED claims
	limit := offer.PerUserLimit
	if limit <= 0 {
		limit = 1
	}
	active, err := g.claims.CountActive(ctx, userID, offer.ID)
	if err != nil {
		return fmt.Errorf("user limit check: %w", err)
	}
	if active >= limit {
		return ErrUserLimitReached
	}

	return nil
}
