package service

import (
	"errors"
	"fmt"

	"github.com/dealdrop/slot-engine/internal/model"
)

var (
	// ErrSlotNotFound is returned when a slot cannot be found
	ErrSlotNotFound = errors.New("slot not found")

	// ErrOfferNotFound is returned when a slot references an offer that cannot be found
	ErrOfferNotFound = errors.New("offer not found")

	// ErrClaimNotFound is returned when no claim matches the given id or credential
	ErrClaimNotFound = errors.New("claim not found")

	// ErrInvalidRequest is returned when request data is invalid or incomplete
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSlotNotLive is returned when the slot is paused or not yet published
	ErrSlotNotLive = errors.New("slot not live")

	// ErrSlotNotStarted is returned when the slot window has not opened yet
	ErrSlotNotStarted = errors.New("slot not started")

	// ErrSlotEnded is returned when the slot window has closed
	ErrSlotEnded = errors.New("slot ended")

	// ErrSlotFull is returned when the slot has no remaining inventory.
	// Expected under contention; the engine never retries it.
	ErrSlotFull = errors.New("slot sold out")

	// ErrUserLimitReached is returned when the user already holds the
	// offer's maximum of reserved plus redeemed claims
	ErrUserLimitReached = errors.New("per-user claim limit reached")

	// ErrClaimExpired is returned when a redemption arrives past the
	// claim's deadline, even if the sweeper has not transitioned it yet
	ErrClaimExpired = errors.New("claim expired")

	// ErrVenueScope is returned when the acting staff member's venue does
	// not match the claim's venue
	ErrVenueScope = errors.New("claim belongs to a different venue")
)

// OutsideGeofenceError reports a geofence rejection with the measured
// distance so the client can explain itself.
type OutsideGeofenceError struct {
	DistanceKm float64
	LimitKm    float64
}

func (e *OutsideGeofenceError) Error() string {
	return fmt.Sprintf("outside geofence: %.2fkm away, limit %.2fkm", e.DistanceKm, e.LimitKm)
}

// CooldownActiveError reports a cooldown rejection with the remaining wait.
type CooldownActiveError struct {
	MinutesRemaining int
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active: %d minutes remaining", e.MinutesRemaining)
}

// ClaimNotRedeemableError reports an attempt to redeem or cancel a claim
// that already reached a terminal state. Re-applying a terminal transition
// is a client error, not a transient one; it is reported, never retried.
type ClaimNotRedeemableError struct {
	Status model.ClaimStatus
}

func (e *ClaimNotRedeemableError) Error() string {
	return fmt.Sprintf("claim not redeemable: status is %s", e.Status)
}

// ErrInventoryOverflow signals a release that would push qty_remaining past
// qty_total, meaning a unit was returned twice. Invariant violation: logged
// at error severity, never part of normal operation.
var ErrInventoryOverflow = errors.New("release exceeds slot capacity")
