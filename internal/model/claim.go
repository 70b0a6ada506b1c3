package model

import "time"

// ClaimStatus is the lifecycle state of a claim. The set is closed: a claim
// is created RESERVED and ends in exactly one of the three terminal states.
type ClaimStatus string

const (
	StatusReserved  ClaimStatus = "RESERVED"
	StatusRedeemed  ClaimStatus = "REDEEMED"
	StatusExpired   ClaimStatus = "EXPIRED"
	StatusCancelled ClaimStatus = "CANCELLED"
)

// validTransitions encodes the one-way state machine. Terminal states have
// no outgoing edges.
var validTransitions = map[ClaimStatus][]ClaimStatus{
	StatusReserved: {StatusRedeemed, StatusExpired, StatusCancelled},
}

// IsTerminal reports whether no further transition is allowed from s.
func (s ClaimStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// CanTransitionTo reports whether the edge s -> next is part of the state
// machine. Repositories additionally guard every terminal write with a
// conditional update on status = RESERVED.
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Claim is a customer's reservation of one unit of a slot's inventory.
// While a claim is RESERVED, one unit of the slot's qty_remaining is owed
// back to inventory; that unit is returned exactly once on expiry or
// cancellation, and consumed permanently on redemption.
type Claim struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	OfferID    string      `json:"offer_id"`
	SlotID     string      `json:"slot_id"`
	Status     ClaimStatus `json:"status"`
	ReservedAt time.Time   `json:"reserved_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	RedeemedAt *time.Time  `json:"redeemed_at,omitempty"`
	QRToken    string      `json:"-"` // credential, only exposed at creation
	SixCode    string      `json:"-"` // credential, only exposed at creation
}

// CreateClaimRequest is the DTO for POST /api/claims
type CreateClaimRequest struct {
	SlotID string   `json:"slot_id" validate:"required,notblank,max=255"`
	UserID string   `json:"user_id" validate:"required,notblank,max=255"`
	Lat    *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng    *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
}

// CreateClaimResponse is returned once, at creation; it is the only time the
// credentials leave the engine.
type CreateClaimResponse struct {
	ClaimID          string    `json:"claim_id"`
	QRToken          string    `json:"qr_token"`
	SixCode          string    `json:"six_code"`
	ExpiresAt        time.Time `json:"expires_at"`
	SlotQtyRemaining int       `json:"slot_qty_remaining"`
}

// RedeemClaimRequest is the DTO for POST /api/redemptions. Code is either
// the QR token or the six-digit form; the handler accepts both and the
// service disambiguates by shape.
type RedeemClaimRequest struct {
	Code    string `json:"code" validate:"required,redeemcode"`
	VenueID string `json:"venue_id" validate:"required,notblank,max=255"`
}

// RedeemClaimResponse is the DTO returned to staff on a successful redemption.
type RedeemClaimResponse struct {
	ClaimID    string    `json:"claim_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// CancelClaimRequest is the DTO for POST /api/claims/:id/cancel
type CancelClaimRequest struct {
	UserID string `json:"user_id" validate:"required,notblank,max=255"`
}

// ExpiredClaim is the slice of a claim the sweeper needs: which record to
// transition and which slot gets its unit back.
type ExpiredClaim struct {
	ID     string
	SlotID string
}
