package model

import "time"

// SlotState is the publication state of a slot. Only live slots accept claims.
type SlotState string

const (
	SlotScheduled SlotState = "scheduled"
	SlotLive      SlotState = "live"
	SlotEnded     SlotState = "ended"
	SlotPaused    SlotState = "paused"
)

// SlotMode distinguishes how the publication scheduler released the slot.
// The engine treats both modes identically; the field is carried for clients.
type SlotMode string

const (
	ModeFlash SlotMode = "flash"
	ModeDrip  SlotMode = "drip"
)

// OfferSlot is a time-boxed, quantity-limited inventory window for an offer.
// Slots are created by the external publication scheduler; this engine only
// mutates QtyRemaining, and only through the slot repository's atomic
// reserve/release operations.
type OfferSlot struct {
	ID           string    `json:"id"`
	OfferID      string    `json:"offer_id"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	QtyTotal     int       `json:"qty_total"`
	QtyRemaining int       `json:"qty_remaining"`
	State        SlotState `json:"state"`
	Mode         SlotMode  `json:"mode"`
}

// SlotResponse is the API response DTO for GET /api/slots/:id
type SlotResponse struct {
	ID           string    `json:"id"`
	OfferID      string    `json:"offer_id"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	QtyTotal     int       `json:"qty_total"`
	QtyRemaining int       `json:"qty_remaining"`
	State        SlotState `json:"state"`
	Mode         SlotMode  `json:"mode"`
}
