package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/dealdrop/slot-engine/internal/model"
	"github.com/dealdrop/slot-engine/internal/service"
)

// ClaimServiceInterface defines the interface for claim business logic.
type ClaimServiceInterface interface {
	Create(ctx context.Context, req *model.CreateClaimRequest) (*model.CreateClaimResponse, error)
	Cancel(ctx context.Context, claimID, userID string) error
	ListUserClaims(ctx context.Context, userID, offerID string) ([]model.Claim, error)
}

// ClaimHandler handles HTTP requests for claim operations.
type ClaimHandler struct {
	service   ClaimServiceInterface
	validator *validator.Validate
}

// NewClaimHandler creates a new ClaimHandler with the given service and validator.
func NewClaimHandler(svc ClaimServiceInterface, v *validator.Validate) *ClaimHandler {
	return &ClaimHandler{service: svc, validator: v}
}

// formatValidationError converts validator errors to client-facing messages.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fieldName(fe.Field())
			switch fe.Tag() {
			case "required":
				return "invalid request: " + field + " is required"
			case "notblank":
				return "invalid request: " + field + " cannot be whitespace only"
			case "redeemcode":
				return "invalid request: " + field + " is not a redemption code"
			case "max":
				return "invalid request: " + field + " exceeds maximum length of 255"
			case "gte", "lte":
				return "invalid request: " + field + " is out of range"
			default:
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// fieldName maps struct field names back to their JSON form.
func fieldName(field string) string {
	switch field {
	case "SlotID":
		return "slot_id"
	case "UserID":
		return "user_id"
	case "VenueID":
		return "venue_id"
	case "Code":
		return "code"
	case "Lat":
		return "lat"
	case "Lng":
		return "lng"
	default:
		return field
	}
}

// CreateClaim handles POST /api/claims requests to reserve a slot unit.
func (h *ClaimHandler) CreateClaim(c *fiber.Ctx) error {
	var req model.CreateClaimRequest

	// Parse JSON body
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	resp, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return h.mapCreateError(c, &req, err)
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("claim_id", resp.ClaimID).
		Str("slot_id", req.SlotID).
		Str("user_id", req.UserID).
		Int("slot_qty_remaining", resp.SlotQtyRemaining).
		Msg("claim created")

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// mapCreateError maps service errors to HTTP responses. Policy rejections
// are expected outcomes and are not logged as errors; they carry enough
// structured detail for the client to explain itself.
func (h *ClaimHandler) mapCreateError(c *fiber.Ctx, req *model.CreateClaimRequest, err error) error {
	switch {
	case errors.Is(err, service.ErrSlotNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "slot not found"})
	case errors.Is(err, service.ErrOfferNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "offer not found"})
	case errors.Is(err, service.ErrSlotNotLive):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "slot not live"})
	case errors.Is(err, service.ErrSlotNotStarted):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "slot not started"})
	case errors.Is(err, service.ErrSlotEnded):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "slot ended"})
	case errors.Is(err, service.ErrSlotFull):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "slot sold out"})
	case errors.Is(err, service.ErrUserLimitReached):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "per-user claim limit reached"})
	case errors.Is(err, service.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	var geofenceErr *service.OutsideGeofenceError
	if errors.As(err, &geofenceErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "outside geofence",
			"details": fiber.Map{
				"distance_km": geofenceErr.DistanceKm,
				"limit_km":    geofenceErr.LimitKm,
			},
		})
	}

	var cooldownErr *service.CooldownActiveError
	if errors.As(err, &cooldownErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cooldown active",
			"details": fiber.Map{
				"minutes_remaining": cooldownErr.MinutesRemaining,
			},
		})
	}

	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("slot_id", req.SlotID).
		Str("user_id", req.UserID).
		Msg("failed to create claim")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}

// CancelClaim handles POST /api/claims/:id/cancel requests.
func (h *ClaimHandler) CancelClaim(c *fiber.Ctx) error {
	claimID := c.Params("id")
	if claimID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: claim id is required"})
	}

	var req model.CancelClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	if err := h.service.Cancel(c.Context(), claimID, req.UserID); err != nil {
		if errors.Is(err, service.ErrClaimNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "claim not found"})
		}
		var stateErr *service.ClaimNotRedeemableError
		if errors.As(err, &stateErr) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":          "claim already finalized",
				"current_status": stateErr.Status,
			})
		}
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("claim_id", claimID).
			Str("user_id", req.UserID).
			Msg("failed to cancel claim")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("claim_id", claimID).
		Str("user_id", req.UserID).
		Msg("claim cancelled")

	return c.Status(fiber.StatusOK).Send(nil)
}

// ListUserClaims handles GET /api/users/:id/claims?offer_id= requests.
// Clients use this to re-fetch after an ambiguous timeout instead of
// retrying a claim blindly.
func (h *ClaimHandler) ListUserClaims(c *fiber.Ctx) error {
	userID := c.Params("id")
	offerID := c.Query("offer_id")
	if userID == "" || offerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: user id and offer_id are required"})
	}

	claims, err := h.service.ListUserClaims(c.Context(), userID, offerID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", userID).
			Str("offer_id", offerID).
			Msg("failed to list claims")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(fiber.Map{"claims": claims})
}
