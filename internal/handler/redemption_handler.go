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

// RedemptionServiceInterface defines the interface for redemption logic.
type RedemptionServiceInterface interface {
	Redeem(ctx context.Context, req *model.RedeemClaimRequest) (*model.RedeemClaimResponse, error)
}

// RedemptionHandler handles the staff-facing redemption endpoint. The venue
// scope in the request is supplied by upstream staff authentication; this
// engine only enforces that the claim belongs to that venue.
type RedemptionHandler struct {
	service   RedemptionServiceInterface
	validator *validator.Validate
}

// NewRedemptionHandler creates a new RedemptionHandler with the given service and validator.
func NewRedemptionHandler(svc RedemptionServiceInterface, v *validator.Validate) *RedemptionHandler {
	return &RedemptionHandler{service: svc, validator: v}
}

// RedeemClaim handles POST /api/redemptions requests. The code field is
// either the QR token or the six-digit form; the service disambiguates.
func (h *RedemptionHandler) RedeemClaim(c *fiber.Ctx) error {
	var req model.RedeemClaimRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	resp, err := h.service.Redeem(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrClaimNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "claim not found"})
		case errors.Is(err, service.ErrVenueScope):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "claim belongs to a different venue"})
		case errors.Is(err, service.ErrClaimExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "claim expired"})
		}

		var stateErr *service.ClaimNotRedeemableError
		if errors.As(err, &stateErr) {
			// Includes double-redemption attempts: reported, never silently
			// accepted.
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":          "claim not redeemable",
				"current_status": stateErr.Status,
			})
		}

		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("venue_id", req.VenueID).
			Msg("failed to redeem claim")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	log.Info().
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Str("claim_id", resp.ClaimID).
		Str("venue_id", req.VenueID).
		Msg("claim redeemed")

	return c.JSON(resp)
}
