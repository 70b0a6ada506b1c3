package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/dealdrop/slot-engine/internal/model"
	"github.com/dealdrop/slot-engine/internal/service"
)

// SlotServiceInterface defines the interface for slot reads.
type SlotServiceInterface interface {
	GetSlot(ctx context.Context, id string) (*model.SlotResponse, error)
}

// SlotHandler serves read-only slot snapshots for client re-browse.
type SlotHandler struct {
	service SlotServiceInterface
}

// NewSlotHandler creates a new SlotHandler with the given service.
func NewSlotHandler(svc SlotServiceInterface) *SlotHandler {
	return &SlotHandler{service: svc}
}

// GetSlot handles GET /api/slots/:id requests.
func (h *SlotHandler) GetSlot(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: slot id is required"})
	}

	slot, err := h.service.GetSlot(c.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSlotNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "slot not found"})
		}
		log.Error().Err(err).Str("slot_id", id).Msg("failed to get slot")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(slot)
}
