package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdrop/slot-engine/internal/model"
	"github.com/dealdrop/slot-engine/internal/service"
)

// mockSlotService is a mock implementation of SlotServiceInterface.
type mockSlotService struct {
	getSlotFn func(ctx context.Context, id string) (*model.SlotResponse, error)
}

func (m *mockSlotService) GetSlot(ctx context.Context, id string) (*model.SlotResponse, error) {
	if m.getSlotFn != nil {
		return m.getSlotFn(ctx, id)
	}
	return nil, service.ErrSlotNotFound
}

func setupSlotTestApp(mockSvc *mockSlotService) *fiber.App {
	app := fiber.New()
	h := NewSlotHandler(mockSvc)
	app.Get("/api/slots/:id", h.GetSlot)
	return app
}

func TestGetSlot_Success(t *testing.T) {
	startsAt := time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)
	mockSvc := &mockSlotService{
		getSlotFn: func(ctx context.Context, id string) (*model.SlotResponse, error) {
			assert.Equal(t, "slot_001", id)
			return &model.SlotResponse{
				ID:           "slot_001",
				OfferID:      "offer_001",
				StartsAt:     startsAt,
				EndsAt:       startsAt.Add(3 * time.Hour),
				QtyTotal:     50,
				QtyRemaining: 12,
				State:        model.SlotLive,
				Mode:         model.ModeFlash,
			}, nil
		},
	}
	app := setupSlotTestApp(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/slots/slot_001", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "slot_001", body["id"])
	assert.Equal(t, float64(12), body["qty_remaining"])
	assert.Equal(t, "live", body["state"])
}

func TestGetSlot_NotFound(t *testing.T) {
	app := setupSlotTestApp(&mockSlotService{})

	req := httptest.NewRequest(http.MethodGet, "/api/slots/missing", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
