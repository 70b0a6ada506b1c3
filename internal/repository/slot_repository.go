package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdrop/slot-engine/internal/model"
	"github.com/dealdrop/slot-engine/internal/service"
)

// SlotPoolInterface defines the database operations needed by SlotRepository.
// This allows for easier testing with mocks.
type SlotPoolInterface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SlotRepository owns the qty_remaining counter. It is the only code that
// mutates it, and only through the two atomic operations below.
type SlotRepository struct {
	pool SlotPoolInterface
}

// NewSlotRepository creates a new SlotRepository with the given pool.
func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// NewSlotRepositoryWithPool creates a new SlotRepository with a custom pool
// interface. This is primarily used for testing.
func NewSlotRepositoryWithPool(pool SlotPoolInterface) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// GetByID retrieves a slot by its id.
// Returns nil, nil if the slot is not found (service layer handles this).
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*model.OfferSlot, error) {
	query := `SELECT id, offer_id, starts_at, ends_at, qty_total, qty_remaining, state, mode
	          FROM offer_slots WHERE id = $1`

	var slot model.OfferSlot
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&slot.ID,
		&slot.OfferID,
		&slot.StartsAt,
		&slot.EndsAt,
		&slot.QtyTotal,
		&slot.QtyRemaining,
		&slot.State,
		&slot.Mode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get slot %s: %w", id, err)
	}
	return &slot, nil
}

// TryReserve atomically takes one unit from the slot's inventory. The
// decrement and the positivity check are a single conditional UPDATE, so
// concurrent callers can never both act on the same unit.
// Returns ok=false without mutation when the slot is sold out.
func (r *SlotRepository) TryReserve(ctx context.Context, slotID string) (bool, int, error) {
	query := `UPDATE offer_slots
	          SET qty_remaining = qty_remaining - 1
	          WHERE id = $1 AND qty_remaining > 0
	          RETURNING qty_remaining`

	var remaining int
	err := r.pool.QueryRow(ctx, query, slotID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, 0, nil // Sold out (or slot missing) - no mutation happened
		}
		return false, 0, fmt.Errorf("reserve unit for slot %s: %w", slotID, err)
	}
	return true, remaining, nil
}

// Release returns one unit to the slot's inventory, clamped so
// qty_remaining never exceeds qty_total. A clamp hit means a unit is being
// returned twice; that is a programming error, surfaced as
// service.ErrInventoryOverflow rather than silently absorbed.
func (r *SlotRepository) Release(ctx context.Context, slotID string) (int, error) {
	query := `UPDATE offer_slots
	          SET qty_remaining = qty_remaining + 1
	          WHERE id = $1 AND qty_remaining < qty_total
	          RETURNING qty_remaining`

	var remaining int
	err := r.pool.QueryRow(ctx, query, slotID).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("release unit for slot %s: %w", slotID, service.ErrInventoryOverflow)
		}
		return 0, fmt.Errorf("release unit for slot %s: %w", slotID, err)
	}
	return remaining, nil
}
