package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdrop/slot-engine/internal/model"
)

// mockSweeperClaims is a mock implementation of SweeperClaimsInterface.
type mockSweeperClaims struct {
	listExpiredFn func(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error)
	markExpiredFn func(ctx context.Context, id string) (bool, error)
}

func (m *mockSweeperClaims) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
	if m.listExpiredFn != nil {
		return m.listExpiredFn(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockSweeperClaims) MarkExpired(ctx context.Context, id string) (bool, error) {
	if m.markExpiredFn != nil {
		return m.markExpiredFn(ctx, id)
	}
	return true, nil
}

func TestSweeper_SweepOnce_ExpiresAndReleases(t *testing.T) {
	expired := []model.ExpiredClaim{
		{ID: "claim_001", SlotID: "slot_001"},
		{ID: "claim_002", SlotID: "slot_002"},
	}
	var marked []string
	claims := &mockSweeperClaims{
		listExpiredFn: func(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
			assert.Equal(t, 100, limit)
			return expired, nil
		},
		markExpiredFn: func(ctx context.Context, id string) (bool, error) {
			marked = append(marked, id)
			return true, nil
		},
	}
	var released []string
	slots := &mockSlotRepository{
		releaseFn: func(ctx context.Context, slotID string) (int, error) {
			released = append(released, slotID)
			return 1, nil
		},
	}

	sweeper := NewSweeper(claims, slots, time.Second, 100, 3)
	swept, err := sweeper.SweepOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	assert.Equal(t, []string{"claim_001", "claim_002"}, marked)
	assert.Equal(t, []string{"slot_001", "slot_002"}, released)
}

func TestSweeper_SweepOnce_LostRaceDoesNotRelease(t *testing.T) {
	// A concurrent redemption won the guarded transition: the sweeper must
	// not release the unit, which is consumed.
	claims := &mockSweeperClaims{
		listExpiredFn: func(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
			return []model.ExpiredClaim{{ID: "claim_001", SlotID: "slot_001"}}, nil
		},
		markExpiredFn: func(ctx context.Context, id string) (bool, error) {
			return false, nil
		},
	}
	slots := &mockSlotRepository{
		releaseFn: func(ctx context.Context, slotID string) (int, error) {
			t.Fatal("release must not run when the transition lost the race")
			return 0, nil
		},
	}

	sweeper := NewSweeper(claims, slots, time.Second, 100, 3)
	swept, err := sweeper.SweepOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestSweeper_SweepOnce_ReleaseRetriedUntilSuccess(t *testing.T) {
	claims := &mockSweeperClaims{
		listExpiredFn: func(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
			return []model.ExpiredClaim{{ID: "claim_001", SlotID: "slot_001"}}, nil
		},
	}
	attempts := 0
	slots := &mockSlotRepository{
		releaseFn: func(ctx context.Context, slotID string) (int, error) {
			attempts++
			if attempts < 2 {
				return 0, errors.New("store unavailable")
			}
			return 1, nil
		},
	}

	sweeper := NewSweeper(claims, slots, time.Second, 100, 3)
	swept, err := sweeper.SweepOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, 2, attempts)
}

func TestSweeper_SweepOnce_OneFailureDoesNotStopTheBatch(t *testing.T) {
	claims := &mockSweeperClaims{
		listExpiredFn: func(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
			return []model.ExpiredClaim{
				{ID: "claim_001", SlotID: "slot_001"},
				{ID: "claim_002", SlotID: "slot_002"},
			}, nil
		},
	}
	slots := &mockSlotRepository{
		releaseFn: func(ctx context.Context, slotID string) (int, error) {
			if slotID == "slot_001" {
				return 0, errors.New("store unavailable")
			}
			return 1, nil
		},
	}

	sweeper := NewSweeper(claims, slots, time.Second, 100, 1)
	swept, err := sweeper.SweepOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, swept, "the second claim still gets swept")
}

func TestSweeper_SweepOnce_ListError(t *testing.T) {
	dbErr := errors.New("database connection failed")
	claims := &mockSweeperClaims{
		listExpiredFn: func(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
			return nil, dbErr
		},
	}

	sweeper := NewSweeper(claims, &mockSlotRepository{}, time.Second, 100, 3)
	_, err := sweeper.SweepOnce(context.Background())

	assert.ErrorIs(t, err, dbErr)
}

func TestSweeper_StartStop(t *testing.T) {
	var sweeps atomic.Int32
	claims := &mockSweeperClaims{
		listExpiredFn: func(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
			sweeps.Add(1)
			return nil, nil
		},
	}

	sweeper := NewSweeper(claims, &mockSlotRepository{}, 10*time.Millisecond, 100, 3)
	sweeper.Start()
	time.Sleep(60 * time.Millisecond)
	sweeper.Stop()

	assert.GreaterOrEqual(t, sweeps.Load(), int32(1), "the loop should have swept at least once")
	settled := sweeps.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, sweeps.Load(), "no sweeps after Stop")
}
