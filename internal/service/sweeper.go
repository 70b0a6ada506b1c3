package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dealdrop/slot-engine/internal/model"
)

// SweeperClaimsInterface is the claim access the sweeper needs.
type SweeperClaimsInterface interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error)
	MarkExpired(ctx context.Context, id string) (bool, error)
}

// Sweeper is the background task that transitions overdue RESERVED claims
// to EXPIRED and returns their units to inventory. It runs independently of
// request handling and communicates with it only through the store.
//
// The interval is a tuning knob, not a correctness parameter: redemption
// checks the deadline itself, so a lagging sweep never lets an expired
// claim be redeemed.
type Sweeper struct {
	claims         SweeperClaimsInterface
	slots          SlotRepositoryInterface
	interval       time.Duration
	batch          int
	releaseRetries int
	now            func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper over the given stores.
func NewSweeper(claims SweeperClaimsInterface, slots SlotRepositoryInterface, interval time.Duration, batch, releaseRetries int) *Sweeper {
	return &Sweeper{
		claims:         claims,
		slots:          slots,
		interval:       interval,
		batch:          batch,
		releaseRetries: releaseRetries,
		now:            time.Now,
	}
}

// WithClock overrides the sweeper clock. Primarily used for testing.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start launches the sweep loop. Call Stop to terminate it.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
		for {
			select {
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil {
					log.Error().Err(err).Msg("expiry sweep failed")
				}
			case <-ctx.Done():
				log.Info().Msg("expiry sweeper stopped")
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// SweepOnce expires one batch of overdue claims and returns how many claims
// it transitioned. Each claim is handled with the guarded two-step: the
// conditional EXPIRED write first, and only if that won against a
// concurrent redemption is the unit released. Release failures are retried
// and, if they still fail, logged at error severity; a silent drop here
// would leak inventory permanently.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.claims.ListExpired(ctx, s.now(), s.batch)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, claim := range expired {
		ok, err := s.claims.MarkExpired(ctx, claim.ID)
		if err != nil {
			log.Error().Err(err).Str("claim_id", claim.ID).Msg("failed to expire claim")
			continue
		}
		if !ok {
			// A concurrent redemption won; the unit stays consumed.
			continue
		}

		if err := releaseWithRetry(ctx, s.slots, claim.SlotID, s.releaseRetries); err != nil {
			log.Error().
				Err(err).
				Str("claim_id", claim.ID).
				Str("slot_id", claim.SlotID).
				Msg("failed to release unit for expired claim; inventory leaked")
			continue
		}

		swept++
		log.Debug().
			Str("claim_id", claim.ID).
			Str("slot_id", claim.SlotID).
			Msg("claim expired, unit released")
	}

	return swept, nil
}
