package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dealdrop/slot-engine/internal/model"
	"github.com/dealdrop/slot-engine/pkg/credential"
)

// SlotRepositoryInterface defines the interface for slot inventory access.
type SlotRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.OfferSlot, error)
	TryReserve(ctx context.Context, slotID string) (bool, int, error)
	Release(ctx context.Context, slotID string) (int, error)
}

// ClaimRepositoryInterface defines the interface for claim data access.
type ClaimRepositoryInterface interface {
	Insert(ctx context.Context, claim *model.Claim) error
	GetByID(ctx context.Context, id string) (*model.Claim, error)
	GetByQRToken(ctx context.Context, token string) (*model.Claim, error)
	GetBySixCode(ctx context.Context, code, venueID string) (*model.Claim, error)
	CountActive(ctx context.Context, userID, offerID string) (int, error)
	LastRedeemedAt(ctx context.Context, userID, offerID string) (*time.Time, error)
	ListByUserOffer(ctx context.Context, userID, offerID string) ([]model.Claim, error)
	MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id string) (bool, error)
}

// OfferRepositoryInterface defines the interface for offer/venue reads.
type OfferRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Offer, *model.Venue, error)
}

// ClaimService orchestrates claim creation and the terminal transitions.
// It is the only component that writes claim records.
type ClaimService struct {
	slotRepo       SlotRepositoryInterface
	claimRepo      ClaimRepositoryInterface
	offerRepo      OfferRepositoryInterface
	gate           *PolicyGate
	ttl            time.Duration
	releaseRetries int
	now            func() time.Time
}

// NewClaimService creates a ClaimService with the given repositories, claim
// TTL and release retry budget.
func NewClaimService(
	slotRepo SlotRepositoryInterface,
	claimRepo ClaimRepositoryInterface,
	offerRepo OfferRepositoryInterface,
	ttl time.Duration,
	releaseRetries int,
) *ClaimService {
	return &ClaimService{
		slotRepo:       slotRepo,
		claimRepo:      claimRepo,
		offerRepo:      offerRepo,
		gate:           NewPolicyGate(claimRepo),
		ttl:            ttl,
		releaseRetries: releaseRetries,
		now:            time.Now,
	}
}

// WithClock overrides the service clock. Primarily used for testing.
func (s *ClaimService) WithClock(now func() time.Time) *ClaimService {
	s.now = now
	return s
}

// Create reserves one unit of the slot for the user and persists a RESERVED
// claim carrying the redemption credentials.
// Returns:
//   - ErrSlotNotFound / ErrOfferNotFound when the references don't resolve
//   - a policy gate error when a check fails (no mutation happened)
//   - ErrSlotFull when the atomic reserve loses the capacity race
func (s *ClaimService) Create(ctx context.Context, req *model.CreateClaimRequest) (*model.CreateClaimResponse, error) {
	// Defense-in-depth: check for nil pointer even though handler validates
	if req == nil {
		return nil, ErrInvalidRequest
	}

	slot, err := s.slotRepo.GetByID(ctx, req.SlotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, ErrSlotNotFound
	}

	offer, venue, err := s.offerRepo.GetByID(ctx, slot.OfferID)
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	if offer == nil {
		return nil, ErrOfferNotFound
	}

	now := s.now()
	if err := s.gate.Check(ctx, offer, venue, slot, req.UserID, req.Lat, req.Lng, now); err != nil {
		return nil, err
	}

	// The gate pass is advisory; this is the authoritative capacity check.
	ok, remaining, err := s.slotRepo.TryReserve(ctx, req.SlotID)
	if err != nil {
		return nil, fmt.Errorf("reserve unit: %w", err)
	}
	if !ok {
		// Lost the race between gate precheck and reserve. Expected under
		// contention, reported like any other sold-out outcome.
		return nil, ErrSlotFull
	}

	claim, err := s.buildClaim(req, slot, now)
	if err == nil {
		err = s.claimRepo.Insert(ctx, claim)
		if err != nil {
			err = fmt.Errorf("persist claim: %w", err)
		}
	}
	if err != nil {
		// The unit was taken but no claim owns it. Compensate, or inventory
		// leaks permanently.
		if relErr := releaseWithRetry(ctx, s.slotRepo, req.SlotID, s.releaseRetries); relErr != nil {
			log.Error().
				Err(relErr).
				Str("slot_id", req.SlotID).
				Msg("failed to release unit after claim persistence failure; inventory leaked")
		}
		return nil, err
	}

	return &model.CreateClaimResponse{
		ClaimID:          claim.ID,
		QRToken:          claim.QRToken,
		SixCode:          claim.SixCode,
		ExpiresAt:        claim.ExpiresAt,
		SlotQtyRemaining: remaining,
	}, nil
}

func (s *ClaimService) buildClaim(req *model.CreateClaimRequest, slot *model.OfferSlot, now time.Time) (*model.Claim, error) {
	qrToken, err := credential.NewQRToken()
	if err != nil {
		return nil, err
	}
	sixCode, err := credential.NewSixCode()
	if err != nil {
		return nil, err
	}

	return &model.Claim{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		OfferID:    slot.OfferID,
		SlotID:     slot.ID,
		Status:     model.StatusReserved,
		ReservedAt: now,
		ExpiresAt:  now.Add(s.ttl),
		QRToken:    qrToken,
		SixCode:    sixCode,
	}, nil
}

// Redeem validates a staff-submitted code against a claim and performs the
// RESERVED -> REDEEMED transition. The unit stays consumed: redemption
// never releases inventory.
// Returns:
//   - ErrClaimNotFound when no claim matches the code at the venue
//   - ErrVenueScope when the claim belongs to a different venue
//   - *ClaimNotRedeemableError when the claim is already terminal
//   - ErrClaimExpired when the deadline passed but the sweeper hasn't run
func (s *ClaimService) Redeem(ctx context.Context, req *model.RedeemClaimRequest) (*model.RedeemClaimResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	claim, err := s.lookupByCode(ctx, req.Code, req.VenueID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, ErrClaimNotFound
	}

	if claim.Status != model.StatusReserved {
		return nil, &ClaimNotRedeemableError{Status: claim.Status}
	}

	now := s.now()
	if !claim.ExpiresAt.After(now) {
		// Past the deadline; the sweeper owns the EXPIRED write.
		return nil, ErrClaimExpired
	}

	ok, err := s.claimRepo.MarkRedeemed(ctx, claim.ID, now)
	if err != nil {
		return nil, fmt.Errorf("redeem claim: %w", err)
	}
	if !ok {
		// Lost the race against the sweeper (or a concurrent redemption).
		return nil, s.terminalStateError(ctx, claim.ID)
	}

	return &model.RedeemClaimResponse{ClaimID: claim.ID, RedeemedAt: now}, nil
}

// lookupByCode resolves the credential by shape: six-digit codes are scoped
// to the venue, QR tokens are globally unguessable but still venue-checked.
func (s *ClaimService) lookupByCode(ctx context.Context, code, venueID string) (*model.Claim, error) {
	if credential.IsSixCode(code) {
		claim, err := s.claimRepo.GetBySixCode(ctx, code, venueID)
		if err != nil {
			return nil, fmt.Errorf("lookup claim: %w", err)
		}
		return claim, nil
	}

	claim, err := s.claimRepo.GetByQRToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup claim: %w", err)
	}
	if claim == nil {
		return nil, nil
	}

	offer, _, err := s.offerRepo.GetByID(ctx, claim.OfferID)
	if err != nil {
		return nil, fmt.Errorf("lookup claim offer: %w", err)
	}
	if offer == nil || offer.VenueID != venueID {
		return nil, ErrVenueScope
	}
	return claim, nil
}

// Cancel explicitly releases a user's RESERVED claim and returns its unit
// to the slot. Idempotent against re-application: a second cancel reports
// the terminal state instead of mutating anything.
func (s *ClaimService) Cancel(ctx context.Context, claimID, userID string) error {
	claim, err := s.claimRepo.GetByID(ctx, claimID)
	if err != nil {
		return fmt.Errorf("get claim: %w", err)
	}
	// A claim id belonging to someone else reads as not found.
	if claim == nil || claim.UserID != userID {
		return ErrClaimNotFound
	}

	if claim.Status != model.StatusReserved {
		return &ClaimNotRedeemableError{Status: claim.Status}
	}

	ok, err := s.claimRepo.MarkCancelled(ctx, claim.ID)
	if err != nil {
		return fmt.Errorf("cancel claim: %w", err)
	}
	if !ok {
		return s.terminalStateError(ctx, claim.ID)
	}

	// Transition won; the unit goes back exactly once.
	if err := releaseWithRetry(ctx, s.slotRepo, claim.SlotID, s.releaseRetries); err != nil {
		log.Error().
			Err(err).
			Str("claim_id", claim.ID).
			Str("slot_id", claim.SlotID).
			Msg("failed to release unit for cancelled claim; inventory leaked")
		return fmt.Errorf("release unit: %w", err)
	}

	return nil
}

// ListUserClaims returns the user's claims for an offer, newest first. This
// backs the client's re-fetch path after an ambiguous request timeout.
func (s *ClaimService) ListUserClaims(ctx context.Context, userID, offerID string) ([]model.Claim, error) {
	return s.claimRepo.ListByUserOffer(ctx, userID, offerID)
}

// GetSlot returns a read-only snapshot of a slot for client re-browse.
// Returns ErrSlotNotFound if the slot doesn't exist.
func (s *ClaimService) GetSlot(ctx context.Context, id string) (*model.SlotResponse, error) {
	slot, err := s.slotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return nil, ErrSlotNotFound
	}
	return &model.SlotResponse{
		ID:           slot.ID,
		OfferID:      slot.OfferID,
		StartsAt:     slot.StartsAt,
		EndsAt:       slot.EndsAt,
		QtyTotal:     slot.QtyTotal,
		QtyRemaining: slot.QtyRemaining,
		State:        slot.State,
		Mode:         slot.Mode,
	}, nil
}

// terminalStateError re-reads a claim that lost a guarded transition and
// reports its terminal status.
func (s *ClaimService) terminalStateError(ctx context.Context, claimID string) error {
	claim, err := s.claimRepo.GetByID(ctx, claimID)
	if err != nil || claim == nil {
		return &ClaimNotRedeemableError{Status: model.StatusExpired}
	}
	return &ClaimNotRedeemableError{Status: claim.Status}
}

// releaseWithRetry returns a unit to inventory, retrying with exponential
// backoff because a swallowed release failure leaks inventory permanently.
// An overflow is not retried: re-releasing would not make it valid.
func releaseWithRetry(ctx context.Context, slots SlotRepositoryInterface, slotID string, retries int) error {
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < retries; attempt++ {
		_, err := slots.Release(ctx, slotID)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrInventoryOverflow) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}
