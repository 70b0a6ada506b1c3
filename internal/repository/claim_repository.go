package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdrop/slot-engine/internal/model"
)

// ClaimPoolInterface defines the database operations needed by ClaimRepository.
type ClaimPoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ClaimRepository provides data access for claims using pgx. All terminal
// transitions go through conditional updates guarded on status = RESERVED,
// so the redeem/expire/cancel race has exactly one winner.
type ClaimRepository struct {
	pool ClaimPoolInterface
}

// NewClaimRepository creates a new ClaimRepository with the given pool.
func NewClaimRepository(pool *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

// NewClaimRepositoryWithPool creates a new ClaimRepository with a custom pool
// interface. This is primarily used for testing.
func NewClaimRepositoryWithPool(pool ClaimPoolInterface) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

const claimColumns = `id, user_id, offer_id, slot_id, status, reserved_at, expires_at, redeemed_at, qr_token, six_code`

func scanClaim(row pgx.Row) (*model.Claim, error) {
	var claim model.Claim
	err := row.Scan(
		&claim.ID,
		&claim.UserID,
		&claim.OfferID,
		&claim.SlotID,
		&claim.Status,
		&claim.ReservedAt,
		&claim.ExpiresAt,
		&claim.RedeemedAt,
		&claim.QRToken,
		&claim.SixCode,
	)
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// Insert persists a freshly reserved claim.
func (r *ClaimRepository) Insert(ctx context.Context, claim *model.Claim) error {
	query := `INSERT INTO claims (id, user_id, offer_id, slot_id, status, reserved_at, expires_at, qr_token, six_code)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		claim.ID, claim.UserID, claim.OfferID, claim.SlotID, claim.Status,
		claim.ReservedAt, claim.ExpiresAt, claim.QRToken, claim.SixCode)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// GetByID retrieves a claim by its id.
// Returns nil, nil if the claim is not found (service layer handles this).
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	claim, err := scanClaim(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get claim %s: %w", id, err)
	}
	return claim, nil
}

// GetByQRToken retrieves the claim holding the given QR token.
// Returns nil, nil when no claim matches.
func (r *ClaimRepository) GetByQRToken(ctx context.Context, token string) (*model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
	          WHERE qr_token = $1
	          ORDER BY reserved_at DESC
	          LIMIT 1`

	claim, err := scanClaim(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get claim by token: %w", err)
	}
	return claim, nil
}

// GetBySixCode retrieves the claim presenting the given six-digit code at
// the given venue. Six codes may collide across historical claims, so the
// lookup prefers a live RESERVED claim and otherwise returns the most
// recent terminal one, which lets the service report the terminal status.
func (r *ClaimRepository) GetBySixCode(ctx context.Context, code, venueID string) (*model.Claim, error) {
	query := `SELECT claims.id, claims.user_id, claims.offer_id, claims.slot_id, claims.status,
	                 claims.reserved_at, claims.expires_at, claims.redeemed_at, claims.qr_token, claims.six_code
	          FROM claims
	          JOIN offers ON offers.id = claims.offer_id
	          WHERE claims.six_code = $1 AND offers.venue_id = $2
	          ORDER BY CASE WHEN claims.status = 'RESERVED' THEN 0 ELSE 1 END, claims.reserved_at DESC
	          LIMIT 1`

	claim, err := scanClaim(r.pool.QueryRow(ctx, query, code, venueID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get claim by six code: %w", err)
	}
	return claim, nil
}

// CountActive counts the user's claims on an offer that hold or consumed a
// unit, i.e. status RESERVED or REDEEMED. Used by the per-user limit check.
func (r *ClaimRepository) CountActive(ctx context.Context, userID, offerID string) (int, error) {
	query := `SELECT COUNT(*) FROM claims
	          WHERE user_id = $1 AND offer_id = $2 AND status IN ('RESERVED', 'REDEEMED')`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID, offerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active claims: %w", err)
	}
	return count, nil
}

// LastRedeemedAt returns the user's most recent redemption time for an
// offer, or nil when the user never redeemed it. Used by the cooldown check.
func (r *ClaimRepository) LastRedeemedAt(ctx context.Context, userID, offerID string) (*time.Time, error) {
	query := `SELECT MAX(redeemed_at) FROM claims
	          WHERE user_id = $1 AND offer_id = $2 AND status = 'REDEEMED'`

	var redeemedAt *time.Time
	if err := r.pool.QueryRow(ctx, query, userID, offerID).Scan(&redeemedAt); err != nil {
		return nil, fmt.Errorf("get last redemption: %w", err)
	}
	return redeemedAt, nil
}

// ListByUserOffer returns the user's claims for an offer, newest first.
// On success, returns an empty slice (not nil) when no claims exist.
func (r *ClaimRepository) ListByUserOffer(ctx context.Context, userID, offerID string) ([]model.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims
	          WHERE user_id = $1 AND offer_id = $2
	          ORDER BY reserved_at DESC`

	rows, err := r.pool.Query(ctx, query, userID, offerID)
	if err != nil {
		return nil, fmt.Errorf("list claims for user %s: %w", userID, err)
	}
	defer rows.Close()

	claims := []model.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, *claim)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims rows: %w", err)
	}

	return claims, nil
}

// ListExpired returns up to limit RESERVED claims whose deadline has passed.
func (r *ClaimRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.ExpiredClaim, error) {
	query := `SELECT id, slot_id FROM claims
	          WHERE status = 'RESERVED' AND expires_at <= $1
	          ORDER BY expires_at
	          LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired claims: %w", err)
	}
	defer rows.Close()

	var expired []model.ExpiredClaim
	for rows.Next() {
		var e model.ExpiredClaim
		if err := rows.Scan(&e.ID, &e.SlotID); err != nil {
			return nil, fmt.Errorf("scan expired claim: %w", err)
		}
		expired = append(expired, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired claims rows: %w", err)
	}

	return expired, nil
}

// transitionFromReserved applies a terminal transition guarded on the claim
// still being RESERVED. Returns false when the claim lost the race and is
// already terminal; the caller decides what that means.
func (r *ClaimRepository) transitionFromReserved(ctx context.Context, query, id string, args ...any) (bool, error) {
	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRedeemed transitions RESERVED -> REDEEMED and stamps redeemed_at.
func (r *ClaimRepository) MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE claims SET status = 'REDEEMED', redeemed_at = $2
	          WHERE id = $1 AND status = 'RESERVED'`

	ok, err := r.transitionFromReserved(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark claim %s redeemed: %w", id, err)
	}
	return ok, nil
}

// MarkExpired transitions RESERVED -> EXPIRED.
func (r *ClaimRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	query := `UPDATE claims SET status = 'EXPIRED'
	          WHERE id = $1 AND status = 'RESERVED'`

	ok, err := r.transitionFromReserved(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark claim %s expired: %w", id, err)
	}
	return ok, nil
}

// MarkCancelled transitions RESERVED -> CANCELLED.
func (r *ClaimRepository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	query := `UPDATE claims SET status = 'CANCELLED'
	          WHERE id = $1 AND status = 'RESERVED'`

	ok, err := r.transitionFromReserved(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark claim %s cancelled: %w", id, err)
	}
	return ok, nil
}
