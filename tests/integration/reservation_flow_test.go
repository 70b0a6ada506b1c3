//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// TestHappyPath walks the core flow: one unit, user A claims it, user B is
// turned away, staff redeems A's code, and the unit stays consumed.
func TestHappyPath(t *testing.T) {
	cleanupTables(t)
	f := seedSlot(t, fixtureOpts{QtyTotal: 1})

	resp, body := createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", resp.StatusCode, body)
	}
	claimID := mustString(t, body, "claim_id")
	sixCode := mustString(t, body, "six_code")
	if got := body["slot_qty_remaining"].(float64); got != 0 {
		t.Errorf("Expected slot_qty_remaining 0, got %v", got)
	}
	if got := claimStatus(t, claimID); got != "RESERVED" {
		t.Errorf("Expected RESERVED, got %s", got)
	}

	// User B races in after the slot is drained.
	resp, body = createClaim(t, f.SlotID, "user_b")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a drained slot, got %d: %v", resp.StatusCode, body)
	}
	if body["error"] != "slot sold out" {
		t.Errorf("Expected slot sold out error, got %v", body["error"])
	}

	// Staff redeems A's six-digit code within the TTL.
	resp, body = redeemClaim(t, sixCode, f.VenueID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on redemption, got %d: %v", resp.StatusCode, body)
	}
	if got := claimStatus(t, claimID); got != "REDEEMED" {
		t.Errorf("Expected REDEEMED, got %s", got)
	}
	if got := slotQtyRemaining(t, f.SlotID); got != 0 {
		t.Errorf("Redemption must consume the unit; qty_remaining = %d", got)
	}

	// A second redemption of the same code is reported, not accepted.
	resp, body = redeemClaim(t, sixCode, f.VenueID)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 on double redemption, got %d: %v", resp.StatusCode, body)
	}
	if body["current_status"] != "REDEEMED" {
		t.Errorf("Expected current_status REDEEMED, got %v", body["current_status"])
	}
}

// TestExpiryRestoresCapacity verifies the sweeper transitions an overdue
// claim and returns its unit, after which another user can claim.
func TestExpiryRestoresCapacity(t *testing.T) {
	cleanupTables(t)
	f := seedSlot(t, fixtureOpts{QtyTotal: 1})

	resp, body := createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", resp.StatusCode, body)
	}
	claimID := mustString(t, body, "claim_id")
	sixCode := mustString(t, body, "six_code")

	forceExpiry(t, claimID)
	waitForStatus(t, claimID, "EXPIRED", 30*time.Second)

	if got := slotQtyRemaining(t, f.SlotID); got != 1 {
		t.Fatalf("Expiry must restore the unit; qty_remaining = %d", got)
	}

	// The stale code is now useless even at the right venue.
	resp, body = redeemClaim(t, sixCode, f.VenueID)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for an expired claim, got %d: %v", resp.StatusCode, body)
	}

	// And the freed unit is claimable again.
	resp, body = createClaim(t, f.SlotID, "user_b")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 after expiry freed the unit, got %d: %v", resp.StatusCode, body)
	}
}

// TestCooldown verifies the redemption-anchored cooldown window.
func TestCooldown(t *testing.T) {
	cleanupTables(t)
	f := seedSlot(t, fixtureOpts{QtyTotal: 5, PerUserLimit: 5, CooldownMinutes: 30})

	resp, body := createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", resp.StatusCode, body)
	}
	claimID := mustString(t, body, "claim_id")
	sixCode := mustString(t, body, "six_code")

	resp, body = redeemClaim(t, sixCode, f.VenueID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on redemption, got %d: %v", resp.StatusCode, body)
	}

	// Ten minutes into the 30-minute cooldown: rejected with the remainder.
	backdateRedemption(t, claimID, 10*time.Minute)
	resp, body = createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 during cooldown, got %d: %v", resp.StatusCode, body)
	}
	if body["error"] != "cooldown active" {
		t.Fatalf("Expected cooldown active, got %v", body["error"])
	}
	details := body["details"].(map[string]any)
	if got := details["minutes_remaining"].(float64); got != 20 {
		t.Errorf("Expected 20 minutes remaining, got %v", got)
	}

	// Past the window: accepted.
	backdateRedemption(t, claimID, 31*time.Minute)
	resp, body = createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 after cooldown elapsed, got %d: %v", resp.StatusCode, body)
	}
}

// TestPerUserLimit verifies a second claim by the same user is rejected
// while the first is still outstanding, and allowed after cancellation.
func TestPerUserLimit(t *testing.T) {
	cleanupTables(t)
	f := seedSlot(t, fixtureOpts{QtyTotal: 5, PerUserLimit: 1})

	resp, body := createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %v", resp.StatusCode, body)
	}
	claimID := mustString(t, body, "claim_id")

	resp, body = createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 at the per-user limit, got %d: %v", resp.StatusCode, body)
	}

	resp, body = postJSON(t, "/api/claims/"+claimID+"/cancel", map[string]any{"user_id": "user_a"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on cancel, got %d: %v", resp.StatusCode, body)
	}
	if got := slotQtyRemaining(t, f.SlotID); got != 5 {
		t.Errorf("Cancellation must return the unit; qty_remaining = %d", got)
	}

	resp, body = createClaim(t, f.SlotID, "user_a")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 after cancellation, got %d: %v", resp.StatusCode, body)
	}
}

func backdateRedemption(t *testing.T, claimID string, ago time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := testPool.Exec(ctx,
		"UPDATE claims SET redeemed_at = NOW() - make_interval(mins => $2) WHERE id = $1",
		claimID, int(ago.Minutes()))
	if err != nil {
		t.Fatalf("Failed to backdate redemption: %v", err)
	}
}
