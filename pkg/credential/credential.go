// Package credential generates the two redemption credentials attached to a
// claim: an unguessable QR token and a human-presentable six-digit code.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// qrTokenBytes gives 128 bits of entropy, hex-encoded to 32 characters.
const qrTokenBytes = 16

// NewQRToken returns a cryptographically random hex token.
func NewQRToken() (string, error) {
	b := make([]byte, qrTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate qr token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewSixCode returns a uniformly random zero-padded decimal code in
// 000000..999999. Collisions across claims are acceptable: redemption is
// scoped by code and venue, and lookups only consider non-expired claims.
func NewSixCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate six code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// IsQRToken reports whether code has the shape of a hex QR token.
func IsQRToken(code string) bool {
	if len(code) != qrTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(code)
	return err == nil
}

// IsSixCode reports whether code has the shape of a six-digit code. Anything
// else is treated as a QR token by the redemption path.
func IsSixCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
