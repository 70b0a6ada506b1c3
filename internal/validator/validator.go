package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dealdrop/slot-engine/pkg/credential"
)

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// Register custom "notblank" validator - rejects whitespace-only strings
	// This is used for fields like slot and user identifiers that must have meaningful content
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// Register custom "redeemcode" validator - the redemption code must look
	// like one of the two credentials: a six-digit code or a hex QR token.
	// Rejecting other shapes up front keeps garbage out of the lookup path.
	_ = v.RegisterValidation("redeemcode", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true
		}
		return credential.IsSixCode(str) || credential.IsQRToken(str)
	})

	return v
}
