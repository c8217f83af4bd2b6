// Package validation checks member and admin input before it reaches the store.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultCodeLength is the verification code length members type in.
	DefaultCodeLength = 6

	maxIdentifierLength  = 254
	maxDeviceLabelLength = 120
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeIdentifier trims surrounding whitespace from a member identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.TrimSpace(identifier)
}

// ValidateMemberIdentifier requires a non-empty identifier. Identifiers that
// contain an @ must look like an email address.
func ValidateMemberIdentifier(identifier string) error {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return fmt.Errorf("member identifier is required")
	}
	if utf8.RuneCountInString(identifier) > maxIdentifierLength {
		return fmt.Errorf("member identifier must be at most %d characters", maxIdentifierLength)
	}
	if strings.Contains(identifier, "@") && !emailRegex.MatchString(identifier) {
		return fmt.Errorf("member identifier is not a valid email address")
	}
	return nil
}

// ValidateVerificationCode requires exactly length ASCII digits.
func ValidateVerificationCode(code string, length int) error {
	if length <= 0 {
		length = DefaultCodeLength
	}
	if len(code) != length {
		return fmt.Errorf("verification code must be exactly %d digits", length)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return fmt.Errorf("verification code must be exactly %d digits", length)
		}
	}
	return nil
}

// ValidateDeviceLabel bounds the free-text device description.
func ValidateDeviceLabel(label string) error {
	if utf8.RuneCountInString(strings.TrimSpace(label)) > maxDeviceLabelLength {
		return fmt.Errorf("device label must be at most %d characters", maxDeviceLabelLength)
	}
	return nil
}

// ValidateIP accepts IPv4 and IPv6 literals.
func ValidateIP(ip string) error {
	if net.ParseIP(strings.TrimSpace(ip)) == nil {
		return fmt.Errorf("%q is not a valid IP address", ip)
	}
	return nil
}
