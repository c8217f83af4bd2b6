package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMemberIdentifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		identifier string
		wantErr    bool
	}{
		{"Email", "alice@example.com", false},
		{"Plain Handle", "member-4411", false},
		{"Padded", "  bob@example.com  ", false},
		{"Empty", "", true},
		{"Whitespace Only", "   ", true},
		{"Broken Email", "alice@", true},
		{"Too Long", strings.Repeat("a", 255), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMemberIdentifier(tt.identifier)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateVerificationCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code    string
		length  int
		wantErr bool
	}{
		{"123456", 6, false},
		{"000000", 0, false},
		{"12345", 6, true},
		{"1234567", 6, true},
		{"12a456", 6, true},
		{"１２３４５６", 6, true},
		{"", 6, true},
		{"1234", 4, false},
	}

	for _, tt := range tests {
		err := ValidateVerificationCode(tt.code, tt.length)
		if tt.wantErr {
			assert.Error(t, err, tt.code)
		} else {
			assert.NoError(t, err, tt.code)
		}
	}
}

func TestValidateIP(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateIP("203.0.113.9"))
	assert.NoError(t, ValidateIP("2001:db8::1"))
	assert.Error(t, ValidateIP("not-an-ip"))
	assert.Error(t, ValidateIP(""))
}

func TestValidateUsername(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateUsername("desk_ops.1"))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername("has space"))
}
