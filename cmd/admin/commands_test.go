package main

import (
	"testing"

	"giftdesk/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestParseSections(t *testing.T) {
	assert.Nil(t, parseSections(""))
	assert.Equal(t,
		[]models.Section{models.SectionLoginRequests, models.SectionHistory},
		parseSections(" login_requests, ,history "))
}

func TestParseAdminID(t *testing.T) {
	id, err := parseAdminID("12")
	assert.NoError(t, err)
	assert.Equal(t, uint(12), id)

	for _, raw := range []string{"0", "-1", "abc", ""} {
		_, err := parseAdminID(raw)
		assert.Error(t, err, raw)
	}
}

func TestJoinSections(t *testing.T) {
	assert.Equal(t, "-", joinSections(nil))
	assert.Equal(t, "login_requests,admins", joinSections([]models.Section{models.SectionLoginRequests, models.SectionAdmins}))
}
