package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	m := NewManager("")
	assert.True(t, m.Enabled(MemberPush, 1))
	assert.True(t, m.Enabled(ExpiryJanitor, 0))
	assert.False(t, m.Enabled("unknown", 1))

	var nilManager *Manager
	assert.False(t, nilManager.Enabled(MemberPush, 1))
}

func TestOverrides(t *testing.T) {
	m := NewManager(" expiry_janitor = OFF , bad, =on, member_push=")
	assert.False(t, m.Enabled(ExpiryJanitor, 0))
	assert.True(t, m.Enabled(MemberPush, 5), "empty values are ignored")
	assert.Equal(t, map[string]string{MemberPush: "on", ExpiryJanitor: "off"}, m.Raw())
}

func TestBooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0,g=maybe")
	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "g"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestPercentageRollout(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,junk=x%")
	assert.True(t, m.Enabled("always", 0))
	assert.False(t, m.Enabled("never", 1))
	assert.False(t, m.Enabled("junk", 1))
	assert.False(t, m.Enabled("canary", 0))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout is stable per subject")
	}

	on := 0
	for id := uint(1); id <= 1000; id++ {
		if m.Enabled("canary", id) {
			on++
		}
	}
	assert.InDelta(t, 250, on, 80)
}
