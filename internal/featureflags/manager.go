// Package featureflags gates optional delivery paths with operator-set
// switches and deterministic percentage rollouts.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Known flags.
const (
	// MemberPush lets waiting members open the member room socket. Rolled
	// out per request id; members outside the rollout poll only.
	MemberPush = "member_push"
	// ExpiryJanitor cancels requests left pending past REQUEST_TTL_MINUTES.
	ExpiryJanitor = "expiry_janitor"
)

// Defaults apply before FEATURE_FLAGS is parsed.
const Defaults = MemberPush + "=on," + ExpiryJanitor + "=on"

// Manager evaluates flags defined as a comma separated key=value list, e.g.
// "member_push=25%,expiry_janitor=off".
type Manager struct {
	flags map[string]string
}

// NewManager parses Defaults and then raw, so raw overrides defaults.
func NewManager(raw string) *Manager {
	out := make(map[string]string)
	parseInto(out, Defaults)
	parseInto(out, raw)
	return &Manager{flags: out}
}

func parseInto(out map[string]string, raw string) {
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
}

// Enabled reports whether name is on for subjectID. Values are on/true/1,
// off/false/0 or N% for a stable rollout keyed by subjectID. A subjectID of
// zero is only in a rollout at 100%.
func (m *Manager) Enabled(name string, subjectID uint) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	if err != nil || pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	if subjectID == 0 {
		return false
	}
	return rolloutBucket(name, subjectID) < pct
}

// Raw returns a copy of the configured values.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, subjectID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", normalize(name), subjectID)
	return int(h.Sum32() % 100)
}
