// Package featureflags evaluates per-user product switches configured through FEATURE_FLAGS.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags gating product features.
const (
	LinkedInPublish  = "linkedin_publish"
	WeeklyDigest     = "weekly_digest"
	AnalyticsWebhook = "analytics_webhook"
)

// Known lists the flags the product checks.
var Known = []string{LinkedInPublish, WeeklyDigest, AnalyticsWebhook}

// rule is a parsed flag value: a fixed switch or a percentage rollout.
type rule struct {
	raw     string
	percent int
}

func parseRule(value string) (rule, bool) {
	switch value {
	case "on", "true", "1":
		return rule{raw: value, percent: 100}, true
	case "off", "false", "0":
		return rule{raw: value, percent: 0}, true
	}
	num, ok := strings.CutSuffix(value, "%")
	if !ok {
		return rule{}, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return rule{}, false
	}
	return rule{raw: value, percent: min(max(pct, 0), 100)}, true
}

// Manager holds flags parsed from a "name=value,..." list, for example
// "linkedin_publish=on,weekly_digest=25%,analytics_webhook=off".
// Values are on/true/1, off/false/0 or N% for a sticky per-user rollout.
// Entries with an unknown value are ignored.
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw into a Manager.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		name, value = normalize(name), normalize(value)
		if name == "" {
			continue
		}
		if r, ok := parseRule(value); ok {
			rules[name] = r
		}
	}
	return &Manager{rules: rules}
}

// Enabled reports whether name is on for userID. Unconfigured flags are off,
// and partial rollouts never include the anonymous user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	switch {
	case r.percent >= 100:
		return true
	case r.percent <= 0, userID == 0:
		return false
	}
	return bucket(normalize(name), userID) < r.percent
}

// Allows is Enabled for configured flags and true for unconfigured ones, so a
// feature is only switched off by an explicit entry.
func (m *Manager) Allows(name string, userID uint) bool {
	if m == nil {
		return true
	}
	if _, ok := m.rules[normalize(name)]; !ok {
		return true
	}
	return m.Enabled(name, userID)
}

// Raw returns the configured values by flag name.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every configured flag plus the Known ones for userID,
// using Allows semantics.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.rules)+len(Known))
	for name := range m.rules {
		out[name] = m.Allows(name, userID)
	}
	for _, name := range Known {
		out[name] = m.Allows(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
