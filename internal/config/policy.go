package config

import "strings"

// UpdatePolicy says what happens when a build file changes.
type UpdatePolicy string

// Update policies. Any other value behaves like PolicyInteractive.
const (
	PolicyAutomatic   UpdatePolicy = "automatic"
	PolicyInteractive UpdatePolicy = "interactive"
	PolicyDisabled    UpdatePolicy = "disabled"
)

// ParseUpdatePolicy parses a policy name, ignoring case.
func ParseUpdatePolicy(s string) (UpdatePolicy, bool) {
	switch p := UpdatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAutomatic, PolicyInteractive, PolicyDisabled:
		return p, true
	default:
		return UpdatePolicy(s), false
	}
}

// Valid reports whether p is one of the known policies.
func (p UpdatePolicy) Valid() bool {
	switch p {
	case PolicyAutomatic, PolicyInteractive, PolicyDisabled:
		return true
	default:
		return false
	}
}
