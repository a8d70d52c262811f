// Package eligibility answers per-state service questions from a static configuration table.
package eligibility

import (
	"sort"
	"strings"
)

// StateConfig is the service configuration for one US state or territory.
type StateConfig struct {
	Code       string `json:"code" yaml:"-"`
	Active     bool   `json:"active" yaml:"active"`
	RONAllowed bool   `json:"ron_allowed" yaml:"ron_allowed"`
	Notes      string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Matrix is an immutable lookup table keyed by normalized state code.
// The zero value is an empty matrix in which every state is inactive.
type Matrix struct {
	states map[string]StateConfig
}

func NewMatrix(configs []StateConfig) *Matrix {
	states := make(map[string]StateConfig, len(configs))
	for _, c := range configs {
		code := NormalizeState(c.Code)
		if code == "" {
			continue
		}
		c.Code = code
		states[code] = c
	}
	return &Matrix{states: states}
}

// NormalizeState trims and upper-cases a state code.
func NormalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// StateConfig returns the configuration for state, if present.
func (m *Matrix) StateConfig(state string) (StateConfig, bool) {
	if m == nil {
		return StateConfig{}, false
	}
	c, ok := m.states[NormalizeState(state)]
	return c, ok
}

// IsStateActive is false for any state absent from the matrix.
func (m *Matrix) IsStateActive(state string) bool {
	c, ok := m.StateConfig(state)
	return ok && c.Active
}

// IsRonAllowed requires the state to be both active and RON-permitting.
func (m *Matrix) IsRonAllowed(state string) bool {
	c, ok := m.StateConfig(state)
	return ok && c.Active && c.RONAllowed
}

// States returns every configured state sorted by code.
func (m *Matrix) States() []StateConfig {
	if m == nil {
		return nil
	}
	out := make([]StateConfig, 0, len(m.states))
	for _, c := range m.states {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.states)
}
