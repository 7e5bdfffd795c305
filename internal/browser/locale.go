package browser

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales.yaml
var defaultLocales []byte

// Semantic states shipped in the default table.
const (
	StateDLQEmpty         = "dlq_empty"
	StatePermissionDenied = "permission_denied"
	StateReportError      = "report_error"
)

// LocaleTable maps a semantic page state to the surface strings that
// represent it across locales.
type LocaleTable map[string][]string

// ParseLocales reads a table from YAML.
func ParseLocales(data []byte) (LocaleTable, error) {
	var t LocaleTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse locale table: %w", err)
	}
	return t, nil
}

// DefaultLocales returns a fresh copy of the embedded table.
func DefaultLocales() LocaleTable {
	t, err := ParseLocales(defaultLocales)
	if err != nil {
		panic(err)
	}
	return t
}

// Merge appends other's patterns to t, skipping duplicates, and returns t.
func (t LocaleTable) Merge(other LocaleTable) LocaleTable {
	for state, patterns := range other {
		seen := make(map[string]bool, len(t[state]))
		for _, p := range t[state] {
			seen[p] = true
		}
		for _, p := range patterns {
			if !seen[p] {
				t[state] = append(t[state], p)
				seen[p] = true
			}
		}
	}
	return t
}

// Outcome returns an outcome satisfied by any surface string of state.
func (t LocaleTable) Outcome(state string) (Outcome, error) {
	patterns := t[state]
	if len(patterns) == 0 {
		return Outcome{}, fmt.Errorf("locale table has no patterns for %q (known: %v)", state, t.States())
	}
	locs := make([]Locator, len(patterns))
	for i, p := range patterns {
		locs[i] = Text(p)
	}
	return Expect(state, locs...), nil
}

// Matches reports whether s contains any surface string of state.
func (t LocaleTable) Matches(state, s string) bool {
	for _, p := range t[state] {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// States lists the table's states, sorted.
func (t LocaleTable) States() []string {
	states := make([]string, 0, len(t))
	for s := range t {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}
