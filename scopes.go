package grantkit

import (
	"sort"
	"strings"
)

// ScopeSet maps scope names to whether they are granted. A name that is
// present with a false value is known but denied, which is treated
// differently from a name that is absent entirely (see
// Engine.VerifyClient).
type ScopeSet map[string]bool

// NewScopeSet builds a ScopeSet with every named scope granted.
func NewScopeSet(scopes ...string) ScopeSet {
	s := make(ScopeSet, len(scopes))
	for _, name := range scopes {
		s[name] = true
	}
	return s
}

// Granted reports whether the scope is present and enabled.
func (s ScopeSet) Granted(name string) bool {
	return s[name]
}

// Known reports whether the scope is present at all, enabled or not.
func (s ScopeSet) Known(name string) bool {
	_, ok := s[name]
	return ok
}

// List returns the granted scope names in sorted order.
func (s ScopeSet) List() []string {
	var names []string
	for name, granted := range s {
		if granted {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the set.
func (s ScopeSet) Clone() ScopeSet {
	c := make(ScopeSet, len(s))
	for name, granted := range s {
		c[name] = granted
	}
	return c
}

// ParseScopes parses a space-separated scope string into a slice.
func ParseScopes(scopeStr string) []string {
	if scopeStr == "" {
		return nil
	}
	return strings.Fields(scopeStr)
}

// FormatScopes formats a slice of scopes into a space-separated string.
func FormatScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
