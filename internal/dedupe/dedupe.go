// Package dedupe derives the identity key that decides whether two
// observations describe the same venue.
package dedupe

import (
	"strings"

	"golang.org/x/text/cases"
)

// Separator joins the key parts.
const Separator = "|"

// Key returns the canonical identity of a venue. Name, address and city are
// case-folded, state is upper-cased, and whitespace runs collapse to a single
// space. Matching is exact after that: no fuzzy or phonetic comparison.
// Empty parts are omitted.
func Key(name, address, city, state string) string {
	fold := cases.Fold()
	parts := []string{
		collapse(fold.String(name)),
		collapse(fold.String(address)),
		collapse(fold.String(city)),
		collapse(strings.ToUpper(state)),
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, Separator)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
