// Package normalize converts raw extractor candidates into canonical venue
// candidates.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
)

// Price band accepted as a mimosa price. Anything outside is noise.
const (
	MinPrice = 15
	MaxPrice = 99
)

const maxSnippet = 50

// AddressMode controls what happens to a candidate without an address.
type AddressMode string

const (
	// AddressLenient substitutes model.AddressNotListed.
	AddressLenient AddressMode = "lenient"
	// AddressStrict rejects the candidate.
	AddressStrict AddressMode = "strict"
)

// ParseAddressMode maps a config value to an AddressMode. Unknown values fall
// back to lenient.
func ParseAddressMode(s string) AddressMode {
	if AddressMode(strings.ToLower(strings.TrimSpace(s))) == AddressStrict {
		return AddressStrict
	}
	return AddressLenient
}

// Normalizer turns RawCandidates into NormalizedCandidates.
type Normalizer struct {
	Mode AddressMode
}

// New creates a Normalizer for the given address mode.
func New(mode AddressMode) *Normalizer {
	return &Normalizer{Mode: mode}
}

// Normalize applies the lenient address mode.
func Normalize(raw model.RawCandidate, fallbackCity, fallbackState string) (*model.NormalizedCandidate, bool) {
	return New(AddressLenient).Normalize(raw, fallbackCity, fallbackState)
}

// Normalize returns the canonical form of raw, or false when the candidate
// must be rejected. City and state detected on the page win over the
// fallbacks supplied by the caller.
func (n *Normalizer) Normalize(raw model.RawCandidate, fallbackCity, fallbackState string) (*model.NormalizedCandidate, bool) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, false
	}

	address := strings.TrimSpace(raw.Address)
	if address == "" {
		if n.Mode == AddressStrict {
			return nil, false
		}
		address = model.AddressNotListed
	}

	phone := strings.TrimSpace(raw.Phone)
	if phone == "" {
		phone = model.PhoneNotListed
	}

	out := &model.NormalizedCandidate{
		Name:      name,
		Address:   address,
		City:      pickCity(raw.DetectedCity, fallbackCity),
		State:     pickState(raw.DetectedState, fallbackState),
		Phone:     phone,
		Price:     ParsePrice(raw.Price),
		SourceURL: strings.TrimSpace(raw.SourceURL),
	}

	if raw.EvidenceSnippet != "" {
		s := truncate(raw.EvidenceSnippet, maxSnippet)
		out.EvidenceSnippet = &s
	}
	if !raw.Hours.IsZero() {
		h := raw.Hours.String()
		out.Hours = &h
	}
	return out, true
}

// ParsePrice returns the price as an integer in [MinPrice, MaxPrice], or nil.
// Text has every non-digit removed before parsing, so "$25" is 25 while
// "$25.00" is 2500 and dropped.
func ParsePrice(p model.PriceValue) *int {
	switch {
	case p.Number != nil:
		f := *p.Number
		if f != math.Trunc(f) {
			return nil
		}
		return inBand(int(f))
	case p.Text != nil:
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, *p.Text)
		if digits == "" || len(digits) > 3 {
			return nil
		}
		v, err := strconv.Atoi(digits)
		if err != nil {
			return nil
		}
		return inBand(v)
	}
	return nil
}

func inBand(v int) *int {
	if v < MinPrice || v > MaxPrice {
		return nil
	}
	return &v
}

func pickCity(detected, fallback string) string {
	if c := strings.TrimSpace(detected); c != "" {
		return c
	}
	return fallback
}

func pickState(detected, fallback string) string {
	s := strings.TrimSpace(detected)
	if s == "" {
		s = strings.TrimSpace(fallback)
	}
	s = truncate(strings.ToUpper(s), 2)
	if s == "" {
		return fallback
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
