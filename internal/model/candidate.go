package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PriceValue is a price as an extractor reported it: either a number or free
// text such as "$25 bottomless". The zero value means absent.
type PriceValue struct {
	Number *float64
	Text   *string
}

// PriceNumber returns a numeric PriceValue.
func PriceNumber(n float64) PriceValue { return PriceValue{Number: &n} }

// PriceText returns a textual PriceValue.
func PriceText(s string) PriceValue { return PriceValue{Text: &s} }

// IsZero reports whether no price was supplied.
func (p PriceValue) IsZero() bool { return p.Number == nil && p.Text == nil }

// UnmarshalJSON accepts a JSON number, a JSON string, or null.
func (p *PriceValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*p = PriceValue{}
		return nil
	}
	if s[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return eris.Wrap(err, "model: decode price text")
		}
		*p = PriceText(text)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrap(err, "model: decode price number")
	}
	*p = PriceNumber(n)
	return nil
}

// MarshalJSON writes the number, the text, or null.
func (p PriceValue) MarshalJSON() ([]byte, error) {
	switch {
	case p.Number != nil:
		return json.Marshal(*p.Number)
	case p.Text != nil:
		return json.Marshal(*p.Text)
	default:
		return []byte("null"), nil
	}
}

// HoursValue is opening hours as either free text or a day -> hours map.
type HoursValue struct {
	Text       *string
	Structured map[string]string
}

// HoursText returns a textual HoursValue.
func HoursText(s string) HoursValue { return HoursValue{Text: &s} }

// HoursMap returns a structured HoursValue.
func HoursMap(m map[string]string) HoursValue { return HoursValue{Structured: m} }

// IsZero reports whether no hours were supplied.
func (h HoursValue) IsZero() bool { return h.Text == nil && h.Structured == nil }

// UnmarshalJSON accepts a JSON string, an object of strings, or null.
func (h *HoursValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*h = HoursValue{}
		return nil
	}
	if s[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return eris.Wrap(err, "model: decode hours text")
		}
		*h = HoursText(text)
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return eris.Wrap(err, "model: decode hours map")
	}
	*h = HoursMap(m)
	return nil
}

// MarshalJSON writes the text, the map, or null.
func (h HoursValue) MarshalJSON() ([]byte, error) {
	switch {
	case h.Text != nil:
		return json.Marshal(*h.Text)
	case h.Structured != nil:
		return json.Marshal(h.Structured)
	default:
		return []byte("null"), nil
	}
}

// String renders hours in the stable storage form. Structured hours are
// serialized as a JSON object with keys in sorted order.
func (h HoursValue) String() string {
	if h.Text != nil {
		return *h.Text
	}
	if h.Structured == nil {
		return ""
	}
	keys := make([]string, 0, len(h.Structured))
	for k := range h.Structured {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(h.Structured[k])
		b.Write(kj)
		b.WriteByte(':')
		b.Write(vj)
	}
	b.WriteByte('}')
	return b.String()
}

// RawCandidate is one venue observation before interpretation. Any field may
// be absent.
type RawCandidate struct {
	Name            string     `json:"name,omitempty"`
	Address         string     `json:"address,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Price           PriceValue `json:"price"`
	EvidenceSnippet string     `json:"evidence_snippet,omitempty"`
	SourceURL       string     `json:"source_url,omitempty"`
	DetectedCity    string     `json:"detected_city,omitempty"`
	DetectedState   string     `json:"detected_state,omitempty"`
	Hours           HoursValue `json:"hours"`
}

// NormalizedCandidate is a candidate in canonical shape with required fields
// filled.
type NormalizedCandidate struct {
	Name            string  `json:"name"`
	Address         string  `json:"address"`
	City            string  `json:"city"`
	State           string  `json:"state"`
	Phone           string  `json:"phone"`
	Price           *int    `json:"price,omitempty"`
	EvidenceSnippet *string `json:"evidence_snippet,omitempty"`
	SourceURL       string  `json:"source_url"`
	Hours           *string `json:"hours,omitempty"`
}

// ScoredCandidate is a NormalizedCandidate with its confirmation score and the
// evidence flags that produced it.
type ScoredCandidate struct {
	NormalizedCandidate
	Score          int  `json:"score"`
	HasMimosaText  bool `json:"has_mimosa_text"`
	HasPrice       bool `json:"has_price"`
	HasBrunchHours bool `json:"has_brunch_hours"`
	HasMimosaImage bool `json:"has_mimosa_image"`
}

// ExtractedVenue is a loosely-typed venue item as returned by an extractor.
type ExtractedVenue struct {
	Name            string `json:"name"`
	Address         string `json:"address,omitempty"`
	Phone           string `json:"phone,omitempty"`
	PriceOrDeal     string `json:"price_or_deal,omitempty"`
	EvidenceSnippet string `json:"evidence_snippet,omitempty"`
	Hours           string `json:"hours,omitempty"`
	DetectedCity    string `json:"detected_city,omitempty"`
	DetectedState   string `json:"detected_state,omitempty"`
}

// UnmarshalJSON tolerates extractors that return the deal as a number or
// the hours as an object.
func (v *ExtractedVenue) UnmarshalJSON(data []byte) error {
	type plain ExtractedVenue
	aux := struct {
		*plain
		PriceOrDeal PriceValue `json:"price_or_deal"`
		Hours       HoursValue `json:"hours"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return eris.Wrap(err, "model: decode extracted venue")
	}
	switch {
	case aux.PriceOrDeal.Text != nil:
		v.PriceOrDeal = *aux.PriceOrDeal.Text
	case aux.PriceOrDeal.Number != nil:
		v.PriceOrDeal = strconv.FormatFloat(*aux.PriceOrDeal.Number, 'f', -1, 64)
	}
	v.Hours = aux.Hours.String()
	return nil
}
