package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/MASanner/findbottomlessmimosas-com/internal/model"
	"github.com/MASanner/findbottomlessmimosas-com/internal/resilience"
)

const maxPageBytes = 2 << 20

// HTMLExtractor fetches pages directly and reads schema.org JSON-LD venue
// blocks. Without JSON-LD it renders headings and paragraphs as markdown
// for ParseMarkdown. Free, but most listing sites block it.
type HTMLExtractor struct {
	client    *http.Client
	userAgent string
}

// NewHTML creates an HTMLExtractor with sensible timeouts.
func NewHTML() *HTMLExtractor {
	return &HTMLExtractor{
		client: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: "Mozilla/5.0 (compatible; MimosaBot/1.0)",
	}
}

func (h *HTMLExtractor) Name() string { return "html" }

func (h *HTMLExtractor) Extract(ctx context.Context, url string) (*Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "html: create request")
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "html: fetch %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "html: read body")
	}

	if block := DetectBlock(resp, body); block != BlockNone {
		return nil, eris.Errorf("html: %s blocked (%s)", url, block)
	}
	if resp.StatusCode >= 400 {
		err := eris.Errorf("html: %s returned status %d", url, resp.StatusCode)
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "html: parse document")
	}

	out := &Extraction{Source: h.Name(), Venues: jsonLDVenues(doc)}
	if len(out.Venues) == 0 {
		out.Markdown = documentMarkdown(doc)
	}
	return out, nil
}

var venueTypes = map[string]bool{
	"Restaurant":            true,
	"FoodEstablishment":     true,
	"BarOrPub":              true,
	"CafeOrCoffeeShop":      true,
	"Brewery":               true,
	"Winery":                true,
	"LocalBusiness":         true,
	"NightClub":             true,
	"FastFoodRestaurant":    true,
	"IceCreamShop":          true,
	"Bakery":                true,
	"DrinkingEstablishment": true,
}

// jsonLDVenues collects venue nodes from every ld+json script, following
// @graph arrays and ItemList elements.
func jsonLDVenues(doc *goquery.Document) []model.ExtractedVenue {
	var out []model.ExtractedVenue
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var node any
		if err := json.Unmarshal([]byte(s.Text()), &node); err != nil {
			return
		}
		walkLD(node, &out)
	})
	return out
}

func walkLD(node any, out *[]model.ExtractedVenue) {
	switch n := node.(type) {
	case []any:
		for _, item := range n {
			walkLD(item, out)
		}
	case map[string]any:
		if graph, ok := n["@graph"]; ok {
			walkLD(graph, out)
		}
		if elems, ok := n["itemListElement"]; ok {
			walkLD(elems, out)
		}
		if item, ok := n["item"]; ok {
			walkLD(item, out)
		}
		if isVenueType(n["@type"]) {
			if v, ok := ldVenue(n); ok {
				*out = append(*out, v)
			}
		}
	}
}

func isVenueType(t any) bool {
	switch v := t.(type) {
	case string:
		return venueTypes[v]
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok && venueTypes[s] {
				return true
			}
		}
	}
	return false
}

func ldVenue(n map[string]any) (model.ExtractedVenue, bool) {
	v := model.ExtractedVenue{
		Name:  ldString(n["name"]),
		Phone: ldString(n["telephone"]),
		Hours: ldHours(n["openingHours"]),
	}
	if v.Name == "" {
		return v, false
	}

	switch addr := n["address"].(type) {
	case string:
		v.Address = addr
	case map[string]any:
		v.Address = ldString(addr["streetAddress"])
		v.DetectedCity = ldString(addr["addressLocality"])
		v.DetectedState = ldString(addr["addressRegion"])
	}

	desc := ldString(n["description"])
	if mdMimosa.MatchString(desc) {
		v.EvidenceSnippet = desc
		if m := mdPrice.FindString(desc); m != "" {
			v.PriceOrDeal = m
		}
	}
	return v, true
}

func ldString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return fmt.Sprintf("%v", s)
	}
	return ""
}

func ldHours(v any) string {
	switch h := v.(type) {
	case string:
		return h
	case []any:
		parts := make([]string, 0, len(h))
		for _, p := range h {
			if s := ldString(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// documentMarkdown renders the readable parts of a page with markdown
// headings so ParseMarkdown can split it.
func documentMarkdown(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, noscript").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, address").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3", "h4":
			b.WriteString("## ")
		}
		b.WriteString(text)
		b.WriteByte('\n')
	})
	return b.String()
}
