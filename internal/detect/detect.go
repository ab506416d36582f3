// Package detect bootstraps a store definition from an unknown domain. It
// runs the extraction engine against a global heuristic catalog of candidate
// strategies (not store-specific) and, when both a title and a price
// resolve, derives the store attributes a caller can persist: host-based
// domain entries, a capitalized name, and the single winning strategy per
// field that subsequent scrapes will use instead of the catalog.
//
// Detection itself is stateless and performs no existence check; the caller
// must look up an existing store by host before fetching and detecting.
package detect

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pricehound/go-price-backend/internal/currency"
	"github.com/pricehound/go-price-backend/internal/extract"
)

// FieldCandidates is the heuristic fallback set for one field. Selector
// candidates as a group take priority over regex candidates as a group,
// regardless of how a configuration file interleaves them.
type FieldCandidates struct {
	Selectors []extract.Strategy `json:"selectors"`
	Regexes   []extract.Strategy `json:"regexes"`
}

// ordered returns selectors before regexes, the group priority detection
// guarantees per field.
func (f FieldCandidates) ordered() []extract.Strategy {
	out := make([]extract.Strategy, 0, len(f.Selectors)+len(f.Regexes))
	out = append(out, f.Selectors...)
	out = append(out, f.Regexes...)
	return out
}

// Catalog is the injected, immutable set of auto-detection candidates for
// the three product fields.
type Catalog struct {
	Title FieldCandidates `json:"title"`
	Price FieldCandidates `json:"price"`
	Image FieldCandidates `json:"image"`
}

// Defaults carries the system locale/currency applied to stores created by
// detection.
type Defaults struct {
	Locale   string
	Currency string
}

// FieldMatch records the winning strategy and extracted value for one field.
type FieldMatch struct {
	Type  extract.Type `json:"type"`
	Value string       `json:"value"`
	Data  string       `json:"data"`
}

// StoreAttributes is the bootstrapped store definition produced by Detect.
type StoreAttributes struct {
	Name     string
	Domains  []string
	Title    FieldMatch
	Price    FieldMatch
	Image    *FieldMatch // optional
	Scraper  string
	Locale   string
	Currency string
	TestURL  string
}

// DefaultCatalog covers the common structured markup of shop pages:
// Open Graph and schema.org metadata first, visible elements after, with
// raw-text regexes as the last resort per field.
func DefaultCatalog() Catalog {
	return Catalog{
		Title: FieldCandidates{
			Selectors: []extract.Strategy{
				{Type: extract.TypeSelector, Value: `meta[property="og:title"]|content`},
				{Type: extract.TypeSelector, Value: `meta[name="twitter:title"]|content`},
				{Type: extract.TypeSelector, Value: `h1[itemprop="name"]`},
				{Type: extract.TypeSelector, Value: `h1`},
				{Type: extract.TypeSelector, Value: `title`},
			},
			Regexes: []extract.Strategy{
				{Type: extract.TypeRegex, Value: `<title[^>]*>([^<|]+)`},
			},
		},
		Price: FieldCandidates{
			Selectors: []extract.Strategy{
				{Type: extract.TypeSelector, Value: `meta[property="product:price:amount"]|content`},
				{Type: extract.TypeSelector, Value: `meta[property="og:price:amount"]|content`},
				{Type: extract.TypeSelector, Value: `[itemprop="price"]|content`},
				{Type: extract.TypeSelector, Value: `[itemprop="price"]`},
				{Type: extract.TypeSelector, Value: `.price`},
				{Type: extract.TypeSelector, Value: `.product-price`},
			},
			Regexes: []extract.Strategy{
				{Type: extract.TypeRegex, Value: `"price"\s*:\s*"?([0-9][0-9.,]*)`},
				{Type: extract.TypeRegex, Value: `itemprop="price"[^>]*content="([^"]+)"`},
			},
		},
		Image: FieldCandidates{
			Selectors: []extract.Strategy{
				{Type: extract.TypeSelector, Value: `meta[property="og:image"]|content`},
				{Type: extract.TypeSelector, Value: `meta[name="twitter:image"]|content`},
				{Type: extract.TypeSelector, Value: `[itemprop="image"]|src`},
			},
			Regexes: []extract.Strategy{
				{Type: extract.TypeRegex, Value: `property="og:image"\s+content="([^"]+)"`},
			},
		},
	}
}

// Detect runs the engine once per field against the catalog and derives the
// store attributes for hostURL. It returns nil when the mandatory fields
// (title and price) cannot both be resolved; image is optional.
//
// The price validator is the currency normalizer, so a 0.0 parse is treated
// as no-match. A genuinely zero price is therefore indistinguishable from a
// parse failure here; that collision is accepted and documented rather than
// special-cased, since free products are not worth tracking.
func Detect(hostURL, doc string, cat Catalog, defaults Defaults) *StoreAttributes {
	title := matchField(doc, cat.Title, nil)
	price := matchField(doc, cat.Price, validatePrice)
	image := matchField(doc, cat.Image, nil)

	if title == nil || price == nil {
		return nil
	}

	host := Host(hostURL)
	if host == "" {
		return nil
	}

	attrs := &StoreAttributes{
		Name:     capitalize(host),
		Domains:  []string{host, "www." + host},
		Title:    *title,
		Price:    *price,
		Image:    image,
		Scraper:  "http",
		Locale:   defaults.Locale,
		Currency: defaults.Currency,
		TestURL:  hostURL,
	}
	return attrs
}

// matchField evaluates one field's candidates, selector group first. Only
// the winning {type, value} pair is kept; subsequent scrapes of the store
// use that concrete strategy, never the catalog.
func matchField(doc string, cands FieldCandidates, validate extract.Validate) *FieldMatch {
	res := extract.Extract(doc, cands.ordered(), validate)
	if res == nil {
		return nil
	}
	return &FieldMatch{
		Type:  res.Strategy.Type,
		Value: res.Strategy.Value,
		Data:  res.Value,
	}
}

// validatePrice accepts a candidate only when the normalizer yields a
// non-zero float, and rewrites the value to its canonical numeric form.
func validatePrice(raw string) (string, bool) {
	f, ok := currency.Parse(raw)
	if !ok || f == 0.0 {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// Host extracts the lowercase hostname of rawURL with any leading "www."
// stripped. It returns "" for unparseable input.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
