// Package extract implements the strategy engine that pulls structured
// fields (title, price, image) out of a fetched document. A strategy is a
// declarative rule: a type, a query value, and optional prepend/append
// fragments. Candidates are evaluated first-match-wins with short-circuit;
// malformed queries are swallowed as non-matches so a single bad candidate
// can never abort an evaluation.
//
// The engine never returns an error: absence of a match is a nil *Result
// and the caller decides what that means (abort store auto-detection, keep
// the previous price on a failed re-scrape, ...).
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// Type is the closed set of extraction strategy kinds. Adding a new kind is
// a variant addition here plus an eval arm in evaluate.
type Type string

const (
	// TypeSelector is a CSS query, optionally suffixed with "|attr" to
	// extract an attribute instead of the element text.
	TypeSelector Type = "selector"
	// TypeXPath is an XPath expression; @attr and text() addressing are the
	// caller's responsibility, the engine returns the first result's string
	// form.
	TypeXPath Type = "xpath"
	// TypeRegex is a pattern with exactly one capture group applied to the
	// raw document text; capture group 1 of the first match wins.
	TypeRegex Type = "regex"
	// TypeJSON is a dot-notation path evaluated against the document parsed
	// as JSON.
	TypeJSON Type = "json"
)

// ParseType maps a stored strategy type string onto the closed enum. Unknown
// strings yield ok == false; such candidates are skipped during evaluation.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeSelector:
		return TypeSelector, true
	case TypeXPath:
		return TypeXPath, true
	case TypeRegex:
		return TypeRegex, true
	case TypeJSON:
		return TypeJSON, true
	}
	return "", false
}

// Strategy is one candidate rule within an ordered fallback list.
type Strategy struct {
	Type    Type   `json:"type"`
	Value   string `json:"value"`
	Prepend string `json:"prepend,omitempty"`
	Append  string `json:"append,omitempty"`
}

// Validate checks a candidate value and may rewrite it (e.g. normalize a
// price string to its numeric form). Returning ok == false rejects the
// candidate and lets evaluation continue down the fallback list.
type Validate func(raw string) (value string, ok bool)

// Result is the outcome of a successful extraction: the winning strategy,
// the raw extracted text, and the final value after validation and
// prepend/append composition.
type Result struct {
	Strategy Strategy
	Raw      string
	Value    string
}

// document lazily parses the raw text into the representations the strategy
// types need, so a fallback list mixing types parses each form at most once.
type document struct {
	raw string

	gq     *goquery.Document
	gqErr  bool
	xp     *html.Node
	xpErr  bool
	parsed bool
}

func newDocument(raw string) *document { return &document{raw: raw} }

func (d *document) goqueryDoc() *goquery.Document {
	if d.gq == nil && !d.gqErr {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.raw))
		if err != nil {
			d.gqErr = true
			return nil
		}
		d.gq = doc
	}
	return d.gq
}

func (d *document) xpathDoc() *html.Node {
	if d.xp == nil && !d.xpErr {
		node, err := htmlquery.Parse(strings.NewReader(d.raw))
		if err != nil {
			d.xpErr = true
			return nil
		}
		d.xp = node
	}
	return d.xp
}

// Extract evaluates candidates in order against doc and returns the first
// one that yields a non-empty value (accepted by validate when supplied).
// Prepend/append composition happens only on the winning candidate, never
// during matching. It returns nil when nothing matched.
func Extract(doc string, candidates []Strategy, validate Validate) *Result {
	d := newDocument(doc)

	for _, cand := range candidates {
		raw, ok := evaluate(d, cand)
		if !ok || raw == "" {
			continue
		}

		value := raw
		if validate != nil {
			v, ok := validate(raw)
			if !ok {
				continue
			}
			value = v
		}

		return &Result{
			Strategy: cand,
			Raw:      raw,
			Value:    cand.Prepend + value + cand.Append,
		}
	}
	return nil
}

// evaluate dispatches a single candidate to its type's evaluation. A false
// result means non-match, including every malformed-query case.
func evaluate(d *document, s Strategy) (string, bool) {
	switch s.Type {
	case TypeSelector:
		return evalSelector(d, s.Value)
	case TypeXPath:
		return evalXPath(d, s.Value)
	case TypeRegex:
		return evalRegex(d.raw, s.Value)
	case TypeJSON:
		return evalJSON(d.raw, s.Value)
	}
	return "", false
}

// evalSelector runs a CSS query. A "query|attr" value extracts the named
// attribute of the first matching node; otherwise the node text is used.
// Invalid selectors simply match nothing (cascadia compiles them into a
// never-matching matcher), so no recovery is needed here.
func evalSelector(d *document, value string) (string, bool) {
	doc := d.goqueryDoc()
	if doc == nil {
		return "", false
	}

	query, attr := splitSelectorAttr(value)
	if query == "" {
		return "", false
	}

	sel := doc.Find(query).First()
	if sel.Length() == 0 {
		return "", false
	}

	if attr != "" {
		v, ok := sel.Attr(attr)
		return strings.TrimSpace(v), ok
	}
	return strings.TrimSpace(sel.Text()), true
}

// evalXPath evaluates an XPath expression and returns the first result's
// inner text; for @attr expressions that is the attribute value. Malformed
// expressions are swallowed as non-match.
func evalXPath(d *document, expr string) (string, bool) {
	doc := d.xpathDoc()
	if doc == nil {
		return "", false
	}

	node, err := htmlquery.Query(doc, expr)
	if err != nil || node == nil {
		return "", false
	}
	return strings.TrimSpace(htmlquery.InnerText(node)), true
}

// evalRegex applies a pattern with exactly one capture group to the raw
// document text. Patterns that do not compile or carry no capture group are
// non-matches.
func evalRegex(raw, pattern string) (string, bool) {
	re, err := regexp.Compile(pattern)
	if err != nil || re.NumSubexp() < 1 {
		return "", false
	}
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// evalJSON resolves a dot-notation path against the document parsed as JSON
// (e.g. an embedded structured-data block). An absent path is a non-match.
func evalJSON(raw, path string) (string, bool) {
	res := gjson.Get(raw, path)
	if !res.Exists() {
		return "", false
	}
	return strings.TrimSpace(res.String()), true
}

// splitSelectorAttr splits a "query|attr" selector value on its last pipe.
// Pipes inside the CSS query itself are not supported by the strategy
// format, so the last segment is always the attribute name when present.
func splitSelectorAttr(value string) (query, attr string) {
	if i := strings.LastIndex(value, "|"); i >= 0 {
		return strings.TrimSpace(value[:i]), strings.TrimSpace(value[i+1:])
	}
	return strings.TrimSpace(value), ""
}
