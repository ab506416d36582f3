// Field extraction against a store's configured strategies.
package scrape

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/extract"
)

// fieldMisses counts scrapes where a configured field produced no match,
// labeled by field name. A climbing title or price series usually means the
// store changed its markup and the strategy needs re-detection.
var fieldMisses = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scrape_field_misses_total",
		Help: "Scrapes where a configured field strategy produced no match.",
	},
	[]string{"field"},
)

func init() {
	prometheus.MustRegister(fieldMisses)
}

// Fields is the structured outcome of scraping one document with one store
// strategy. Empty strings mean the field did not resolve.
type Fields struct {
	Title string
	Price string
	Image string
}

// Candidates converts a stored fallback list into engine strategies,
// dropping entries whose type string is unknown.
func Candidates(list []domain.FieldStrategy) []extract.Strategy {
	out := make([]extract.Strategy, 0, len(list))
	for _, fs := range list {
		typ, ok := extract.ParseType(fs.Type)
		if !ok {
			continue
		}
		out = append(out, extract.Strategy{
			Type:    typ,
			Value:   fs.Value,
			Prepend: fs.Prepend,
			Append:  fs.Append,
		})
	}
	return out
}

// ExtractFields runs the three field strategies of a store against a
// document. Absence of a match is not an error; callers decide whether a
// missing price aborts the operation.
func ExtractFields(doc string, strategy domain.ScrapeStrategy) Fields {
	var f Fields
	if res := extract.Extract(doc, Candidates(strategy.Title), nil); res != nil {
		f.Title = res.Value
	} else {
		fieldMisses.WithLabelValues("title").Inc()
	}
	if res := extract.Extract(doc, Candidates(strategy.Price), nil); res != nil {
		f.Price = res.Value
	} else {
		fieldMisses.WithLabelValues("price").Inc()
	}
	if res := extract.Extract(doc, Candidates(strategy.Image), nil); res != nil {
		f.Image = res.Value
	} else {
		fieldMisses.WithLabelValues("image").Inc()
	}
	return f
}
