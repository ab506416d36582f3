// Package currency normalizes the locale-ambiguous price strings found on
// product pages into canonical floats, and formats floats back into a
// locale-aware money string for display and notifications.
//
// Parsing is heuristic: source pages mix thousands and decimal separators
// freely ("1.234,56", "1,234.56", "12,34"), so the decimal point is inferred
// from the relative position of the rightmost comma and dot. The two
// directions do not form an inverse pair; only ToFloat(ToString(x))
// round-trips approximately, because pages rarely follow the canonical
// locale format.
package currency

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// parseFailures counts raw price strings the normalizer could not turn into
// a number. A rising counter points at a store whose page layout changed,
// which would otherwise be masked by the 0.0 fallback of ToFloat.
var parseFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "currency_parse_failures_total",
	Help: "Total number of price strings that could not be parsed into a float.",
})

func init() {
	prometheus.MustRegister(parseFailures)
}

// Parse converts a raw price string into a float using the separator
// heuristic. The boolean result distinguishes a genuine zero price from an
// unparseable input; callers that need the distinction (the auto-detector
// price validator does not, by documented limitation) should use Parse
// rather than ToFloat.
//
// Heuristic, after stripping every rune except digits, comma, dot and minus:
//   - comma and dot both present: the one appearing later is the decimal
//     point, the earlier one is a thousands separator and is dropped;
//   - only comma present: the comma is the decimal point when exactly two
//     characters follow the last comma, otherwise a thousands separator;
//   - only dot or neither: parsed directly.
func Parse(raw string) (float64, bool) {
	cleaned := stripNonNumeric(strings.TrimSpace(raw))
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 == 2 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ToFloat is the compatibility wrapper around Parse: it never fails. An
// unparseable input is logged, counted, and degraded to 0.0 so a broken
// page read cannot abort a scrape run. The silent zero is a known
// data-quality tradeoff; the parseFailures counter keeps it observable.
func ToFloat(raw string) float64 {
	f, ok := Parse(raw)
	if !ok {
		parseFailures.Inc()
		log.Warn().Str("value", raw).Msg("currency: unparseable price string")
		return 0.0
	}
	return f
}

// Round2 rounds to the ledger's 2-decimal money semantics.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToString formats a float as a money string for the given BCP 47 locale and
// ISO 4217 currency code, rounding to 2 decimals first. Unknown locales or
// currency codes degrade to a plain "ISO 12.34" rendering rather than
// failing, since formatting feeds notifications that must always go out.
func ToString(value float64, locale, iso string) string {
	v := Round2(value)

	unit, err := currency.ParseISO(iso)
	if err != nil {
		return fmt.Sprintf("%s %.2f", iso, v)
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return fmt.Sprintf("%s %.2f", unit, v)
	}

	p := message.NewPrinter(tag)
	return p.Sprintf("%v", currency.NarrowSymbol(unit.Amount(v)))
}

// stripNonNumeric removes every rune except digits, comma, dot and minus.
func stripNonNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
