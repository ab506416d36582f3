// Package notify renders price-change events into channel payloads and
// delivers them through an apprise endpoint. Two interchangeable transports
// exist: a local command invocation of the apprise binary, and a remote HTTP
// POST against an apprise API. Per-recipient settings are merged onto the
// global defaults field by field before every delivery.
//
// Delivery failures are returned to the caller and never retried here; the
// notified flag on the triggering price row is committed ahead of delivery
// and stays set even when delivery fails.
package notify

import (
	"strings"
)

// LocalToken selects the local command transport when set as a settings
// token.
const LocalToken = "local"

// DefaultTags is applied whenever neither the global nor the user settings
// carry a tag value.
const DefaultTags = "all"

// DefaultTemplate is the built-in notification body. Installations override
// it through configuration; the substitution variables are fixed.
const DefaultTemplate = `{evolution} price changed from {previousPrice} to {newPrice}.

Min: {min} Max: {max}.

{url}`

// Settings is one apprise channel configuration level.
type Settings struct {
	URL   string `json:"url"`
	Token string `json:"token"`
	Tags  string `json:"tags"`
}

// Merge overlays user settings onto the global defaults. The override wins
// field by field; an unset Tags value defaults to "all" at either level.
func Merge(global, user Settings) Settings {
	out := global
	if user.URL != "" {
		out.URL = user.URL
	}
	if user.Token != "" {
		out.Token = user.Token
	}
	if user.Tags != "" {
		out.Tags = user.Tags
	}
	if out.Tags == "" {
		out.Tags = DefaultTags
	}
	return out
}

// Message is a rendered notification ready for any transport.
type Message struct {
	Title string
	Body  string
	Tags  string
}

// TemplateVars are the substitution variables of the user-editable
// notification template. All values are preformatted strings.
type TemplateVars struct {
	Evolution     string
	PreviousPrice string
	NewPrice      string
	Min           string
	Max           string
	URL           string
}

// Render substitutes the template variables into tpl. Unknown placeholders
// are left untouched so a typo in a custom template stays visible instead of
// silently vanishing.
func Render(tpl string, vars TemplateVars) string {
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultTemplate
	}
	r := strings.NewReplacer(
		"{evolution}", vars.Evolution,
		"{previousPrice}", vars.PreviousPrice,
		"{newPrice}", vars.NewPrice,
		"{min}", vars.Min,
		"{max}", vars.Max,
		"{url}", vars.URL,
	)
	return r.Replace(tpl)
}

// Evolution picks the trend glyph by comparing the previous and new
// *formatted* price strings with ordinary string ordering. For locales where
// formatted-string order disagrees with numeric order this can pick the
// wrong glyph; the comparison is kept as shipped pending a product decision
// on the intended semantics.
func Evolution(previousFormatted, newFormatted string) string {
	switch {
	case newFormatted > previousFormatted:
		return "\U0001F4C8" // chart increasing
	case newFormatted < previousFormatted:
		return "\U0001F4C9" // chart decreasing
	default:
		return "➖" // heavy minus
	}
}
