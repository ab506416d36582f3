// Package services – AlertService
//
// This file implements the AlertService, which turns a freshly recorded
// price row into a delivered notification when the suppression rules allow
// it. The notified flag is committed before delivery is attempted and is
// never rolled back afterwards, trading an occasional lost alert for an
// absolute guarantee against repeat alerts.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/currency"
	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/notify"
	"github.com/pricehound/go-price-backend/internal/repo"
)

// AlertService decides and delivers price-change notifications.
type AlertService struct {
	// DB is the database handle.
	DB *gorm.DB
	// Prices supplies the suppression decision and the flag transition.
	Prices *PriceService
	// Dispatcher delivers rendered messages through apprise.
	Dispatcher *notify.Dispatcher
	// Template is the installation's notification body template; empty
	// falls back to the built-in default.
	Template string
}

// ProcessPrice evaluates one ledger row and, when the epoch rules say so,
// marks it notified and delivers the alert to the product owner.
//
// Returns (false, nil) when the row was already notified or the epoch rules
// suppress it. A delivery failure is logged and reported, but the notified
// flag stays set.
func (s *AlertService) ProcessPrice(ctx context.Context, price *domain.Price) (bool, error) {
	if price.Notified {
		return false, nil
	}

	ok, err := s.Prices.ShouldNotify(ctx, price.UrlID, price.Value)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Debug().Str("price_id", price.ID).Msg("alert: suppressed, no differing price in epoch")
		return false, nil
	}

	url, err := repo.GetUrl(ctx, s.DB, price.UrlID)
	if err != nil {
		return false, err
	}
	store, err := repo.GetStore(ctx, s.DB, url.StoreID)
	if err != nil {
		return false, err
	}
	product, err := repo.GetProduct(ctx, s.DB, url.ProductID)
	if err != nil {
		return false, err
	}
	user, err := repo.GetUser(ctx, s.DB, product.UserID)
	if err != nil {
		return false, err
	}

	msg, err := s.render(ctx, price, url, store, product)
	if err != nil {
		return false, err
	}

	// The flag commits first. Duplicate alerts are worse than a lost one.
	if err := s.Prices.MarkNotified(ctx, price.ID); err != nil {
		return false, err
	}

	diag, err := s.Dispatcher.Send(ctx, userSettings(user), msg)
	if err != nil {
		log.Error().
			Err(err).
			Str("price_id", price.ID).
			Str("user_id", user.ID).
			Str("diag", diag).
			Msg("alert: delivery failed, flag stays set")
		return true, err
	}

	log.Info().
		Str("price_id", price.ID).
		Str("product_id", product.ID).
		Float64("value", price.Value).
		Msg("alert: delivered")
	return true, nil
}

// render builds the notification payload for a price row: formatted
// previous/new prices in the store locale, a trend glyph, and the URL's
// historical min/max.
func (s *AlertService) render(ctx context.Context, price *domain.Price, url *domain.Url, store *domain.Store, product *domain.Product) (notify.Message, error) {
	prev, err := repo.PreviousPrice(ctx, s.DB, price)
	if err != nil {
		return notify.Message{}, err
	}
	agg, _, err := repo.UrlPriceAggregates(ctx, s.DB, url.ID)
	if err != nil {
		return notify.Message{}, err
	}

	format := func(v float64) string {
		return currency.ToString(v, store.Locale, store.Currency)
	}
	newFormatted := format(price.Value)
	prevFormatted := newFormatted
	if prev != nil {
		prevFormatted = format(prev.Value)
	}

	vars := notify.TemplateVars{
		Evolution:     notify.Evolution(prevFormatted, newFormatted),
		PreviousPrice: prevFormatted,
		NewPrice:      newFormatted,
		Min:           format(agg.Min),
		Max:           format(agg.Max),
		URL:           url.URL,
	}
	return notify.Message{
		Title: product.Title,
		Body:  notify.Render(s.Template, vars),
	}, nil
}

// SendTest delivers a fixed probe message to one user so channel settings
// can be verified without waiting for a price change.
func (s *AlertService) SendTest(ctx context.Context, userID string) (string, error) {
	user, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNoUser
	}
	if err != nil {
		return "", err
	}
	return s.Dispatcher.Send(ctx, userSettings(user), notify.Message{
		Title: "Test notification",
		Body:  "Notification channel settings are working.",
	})
}

// userSettings converts the persisted per-user override into the delivery
// settings shape.
func userSettings(u *domain.User) notify.Settings {
	return notify.Settings{
		URL:   u.Notify.URL,
		Token: u.Notify.Token,
		Tags:  u.Notify.Tags,
	}
}
