// Package services – UpdateService
//
// This file implements the batch update runner that refreshes every tracked
// URL: fetch, extract, record, alert. URLs are processed serially with a
// politeness delay between fetches and a bounded number of attempts per URL
// per run. Scheduling is external; Run executes exactly one pass.
package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/repo"
)

var urlUpdates = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scrape_url_updates_total",
		Help: "Per-URL batch update outcomes.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(urlUpdates)
}

// UpdateSummary is the outcome tally of one batch pass.
type UpdateSummary struct {
	Total    int `json:"total"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Notified int `json:"notified"`
}

// UpdateService runs batch refreshes over all tracked URLs.
type UpdateService struct {
	// DB is the database handle.
	DB *gorm.DB
	// Scraper fetches and extracts each page.
	Scraper *ScrapeService
	// Prices records the extracted values.
	Prices *PriceService
	// Alerts evaluates freshly recorded rows. Optional; nil disables
	// alerting for the pass.
	Alerts *AlertService
	// Delay is the minimum spacing between fetches of consecutive URLs.
	Delay time.Duration
	// MaxAttempts bounds fetch retries per URL per pass. Values below 1
	// are treated as 1.
	MaxAttempts int
}

// Run executes one batch pass over every tracked URL in creation order.
// A URL whose fetches all fail is counted and skipped for this pass; the
// pass itself only fails on storage errors or context cancellation.
func (s *UpdateService) Run(ctx context.Context) (UpdateSummary, error) {
	tr := otel.Tracer("services/UpdateService")
	ctx, span := tr.Start(ctx, "Run")
	defer span.End()

	urls, err := repo.ListUrls(ctx, s.DB)
	if err != nil {
		return UpdateSummary{}, err
	}
	span.SetAttributes(attribute.Int("urls.total", len(urls)))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.Delay), 1)
	}

	sum := UpdateSummary{Total: len(urls)}
	stores := make(map[string]*domain.Store)

	for i := range urls {
		url := &urls[i]
		if err := limiter.Wait(ctx); err != nil {
			return sum, err
		}

		store, ok := stores[url.StoreID]
		if !ok {
			store, err = repo.GetStore(ctx, s.DB, url.StoreID)
			if err != nil {
				log.Error().Err(err).Str("url_id", url.ID).Msg("update: store lookup failed")
				sum.Failed++
				urlUpdates.WithLabelValues("failed").Inc()
				continue
			}
			stores[url.StoreID] = store
		}

		price, err := s.updateURL(ctx, url, store)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			log.Warn().Err(err).Str("url_id", url.ID).Str("url", url.URL).Msg("update: url failed, keeping previous price")
			sum.Failed++
			urlUpdates.WithLabelValues("failed").Inc()
		case price == nil:
			sum.Skipped++
			urlUpdates.WithLabelValues("skipped").Inc()
		default:
			sum.Updated++
			urlUpdates.WithLabelValues("updated").Inc()
			if s.Alerts != nil {
				sent, aerr := s.Alerts.ProcessPrice(ctx, price)
				if aerr != nil {
					log.Warn().Err(aerr).Str("price_id", price.ID).Msg("update: alert processing failed")
				}
				if sent {
					sum.Notified++
				}
			}
		}
	}

	log.Info().
		Int("total", sum.Total).
		Int("updated", sum.Updated).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("notified", sum.Notified).
		Msg("update: batch pass finished")
	return sum, nil
}

// updateURL fetches one page with bounded retries and records the extracted
// price. A nil row with nil error means the recording was deduplicated or
// the page yielded no candidate.
func (s *UpdateService) updateURL(ctx context.Context, url *domain.Url, store *domain.Store) (*domain.Price, error) {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var res *ScrapeResult
	var err error
	for try := 1; try <= attempts; try++ {
		res, err = s.Scraper.ScrapeWithStore(ctx, url.URL, store)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug().Err(err).Str("url_id", url.ID).Int("attempt", try).Msg("update: fetch attempt failed")
	}
	if err != nil {
		return nil, err
	}
	if res.Price == "" {
		return nil, nil
	}
	return s.Prices.RecordPrice(ctx, url, res.Price)
}
