// Package services – PriceService
//
// This file implements the PriceService, the owner of the price-ledger
// invariants: the same-day-same-value dedup on write and the
// notification-epoch suppression on read. Concurrent recordings for the same
// tracked URL are serialized through a per-URL lock plus a transactional
// check-then-insert; recordings for different URLs are fully independent.
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/currency"
	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/repo"
)

// PriceService implements the use-cases around the append-only price ledger.
type PriceService struct {
	// DB is the database handle used for all ledger operations.
	DB *gorm.DB
	// Scraper supplies the fallback scrape when RecordPrice is called
	// without a candidate price. Optional; without it an absent candidate
	// is a no-op.
	Scraper *ScrapeService
	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lockURL serializes writers of one tracked URL. Different URLs proceed
// concurrently.
func (s *PriceService) lockURL(urlID string) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[urlID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[urlID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// forgetURL drops the per-URL mutex once the URL is deleted, keeping the
// lock map bounded by the number of live URLs.
func (s *PriceService) forgetURL(urlID string) {
	s.mu.Lock()
	delete(s.locks, urlID)
	s.mu.Unlock()
}

func (s *PriceService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// sameCalendarDay compares two instants by UTC calendar day.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// RecordPrice appends a ledger row for url from the candidate raw price.
//
// Semantics:
//   - An empty candidate falls back to scraping the URL's own configured
//     strategy; if the scrape yields nothing either, the call is a no-op
//     and returns (nil, nil).
//   - The candidate is normalized through the currency heuristic and
//     rounded to 2 decimals.
//   - When the most recent row has the same rounded value and was created
//     on the same calendar day, the recording is skipped (nil, nil): a
//     repeated scrape run must not duplicate an unchanged observation.
//   - Otherwise a new immutable row is appended with notified = false, and
//     the owning product's cached min/avg/max projection is refreshed.
func (s *PriceService) RecordPrice(ctx context.Context, url *domain.Url, rawPrice string) (*domain.Price, error) {
	unlock := s.lockURL(url.ID)
	defer unlock()

	raw := strings.TrimSpace(rawPrice)
	if raw == "" {
		scraped, err := s.fallbackScrape(ctx, url)
		if err != nil {
			return nil, err
		}
		raw = scraped
	}
	if raw == "" {
		log.Info().Str("url_id", url.ID).Msg("price: no candidate price, skipping")
		return nil, nil
	}

	value := currency.Round2(currency.ToFloat(raw))
	now := s.now()

	var created *domain.Price
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := repo.LatestPrice(ctx, tx, url.ID)
		if err != nil {
			return err
		}
		if last != nil &&
			currency.Round2(last.Value) == value &&
			sameCalendarDay(last.CreatedAt, now) {
			log.Info().
				Str("url_id", url.ID).
				Float64("value", value).
				Msg("price: value and day unchanged, skipping")
			return nil
		}

		created, err = repo.CreatePrice(ctx, tx, url.ID, url.StoreID, value, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, nil
	}

	if err := s.refreshProductCache(ctx, url.ProductID); err != nil {
		// The ledger row is committed; a stale cache fixes itself on the
		// next recording.
		log.Warn().Err(err).Str("product_id", url.ProductID).Msg("price: cache refresh failed")
	}
	return created, nil
}

// fallbackScrape obtains a price candidate from the URL's own store
// strategy when the caller supplied none.
func (s *PriceService) fallbackScrape(ctx context.Context, url *domain.Url) (string, error) {
	if s.Scraper == nil {
		return "", nil
	}
	store, err := repo.GetStore(ctx, s.DB, url.StoreID)
	if err != nil {
		return "", err
	}
	res, err := s.Scraper.ScrapeWithStore(ctx, url.URL, store)
	if err != nil {
		return "", err
	}
	return res.Price, nil
}

// ShouldNotify reports whether newPrice warrants a user notification for
// this URL.
//
// The anchor of the current notification epoch is the earliest-created row
// with notified = true. Without one, the first ever price always notifies.
// Otherwise all rows created at or after the anchor are counted (total)
// along with those equal to the candidate value (sameAsNew); a notification
// goes out only when total > sameAsNew, i.e. at least one price in the
// epoch differs from the current candidate. When every price since the last
// notification equals the new one, the alert is suppressed. That is the
// guard against oscillating-but-unchanged values.
func (s *PriceService) ShouldNotify(ctx context.Context, urlID string, newPrice float64) (bool, error) {
	anchor, err := repo.FirstNotifiedPrice(ctx, s.DB, urlID)
	if err != nil {
		return false, err
	}
	if anchor == nil {
		return true, nil
	}

	total, err := repo.CountPricesSince(ctx, s.DB, urlID, anchor.CreatedAt)
	if err != nil {
		return false, err
	}
	sameAsNew, err := repo.CountPricesSinceWithValue(ctx, s.DB, urlID, anchor.CreatedAt, newPrice)
	if err != nil {
		return false, err
	}
	return total > sameAsNew, nil
}

// MarkNotified flips the notified flag of a ledger row exactly once. The
// flag is committed before delivery and never rolled back when delivery
// fails: losing an occasional notification is the accepted cost of never
// re-sending the same alert in a storm.
func (s *PriceService) MarkNotified(ctx context.Context, priceID string) error {
	err := repo.MarkPriceNotified(ctx, s.DB, priceID)
	if err == repo.ErrNotFound {
		// Already notified or gone; either way the transition happened.
		return nil
	}
	return err
}

// refreshProductCache recomputes the min/avg/max projection of the ledger.
func (s *PriceService) refreshProductCache(ctx context.Context, productID string) error {
	agg, n, err := repo.ProductPriceAggregates(ctx, s.DB, productID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	agg.Min = currency.Round2(agg.Min)
	agg.Avg = currency.Round2(agg.Avg)
	agg.Max = currency.Round2(agg.Max)
	return repo.UpdateProductPriceCache(ctx, s.DB, productID, agg)
}
