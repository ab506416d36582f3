// Package services – StoreService
//
// This file implements the StoreService, which owns store lifecycle:
// listing, lookup and, most importantly, bootstrapping a store definition
// from a bare product URL by probing the page against a built-in catalog of
// common markup patterns.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/detect"
	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/scrape"
)

// StoreService manages stores and their auto-detection.
type StoreService struct {
	// DB is the database handle used for store persistence.
	DB *gorm.DB
	// Fetcher obtains the page markup probed during detection.
	Fetcher scrape.Fetcher
	// Defaults supply the locale/currency stamped onto detected stores.
	Defaults detect.Defaults
	// Catalog is the candidate set tried per field. Zero value falls back
	// to detect.DefaultCatalog.
	Catalog detect.Catalog
}

// catalog returns the configured detection catalog or the built-in default.
func (s *StoreService) catalog() detect.Catalog {
	if len(s.Catalog.Title.Selectors) > 0 || len(s.Catalog.Title.Regexes) > 0 {
		return s.Catalog
	}
	return detect.DefaultCatalog()
}

// CreateFromURL returns the store owning rawURL's host, creating it through
// auto-detection when none exists yet.
//
// Detection fetches the page once and probes title, price and image against
// the catalog, selector candidates before regex candidates per field. Title
// and price are mandatory; without both the store cannot be bootstrapped and
// ErrDetectionFailed is returned. The winning {type, value} pair per field
// becomes the store's persisted strategy, so later scrapes replay exactly
// what worked during detection.
func (s *StoreService) CreateFromURL(ctx context.Context, userID, rawURL string) (*domain.Store, error) {
	host := detect.Host(rawURL)
	if host == "" {
		return nil, ErrDetectionFailed
	}

	existing, err := repo.GetStoreByDomain(ctx, s.DB, host)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	doc, err := s.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	attrs := detect.Detect(rawURL, doc, s.catalog(), s.Defaults)
	if attrs == nil {
		log.Warn().Str("url", rawURL).Msg("store: auto-detection found no usable title/price")
		return nil, ErrDetectionFailed
	}

	store := storeFromAttributes(userID, attrs)
	if err := repo.CreateStore(ctx, s.DB, store); err != nil {
		return nil, err
	}
	log.Info().
		Str("store_id", store.ID).
		Str("name", store.Name).
		Strs("domains", store.Domains).
		Msg("store: auto-created from url")
	return store, nil
}

// Get returns one store by id, mapping the missing row to ErrStoreNotFound.
func (s *StoreService) Get(ctx context.Context, id string) (*domain.Store, error) {
	store, err := repo.GetStore(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrStoreNotFound
	}
	return store, err
}

// List returns all stores ordered by name.
func (s *StoreService) List(ctx context.Context) ([]domain.Store, error) {
	return repo.ListStores(ctx, s.DB)
}

// Preview runs detection against rawURL without persisting anything. It is
// the dry-run used by the admin API to inspect what auto-creation would
// produce.
func (s *StoreService) Preview(ctx context.Context, rawURL string) (*detect.StoreAttributes, error) {
	doc, err := s.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	attrs := detect.Detect(rawURL, doc, s.catalog(), s.Defaults)
	if attrs == nil {
		return nil, ErrDetectionFailed
	}
	return attrs, nil
}

// storeFromAttributes converts a detection result into the persisted model.
// Each matched field yields a single-entry strategy list.
func storeFromAttributes(userID string, attrs *detect.StoreAttributes) *domain.Store {
	strategy := domain.ScrapeStrategy{
		Title: []domain.FieldStrategy{fieldStrategy(attrs.Title)},
		Price: []domain.FieldStrategy{fieldStrategy(attrs.Price)},
	}
	if attrs.Image != nil {
		strategy.Image = []domain.FieldStrategy{fieldStrategy(*attrs.Image)}
	}
	return &domain.Store{
		UserID:         userID,
		Name:           attrs.Name,
		Domains:        attrs.Domains,
		Strategy:       strategy,
		ScraperService: attrs.Scraper,
		Locale:         attrs.Locale,
		Currency:       attrs.Currency,
		TestURL:        attrs.TestURL,
	}
}

func fieldStrategy(m detect.FieldMatch) domain.FieldStrategy {
	return domain.FieldStrategy{Type: string(m.Type), Value: m.Value}
}
