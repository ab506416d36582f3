// Package services – ScrapeService
//
// This file implements the ScrapeService, which resolves a raw URL to its
// owning store (by hostname), fetches the document through the injected
// transport, and runs the store's configured field strategies over it. It is
// the read-only half of the scraping pipeline; recording the resulting price
// is the PriceService's concern.
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

// ScrapeResult is one scraped page: the store whose strategy was applied and
// the extracted fields. Empty fields did not resolve.
type ScrapeResult struct {
	Store *domain.Store
	Title string
	Price string
	Image string
}

// ScrapeService fetches documents and applies store strategies.
type ScrapeService struct {
	// DB is the database handle used for store lookups.
	DB *gorm.DB
	// Fetcher obtains raw documents; the transport (plain HTTP vs rendering
	// API) is an injected capability.
	Fetcher scrape.Fetcher
}

// ScrapeURL resolves rawURL's host to a store, fetches the page and
// extracts its fields. It returns ErrStoreNotFound when no store claims the
// host; fetch failures are returned as-is so the caller can retry or keep
// the previous price.
func (s *ScrapeService) ScrapeURL(ctx context.Context, rawURL string) (*ScrapeResult, error) {
	host := detect.Host(rawURL)
	store, err := repo.GetStoreByDomain(ctx, s.DB, host)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	return s.ScrapeWithStore(ctx, rawURL, store)
}

// ScrapeWithStore fetches rawURL and extracts fields using the given
// store's strategy, skipping the host lookup.
func (s *ScrapeService) ScrapeWithStore(ctx context.Context, rawURL string, store *domain.Store) (*ScrapeResult, error) {
	doc, err := s.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	fields := scrape.ExtractFields(doc, store.Strategy)
	log.Debug().
		Str("url", rawURL).
		Str("store_id", store.ID).
		Bool("has_title", fields.Title != "").
		Bool("has_price", fields.Price != "").
		Msg("scraped page")

	return &ScrapeResult{
		Store: store,
		Title: fields.Title,
		Price: fields.Price,
		Image: fields.Image,
	}, nil
}
