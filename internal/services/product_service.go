// Package services – ProductService
//
// This file implements the ProductService, the orchestration layer for the
// from-URL creation flow: resolve or auto-create the store, scrape the page,
// create the product and its tracked URL, and seed the ledger with the first
// observed price.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/detect"
	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/utils"
)

// maxTitleLen bounds the product title column.
const maxTitleLen = 255

// maxImageLen bounds stored image URLs; longer ones (usually data: URIs)
// are dropped rather than truncated to garbage.
const maxImageLen = 2048

// ProductService creates and queries products and their tracked URLs.
type ProductService struct {
	// DB is the database handle.
	DB *gorm.DB
	// Stores resolves or bootstraps the store for a URL's host.
	Stores *StoreService
	// Scraper extracts the initial title/price/image from the page.
	Scraper *ScrapeService
	// Prices records observations into the ledger.
	Prices *PriceService
}

// CreateFromURL builds a fully tracked product from a single product-page
// URL in one call:
//
//  1. The URL's host is resolved to a store, auto-creating one through
//     detection when allowed and none exists. With autoCreateStore false a
//     missing store aborts with ErrStoreNotFound.
//  2. The page is scraped with the store's strategy. A page without a
//     price is rejected with ErrScrapeFailed; a product without a price
//     observation would never alert.
//  3. Product and Url rows are created, then the scraped price seeds the
//     ledger as the first observation.
func (s *ProductService) CreateFromURL(ctx context.Context, userID, rawURL string, autoCreateStore bool) (*domain.Product, error) {
	tr := otel.Tracer("services/ProductService")
	ctx, span := tr.Start(ctx, "CreateFromURL",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("page.url", rawURL),
		),
	)
	defer span.End()

	store, err := s.resolveStore(ctx, userID, rawURL, autoCreateStore)
	if err != nil {
		return nil, err
	}

	res, err := s.Scraper.ScrapeWithStore(ctx, rawURL, store)
	if err != nil {
		return nil, err
	}
	if res.Price == "" {
		log.Warn().Str("url", rawURL).Str("store_id", store.ID).Msg("product: page yielded no price")
		return nil, ErrScrapeFailed
	}

	title := utils.Truncate(res.Title, maxTitleLen)
	if title == "" {
		title = utils.Truncate(rawURL, maxTitleLen)
	}
	image := res.Image
	if len(image) > maxImageLen {
		image = ""
	}

	var product *domain.Product
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var terr error
		product, terr = repo.CreateProduct(ctx, tx, userID, title, image)
		if terr != nil {
			return terr
		}
		_, terr = repo.CreateUrl(ctx, tx, product.ID, store.ID, rawURL)
		return terr
	})
	if err != nil {
		return nil, err
	}

	url, err := s.urlForProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Prices.RecordPrice(ctx, url, res.Price); err != nil {
		// The product exists; the first observation retries on the next run.
		log.Warn().Err(err).Str("product_id", product.ID).Msg("product: initial price recording failed")
	}

	return repo.GetProduct(ctx, s.DB, product.ID)
}

// AddURL tracks an additional store page for an existing product and seeds
// its first price.
func (s *ProductService) AddURL(ctx context.Context, productID, rawURL string, autoCreateStore bool) (*domain.Url, error) {
	product, err := repo.GetProduct(ctx, s.DB, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	store, err := s.resolveStore(ctx, product.UserID, rawURL, autoCreateStore)
	if err != nil {
		return nil, err
	}

	url, err := repo.CreateUrl(ctx, s.DB, product.ID, store.ID, rawURL)
	if err != nil {
		return nil, err
	}
	if _, err := s.Prices.RecordPrice(ctx, url, ""); err != nil {
		log.Warn().Err(err).Str("url_id", url.ID).Msg("product: initial price recording failed")
	}
	return url, nil
}

// Get returns one product, mapping the missing row to ErrProductNotFound.
func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := repo.GetProduct(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return product, err
}

// List returns a page of the user's products plus the total count.
func (s *ProductService) List(ctx context.Context, userID string, page, perPage int) ([]domain.Product, int64, error) {
	offset, limit := utils.PageBounds(page, perPage)
	items, err := repo.ListProductsPage(ctx, s.DB, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.CountProducts(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Urls returns the tracked URLs of one product.
func (s *ProductService) Urls(ctx context.Context, productID string) ([]domain.Url, error) {
	if _, err := s.Get(ctx, productID); err != nil {
		return nil, err
	}
	return repo.ListUrlsForProduct(ctx, s.DB, productID)
}

// DeleteURL stops tracking one page, removing its ledger rows with it, then
// refreshes the owning product's cached aggregates.
func (s *ProductService) DeleteURL(ctx context.Context, urlID string) error {
	url, err := repo.GetUrl(ctx, s.DB, urlID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUrlNotFound
	}
	if err != nil {
		return err
	}
	if err := repo.DeleteUrl(ctx, s.DB, urlID); err != nil {
		return err
	}
	s.Prices.forgetURL(urlID)
	if err := s.Prices.refreshProductCache(ctx, url.ProductID); err != nil {
		log.Warn().Err(err).Str("product_id", url.ProductID).Msg("product: cache refresh failed")
	}
	return nil
}

// resolveStore returns the store owning rawURL's host. With autoCreate it
// bootstraps a missing store through detection; without it a missing store
// is ErrStoreNotFound.
func (s *ProductService) resolveStore(ctx context.Context, userID, rawURL string, autoCreate bool) (*domain.Store, error) {
	if autoCreate {
		return s.Stores.CreateFromURL(ctx, userID, rawURL)
	}
	store, err := repo.GetStoreByDomain(ctx, s.DB, detect.Host(rawURL))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrStoreNotFound
	}
	return store, err
}

// urlForProduct fetches the single URL created alongside a new product.
func (s *ProductService) urlForProduct(ctx context.Context, productID string) (*domain.Url, error) {
	urls, err := repo.ListUrlsForProduct(ctx, s.DB, productID)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, repo.ErrNotFound
	}
	return &urls[0], nil
}
