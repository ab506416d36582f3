// Package services – BackupService
//
// This file implements the versioned backup export/import of the full
// tracking state: products with their owner reference, tracked URLs with
// their store definitions, and the complete price ledgers. Import is
// all-or-nothing within one transaction and idempotent across repeated
// restores of the same payload.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/currency"
	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/repo"
)

// BackupVersion is the payload schema version this build reads and writes.
const BackupVersion = 1

// BackupPayload is the top-level backup document.
type BackupPayload struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Products   []BackupProduct `json:"products"`
}

// BackupUser is the owner reference inside a payload. Only the email is
// carried; IDs never survive a restore.
type BackupUser struct {
	Email string `json:"email"`
}

// BackupProduct is one product with its owner and tracked URLs.
type BackupProduct struct {
	Title     string      `json:"title"`
	Image     string      `json:"image,omitempty"`
	Favourite bool        `json:"favourite"`
	User      *BackupUser `json:"user"`
	Urls      []BackupUrl `json:"urls"`
}

// BackupStore is the embedded store definition of a tracked URL. Restores
// resolve it by slug, then name, creating the store only when neither
// matches.
type BackupStore struct {
	Name           string                `json:"name"`
	Slug           string                `json:"slug"`
	Domains        []string              `json:"domains"`
	Strategy       domain.ScrapeStrategy `json:"scrape_strategy"`
	ScraperService string                `json:"scraper_service"`
	Locale         string                `json:"locale"`
	Currency       string                `json:"currency"`
}

// BackupUrl is one tracked URL with its store and price history.
type BackupUrl struct {
	URL    string        `json:"url"`
	Store  BackupStore   `json:"store"`
	Prices []BackupPrice `json:"prices"`
}

// BackupPrice is one ledger row of a payload.
type BackupPrice struct {
	Value     float64   `json:"price"`
	Notified  bool      `json:"notified"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportSummary tallies what a restore actually wrote; rows that already
// existed are not counted.
type ImportSummary struct {
	Products int `json:"products"`
	Urls     int `json:"urls"`
	Prices   int `json:"prices"`
}

// BackupService exports and restores the full tracking state.
type BackupService struct {
	// DB is the database handle.
	DB *gorm.DB
	// DefaultUserEmail resolves payload products whose owner reference is
	// missing or unknown. Empty falls through to the oldest user row.
	DefaultUserEmail string
}

// Export walks every product and assembles the versioned payload.
func (s *BackupService) Export(ctx context.Context) (*BackupPayload, error) {
	var products []domain.Product
	if err := s.DB.WithContext(ctx).Order("created_at asc").Find(&products).Error; err != nil {
		return nil, err
	}

	out := &BackupPayload{
		Version:    BackupVersion,
		ExportedAt: time.Now().UTC(),
		Products:   make([]BackupProduct, 0, len(products)),
	}
	for i := range products {
		bp, err := s.exportProduct(ctx, &products[i])
		if err != nil {
			return nil, err
		}
		out.Products = append(out.Products, bp)
	}
	return out, nil
}

func (s *BackupService) exportProduct(ctx context.Context, p *domain.Product) (BackupProduct, error) {
	bp := BackupProduct{
		Title:     p.Title,
		Image:     p.Image,
		Favourite: p.Favourite,
	}
	if user, err := repo.GetUser(ctx, s.DB, p.UserID); err == nil {
		bp.User = &BackupUser{Email: user.Email}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return bp, err
	}

	urls, err := repo.ListUrlsForProduct(ctx, s.DB, p.ID)
	if err != nil {
		return bp, err
	}
	for i := range urls {
		bu, err := s.exportUrl(ctx, &urls[i])
		if err != nil {
			return bp, err
		}
		bp.Urls = append(bp.Urls, bu)
	}
	return bp, nil
}

func (s *BackupService) exportUrl(ctx context.Context, u *domain.Url) (BackupUrl, error) {
	store, err := repo.GetStore(ctx, s.DB, u.StoreID)
	if err != nil {
		return BackupUrl{}, err
	}
	prices, err := repo.ListPrices(ctx, s.DB, u.ID, 0)
	if err != nil {
		return BackupUrl{}, err
	}

	bu := BackupUrl{
		URL: u.URL,
		Store: BackupStore{
			Name:           store.Name,
			Slug:           store.Slug,
			Domains:        store.Domains,
			Strategy:       store.Strategy,
			ScraperService: store.ScraperService,
			Locale:         store.Locale,
			Currency:       store.Currency,
		},
		Prices: make([]BackupPrice, 0, len(prices)),
	}
	// ListPrices is newest-first; payloads carry oldest-first.
	for i := len(prices) - 1; i >= 0; i-- {
		bu.Prices = append(bu.Prices, BackupPrice{
			Value:     prices[i].Value,
			Notified:  prices[i].Notified,
			CreatedAt: prices[i].CreatedAt,
		})
	}
	return bu, nil
}

// Import restores a payload inside one transaction. Any validation or
// storage failure rolls back the entire restore; a malformed payload is
// ErrInvalidBackup and an unresolvable owner is ErrNoUser.
//
// Re-importing an unchanged payload is a no-op: products merge by owner and
// title, URLs by address, stores by slug then name, and a price row is
// skipped when the URL already holds the same value on the same calendar
// day.
func (s *BackupService) Import(ctx context.Context, payload *BackupPayload) (ImportSummary, error) {
	var sum ImportSummary
	if payload == nil || payload.Version != BackupVersion || payload.Products == nil {
		return sum, ErrInvalidBackup
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range payload.Products {
			if err := s.importProduct(ctx, tx, &payload.Products[i], &sum); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}

	log.Info().
		Int("products", sum.Products).
		Int("urls", sum.Urls).
		Int("prices", sum.Prices).
		Msg("backup: import finished")
	return sum, nil
}

func (s *BackupService) importProduct(ctx context.Context, tx *gorm.DB, bp *BackupProduct, sum *ImportSummary) error {
	if bp.Title == "" {
		return ErrInvalidBackup
	}

	user, err := s.resolveUser(ctx, tx, bp.User)
	if err != nil {
		return err
	}

	product, err := repo.GetProductByTitle(ctx, tx, user.ID, bp.Title)
	if errors.Is(err, repo.ErrNotFound) {
		product, err = repo.CreateProduct(ctx, tx, user.ID, bp.Title, bp.Image)
		if err == nil {
			sum.Products++
		}
	}
	if err != nil {
		return err
	}

	for i := range bp.Urls {
		if err := s.importUrl(ctx, tx, product, &bp.Urls[i], sum); err != nil {
			return err
		}
	}
	return nil
}

func (s *BackupService) importUrl(ctx context.Context, tx *gorm.DB, product *domain.Product, bu *BackupUrl, sum *ImportSummary) error {
	if bu.URL == "" {
		return ErrInvalidBackup
	}

	store, err := s.resolveStore(ctx, tx, product.UserID, &bu.Store)
	if err != nil {
		return err
	}

	url, err := repo.GetUrlByAddress(ctx, tx, product.ID, bu.URL)
	if errors.Is(err, repo.ErrNotFound) {
		url, err = repo.CreateUrl(ctx, tx, product.ID, store.ID, bu.URL)
		if err == nil {
			sum.Urls++
		}
	}
	if err != nil {
		return err
	}

	for _, bp := range bu.Prices {
		value := currency.Round2(bp.Value)
		exists, err := repo.HasPriceOnDay(ctx, tx, url.ID, value, bp.CreatedAt)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := repo.RestorePrice(ctx, tx, url.ID, store.ID, value, bp.Notified, bp.CreatedAt); err != nil {
			return err
		}
		sum.Prices++
	}
	return nil
}

// resolveUser maps a payload owner reference to a local user: payload email
// first, then the configured default, then the oldest user row. An empty
// users table is ErrNoUser.
func (s *BackupService) resolveUser(ctx context.Context, tx *gorm.DB, ref *BackupUser) (*domain.User, error) {
	if ref != nil && ref.Email != "" {
		user, err := repo.GetUserByEmail(ctx, tx, ref.Email)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	if s.DefaultUserEmail != "" {
		user, err := repo.GetUserByEmail(ctx, tx, s.DefaultUserEmail)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	user, err := repo.FirstUser(ctx, tx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoUser
	}
	return user, err
}

// resolveStore matches an embedded store definition by slug, then by name,
// creating it only when neither matches.
func (s *BackupService) resolveStore(ctx context.Context, tx *gorm.DB, userID string, bs *BackupStore) (*domain.Store, error) {
	if bs.Slug != "" {
		store, err := repo.GetStoreBySlug(ctx, tx, bs.Slug)
		if err == nil {
			return store, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	if bs.Name != "" {
		store, err := repo.GetStoreByName(ctx, tx, bs.Name)
		if err == nil {
			return store, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	if bs.Name == "" {
		return nil, ErrInvalidBackup
	}

	store := &domain.Store{
		UserID:         userID,
		Name:           bs.Name,
		Slug:           bs.Slug,
		Domains:        bs.Domains,
		Strategy:       bs.Strategy,
		ScraperService: bs.ScraperService,
		Locale:         bs.Locale,
		Currency:       bs.Currency,
	}
	if err := repo.CreateStore(ctx, tx, store); err != nil {
		return nil, err
	}
	return store, nil
}
