// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Product
// and Url models.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/domain"
)

// CreateProduct inserts a new Product row owned by userID.
func CreateProduct(ctx context.Context, db *gorm.DB, userID, title, image string) (*domain.Product, error) {
	p := &domain.Product{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Image:     image,
		Favourite: true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetProduct fetches a product by ID, or ErrNotFound.
func GetProduct(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProductByTitle fetches a user's product by exact title, or ErrNotFound.
// Backup imports use it to merge into an existing product instead of
// duplicating it.
func GetProductByTitle(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Product, error) {
	var p domain.Product
	if err := db.WithContext(ctx).Where("user_id = ? AND title = ?", userID, title).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUrlByAddress fetches a product's tracked URL by its address, or
// ErrNotFound.
func GetUrlByAddress(ctx context.Context, db *gorm.DB, productID, rawURL string) (*domain.Url, error) {
	var u domain.Url
	if err := db.WithContext(ctx).Where("product_id = ? AND url = ?", productID, rawURL).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListProducts returns all products of a user, most recent first. An empty
// userID lists every product regardless of owner (search index rebuilds).
func ListProducts(ctx context.Context, db *gorm.DB, userID string) ([]domain.Product, error) {
	var out []domain.Product
	q := db.WithContext(ctx)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Order("created_at desc").Find(&out).Error
	return out, err
}

// CountProducts returns the total number of products owned by userID.
func CountProducts(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListProductsPage returns a paginated slice of a user's products, most
// recent first. Use CountProducts for pagination metadata.
func ListProductsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateProductPriceCache writes the min/avg/max projection onto the product
// row. The cache is derived state; the ledger stays the source of truth.
func UpdateProductPriceCache(ctx context.Context, db *gorm.DB, id string, agg domain.PriceAggregates) error {
	res := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", id).
		Update("price_cache", agg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUrl inserts a tracked page row linking a product to a store.
func CreateUrl(ctx context.Context, db *gorm.DB, productID, storeID, rawURL string) (*domain.Url, error) {
	u := &domain.Url{
		ID:        uuid.NewString(),
		ProductID: productID,
		StoreID:   storeID,
		URL:       rawURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUrl fetches a tracked page by ID, or ErrNotFound.
func GetUrl(ctx context.Context, db *gorm.DB, id string) (*domain.Url, error) {
	var u domain.Url
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUrls returns every tracked page, oldest first. The batch scrape runner
// iterates this in a stable order.
func ListUrls(ctx context.Context, db *gorm.DB) ([]domain.Url, error) {
	var out []domain.Url
	err := db.WithContext(ctx).Order("created_at asc, id asc").Find(&out).Error
	return out, err
}

// ListUrlsForProduct returns the tracked pages of one product, oldest first.
func ListUrlsForProduct(ctx context.Context, db *gorm.DB, productID string) ([]domain.Url, error) {
	var out []domain.Url
	err := db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// DeleteUrl removes a tracked page and its entire price ledger in one
// transaction, mirroring the cascade the Url lifecycle requires.
func DeleteUrl(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("url_id = ?", id).Delete(&domain.Price{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Where("id = ?", id).Delete(&domain.Url{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
