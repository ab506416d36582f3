// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Store
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a store is not found, functions return ErrNotFound
//     (gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/domain"
)

// CreateStore inserts a new Store row, filling ID (random UUID), Slug
// (derived from the name) and CreatedAt (UTC) when unset.
func CreateStore(ctx context.Context, db *gorm.DB, s *domain.Store) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Slug == "" {
		s.Slug = Slugify(s.Name)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(s).Error
}

// GetStore fetches a single store by its ID, or ErrNotFound.
func GetStore(ctx context.Context, db *gorm.DB, id string) (*domain.Store, error) {
	var s domain.Store
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStoreByDomain returns the first store whose domain set contains host.
// Domains are stored as a JSON array, so the candidate match is a LIKE probe
// on the serialized column confirmed against the deserialized slice.
func GetStoreByDomain(ctx context.Context, db *gorm.DB, host string) (*domain.Store, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return nil, ErrNotFound
	}

	var candidates []domain.Store
	err := db.WithContext(ctx).
		Where("domains LIKE ?", "%"+host+"%").
		Order("created_at asc").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		for _, d := range candidates[i].Domains {
			if d == host {
				return &candidates[i], nil
			}
		}
	}
	return nil, ErrNotFound
}

// GetStoreBySlug fetches a store by its unique slug, or ErrNotFound.
func GetStoreBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Store, error) {
	var s domain.Store
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetStoreByName fetches a store by exact name, or ErrNotFound.
func GetStoreByName(ctx context.Context, db *gorm.DB, name string) (*domain.Store, error) {
	var s domain.Store
	if err := db.WithContext(ctx).Where("name = ?", name).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStores returns all stores ordered by name. It returns an empty slice
// when none exist.
func ListStores(ctx context.Context, db *gorm.DB) ([]domain.Store, error) {
	var out []domain.Store
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// UpdateStore saves the mutable attributes of an existing store.
func UpdateStore(ctx context.Context, db *gorm.DB, s *domain.Store) error {
	res := db.WithContext(ctx).Save(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Slugify lowercases a name and collapses every non-alphanumeric run into a
// single dash, producing the stable identifier backup payloads use to match
// stores across installations.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteRune('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
