// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the minimal User repository used for
// ownership and backup-import resolution.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/domain"
)

// CreateUser inserts a new User row.
func CreateUser(ctx context.Context, db *gorm.DB, email, name string) (*domain.User, error) {
	u := &domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureUser creates a user with a fixed ID if it does not exist yet and
// returns the row either way. Entrypoints call it so the demo identity has
// a backing row for alerts and backup imports.
func EnsureUser(ctx context.Context, db *gorm.DB, id, email, name string) (*domain.User, error) {
	u, err := GetUser(ctx, db, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u = &domain.User{
		ID:        id,
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by primary key, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by email, or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FirstUser returns the oldest user row, the last-resort fallback when a
// backup payload references an unknown user. Returns ErrNotFound on an
// empty table.
func FirstUser(ctx context.Context, db *gorm.DB) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Order("created_at asc").First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
