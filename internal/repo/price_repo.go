// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Price
// ledger.
//
// The ledger is append-only: rows are never updated after creation except
// for the notified flag, which MarkPriceNotified flips false -> true exactly
// once. Query helpers exist for the two decision procedures of the price
// tracker: the same-day-same-value dedup check and the notification-epoch
// counts.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/domain"
)

// CreatePrice appends a ledger row for a Url. The value is stored as given;
// rounding to 2 decimals is the caller's responsibility.
func CreatePrice(ctx context.Context, db *gorm.DB, urlID, storeID string, value float64, createdAt time.Time) (*domain.Price, error) {
	p := &domain.Price{
		ID:        uuid.NewString(),
		UrlID:     urlID,
		StoreID:   storeID,
		Value:     value,
		Notified:  false,
		CreatedAt: createdAt.UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// RestorePrice appends a ledger row with an explicit notified flag and
// original timestamp. Only backup imports use it; live recordings go through
// CreatePrice so new rows always start unnotified.
func RestorePrice(ctx context.Context, db *gorm.DB, urlID, storeID string, value float64, notified bool, createdAt time.Time) (*domain.Price, error) {
	p := &domain.Price{
		ID:        uuid.NewString(),
		UrlID:     urlID,
		StoreID:   storeID,
		Value:     value,
		Notified:  notified,
		CreatedAt: createdAt.UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPrice fetches a ledger row by ID, or ErrNotFound.
func GetPrice(ctx context.Context, db *gorm.DB, id string) (*domain.Price, error) {
	var p domain.Price
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestPrice returns the most recent ledger row for a Url, or nil when the
// ledger is empty.
func LatestPrice(ctx context.Context, db *gorm.DB, urlID string) (*domain.Price, error) {
	var p domain.Price
	err := db.WithContext(ctx).
		Where("url_id = ?", urlID).
		Order("created_at desc, id desc").
		First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PreviousPrice returns the most recent ledger row of a Url older than the
// given row, or nil when that row is the first observation.
func PreviousPrice(ctx context.Context, db *gorm.DB, p *domain.Price) (*domain.Price, error) {
	var prev domain.Price
	err := db.WithContext(ctx).
		Where("url_id = ? AND id <> ? AND created_at <= ?", p.UrlID, p.ID, p.CreatedAt).
		Order("created_at desc, id desc").
		First(&prev).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prev, nil
}

// ListPrices returns the ledger of a Url, most recent first, optionally
// limited.
func ListPrices(ctx context.Context, db *gorm.DB, urlID string, limit int) ([]domain.Price, error) {
	q := db.WithContext(ctx).
		Where("url_id = ?", urlID).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Price
	err := q.Find(&out).Error
	return out, err
}

// FirstNotifiedPrice returns the earliest-created row with notified = true
// for a Url, the anchor of the current notification epoch, or nil when the
// Url has never produced a notification.
func FirstNotifiedPrice(ctx context.Context, db *gorm.DB, urlID string) (*domain.Price, error) {
	var p domain.Price
	err := db.WithContext(ctx).
		Where("url_id = ? AND notified = ?", urlID, true).
		Order("created_at asc, id asc").
		First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountPricesSince counts ledger rows of a Url created at or after since.
func CountPricesSince(ctx context.Context, db *gorm.DB, urlID string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Price{}).
		Where("url_id = ? AND created_at >= ?", urlID, since).
		Count(&total).Error
	return total, err
}

// CountPricesSinceWithValue counts ledger rows of a Url created at or after
// since whose value equals value exactly. Both sides of the comparison are
// rounded to 2 decimals on write, so float equality is well-defined here.
func CountPricesSinceWithValue(ctx context.Context, db *gorm.DB, urlID string, since time.Time, value float64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Price{}).
		Where("url_id = ? AND created_at >= ? AND value = ?", urlID, since, value).
		Count(&total).Error
	return total, err
}

// MarkPriceNotified flips the notified flag of a row to true. The flag is
// never unset again, even when downstream delivery fails.
func MarkPriceNotified(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Price{}).
		Where("id = ? AND notified = ?", id, false).
		Update("notified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasPriceOnDay reports whether the Url already has a ledger row with the
// given value on the calendar day (UTC) of ts. Backup imports use it to stay
// idempotent across repeated restores.
func HasPriceOnDay(ctx context.Context, db *gorm.DB, urlID string, value float64, ts time.Time) (bool, error) {
	dayStart := time.Date(ts.UTC().Year(), ts.UTC().Month(), ts.UTC().Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Price{}).
		Where("url_id = ? AND value = ? AND created_at >= ? AND created_at < ?", urlID, value, dayStart, dayEnd).
		Count(&total).Error
	return total > 0, err
}

// UrlPriceAggregates computes min/avg/max over the ledger of one Url.
func UrlPriceAggregates(ctx context.Context, db *gorm.DB, urlID string) (domain.PriceAggregates, int64, error) {
	return aggregates(db.WithContext(ctx).
		Model(&domain.Price{}).
		Where("url_id = ?", urlID))
}

// ProductPriceAggregates computes min/avg/max over the ledgers of every Url
// of a product, feeding the product's cached projection.
func ProductPriceAggregates(ctx context.Context, db *gorm.DB, productID string) (domain.PriceAggregates, int64, error) {
	return aggregates(db.WithContext(ctx).
		Model(&domain.Price{}).
		Joins("JOIN urls ON urls.id = prices.url_id").
		Where("urls.product_id = ?", productID))
}

func aggregates(q *gorm.DB) (domain.PriceAggregates, int64, error) {
	var row struct {
		Min float64
		Avg float64
		Max float64
		N   int64
	}
	err := q.Select("MIN(value) AS min, AVG(value) AS avg, MAX(value) AS max, COUNT(*) AS n").
		Scan(&row).Error
	if err != nil {
		return domain.PriceAggregates{}, 0, err
	}
	if row.N == 0 {
		return domain.PriceAggregates{}, 0, nil
	}
	return domain.PriceAggregates{Min: row.Min, Avg: row.Avg, Max: row.Max}, row.N, nil
}
