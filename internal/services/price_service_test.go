package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/repo"
)

// test DB helper
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := repo.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedTrackedURL(t *testing.T, db *gorm.DB) *domain.Url {
	t.Helper()
	fixtures := []any{
		&domain.User{ID: "u1", Email: "owner@example.com", Name: "Owner"},
		&domain.Store{ID: "s1", UserID: "u1", Name: "Shop", Slug: "shop",
			Domains: []string{"shop.example"}, Locale: "en", Currency: "USD"},
		&domain.Product{ID: "p1", UserID: "u1", Title: "Widget"},
		&domain.Url{ID: "url1", ProductID: "p1", StoreID: "s1", URL: "https://shop.example/w"},
	}
	for _, f := range fixtures {
		if err := db.Create(f).Error; err != nil {
			t.Fatalf("seed %T: %v", f, err)
		}
	}
	var u domain.Url
	if err := db.First(&u, "id = ?", "url1").Error; err != nil {
		t.Fatalf("load url: %v", err)
	}
	return &u
}

func countPrices(t *testing.T, db *gorm.DB, urlID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Price{}).Where("url_id = ?", urlID).Count(&n).Error; err != nil {
		t.Fatalf("count prices: %v", err)
	}
	return n
}

func TestRecordPriceSameDayDedup(t *testing.T) {
	db := newServiceDB(t)
	url := seedTrackedURL(t, db)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := &PriceService{DB: db, Now: func() time.Time { return day1 }}

	first, err := svc.RecordPrice(ctx, url, "9.99")
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if first == nil || first.Value != 9.99 {
		t.Fatalf("first record = %+v, want value 9.99", first)
	}

	// same value, same calendar day: no second row
	dup, err := svc.RecordPrice(ctx, url, "9.99")
	if err != nil {
		t.Fatalf("duplicate record: %v", err)
	}
	if dup != nil {
		t.Fatalf("duplicate record created row %+v", dup)
	}
	if n := countPrices(t, db, url.ID); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}

	// same value next day: second row
	svc.Now = func() time.Time { return day1.Add(24 * time.Hour) }
	next, err := svc.RecordPrice(ctx, url, "9.99")
	if err != nil {
		t.Fatalf("next-day record: %v", err)
	}
	if next == nil {
		t.Fatal("next-day record skipped, want new row")
	}
	if n := countPrices(t, db, url.ID); n != 2 {
		t.Fatalf("ledger rows = %d, want 2", n)
	}
}

func TestRecordPriceNormalizesAndRounds(t *testing.T) {
	db := newServiceDB(t)
	url := seedTrackedURL(t, db)
	svc := &PriceService{DB: db}

	p, err := svc.RecordPrice(context.Background(), url, "1.234,56 €")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if p == nil || p.Value != 1234.56 {
		t.Fatalf("recorded value = %+v, want 1234.56", p)
	}
}

func TestRecordPriceRefreshesProductCache(t *testing.T) {
	db := newServiceDB(t)
	url := seedTrackedURL(t, db)
	ctx := context.Background()

	day := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc := &PriceService{DB: db, Now: func() time.Time { return day }}

	for i, raw := range []string{"10.00", "30.00", "20.00"} {
		svc.Now = func() time.Time { return day.Add(time.Duration(i) * 24 * time.Hour) }
		if _, err := svc.RecordPrice(ctx, url, raw); err != nil {
			t.Fatalf("record %q: %v", raw, err)
		}
	}

	product, err := repo.GetProduct(ctx, db, url.ProductID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	want := domain.PriceAggregates{Min: 10, Avg: 20, Max: 30}
	if product.PriceCache != want {
		t.Fatalf("price cache = %+v, want %+v", product.PriceCache, want)
	}
}

func TestRecordPriceEmptyCandidateIsNoop(t *testing.T) {
	db := newServiceDB(t)
	url := seedTrackedURL(t, db)

	svc := &PriceService{DB: db}
	p, err := svc.RecordPrice(context.Background(), url, "   ")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if p != nil {
		t.Fatalf("empty candidate created row %+v", p)
	}
	if n := countPrices(t, db, url.ID); n != 0 {
		t.Fatalf("ledger rows = %d, want 0", n)
	}
}

func TestShouldNotifyFirstPrice(t *testing.T) {
	db := newServiceDB(t)
	url := seedTrackedURL(t, db)
	svc := &PriceService{DB: db}
	ctx := context.Background()

	ok, err := svc.ShouldNotify(ctx, url.ID, 123.45)
	if err != nil {
		t.Fatalf("should notify: %v", err)
	}
	if !ok {
		t.Fatal("first-ever price must notify")
	}
}

func TestShouldNotifySuppressionEpoch(t *testing.T) {
	db := newServiceDB(t)
	url := seedTrackedURL(t, db)
	ctx := context.Background()

	day := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &PriceService{DB: db}

	record := func(offsetDays int, raw string) *domain.Price {
		t.Helper()
		svc.Now = func() time.Time { return day.Add(time.Duration(offsetDays) * 24 * time.Hour) }
		p, err := svc.RecordPrice(ctx, url, raw)
		if err != nil {
			t.Fatalf("record day+%d %q: %v", offsetDays, raw, err)
		}
		if p == nil {
			t.Fatalf("record day+%d %q unexpectedly deduplicated", offsetDays, raw)
		}
		return p
	}

	// anchor: notified price 10.00
	anchor := record(0, "10.00")
	if err := svc.MarkNotified(ctx, anchor.ID); err != nil {
		t.Fatalf("mark notified: %v", err)
	}

	// 10.00 again on later days: every row in the epoch equals the
	// candidate, so the alert stays suppressed
	record(1, "10.00")
	ok, err := svc.ShouldNotify(ctx, url.ID, 10.00)
	if err != nil {
		t.Fatalf("should notify: %v", err)
	}
	if ok {
		t.Fatal("unchanged value must be suppressed")
	}

	record(2, "10.00")
	if ok, _ := svc.ShouldNotify(ctx, url.ID, 10.00); ok {
		t.Fatal("still-unchanged value must be suppressed")
	}

	// a differing value exists in the epoch once 9.50 arrives
	if ok, _ := svc.ShouldNotify(ctx, url.ID, 9.50); !ok {
		t.Fatal("differing value must notify")
	}
}

func TestMarkNotifiedIdempotent(t *testing.T) {
	db := newServiceDB(t)
	url := seedTrackedURL(t, db)
	svc := &PriceService{DB: db}
	ctx := context.Background()

	p, err := svc.RecordPrice(ctx, url, "5.00")
	if err != nil || p == nil {
		t.Fatalf("record: %v %+v", err, p)
	}
	if err := svc.MarkNotified(ctx, p.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	// second transition is absorbed, not an error
	if err := svc.MarkNotified(ctx, p.ID); err != nil {
		t.Fatalf("second mark: %v", err)
	}
}
