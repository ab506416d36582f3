package services

import (
	"context"
	"testing"
	"time"

	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/repo"
)

func samplePayload() *BackupPayload {
	day := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	return &BackupPayload{
		Version:    BackupVersion,
		ExportedAt: time.Now().UTC(),
		Products: []BackupProduct{
			{
				Title:     "Coffee Grinder",
				Favourite: true,
				User:      &BackupUser{Email: "owner@example.com"},
				Urls: []BackupUrl{
					{
						URL: "https://shop.example/grinder",
						Store: BackupStore{
							Name:    "Shop",
							Slug:    "shop",
							Domains: []string{"shop.example"},
							Strategy: domain.ScrapeStrategy{
								Price: []domain.FieldStrategy{{Type: "selector", Value: ".price"}},
							},
							ScraperService: domain.ScraperServiceHTTP,
							Locale:         "en",
							Currency:       "USD",
						},
						Prices: []BackupPrice{
							{Value: 49.99, Notified: true, CreatedAt: day},
							{Value: 44.99, CreatedAt: day.Add(48 * time.Hour)},
						},
					},
				},
			},
		},
	}
}

func TestImportCreatesEverything(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	if _, err := repo.CreateUser(ctx, db, "owner@example.com", "Owner"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc := &BackupService{DB: db}
	sum, err := svc.Import(ctx, samplePayload())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if sum != (ImportSummary{Products: 1, Urls: 1, Prices: 2}) {
		t.Fatalf("summary = %+v", sum)
	}

	store, err := repo.GetStoreBySlug(ctx, db, "shop")
	if err != nil {
		t.Fatalf("store not restored: %v", err)
	}
	if len(store.Strategy.Price) != 1 || store.Strategy.Price[0].Value != ".price" {
		t.Fatalf("store strategy lost: %+v", store.Strategy)
	}
}

func TestImportIdempotent(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	if _, err := repo.CreateUser(ctx, db, "owner@example.com", "Owner"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc := &BackupService{DB: db}
	if _, err := svc.Import(ctx, samplePayload()); err != nil {
		t.Fatalf("first import: %v", err)
	}
	sum, err := svc.Import(ctx, samplePayload())
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if sum != (ImportSummary{}) {
		t.Fatalf("second import wrote rows: %+v", sum)
	}

	var prices int64
	if err := db.Model(&domain.Price{}).Count(&prices).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if prices != 2 {
		t.Fatalf("price rows = %d, want 2", prices)
	}
}

func TestImportInvalidPayload(t *testing.T) {
	db := newServiceDB(t)
	svc := &BackupService{DB: db}
	ctx := context.Background()

	cases := []*BackupPayload{
		nil,
		{Version: 99, Products: []BackupProduct{}},
		{Version: BackupVersion}, // products missing entirely
	}
	for _, payload := range cases {
		if _, err := svc.Import(ctx, payload); err != ErrInvalidBackup {
			t.Errorf("Import(%+v) err = %v, want ErrInvalidBackup", payload, err)
		}
	}
}

func TestImportAtomicOnBadProduct(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	if _, err := repo.CreateUser(ctx, db, "owner@example.com", "Owner"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	payload := samplePayload()
	payload.Products = append(payload.Products, BackupProduct{ /* missing title */ })

	svc := &BackupService{DB: db}
	if _, err := svc.Import(ctx, payload); err != ErrInvalidBackup {
		t.Fatalf("err = %v, want ErrInvalidBackup", err)
	}

	// nothing from the valid sibling survived the rollback
	var products int64
	if err := db.Model(&domain.Product{}).Count(&products).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if products != 0 {
		t.Fatalf("product rows = %d after rollback, want 0", products)
	}
}

func TestImportUserFallbacks(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()

	// empty users table: nothing to fall back to
	svc := &BackupService{DB: db}
	payload := samplePayload()
	payload.Products[0].User = nil
	if _, err := svc.Import(ctx, payload); err != ErrNoUser {
		t.Fatalf("err = %v, want ErrNoUser", err)
	}

	older, err := repo.CreateUser(ctx, db, "old@example.com", "Old")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.CreateUser(ctx, db, "new@example.com", "New"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// unknown reference lands on the oldest user
	payload = samplePayload()
	payload.Products[0].User = &BackupUser{Email: "ghost@example.com"}
	if _, err := svc.Import(ctx, payload); err != nil {
		t.Fatalf("import: %v", err)
	}
	product, err := repo.GetProductByTitle(ctx, db, older.ID, "Coffee Grinder")
	if err != nil {
		t.Fatalf("product owner fallback: %v", err)
	}
	if product.UserID != older.ID {
		t.Fatalf("owner = %s, want %s", product.UserID, older.ID)
	}

	// configured default wins over the oldest row
	svc.DefaultUserEmail = "new@example.com"
	payload = samplePayload()
	payload.Products[0].Title = "Espresso Machine"
	payload.Products[0].User = nil
	if _, err := svc.Import(ctx, payload); err != nil {
		t.Fatalf("import: %v", err)
	}
	user, err := repo.GetUserByEmail(ctx, db, "new@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if _, err := repo.GetProductByTitle(ctx, db, user.ID, "Espresso Machine"); err != nil {
		t.Fatalf("default-user product missing: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	if _, err := repo.CreateUser(ctx, db, "owner@example.com", "Owner"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc := &BackupService{DB: db}
	if _, err := svc.Import(ctx, samplePayload()); err != nil {
		t.Fatalf("import: %v", err)
	}

	payload, err := svc.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if payload.Version != BackupVersion || len(payload.Products) != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	bp := payload.Products[0]
	if bp.User == nil || bp.User.Email != "owner@example.com" {
		t.Fatalf("owner reference lost: %+v", bp.User)
	}
	if len(bp.Urls) != 1 || len(bp.Urls[0].Prices) != 2 {
		t.Fatalf("urls/prices lost: %+v", bp.Urls)
	}
	// oldest-first ordering inside the payload
	if bp.Urls[0].Prices[0].Value != 49.99 || !bp.Urls[0].Prices[0].Notified {
		t.Fatalf("first price = %+v, want notified 49.99", bp.Urls[0].Prices[0])
	}

	// restoring our own export into a fresh database reproduces the rows
	db2 := newServiceDB(t)
	if _, err := repo.CreateUser(ctx, db2, "owner@example.com", "Owner"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	svc2 := &BackupService{DB: db2}
	sum, err := svc2.Import(ctx, payload)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if sum != (ImportSummary{Products: 1, Urls: 1, Prices: 2}) {
		t.Fatalf("re-import summary = %+v", sum)
	}
}
