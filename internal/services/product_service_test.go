package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/detect"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/scrape"
)

func newProductService(t *testing.T, fetcher scrape.Fetcher) (*ProductService, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	scraper := &ScrapeService{DB: db, Fetcher: fetcher}
	prices := &PriceService{DB: db, Scraper: scraper}
	stores := &StoreService{DB: db, Fetcher: fetcher, Defaults: detect.Defaults{Locale: "en", Currency: "USD"}}
	return &ProductService{DB: db, Stores: stores, Scraper: scraper, Prices: prices}, db
}

func TestProductCreateFromURL(t *testing.T) {
	fetcher := pageFetcher(map[string]string{"https://shop.example/grinder": grinderPage})
	svc, db := newProductService(t, fetcher)
	ctx := context.Background()

	product, err := svc.CreateFromURL(ctx, "u1", "https://shop.example/grinder", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if product.Title != "Coffee Grinder Pro" {
		t.Errorf("title = %q", product.Title)
	}
	if product.Image != "https://cdn.shop.example/grinder.jpg" {
		t.Errorf("image = %q", product.Image)
	}
	if !product.Favourite {
		t.Error("new product must start as favourite")
	}

	// the one tracked url, backed by the auto-created store
	urls, err := svc.Urls(ctx, product.ID)
	if err != nil || len(urls) != 1 {
		t.Fatalf("urls = %v, %v", urls, err)
	}
	if _, err := repo.GetStoreByDomain(ctx, db, "shop.example"); err != nil {
		t.Fatalf("store not auto-created: %v", err)
	}

	// the scraped price seeded the ledger and the cache
	latest, err := repo.LatestPrice(ctx, db, urls[0].ID)
	if err != nil || latest == nil {
		t.Fatalf("latest = %v, %v", latest, err)
	}
	if latest.Value != 89.90 {
		t.Errorf("seeded price = %v, want 89.90", latest.Value)
	}
	if product.PriceCache.Min != 89.90 {
		t.Errorf("price cache = %+v", product.PriceCache)
	}
}

func TestProductCreateFromURLNoAutoCreate(t *testing.T) {
	fetcher := pageFetcher(map[string]string{"https://shop.example/grinder": grinderPage})
	svc, _ := newProductService(t, fetcher)

	_, err := svc.CreateFromURL(context.Background(), "u1", "https://shop.example/grinder", false)
	if !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("err = %v, want ErrStoreNotFound", err)
	}
}

func TestProductCreateFromURLWithoutPrice(t *testing.T) {
	// detection needs a price too, so seed a store first and point its
	// strategy at a page that lost its price markup
	fetcher := pageFetcher(map[string]string{
		"https://shop.example/grinder": grinderPage,
		"https://shop.example/about":   pricelessPage,
	})
	svc, _ := newProductService(t, fetcher)
	ctx := context.Background()

	if _, err := svc.Stores.CreateFromURL(ctx, "u1", "https://shop.example/grinder"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, err := svc.CreateFromURL(ctx, "u1", "https://shop.example/about", false)
	if !errors.Is(err, ErrScrapeFailed) {
		t.Fatalf("err = %v, want ErrScrapeFailed", err)
	}
}

func TestProductAddURLAndDelete(t *testing.T) {
	fetcher := pageFetcher(map[string]string{
		"https://shop.example/grinder":  grinderPage,
		"https://other.example/grinder": grinderPage,
	})
	svc, db := newProductService(t, fetcher)
	ctx := context.Background()

	product, err := svc.CreateFromURL(ctx, "u1", "https://shop.example/grinder", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	url, err := svc.AddURL(ctx, product.ID, "https://other.example/grinder", true)
	if err != nil {
		t.Fatalf("add url: %v", err)
	}
	urls, _ := svc.Urls(ctx, product.ID)
	if len(urls) != 2 {
		t.Fatalf("urls = %d, want 2", len(urls))
	}

	if err := svc.DeleteURL(ctx, url.ID); err != nil {
		t.Fatalf("delete url: %v", err)
	}
	svc.Prices.mu.Lock()
	_, held := svc.Prices.locks[url.ID]
	svc.Prices.mu.Unlock()
	if held {
		t.Error("per-url lock survived delete")
	}
	urls, _ = svc.Urls(ctx, product.ID)
	if len(urls) != 1 {
		t.Fatalf("urls after delete = %d, want 1", len(urls))
	}
	if _, err := repo.LatestPrice(ctx, db, url.ID); err != nil {
		t.Fatalf("latest after delete: %v", err)
	}

	if err := svc.DeleteURL(ctx, url.ID); !errors.Is(err, ErrUrlNotFound) {
		t.Fatalf("second delete err = %v, want ErrUrlNotFound", err)
	}
}

func TestProductList(t *testing.T) {
	fetcher := pageFetcher(map[string]string{"https://shop.example/grinder": grinderPage})
	svc, _ := newProductService(t, fetcher)
	ctx := context.Background()

	if _, err := svc.CreateFromURL(ctx, "u1", "https://shop.example/grinder", true); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, total, err := svc.List(ctx, "u1", 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("list = %d items, total %d", len(items), total)
	}

	_, total, err = svc.List(ctx, "someone-else", 1, 10)
	if err != nil || total != 0 {
		t.Fatalf("foreign list total = %d, err %v", total, err)
	}
}
