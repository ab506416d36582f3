package repo

import (
	"context"
	"testing"

	"github.com/pricehound/go-price-backend/internal/domain"
)

func TestCreateStoreFillsDefaults(t *testing.T) {
	db := newRepoDB(t, &domain.Store{})
	ctx := context.Background()

	s := &domain.Store{Name: "My Great Shop", Domains: []string{"shop.example"}}
	if err := CreateStore(ctx, db, s); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if s.ID == "" || s.Slug != "my-great-shop" || s.CreatedAt.IsZero() {
		t.Fatalf("defaults not filled: %+v", s)
	}

	got, err := GetStoreBySlug(ctx, db, "my-great-shop")
	if err != nil {
		t.Fatalf("GetStoreBySlug: %v", err)
	}
	if got.Name != "My Great Shop" || len(got.Domains) != 1 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestGetStoreByDomain(t *testing.T) {
	db := newRepoDB(t, &domain.Store{})
	ctx := context.Background()

	a := &domain.Store{Name: "A", Domains: []string{"a.example", "www.a.example"}}
	b := &domain.Store{Name: "B", Domains: []string{"b.example", "www.b.example"}}
	for _, s := range []*domain.Store{a, b} {
		if err := CreateStore(ctx, db, s); err != nil {
			t.Fatalf("CreateStore: %v", err)
		}
	}

	got, err := GetStoreByDomain(ctx, db, "www.b.example")
	if err != nil || got.Name != "B" {
		t.Fatalf("GetStoreByDomain = %+v, %v", got, err)
	}

	// A LIKE probe alone would match "a.example" for "a.exam"; the exact
	// match confirmation must reject it.
	if _, err := GetStoreByDomain(ctx, db, "a.exam"); err != ErrNotFound {
		t.Fatalf("partial host matched: %v", err)
	}
	if _, err := GetStoreByDomain(ctx, db, ""); err != ErrNotFound {
		t.Fatalf("empty host = %v, want ErrNotFound", err)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My Great Shop":  "my-great-shop",
		"Shop.example":   "shop-example",
		"  padded  ":     "padded",
		"Ümläut Store!!": "ml-ut-store",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStrategyRoundTripsThroughJSONColumn(t *testing.T) {
	db := newRepoDB(t, &domain.Store{})
	ctx := context.Background()

	s := &domain.Store{
		Name:    "Shop",
		Domains: []string{"shop.example"},
		Strategy: domain.ScrapeStrategy{
			Title: []domain.FieldStrategy{{Type: "selector", Value: "h1"}},
			Price: []domain.FieldStrategy{{Type: "regex", Value: `"price":"([0-9.]+)"`}},
			Image: []domain.FieldStrategy{{Type: "selector", Value: "img|src", Prepend: "https://shop.example"}},
		},
	}
	if err := CreateStore(ctx, db, s); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}

	got, err := GetStore(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if len(got.Strategy.Title) != 1 || got.Strategy.Title[0].Value != "h1" {
		t.Fatalf("title strategy lost: %+v", got.Strategy)
	}
	if got.Strategy.Image[0].Prepend != "https://shop.example" {
		t.Fatalf("prepend lost: %+v", got.Strategy.Image[0])
	}
}
