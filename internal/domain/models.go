// Package domain defines the persistence models for products, stores,
// tracked URLs and their price ledgers. These types are mapped with GORM
// and form the core data layer of the price tracking application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// ScraperServiceHTTP is the plain-HTTP scraper service identifier. It is the
// faster non-API mode and the default for auto-detected stores.
const ScraperServiceHTTP = "http"

// ScraperServiceAPI is the external rendering-API scraper service identifier,
// used for pages that require a full browser to produce their markup.
const ScraperServiceAPI = "api"

// NotifySettings is a user's apprise channel override. Empty fields fall
// back to the instance-wide defaults at delivery time.
type NotifySettings struct {
	URL   string `json:"url,omitempty"`
	Token string `json:"token,omitempty"`
	Tags  string `json:"tags,omitempty"`
}

// User owns products and receives price alerts. Only the attributes needed
// for ownership and notification routing are modeled here; session and
// credential management live outside this service.
type User struct {
	ID        string         `json:"id"    gorm:"type:char(36);primaryKey"`
	Email     string         `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Name      string         `json:"name"  gorm:"type:varchar(255);not null"`
	Notify    NotifySettings `json:"notify" gorm:"serializer:json"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// FieldStrategy describes how one field (title, price or image) is pulled out
// of a fetched document: an extraction type ("selector", "xpath", "regex",
// "json"), its query/pattern value, and optional prepend/append fragments
// concatenated around the extracted value (e.g. to complete relative image
// URLs).
type FieldStrategy struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Prepend string `json:"prepend,omitempty"`
	Append  string `json:"append,omitempty"`
}

// ScrapeStrategy groups the per-field strategies of a store. Each field holds
// an ordered fallback list tried first-match-wins.
type ScrapeStrategy struct {
	Title []FieldStrategy `json:"title"`
	Price []FieldStrategy `json:"price"`
	Image []FieldStrategy `json:"image"`
}

// Store represents one online shop and the scraping configuration for its
// product pages. Domains is an ordered set of hostnames used for host-based
// lookup; after auto-detection it always contains at least the bare host and
// its www.-prefixed variant.
//
// Domains and Strategy are persisted as JSON columns via the GORM serializer
// so a store stays a single row.
type Store struct {
	ID                     string         `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID                 string         `json:"user_id"  gorm:"type:char(36);index"`
	Name                   string         `json:"name"     gorm:"type:varchar(255);not null"`
	Slug                   string         `json:"slug"     gorm:"type:varchar(255);uniqueIndex"`
	Domains                []string       `json:"domains"  gorm:"serializer:json"`
	Strategy               ScrapeStrategy `json:"scrape_strategy" gorm:"serializer:json"`
	ScraperService         string         `json:"scraper_service" gorm:"type:varchar(16);not null;default:'http'"`
	ScraperServiceSettings string         `json:"scraper_service_settings" gorm:"type:text"`
	Locale                 string         `json:"locale"   gorm:"type:varchar(16)"`
	Currency               string         `json:"currency" gorm:"type:varchar(3)"`
	TestURL                string         `json:"test_url" gorm:"type:text"`
	Notes                  string         `json:"notes"    gorm:"type:text"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	DeletedAt              gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Store.
func (Store) TableName() string { return "stores" }

// PriceAggregates is the cached min/avg/max projection of a product's price
// ledger. It is recomputed whenever the ledger changes and is never a source
// of truth.
type PriceAggregates struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// Product aggregates the tracked URLs of one item across stores.
type Product struct {
	ID         string          `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID     string          `json:"user_id" gorm:"type:char(36);not null;index:idx_user_products"`
	Title      string          `json:"title"   gorm:"type:varchar(255);not null"`
	Image      string          `json:"image"   gorm:"type:text"`
	Favourite  bool            `json:"favourite"`
	PriceCache PriceAggregates `json:"price_cache" gorm:"serializer:json"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `json:"-" gorm:"index"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Url is one tracked product page. It belongs to exactly one product and
// exactly one store; deleting it cascades to its price rows.
type Url struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	ProductID string         `json:"product_id" gorm:"type:char(36);not null;index"`
	StoreID   string         `json:"store_id"   gorm:"type:char(36);not null;index"`
	URL       string         `json:"url"        gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Product is the aggregating item; URLs are cascade-deleted with it.
	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	// Store supplies the scraping strategy and locale for this page.
	Store Store `json:"-" gorm:"foreignKey:StoreID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Url.
func (Url) TableName() string { return "urls" }

// Price is one row of the append-only price ledger of a Url. Rows are
// immutable after creation except for Notified, which transitions
// false -> true exactly once when an alert for this row has been dispatched.
//
// Invariant: for a given Url no two rows share both the same
// rounded-to-2-decimals value and the same calendar day.
type Price struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UrlID     string    `json:"url_id"   gorm:"type:char(36);not null;index:idx_url_prices,priority:1"`
	StoreID   string    `json:"store_id" gorm:"type:char(36);not null;index"`
	Value     float64   `json:"price"    gorm:"not null"`
	Notified  bool      `json:"notified" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_url_prices,priority:2"`

	// Url is the tracked page this observation belongs to. Prices are
	// cascade-deleted with their Url.
	Url Url `json:"-" gorm:"foreignKey:UrlID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Price.
func (Price) TableName() string { return "prices" }
