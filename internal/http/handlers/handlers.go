// Handler wiring.
//
// Handlers is the dependency bundle shared by all endpoint implementations.
// Construction happens once in the router; every field is required unless
// noted otherwise.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/http/middleware"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/search"
	"github.com/pricehound/go-price-backend/internal/services"
)

// Handlers groups the application services behind the HTTP endpoints.
type Handlers struct {
	db       *gorm.DB
	products *services.ProductService
	stores   *services.StoreService
	alerts   *services.AlertService
	backups  *services.BackupService
	updates  *services.UpdateService
	index    *search.ProductIndex
	idemTTL  time.Duration
}

// New constructs the handler set.
func New(
	db *gorm.DB,
	products *services.ProductService,
	stores *services.StoreService,
	alerts *services.AlertService,
	backups *services.BackupService,
	updates *services.UpdateService,
	index *search.ProductIndex,
	idemTTL time.Duration,
) *Handlers {
	return &Handlers{
		db:       db,
		products: products,
		stores:   stores,
		alerts:   alerts,
		backups:  backups,
		updates:  updates,
		index:    index,
		idemTTL:  idemTTL,
	}
}

// userID resolves the acting user for a request.
func userID(c *gin.Context) string {
	return middleware.UserID(c)
}

// RefreshSearchIndex reloads every product title into the search index. The
// router calls it at startup; create handlers call it after writes.
func (h *Handlers) RefreshSearchIndex(ctx context.Context) error {
	if h.index == nil {
		return nil
	}
	var entries []search.Entry
	products, err := repo.ListProducts(ctx, h.db, "")
	if err != nil {
		return err
	}
	for i := range products {
		entries = append(entries, search.Entry{ID: products[i].ID, Title: products[i].Title})
	}
	h.index.Rebuild(entries)
	return nil
}
