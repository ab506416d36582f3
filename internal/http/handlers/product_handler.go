// Product HTTP handlers.
//
// This file exposes the REST endpoints for tracked products and their URLs:
//   - POST   /products             (create a product from a page URL)
//   - GET    /products             (paginated listing)
//   - GET    /products/search      (fuzzy title search)
//   - GET    /products/{id}        (single product)
//   - GET    /products/{id}/urls   (tracked URLs of a product)
//   - POST   /products/{id}/urls   (attach another URL)
//   - DELETE /urls/{id}            (stop tracking one URL)
//   - GET    /urls/{id}/prices     (price ledger, newest first)
//   - GET    /urls/{id}/stats      (min/avg/max and row count)
//
// Handlers are transport-thin: they validate input, delegate to application
// services, and translate service errors into HTTP results. Product creation
// honors the Idempotency-Key header so a retried request returns the
// already-created product instead of tracking it twice.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/http/middleware"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/services"
	"github.com/pricehound/go-price-backend/internal/utils"
)

// CreateProductRequest is the JSON payload for tracking a new product.
type CreateProductRequest struct {
	// URL is the product page to start tracking.
	URL string `json:"url" binding:"required,url" example:"https://shop.example/p/espresso-grinder"`
	// AutoCreateStore controls whether an unknown host triggers store
	// auto-detection. Defaults to true when omitted.
	AutoCreateStore *bool `json:"auto_create_store,omitempty" example:"true"`
}

// AddURLRequest is the JSON payload for attaching a URL to a product.
type AddURLRequest struct {
	URL             string `json:"url" binding:"required,url" example:"https://other.example/p/espresso-grinder"`
	AutoCreateStore *bool  `json:"auto_create_store,omitempty" example:"true"`
}

// ProductListResponse is the paginated product listing envelope.
type ProductListResponse struct {
	Items   []domain.Product `json:"items"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// SearchResponse wraps ranked title matches.
type SearchResponse struct {
	Items []SearchItem `json:"items"`
}

// SearchItem is one ranked search hit.
type SearchItem struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// UrlStatsResponse reports the aggregate view of one URL's ledger.
type UrlStatsResponse struct {
	UrlID  string                 `json:"url_id"`
	Count  int64                  `json:"count"`
	Ledger domain.PriceAggregates `json:"ledger"`
}

// CreateProduct godoc
// @ID          createProduct
// @Summary     Track a new product
// @Description Scrapes the page, creates the product with its first tracked URL and records the first price.
// @Tags        Products
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)" example(user123)
// @Param       Idempotency-Key  header  string  false "Client-supplied retry key"
// @Param       body             body    handlers.CreateProductRequest true "Product payload"
//
// @Success     201  {object} domain.Product
// @Success     200  {object} domain.Product "Replay of a previous creation"
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     404  {object} handlers.ErrorResponse "No store matches the URL"
// @Failure     422  {object} handlers.ErrorResponse "Detection or scrape failed"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /products [post]
func (h *Handlers) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url is required and must be absolute")
		return
	}

	uid := userID(c)
	ctx := c.Request.Context()

	if middleware.IsReplay(c) {
		if p, found := h.replayProduct(c, uid); found {
			ok(c, http.StatusOK, p)
			return
		}
	}

	auto := true
	if req.AutoCreateStore != nil {
		auto = *req.AutoCreateStore
	}

	product, err := h.products.CreateFromURL(ctx, uid, req.URL, auto)
	if err != nil {
		failProductCreate(c, err)
		return
	}

	h.stashIdempotency(c, uid, product.ID, http.StatusCreated)
	if err := h.RefreshSearchIndex(ctx); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("search index refresh failed")
	}

	ok(c, http.StatusCreated, product)
}

// replayProduct resolves a stored idempotency record back to its product.
// A missing or stale record falls through to a fresh create.
func (h *Handlers) replayProduct(c *gin.Context, uid string) (*domain.Product, bool) {
	key, found := middleware.GetIdempotencyKey(c)
	if !found {
		return nil, false
	}
	scope := c.FullPath()
	rec, err := repo.GetIdempotency(c.Request.Context(), h.db, uid, scope, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	p, err := h.products.Get(c.Request.Context(), rec.ResultID)
	if err != nil {
		return nil, false
	}
	return p, true
}

// stashIdempotency persists the create result for later replays. Failures
// only cost replay protection, not the response.
func (h *Handlers) stashIdempotency(c *gin.Context, uid, resultID string, status int) {
	key, found := middleware.GetIdempotencyKey(c)
	if !found {
		return
	}
	scope := c.FullPath()
	if _, err := repo.CreateIdempotency(c.Request.Context(), h.db, uid, scope, key, resultID, status, h.idemTTL); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not persisted")
	}
}

func failProductCreate(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrStoreNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no store matches this url")
	case errors.Is(err, services.ErrDetectionFailed):
		fail(c, http.StatusUnprocessableEntity, ErrCodeDetectionFailed, "could not detect a scraping strategy for this page")
	case errors.Is(err, services.ErrScrapeFailed):
		fail(c, http.StatusUnprocessableEntity, ErrCodeScrapeFailed, "no price found on this page")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ListProducts godoc
// @ID          listProducts
// @Summary     List tracked products
// @Description Returns the caller's products newest first with pagination.
// @Tags        Products
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       page       query   int     false "Page number (1-based)" default(1)
// @Param       per_page   query   int     false "Page size (max 100)"   default(20)
//
// @Success     200  {object} handlers.ProductListResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /products [get]
func (h *Handlers) ListProducts(c *gin.Context) {
	uid := userID(c)
	page := utils.AtoiDefault(c.Query("page"), 1)
	perPage := utils.AtoiDefault(c.Query("per_page"), utils.DefaultPerPage)

	items, total, err := h.products.List(c.Request.Context(), uid, page, perPage)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if items == nil {
		items = []domain.Product{}
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = utils.DefaultPerPage
	}
	if perPage > utils.MaxPerPage {
		perPage = utils.MaxPerPage
	}

	ok(c, http.StatusOK, ProductListResponse{Items: items, Total: total, Page: page, PerPage: perPage})
}

// SearchProducts godoc
// @ID          searchProducts
// @Summary     Search products by title
// @Description Ranks the caller's products against a free-text query.
// @Tags        Products
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       q          query   string  true  "Search query"          example(espresso grinder)
// @Param       limit      query   int     false "Maximum hits"          default(10)
//
// @Success     200  {object} handlers.SearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing query"
// @Router      /products/search [get]
func (h *Handlers) SearchProducts(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 10)

	items := []SearchItem{}
	for _, r := range h.index.TopK(q, limit) {
		items = append(items, SearchItem{ID: r.ID, Title: r.Title, Score: r.Score})
	}
	ok(c, http.StatusOK, SearchResponse{Items: items})
}

// GetProduct godoc
// @ID          getProduct
// @Summary     Get one product
// @Tags        Products
// @Produce     json
//
// @Param       id  path  string  true  "Product ID (UUID)" format(uuid)
//
// @Success     200  {object} domain.Product
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /products/{id} [get]
func (h *Handlers) GetProduct(c *gin.Context) {
	p, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, p)
}

// ListProductUrls godoc
// @ID          listProductUrls
// @Summary     List the tracked URLs of a product
// @Tags        Products
// @Produce     json
//
// @Param       id  path  string  true  "Product ID (UUID)" format(uuid)
//
// @Success     200  {array}  domain.Url
// @Failure     404  {object} handlers.ErrorResponse "Product not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /products/{id}/urls [get]
func (h *Handlers) ListProductUrls(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.products.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	urls, err := h.products.Urls(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if urls == nil {
		urls = []domain.Url{}
	}
	ok(c, http.StatusOK, urls)
}

// AddProductURL godoc
// @ID          addProductUrl
// @Summary     Attach another URL to a product
// @Description Resolves the store for the URL and starts tracking it under the product.
// @Tags        Products
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Product ID (UUID)" format(uuid)
// @Param       body  body  handlers.AddURLRequest true "URL payload"
//
// @Success     201  {object} domain.Url
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     404  {object} handlers.ErrorResponse "Product or store not found"
// @Failure     422  {object} handlers.ErrorResponse "Detection failed"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /products/{id}/urls [post]
func (h *Handlers) AddProductURL(c *gin.Context) {
	var req AddURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url is required and must be absolute")
		return
	}

	auto := true
	if req.AutoCreateStore != nil {
		auto = *req.AutoCreateStore
	}

	u, err := h.products.AddURL(c.Request.Context(), c.Param("id"), req.URL, auto)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "product not found")
		case errors.Is(err, services.ErrStoreNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no store matches this url")
		case errors.Is(err, services.ErrDetectionFailed):
			fail(c, http.StatusUnprocessableEntity, ErrCodeDetectionFailed, "could not detect a scraping strategy for this page")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusCreated, u)
}

// DeleteURL godoc
// @ID          deleteUrl
// @Summary     Stop tracking a URL
// @Description Deletes the URL and its price ledger, then refreshes the product's cached aggregates.
// @Tags        Products
// @Produce     json
//
// @Param       id  path  string  true  "URL ID (UUID)" format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "URL not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /urls/{id} [delete]
func (h *Handlers) DeleteURL(c *gin.Context) {
	if err := h.products.DeleteURL(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrUrlNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "url not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ListUrlPrices godoc
// @ID          listUrlPrices
// @Summary     Price ledger of a URL
// @Description Returns recorded prices newest first.
// @Tags        Products
// @Produce     json
//
// @Param       id     path   string  true  "URL ID (UUID)" format(uuid)
// @Param       limit  query  int     false "Maximum rows"  default(50)
//
// @Success     200  {array}  domain.Price
// @Failure     404  {object} handlers.ErrorResponse "URL not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /urls/{id}/prices [get]
func (h *Handlers) ListUrlPrices(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := repo.GetUrl(ctx, h.db, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "url not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	limit := utils.AtoiDefault(c.Query("limit"), 50)
	prices, err := repo.ListPrices(ctx, h.db, id, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if prices == nil {
		prices = []domain.Price{}
	}
	ok(c, http.StatusOK, prices)
}

// UrlStats godoc
// @ID          urlStats
// @Summary     Aggregate stats of a URL's ledger
// @Tags        Products
// @Produce     json
//
// @Param       id  path  string  true  "URL ID (UUID)" format(uuid)
//
// @Success     200  {object} handlers.UrlStatsResponse
// @Failure     404  {object} handlers.ErrorResponse "URL not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /urls/{id}/stats [get]
func (h *Handlers) UrlStats(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := repo.GetUrl(ctx, h.db, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "url not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	agg, count, err := repo.UrlPriceAggregates(ctx, h.db, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, UrlStatsResponse{UrlID: id, Count: count, Ledger: agg})
}
