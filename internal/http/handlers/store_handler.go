// Store HTTP handlers.
//
// Endpoints:
//   - GET  /stores          (list known stores)
//   - GET  /stores/{id}     (single store)
//   - POST /stores/detect   (dry-run detection preview, nothing persisted)
//   - POST /stores          (detect and persist a store from a page URL)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pricehound/go-price-backend/internal/domain"
	"github.com/pricehound/go-price-backend/internal/services"
)

// DetectStoreRequest is the JSON payload for store detection.
type DetectStoreRequest struct {
	// URL is a product page on the store to analyze.
	URL string `json:"url" binding:"required,url" example:"https://shop.example/p/espresso-grinder"`
}

// ListStores godoc
// @ID          listStores
// @Summary     List stores
// @Tags        Stores
// @Produce     json
//
// @Success     200  {array}  domain.Store
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /stores [get]
func (h *Handlers) ListStores(c *gin.Context) {
	stores, err := h.stores.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if stores == nil {
		stores = []domain.Store{}
	}
	ok(c, http.StatusOK, stores)
}

// GetStore godoc
// @ID          getStore
// @Summary     Get one store
// @Tags        Stores
// @Produce     json
//
// @Param       id  path  string  true  "Store ID (UUID)" format(uuid)
//
// @Success     200  {object} domain.Store
// @Failure     404  {object} handlers.ErrorResponse "Store not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /stores/{id} [get]
func (h *Handlers) GetStore(c *gin.Context) {
	st, err := h.stores.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrStoreNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "store not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}

// DetectStore godoc
// @ID          detectStore
// @Summary     Preview store detection
// @Description Fetches the page and reports the strategies that would be saved, without persisting anything.
// @Tags        Stores
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.DetectStoreRequest true "Detection payload"
//
// @Success     200  {object} detect.StoreAttributes
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     422  {object} handlers.ErrorResponse "Detection failed"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /stores/detect [post]
func (h *Handlers) DetectStore(c *gin.Context) {
	var req DetectStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url is required and must be absolute")
		return
	}

	attrs, err := h.stores.Preview(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, services.ErrDetectionFailed) {
			fail(c, http.StatusUnprocessableEntity, ErrCodeDetectionFailed, "could not detect a scraping strategy for this page")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, attrs)
}

// CreateStore godoc
// @ID          createStore
// @Summary     Detect and save a store
// @Description Runs detection against the page and persists the resulting store. Returns the existing store when the host is already known.
// @Tags        Stores
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       body       body    handlers.DetectStoreRequest true "Detection payload"
//
// @Success     201  {object} domain.Store
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     422  {object} handlers.ErrorResponse "Detection failed"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /stores [post]
func (h *Handlers) CreateStore(c *gin.Context) {
	var req DetectStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url is required and must be absolute")
		return
	}

	st, err := h.stores.CreateFromURL(c.Request.Context(), userID(c), req.URL)
	if err != nil {
		if errors.Is(err, services.ErrDetectionFailed) {
			fail(c, http.StatusUnprocessableEntity, ErrCodeDetectionFailed, "could not detect a scraping strategy for this page")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusCreated, st)
}
