// Operational HTTP handlers.
//
// Endpoints:
//   - POST /notifications/test  (send a test alert over the apprise channel)
//   - GET  /backup              (export every product as a versioned payload)
//   - POST /backup              (import a previously exported payload)
//   - POST /scrape/run          (run one update pass over all tracked URLs)
//
// The scrape run is synchronous and serial. Callers on slow connections
// should raise their client timeout rather than fire the endpoint twice;
// nothing here guards against concurrent runs.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pricehound/go-price-backend/internal/services"
)

// TestNotificationResponse reports the delivered test message body.
type TestNotificationResponse struct {
	Body string `json:"body"`
}

// TestNotification godoc
// @ID          testNotification
// @Summary     Send a test alert
// @Description Delivers a fixed message through the caller's notification channel to verify routing.
// @Tags        Admin
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
//
// @Success     200  {object} handlers.TestNotificationResponse
// @Failure     404  {object} handlers.ErrorResponse "No user to notify"
// @Failure     502  {object} handlers.ErrorResponse "Delivery failed"
// @Router      /notifications/test [post]
func (h *Handlers) TestNotification(c *gin.Context) {
	body, err := h.alerts.SendTest(c.Request.Context(), userID(c))
	if err != nil {
		if errors.Is(err, services.ErrNoUser) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no user to notify")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeDeliveryFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, TestNotificationResponse{Body: body})
}

// ExportBackup godoc
// @ID          exportBackup
// @Summary     Export all tracked data
// @Description Serializes every product with its URLs, stores and price ledgers into a versioned payload.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object} services.BackupPayload
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /backup [get]
func (h *Handlers) ExportBackup(c *gin.Context) {
	payload, err := h.backups.Export(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, payload)
}

// ImportBackup godoc
// @ID          importBackup
// @Summary     Import a backup payload
// @Description Restores products, URLs, stores and prices inside one transaction. Re-importing the same payload is a no-op.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.BackupPayload true "Backup payload"
//
// @Success     200  {object} services.ImportSummary
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     422  {object} handlers.ErrorResponse "Unsupported or malformed backup"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /backup [post]
func (h *Handlers) ImportBackup(c *gin.Context) {
	var payload services.BackupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be a backup payload")
		return
	}

	sum, err := h.backups.Import(c.Request.Context(), &payload)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidBackup):
			fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidBackup, err.Error())
		case errors.Is(err, services.ErrNoUser):
			fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidBackup, "no user to attach imported products to")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	if err := h.RefreshSearchIndex(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sum)
}

// RunScrape godoc
// @ID          runScrape
// @Summary     Update all tracked URLs
// @Description Walks every tracked URL, scrapes the current price, records changes and dispatches alerts.
// @Tags        Admin
// @Produce     json
//
// @Success     200  {object} services.UpdateSummary
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /scrape/run [post]
func (h *Handlers) RunScrape(c *gin.Context) {
	sum, err := h.updates.Run(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sum)
}
