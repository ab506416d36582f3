// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/config"
	"github.com/pricehound/go-price-backend/internal/detect"
	"github.com/pricehound/go-price-backend/internal/http/handlers"
	"github.com/pricehound/go-price-backend/internal/http/middleware"
	"github.com/pricehound/go-price-backend/internal/notify"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/scrape"
	"github.com/pricehound/go-price-backend/internal/search"
	"github.com/pricehound/go-price-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and
// rate limiting, CORS and security headers, health and metrics endpoints,
// and then mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve the acting user
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Gzip compression
//  8. Metrics
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, fetcher scrape.Fetcher, idx *search.ProductIndex, cfg config.Config) *handlers.Handlers {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Resolve the acting user from the demo header
	r.Use(middleware.Identity())

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Apprise-Token",
		},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (32 MiB, sized for backup imports)
	r.Use(limitBody(32 << 20))

	// 7) Compress responses
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 8) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured).
	// Each branch layers a small pre-pass over gin-contrib/cors; the library
	// alone does not cover these cases, so keep both.
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// gin-contrib/cors writes headers only when the request carries an
		// Origin, so force ACAO: * for Origin-less clients (curl, health
		// probes) as well.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO plus Vary: Origin for allowlisted origins before the
		// library runs, so the echo survives even on responses the library
		// short-circuits (preflight rejections, aborted chains).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/fetcher/index
	scrapeSvc := &services.ScrapeService{DB: db, Fetcher: fetcher}
	priceSvc := &services.PriceService{DB: db, Scraper: scrapeSvc}
	storeSvc := &services.StoreService{
		DB:      db,
		Fetcher: fetcher,
		Defaults: detect.Defaults{
			Locale:   cfg.DefaultLocale,
			Currency: cfg.DefaultCurrency,
		},
	}
	productSvc := &services.ProductService{
		DB:      db,
		Stores:  storeSvc,
		Scraper: scrapeSvc,
		Prices:  priceSvc,
	}
	alertSvc := &services.AlertService{
		DB:     db,
		Prices: priceSvc,
		Dispatcher: notify.NewDispatcher(notify.Settings{
			URL:   cfg.Notify.URL,
			Token: cfg.Notify.Token,
			Tags:  cfg.Notify.Tags,
		}, nil),
		Template: cfg.Notify.Template,
	}
	backupSvc := &services.BackupService{DB: db, DefaultUserEmail: cfg.DefaultUserEmail}
	updateSvc := &services.UpdateService{
		DB:          db,
		Scraper:     scrapeSvc,
		Prices:      priceSvc,
		Alerts:      alertSvc,
		Delay:       cfg.Scrape.Delay,
		MaxAttempts: cfg.Scrape.MaxAttempts,
	}

	h := handlers.New(db, productSvc, storeSvc, alertSvc, backupSvc, updateSvc, idx, cfg.IdempotencyTTL)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Products
		api.POST("/products", h.CreateProduct)
		api.GET("/products", h.ListProducts)
		api.GET("/products/search", h.SearchProducts)
		api.GET("/products/:id", h.GetProduct)
		api.GET("/products/:id/urls", h.ListProductUrls)
		api.POST("/products/:id/urls", h.AddProductURL)

		// Tracked URLs
		api.DELETE("/urls/:id", h.DeleteURL)
		api.GET("/urls/:id/prices", h.ListUrlPrices)
		api.GET("/urls/:id/stats", h.UrlStats)

		// Stores
		api.GET("/stores", h.ListStores)
		api.POST("/stores", h.CreateStore)
		api.GET("/stores/:id", h.GetStore)
		api.POST("/stores/detect", h.DetectStore)

		// Operations
		api.POST("/notifications/test", h.TestNotification)
		api.GET("/backup", h.ExportBackup)
		api.POST("/backup", h.ImportBackup)
		api.POST("/scrape/run", h.RunScrape)
	}

	return h
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
