// Command server runs the price tracking HTTP API.
//
// Startup order: environment, config, logging, database, tracing, services,
// router, HTTP server with graceful shutdown. Re-scraping all tracked URLs
// is triggered over the API, typically by an external scheduler.
//
// @title       go-price-backend API
// @version     1.0
// @description Price tracking service: products, stores, scraping and alerts.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/plugin/opentelemetry/tracing"

	_ "github.com/pricehound/go-price-backend/docs"
	"github.com/pricehound/go-price-backend/internal/config"
	httpapi "github.com/pricehound/go-price-backend/internal/http"
	"github.com/pricehound/go-price-backend/internal/http/middleware"
	"github.com/pricehound/go-price-backend/internal/observability"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/scrape"
	"github.com/pricehound/go-price-backend/internal/search"
	"github.com/pricehound/go-price-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("install gorm tracing")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The demo identity needs a backing row for alerts and backup imports.
	demoEmail := sysutil.FirstNonEmpty(cfg.DefaultUserEmail, "demo@localhost")
	if _, err := repo.EnsureUser(ctx, db, middleware.DemoUserID, demoEmail, "Demo User"); err != nil {
		log.Fatal().Err(err).Msg("seed demo user")
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	fetcher := scrape.NewHTTPFetcher(cfg.Scrape.Timeout, cfg.Scrape.UserAgent)
	idx := search.NewProductIndex(nil)

	r := gin.New()
	h := httpapi.RegisterRoutes(r, db, fetcher, idx, cfg)
	if err := h.RefreshSearchIndex(ctx); err != nil {
		log.Warn().Err(err).Msg("initial search index build")
	}
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}
