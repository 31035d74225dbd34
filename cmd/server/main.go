// Command server runs the recipe API.
//
// Configuration is read from the environment (optionally from a .env file);
// see internal/config for the recognised variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/cache"
	"github.com/tbourn/go-recipe-backend/internal/config"
	httpapi "github.com/tbourn/go-recipe-backend/internal/http"
	"github.com/tbourn/go-recipe-backend/internal/media"
	"github.com/tbourn/go-recipe-backend/internal/observability"
	"github.com/tbourn/go-recipe-backend/internal/repo"
	"github.com/tbourn/go-recipe-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownGrace    = 15 * time.Second
	idempotencySweep = time.Hour
)

// @title                      Recipe Backend API
// @version                    1.0
// @description                Recipe sharing API: recipes, ratings, moderation, categories and admin dashboard.
// @BasePath                   /api
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.ConfigureLogger(nil, "info", false)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogger(nil, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	if cfg.OTEL.Enabled {
		if err := observability.TraceDB(db); err != nil {
			log.Warn().Err(err).Msg("database tracing disabled")
		}
	}

	rc, err := cache.Connect(ctx, cfg.Cache.RedisURL, "recipes:")
	if err != nil {
		// The cache only holds read models; run without it.
		log.Warn().Err(err).Msg("redis unavailable, caching disabled")
		rc = cache.New(nil, "recipes:")
	}
	defer func() { _ = rc.Close() }()

	host, err := newMediaHost(ctx, cfg.Media)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Media.Provider).Msg("media host")
	}

	gate, err := authz.NewGate()
	if err != nil {
		log.Fatal().Err(err).Msg("load authorization policy")
	}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		Gate:      gate,
		Tokens:    tokens,
		Cache:     rc,
		MediaHost: host,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go sweepIdempotency(ctx, db)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Str("media", host.Name()).
			Bool("cache", rc.Enabled()).
			Str("version", version).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

// newMediaHost builds the configured image host behind a circuit breaker.
func newMediaHost(ctx context.Context, mc config.MediaConfig) (media.Host, error) {
	var host media.Host
	switch mc.Provider {
	case "", "none":
		return media.Noop{}, nil
	case "cloudinary":
		c, err := media.NewCloudinary(mc.Cloudinary.CloudName, mc.Cloudinary.APIKey, mc.Cloudinary.APISecret)
		if err != nil {
			return nil, err
		}
		host = c
	case "s3":
		s, err := media.NewS3(ctx, mc.S3.Bucket, mc.S3.Region, mc.S3.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		host = s
	default:
		return nil, fmt.Errorf("unknown media provider %q", mc.Provider)
	}
	return media.NewBreaker(host, media.DefaultBreakerSettings), nil
}

// sweepIdempotency drops expired Idempotency-Key records until ctx ends.
func sweepIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencySweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("purged idempotency keys")
			}
		}
	}
}
