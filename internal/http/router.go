// Package httpapi wires the HTTP transport (Gin) to the recipe services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, redacted logging, panic recovery, metrics,
// CORS, security headers, authentication, idempotency and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/cache"
	"github.com/tbourn/go-recipe-backend/internal/config"
	"github.com/tbourn/go-recipe-backend/internal/docs"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/http/handlers"
	"github.com/tbourn/go-recipe-backend/internal/http/middleware"
	"github.com/tbourn/go-recipe-backend/internal/media"
	"github.com/tbourn/go-recipe-backend/internal/repo"
	"github.com/tbourn/go-recipe-backend/internal/services"
)

// listingRepoShim adapts the repository free functions to the
// services.ListingRepo interface expected by the ListingService.
type listingRepoShim struct{}

// CountRecipes proxies repo.CountRecipes.
func (listingRepoShim) CountRecipes(ctx context.Context, db *gorm.DB, f repo.RecipeFilter) (int64, error) {
	return repo.CountRecipes(ctx, db, f)
}

// ListRecipesPage proxies repo.ListRecipesPage.
func (listingRepoShim) ListRecipesPage(ctx context.Context, db *gorm.DB, f repo.RecipeFilter, orders []repo.Order, offset, limit int) ([]domain.Recipe, error) {
	return repo.ListRecipesPage(ctx, db, f, orders, offset, limit)
}

// TrendingRecipes proxies repo.TrendingRecipes.
func (listingRepoShim) TrendingRecipes(ctx context.Context, db *gorm.DB, limit int) ([]domain.Recipe, error) {
	return repo.TrendingRecipes(ctx, db, limit)
}

// RecipesStats proxies repo.RecipesStats (ETag support).
func (listingRepoShim) RecipesStats(ctx context.Context, db *gorm.DB, f repo.RecipeFilter) (repo.ListStats, error) {
	return repo.RecipesStats(ctx, db, f)
}

// dbPinger reports database reachability for the health endpoint.
type dbPinger struct{ db *gorm.DB }

func (p dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Deps are the process-wide collaborators RegisterRoutes builds services
// from. Cache may be nil (read models are then computed on every request);
// a nil MediaHost means uploads are disabled.
type Deps struct {
	DB        *gorm.DB
	Gate      *authz.Gate
	Tokens    *auth.Tokens
	Cache     *cache.Cache
	MediaHost media.Host
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limit and request deadline
//  6. Metrics
//  7. CORS and security headers (so that 401/429 carry them too)
//  8. Authentication: resolves the actor from the bearer token
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. gzip
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	host := d.MediaHost
	if host == nil {
		host = media.Noop{}
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	r.Use(limitBody(maxBody))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		NoStorePrefixes: []string{
			joinPath(cfg.APIBasePath, "/admin"),
			joinPath(cfg.APIBasePath, "/recipes/admin"),
		},
	}))

	r.Use(middleware.Authenticate(d.Tokens))

	idem := repo.IdempotencyStore{DB: d.DB, TTL: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Lookup))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(), "/health", "/metrics")
	r.Use(rl.Handler())

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/cache/media
	listing := services.NewListingService(d.DB, listingRepoShim{}, d.Gate)
	listing.Cache = d.Cache
	if cfg.Cache.TrendingTTL > 0 {
		listing.TrendingTTL = cfg.Cache.TrendingTTL
	}
	if cfg.DefaultPageSize > 0 {
		listing.DefaultPageSize = cfg.DefaultPageSize
	}
	if cfg.MaxPageSize > 0 {
		listing.MaxPageSize = cfg.MaxPageSize
	}
	dashboard := &services.DashboardService{DB: d.DB, Gate: d.Gate, Cache: d.Cache, TTL: cfg.Cache.DashboardTTL}

	// Writes that change public read models drop the cached copies.
	invalidate := func(ctx context.Context) {
		listing.InvalidateTrending(ctx)
		dashboard.Invalidate(ctx)
	}

	mediaTimeout := cfg.Media.Timeout
	if mediaTimeout <= 0 {
		mediaTimeout = 10 * time.Second
	}
	recipes := services.NewRecipeService(d.DB, d.Gate, media.NewCleaner(host, mediaTimeout))
	recipes.OnChange = invalidate
	moderation := services.NewModerationService(d.DB, d.Gate)
	moderation.OnChange = invalidate
	ratings := &services.RatingService{DB: d.DB, Gate: d.Gate, OnChange: invalidate}

	h := handlers.New(handlers.Deps{
		Recipes:     recipes,
		Ratings:     ratings,
		Moderation:  moderation,
		Listing:     listing,
		Categories:  &services.CategoryService{DB: d.DB, Gate: d.Gate},
		Dashboard:   dashboard,
		Users:       &services.UserService{DB: d.DB, Gate: d.Gate},
		Media:       &services.MediaService{Host: host, Gate: d.Gate, Folder: cfg.Media.Folder},
		Idempotency: idem,
		DB:          dbPinger{db: d.DB},
		MediaHost:   host,
	})

	r.GET("/health", h.Health)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Recipes
		api.GET("/recipes", h.ListRecipes)
		api.GET("/recipes/trending", h.TrendingRecipes)
		api.GET("/recipes/user/:userId", h.RecipesByAuthor)
		api.GET("/recipes/:id", h.GetRecipe)
		api.POST("/recipes", h.CreateRecipe)
		api.POST("/recipes/upload-image", h.UploadImage)
		api.PUT("/recipes/:id", h.UpdateRecipe)
		api.DELETE("/recipes/:id", h.DeleteRecipe)
		api.POST("/recipes/:id/rate", h.RateRecipe)

		// Moderation
		api.GET("/recipes/admin/all", h.AdminListRecipes)
		api.GET("/recipes/admin/pending", h.PendingRecipes)
		api.PUT("/recipes/:id/approve", h.ApproveRecipe)
		api.PUT("/recipes/:id/reject", h.RejectRecipe)
		api.PUT("/recipes/:id/status", h.SetRecipeStatus)

		// Categories
		api.GET("/categories", h.ListCategories)
		api.GET("/categories/:id", h.GetCategory)
		api.POST("/categories", h.CreateCategory)
		api.PUT("/categories/:id", h.UpdateCategory)
		api.DELETE("/categories/:id", h.DeleteCategory)

		// Admin
		api.GET("/admin/stats", h.DashboardStats)
		api.GET("/admin/recipes", h.AdminListRecipes)
		api.GET("/admin/recipes/pending", h.PendingRecipes)
		api.GET("/admin/users", h.ListUsers)
		api.PUT("/admin/users/:id/role", h.SetUserRole)
	}
}

// corsMiddleware returns the CORS handlers. With no configured origins every
// origin is allowed without credentials; otherwise only listed origins are
// echoed back.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header (health checks, curl).
		force := func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{force, cors.New(base)}
	}
	base.AllowOrigins = origins
	base.AllowCredentials = true
	return []gin.HandlerFunc{cors.New(base)}
}

// limitBody caps the request body size to maxBytes using
// http.MaxBytesReader. Reads past the cap fail with *http.MaxBytesError.
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

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
