// Package handlers exposes the REST endpoints of the recipe API.
//
// Handlers are transport-thin: they bind and validate input, resolve the
// actor set by the authentication middleware, call application services and
// translate results (and service errors) into HTTP responses.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/http/middleware"
	"github.com/tbourn/go-recipe-backend/internal/media"
	"github.com/tbourn/go-recipe-backend/internal/repo"
	"github.com/tbourn/go-recipe-backend/internal/services"
	"github.com/tbourn/go-recipe-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RecipeService covers the recipe entity store.
type RecipeService interface {
	Create(ctx context.Context, actor auth.Actor, in services.RecipeInput) (*domain.Recipe, error)
	Update(ctx context.Context, actor auth.Actor, id string, patch services.RecipePatch) (*domain.Recipe, error)
	Delete(ctx context.Context, actor auth.Actor, id string) error
	// Get returns the detail view and counts the view.
	Get(ctx context.Context, actor auth.Actor, id string) (*domain.Recipe, error)
	// Lookup returns a recipe without counting a view; used for idempotent
	// replays.
	Lookup(ctx context.Context, actor auth.Actor, id string) (*domain.Recipe, error)
}

// RatingService records ratings.
type RatingService interface {
	Rate(ctx context.Context, actor auth.Actor, recipeID string, value int, review string) (domain.Aggregate, error)
}

// ModerationService drives the recipe status machine.
type ModerationService interface {
	Approve(ctx context.Context, actor auth.Actor, id string) (*domain.Recipe, error)
	Reject(ctx context.Context, actor auth.Actor, id, reason string) (*domain.Recipe, error)
	SetStatus(ctx context.Context, actor auth.Actor, id, status, reason string) (*domain.Recipe, error)
	Pending(ctx context.Context, actor auth.Actor) ([]domain.Recipe, error)
}

// ListingService answers recipe queries.
type ListingService interface {
	List(ctx context.Context, actor auth.Actor, q services.ListQuery) (*services.Page, error)
	// Stats returns count and latest update of the matching set (ETag input).
	Stats(ctx context.Context, actor auth.Actor, q services.ListQuery) (repo.ListStats, error)
	Trending(ctx context.Context, limit int) ([]domain.Recipe, error)
	ByAuthor(ctx context.Context, authorID string) ([]domain.Recipe, error)
}

// CategoryService manages categories.
type CategoryService interface {
	List(ctx context.Context, actor auth.Actor, includeInactive bool) ([]domain.Category, error)
	Get(ctx context.Context, id string) (*domain.Category, error)
	Create(ctx context.Context, actor auth.Actor, in services.CategoryInput) (*domain.Category, error)
	Update(ctx context.Context, actor auth.Actor, id string, patch services.CategoryPatch) (*domain.Category, error)
	Delete(ctx context.Context, actor auth.Actor, id string) error
}

// DashboardService builds the admin statistics.
type DashboardService interface {
	Stats(ctx context.Context, actor auth.Actor) (*services.Dashboard, error)
}

// UserService manages user roles.
type UserService interface {
	List(ctx context.Context, actor auth.Actor, page, pageSize int) (*services.UserPage, error)
	SetRole(ctx context.Context, actor auth.Actor, id, role string) (*domain.User, error)
}

// MediaService uploads images.
type MediaService interface {
	Upload(ctx context.Context, actor auth.Actor, image, folder string) (*media.Asset, error)
}

// IdempotencyStore remembers which resource a client key produced.
type IdempotencyStore interface {
	Save(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

//
// Handler wiring
//

// Deps lists the services the handlers depend on. Nil optional members
// (Idempotency, DB, Media host) disable the related behavior.
type Deps struct {
	Recipes     RecipeService
	Ratings     RatingService
	Moderation  ModerationService
	Listing     ListingService
	Categories  CategoryService
	Dashboard   DashboardService
	Users       UserService
	Media       MediaService
	Idempotency IdempotencyStore

	// DB and MediaHost feed the health endpoint.
	DB        Pinger
	MediaHost media.Host
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	Deps
}

// New constructs and returns a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{Deps: d}
}

//
// Helpers
//

// actorOf returns the authenticated actor, or the anonymous actor.
func actorOf(c *gin.Context) auth.Actor {
	return middleware.ActorFrom(c)
}

// pageParams parses ?page and ?limit. Bounds are applied by the services.
func pageParams(c *gin.Context) (page, limit int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	limit = utils.AtoiDefault(c.Query("limit"), 0)
	return page, limit
}

func newPagination(page, size int, total int64, pages int) *Pagination {
	return &Pagination{
		CurrentPage: page,
		PageSize:    size,
		Total:       total,
		Pages:       pages,
		HasNext:     page < pages,
	}
}
