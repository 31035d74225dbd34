// Package services – ListingService
//
// This file implements recipe listings: filtering, free-text search, sorting
// and pagination, with the visibility rule that only admins see recipes that
// are not published. Trending recipes are served through the read-model
// cache.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/cache"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
	"github.com/tbourn/go-recipe-backend/internal/search"
	"github.com/tbourn/go-recipe-backend/internal/utils"
)

// ListingRepo defines the repository contract required by ListingService.
type ListingRepo interface {
	// CountRecipes returns the number of recipes matching f.
	CountRecipes(ctx context.Context, db *gorm.DB, f repo.RecipeFilter) (int64, error)

	// ListRecipesPage returns a page of recipes matching f in order.
	ListRecipesPage(ctx context.Context, db *gorm.DB, f repo.RecipeFilter, orders []repo.Order, offset, limit int) ([]domain.Recipe, error)

	// TrendingRecipes returns the most viewed published recipes.
	TrendingRecipes(ctx context.Context, db *gorm.DB, limit int) ([]domain.Recipe, error)

	// RecipesStats returns the count, latest update time and total views of
	// matching recipes, used for conditional GETs.
	RecipesStats(ctx context.Context, db *gorm.DB, f repo.RecipeFilter) (repo.ListStats, error)
}

// ListQuery is a listing request as received from a client.
type ListQuery struct {
	Search      string
	Category    string
	Cuisine     string
	Difficulty  string
	AuthorID    string
	MaxPrepTime int
	Status      string // honored for admins only
	Sort        string // "field:dir[,field:dir...]"
	Page        int
	PageSize    int
}

// Page is one page of a listing.
type Page struct {
	Items    []domain.Recipe `json:"items"`
	Total    int64           `json:"total"`
	Pages    int             `json:"pages"`
	Page     int             `json:"currentPage"`
	PageSize int             `json:"pageSize"`
}

// TrendingCacheKey is the cache key of the trending list.
const TrendingCacheKey = "recipes:trending"

// ListingService answers recipe listing queries.
type ListingService struct {
	DB   *gorm.DB
	Repo ListingRepo
	Gate *authz.Gate

	// Cache holds the trending list. May be nil.
	Cache       *cache.Cache
	TrendingTTL time.Duration

	DefaultPageSize int
	MaxPageSize     int
}

// NewListingService constructs a ListingService with the default page sizes
// (12, capped at 100).
func NewListingService(db *gorm.DB, r ListingRepo, gate *authz.Gate) *ListingService {
	return &ListingService{
		DB:              db,
		Repo:            r,
		Gate:            gate,
		TrendingTTL:     time.Minute,
		DefaultPageSize: 12,
		MaxPageSize:     100,
	}
}

// Filter resolves the visibility and filter part of q for actor. Non-admins
// are always restricted to published recipes; an admin's status filter is
// honored when set and must be a known status.
func (s *ListingService) Filter(actor auth.Actor, q ListQuery) (repo.RecipeFilter, error) {
	f := repo.RecipeFilter{
		Category:    strings.TrimSpace(q.Category),
		Cuisine:     strings.TrimSpace(q.Cuisine),
		AuthorID:    strings.TrimSpace(q.AuthorID),
		MaxPrepTime: q.MaxPrepTime,
		Terms:       search.Tokenize(q.Search),
	}
	if d := domain.Difficulty(strings.ToLower(strings.TrimSpace(q.Difficulty))); d != "" {
		if !d.Valid() {
			return f, invalid("difficulty", "must be one of: easy, medium, hard")
		}
		f.Difficulty = d
	}

	if s.Gate.Authorize(actor, authz.ActionListAnyStatus, nil) != nil {
		f.Statuses = []domain.Status{domain.StatusPublished}
		return f, nil
	}
	if st := strings.TrimSpace(q.Status); st != "" && !strings.EqualFold(st, "all") {
		parsed, ok := domain.ParseStatus(st)
		if !ok {
			return f, invalid("status", "must be one of: draft, pending, published, rejected")
		}
		f.Statuses = []domain.Status{parsed}
	}
	return f, nil
}

// List returns one page of recipes visible to actor.
func (s *ListingService) List(ctx context.Context, actor auth.Actor, q ListQuery) (*Page, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", q.Page),
			attribute.Int("page_size", q.PageSize),
			attribute.String("search", q.Search),
		),
	)
	defer span.End()

	f, err := s.Filter(actor, q)
	if err != nil {
		return nil, err
	}
	page, size := utils.NormalizePage(q.Page, q.PageSize, s.defaultPageSize(), s.MaxPageSize)

	total, err := s.Repo.CountRecipes(ctx, s.DB, f)
	if err != nil {
		return nil, storageErr(err)
	}
	out := &Page{Items: []domain.Recipe{}, Total: total, Pages: utils.TotalPages(total, size), Page: page, PageSize: size}
	if total == 0 || int64(utils.Offset(page, size)) >= total {
		return out, nil
	}

	items, err := s.Repo.ListRecipesPage(ctx, s.DB, f, ParseSort(q.Sort), utils.Offset(page, size), size)
	if err != nil {
		return nil, storageErr(err)
	}
	out.Items = items
	return out, nil
}

// Stats returns the validator metadata of the recipes a List call with the
// same query would page over.
func (s *ListingService) Stats(ctx context.Context, actor auth.Actor, q ListQuery) (repo.ListStats, error) {
	f, err := s.Filter(actor, q)
	if err != nil {
		return repo.ListStats{}, err
	}
	return s.Repo.RecipesStats(ctx, s.DB, f)
}

// Trending returns up to limit published recipes ordered by views, rating
// and recency. The top trendingWindow recipes are cached for TrendingTTL and
// sliced per call.
func (s *ListingService) Trending(ctx context.Context, limit int) ([]domain.Recipe, error) {
	if limit <= 0 || limit > trendingWindow {
		limit = 10
	}
	var out []domain.Recipe
	err := s.Cache.Aside(ctx, TrendingCacheKey, &out, s.TrendingTTL, func(ctx context.Context) error {
		items, err := s.Repo.TrendingRecipes(ctx, s.DB, trendingWindow)
		out = items
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []domain.Recipe{}
	}
	return out, nil
}

const trendingWindow = 50

// ByAuthor returns the published recipes of authorID, newest first.
func (s *ListingService) ByAuthor(ctx context.Context, authorID string) ([]domain.Recipe, error) {
	f := repo.RecipeFilter{AuthorID: authorID, Statuses: []domain.Status{domain.StatusPublished}}
	items, err := s.Repo.ListRecipesPage(ctx, s.DB, f, nil, 0, s.maxPageSize())
	if err != nil {
		return nil, storageErr(err)
	}
	return items, nil
}

// InvalidateTrending drops the cached trending list.
func (s *ListingService) InvalidateTrending(ctx context.Context) {
	_ = s.Cache.Delete(ctx, TrendingCacheKey)
}

func (s *ListingService) defaultPageSize() int {
	if s.DefaultPageSize > 0 {
		return s.DefaultPageSize
	}
	return 12
}

func (s *ListingService) maxPageSize() int {
	if s.MaxPageSize > 0 {
		return s.MaxPageSize
	}
	return 100
}

// ParseSort turns "field:dir[,field:dir...]" into orders. Fields outside the
// sortable whitelist are ignored; a leading "-" also means descending, and
// the default direction is ascending. An empty result means the default
// order (newest first).
func ParseSort(spec string) []repo.Order {
	var out []repo.Order
	seen := map[string]bool{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(part, "-") {
			desc, part = true, part[1:]
		}
		field, dir, _ := strings.Cut(part, ":")
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "desc", "-1", "descending":
			desc = true
		}
		col, ok := repo.SortColumn(strings.TrimSpace(field))
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		out = append(out, repo.Order{Column: col, Desc: desc})
	}
	return out
}
