// Package services – DashboardService
//
// This file builds the admin dashboard: totals, per-status counts, the mean
// rating of published recipes, recent and top rated recipes and a six month
// creation chart. The result is cached briefly since every admin page load
// asks for it.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/cache"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

// DashboardCacheKey is the cache key of the dashboard.
const DashboardCacheKey = "dashboard:stats"

// MonthCount is one bar of the creation chart.
type MonthCount struct {
	Name    string `json:"name"`
	Recipes int    `json:"recipes"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalRecipes     int64                   `json:"totalRecipes"`
	TotalUsers       int64                   `json:"totalUsers"`
	TotalCategories  int64                   `json:"totalCategories"`
	PendingRecipes   int64                   `json:"pendingRecipes"`
	PublishedRecipes int64                   `json:"publishedRecipes"`
	RejectedRecipes  int64                   `json:"rejectedRecipes"`
	DraftRecipes     int64                   `json:"draftRecipes"`
	ByStatus         map[domain.Status]int64 `json:"byStatus"`
	AverageRating    float64                 `json:"averageRating"`
	RecentRecipes    []domain.Recipe         `json:"recentRecipes"`
	TopRated         []domain.Recipe         `json:"topRatedRecipes"`
	MonthlyRecipes   []MonthCount            `json:"monthlyRecipes"`
	GeneratedAt      time.Time               `json:"generatedAt"`
}

// DashboardService computes the admin dashboard.
type DashboardService struct {
	DB    *gorm.DB
	Gate  *authz.Gate
	Cache *cache.Cache
	TTL   time.Duration

	now func() time.Time
}

// Stats returns the dashboard for an admin actor.
func (s *DashboardService) Stats(ctx context.Context, actor auth.Actor) (*Dashboard, error) {
	if !s.Gate.Can(actor, authz.ObjDashboard, authz.ActView) {
		return nil, ErrForbidden
	}
	tr := otel.Tracer("services/DashboardService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	var d Dashboard
	err := s.Cache.Aside(ctx, DashboardCacheKey, &d, ttl, func(ctx context.Context) error {
		built, err := s.build(ctx)
		if err != nil {
			return err
		}
		d = *built
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return &d, nil
}

func (s *DashboardService) build(ctx context.Context) (*Dashboard, error) {
	now := time.Now().UTC()
	if s.now != nil {
		now = s.now().UTC()
	}
	d := &Dashboard{GeneratedAt: now}

	var err error
	if d.TotalRecipes, err = repo.CountRecipes(ctx, s.DB, repo.RecipeFilter{}); err != nil {
		return nil, err
	}
	if d.TotalUsers, err = repo.CountUsers(ctx, s.DB); err != nil {
		return nil, err
	}
	if d.TotalCategories, err = repo.CountActiveCategories(ctx, s.DB); err != nil {
		return nil, err
	}
	if d.ByStatus, err = repo.CountRecipesByStatus(ctx, s.DB); err != nil {
		return nil, err
	}
	d.PendingRecipes = d.ByStatus[domain.StatusPending]
	d.PublishedRecipes = d.ByStatus[domain.StatusPublished]
	d.RejectedRecipes = d.ByStatus[domain.StatusRejected]
	d.DraftRecipes = d.ByStatus[domain.StatusDraft]

	avg, err := repo.AveragePublishedRating(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	d.AverageRating = domain.RoundRating(avg)

	if d.RecentRecipes, err = repo.RecentRecipes(ctx, s.DB, 5); err != nil {
		return nil, err
	}
	if d.TopRated, err = repo.TopRatedRecipes(ctx, s.DB, 5); err != nil {
		return nil, err
	}

	start := MonthStart(now, -5)
	times, err := repo.RecipeCreationTimes(ctx, s.DB, start)
	if err != nil {
		return nil, err
	}
	d.MonthlyRecipes = MonthlyCounts(times, now, 6)
	return d, nil
}

// MonthStart returns the first instant (UTC) of the month offset months away
// from t's month.
func MonthStart(t time.Time, offset int) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC)
}

// MonthlyCounts buckets times into the n calendar months ending with now's
// month, oldest first, labelled with short month names.
func MonthlyCounts(times []time.Time, now time.Time, n int) []MonthCount {
	if n <= 0 {
		return nil
	}
	out := make([]MonthCount, n)
	starts := make([]time.Time, n)
	for i := 0; i < n; i++ {
		starts[i] = MonthStart(now, i-(n-1))
		out[i].Name = starts[i].Month().String()[:3]
	}
	end := MonthStart(now, 1)
	for _, t := range times {
		t = t.UTC()
		if t.Before(starts[0]) || !t.Before(end) {
			continue
		}
		for i := n - 1; i >= 0; i-- {
			if !t.Before(starts[i]) {
				out[i].Recipes++
				break
			}
		}
	}
	return out
}

// Invalidate drops the cached dashboard.
func (s *DashboardService) Invalidate(ctx context.Context) {
	_ = s.Cache.Delete(ctx, DashboardCacheKey)
}
