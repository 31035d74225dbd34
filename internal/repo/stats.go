// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer and for the
// admin dashboard.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// ListStats is the metadata a listing's validator is derived from.
type ListStats struct {
	// Count is the number of matching rows.
	Count int64
	// LatestUpdate is the maximum updated_at, nil when nothing matches.
	LatestUpdate *time.Time
	// Views is the sum of the view counters. Views do not bump updated_at,
	// so they are tracked separately.
	Views int64
}

// RecipesStats returns aggregate metadata for the recipes matching f.
func RecipesStats(ctx context.Context, db *gorm.DB, f RecipeFilter) (ListStats, error) {
	var agg struct {
		N     int64
		Views int64
	}
	q := applyRecipeFilter(db.WithContext(ctx).Model(&domain.Recipe{}), f)
	if err := q.Select("COUNT(*) AS n, COALESCE(SUM(views), 0) AS views").Scan(&agg).Error; err != nil {
		return ListStats{}, err
	}
	if agg.N == 0 {
		return ListStats{}, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q = applyRecipeFilter(db.WithContext(ctx).Model(&domain.Recipe{}), f)
	if err := q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return ListStats{}, err
	}
	return ListStats{Count: agg.N, LatestUpdate: &row.UpdatedAt, Views: agg.Views}, nil
}

// CountRecipesByStatus returns the number of live recipes in each moderation
// state. States without recipes are reported as zero.
func CountRecipesByStatus(ctx context.Context, db *gorm.DB) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		N      int64
	}
	err := db.WithContext(ctx).Model(&domain.Recipe{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Status]int64, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// AveragePublishedRating returns the mean averageRating over published
// recipes, or 0 when there are none.
func AveragePublishedRating(ctx context.Context, db *gorm.DB) (float64, error) {
	var row struct {
		Avg *float64
	}
	err := db.WithContext(ctx).Model(&domain.Recipe{}).
		Select("AVG(average_rating) AS avg").
		Where("status = ?", domain.StatusPublished).
		Scan(&row).Error
	if err != nil || row.Avg == nil {
		return 0, err
	}
	return *row.Avg, nil
}

// RecentRecipes returns the newest recipes of any status with authors
// expanded.
func RecentRecipes(ctx context.Context, db *gorm.DB, limit int) ([]domain.Recipe, error) {
	return ListRecipesPage(ctx, db, RecipeFilter{}, []Order{{Column: "created_at", Desc: true}}, 0, limit)
}

// TopRatedRecipes returns the best rated published recipes.
func TopRatedRecipes(ctx context.Context, db *gorm.DB, limit int) ([]domain.Recipe, error) {
	orders := []Order{
		{Column: "average_rating", Desc: true},
		{Column: "rating_count", Desc: true},
	}
	return ListRecipesPage(ctx, db, RecipeFilter{Statuses: []domain.Status{domain.StatusPublished}}, orders, 0, limit)
}

// RecipeCreationTimes returns the creation timestamps of live recipes created
// at or after since. Bucketing is left to the caller so that the query stays
// portable across SQLite and PostgreSQL.
func RecipeCreationTimes(ctx context.Context, db *gorm.DB, since time.Time) ([]time.Time, error) {
	var out []time.Time
	err := db.WithContext(ctx).Model(&domain.Recipe{}).
		Where("created_at >= ?", since).
		Order("created_at").
		Pluck("created_at", &out).Error
	return out, err
}
