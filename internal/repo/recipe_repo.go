// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Recipe
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business rules, only persistence and query composition.
//
// Error semantics:
//   - When a recipe is not found (or soft-deleted), functions return
//     ErrNotFound.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/search"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// RecipeFilter narrows a recipe listing. Zero values mean "no constraint".
type RecipeFilter struct {
	// Statuses restricts the moderation state; empty means any state.
	Statuses    []domain.Status
	Category    string
	Cuisine     string
	Difficulty  domain.Difficulty
	AuthorID    string
	MaxPrepTime int
	// Terms must each appear, case-insensitively, in the title, the
	// description or the tags. Matching uses the same case folding as
	// search_text, so it holds for non-ASCII text too.
	Terms []string
}

// Order is a single ORDER BY term over a whitelisted column.
type Order struct {
	Column string
	Desc   bool
}

// sortableColumns maps public sort keys (camelCase and snake_case) to columns.
var sortableColumns = map[string]string{
	"createdat":      "created_at",
	"created_at":     "created_at",
	"updatedat":      "updated_at",
	"updated_at":     "updated_at",
	"publishedat":    "published_at",
	"published_at":   "published_at",
	"title":          "title",
	"averagerating":  "average_rating",
	"average_rating": "average_rating",
	"rating":         "average_rating",
	"ratingcount":    "rating_count",
	"rating_count":   "rating_count",
	"views":          "views",
	"preptime":       "prep_time",
	"prep_time":      "prep_time",
	"servings":       "servings",
}

// SortColumn resolves a public sort key to its column name.
func SortColumn(key string) (string, bool) {
	col, ok := sortableColumns[strings.ToLower(strings.TrimSpace(key))]
	return col, ok
}

// authorColumns is the narrow projection used when expanding authors.
func authorColumns(db *gorm.DB) *gorm.DB {
	return db.Select("id", "name", "avatar")
}

// CreateRecipe inserts r, assigning a UUID when r.ID is empty and UTC
// timestamps.
func CreateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	return db.WithContext(ctx).Omit(clause.Associations).Create(r).Error
}

// GetRecipe loads a recipe row without associations.
func GetRecipe(ctx context.Context, db *gorm.DB, id string) (*domain.Recipe, error) {
	var r domain.Recipe
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRecipeDetail loads a recipe with its author and ratings (each with the
// rater's id, name and avatar), ratings ordered oldest first.
func GetRecipeDetail(ctx context.Context, db *gorm.DB, id string) (*domain.Recipe, error) {
	var r domain.Recipe
	err := db.WithContext(ctx).
		Preload("Author", authorColumns).
		Preload("Ratings", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC").Order("id ASC")
		}).
		Preload("Ratings.User", authorColumns).
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRecipeFields applies the column/value pairs in fields to recipe id
// and bumps updated_at. It returns ErrNotFound when no live row matched.
func UpdateRecipeFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Recipe{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LockRecipe takes a write lock on the recipe row for the remainder of the
// surrounding transaction by touching updated_at. Concurrent writers on the
// same recipe block here until the holder commits. Returns ErrNotFound when
// the recipe does not exist.
func LockRecipe(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).Model(&domain.Recipe{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRecipeAggregate persists the derived rating summary of a recipe.
func SetRecipeAggregate(ctx context.Context, db *gorm.DB, id string, avg float64, count int) error {
	return db.WithContext(ctx).Model(&domain.Recipe{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"average_rating": avg, "rating_count": count}).Error
}

// IncrementViews atomically adds one to the view counter. It does not touch
// updated_at so that reads do not invalidate list ETags.
func IncrementViews(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Model(&domain.Recipe{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRecipe soft-deletes a recipe. Returns ErrNotFound when no live row
// matched.
func DeleteRecipe(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Recipe{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// likeEscaper escapes LIKE metacharacters; queries use ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// applyRecipeFilter adds the WHERE clauses for f to q.
func applyRecipeFilter(q *gorm.DB, f RecipeFilter) *gorm.DB {
	switch len(f.Statuses) {
	case 0:
	case 1:
		q = q.Where("status = ?", f.Statuses[0])
	default:
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Cuisine != "" {
		q = q.Where("LOWER(cuisine) = ?", strings.ToLower(f.Cuisine))
	}
	if f.Difficulty != "" {
		q = q.Where("difficulty = ?", f.Difficulty)
	}
	if f.AuthorID != "" {
		q = q.Where("author_id = ?", f.AuthorID)
	}
	if f.MaxPrepTime > 0 {
		q = q.Where("prep_time <= ?", f.MaxPrepTime)
	}
	for _, term := range f.Terms {
		if term == "" {
			continue
		}
		pat := "%" + likeEscaper.Replace(search.Fold(term)) + "%"
		q = q.Where(`search_text LIKE ? ESCAPE '\'`, pat)
	}
	return q
}

// CountRecipes returns the number of live recipes matching f.
func CountRecipes(ctx context.Context, db *gorm.DB, f RecipeFilter) (int64, error) {
	var n int64
	err := applyRecipeFilter(db.WithContext(ctx).Model(&domain.Recipe{}), f).Count(&n).Error
	return n, err
}

// ListRecipesPage returns one page of recipes matching f in the given order,
// with authors expanded. An "id" tiebreaker keeps paging stable.
func ListRecipesPage(ctx context.Context, db *gorm.DB, f RecipeFilter, orders []Order, offset, limit int) ([]domain.Recipe, error) {
	q := applyRecipeFilter(db.WithContext(ctx).Model(&domain.Recipe{}), f).
		Preload("Author", authorColumns)
	q = applyOrders(q, orders)

	var out []domain.Recipe
	if err := q.Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func applyOrders(q *gorm.DB, orders []Order) *gorm.DB {
	if len(orders) == 0 {
		orders = []Order{{Column: "created_at", Desc: true}}
	}
	for _, o := range orders {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	return q.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
}

// TrendingRecipes returns the most viewed published recipes, ties broken by
// rating and recency.
func TrendingRecipes(ctx context.Context, db *gorm.DB, limit int) ([]domain.Recipe, error) {
	orders := []Order{
		{Column: "views", Desc: true},
		{Column: "average_rating", Desc: true},
		{Column: "created_at", Desc: true},
	}
	return ListRecipesPage(ctx, db, RecipeFilter{Statuses: []domain.Status{domain.StatusPublished}}, orders, 0, limit)
}

// PendingRecipes returns the moderation queue, newest first, with author
// name, avatar and email expanded.
func PendingRecipes(ctx context.Context, db *gorm.DB) ([]domain.Recipe, error) {
	var out []domain.Recipe
	err := db.WithContext(ctx).
		Preload("Author", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("id", "name", "avatar", "email")
		}).
		Where("status = ?", domain.StatusPending).
		Order("created_at DESC").Order("id").
		Find(&out).Error
	return out, err
}

// MoveRecipesCategory renames the category of every live recipe in from.
func MoveRecipesCategory(ctx context.Context, db *gorm.DB, from, to string) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Recipe{}).
		Where("category = ?", from).
		UpdateColumn("category", to)
	return res.RowsAffected, res.Error
}
