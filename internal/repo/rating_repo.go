// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Rating
// model (one row per recipe/user pair).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// GetRating returns the rating userID left on recipeID, or ErrNotFound.
func GetRating(ctx context.Context, db *gorm.DB, recipeID, userID string) (*domain.Rating, error) {
	var r domain.Rating
	err := db.WithContext(ctx).
		Where("recipe_id = ? AND user_id = ?", recipeID, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRating inserts a new rating. A second rating for the same
// (recipe, user) violates ux_rating_recipe_user.
func CreateRating(ctx context.Context, db *gorm.DB, recipeID, userID string, value int, review string) (*domain.Rating, error) {
	now := time.Now().UTC()
	r := &domain.Rating{
		ID:        uuid.NewString(),
		RecipeID:  recipeID,
		UserID:    userID,
		Rating:    value,
		Review:    review,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Omit("User").Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRating overwrites the score and review of an existing rating row.
func UpdateRating(ctx context.Context, db *gorm.DB, id string, value int, review string) error {
	res := db.WithContext(ctx).Model(&domain.Rating{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"rating":     value,
			"review":     review,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RatingTotals returns the number of ratings on recipeID and the sum of their
// scores.
func RatingTotals(ctx context.Context, db *gorm.DB, recipeID string) (count, sum int64, err error) {
	var row struct {
		Count int64
		Sum   int64
	}
	err = db.WithContext(ctx).Model(&domain.Rating{}).
		Select("COUNT(*) AS count, COALESCE(SUM(rating), 0) AS sum").
		Where("recipe_id = ?", recipeID).
		Scan(&row).Error
	return row.Count, row.Sum, err
}

// ListRatingValues returns every score left on recipeID.
func ListRatingValues(ctx context.Context, db *gorm.DB, recipeID string) ([]int, error) {
	var vals []int
	err := db.WithContext(ctx).Model(&domain.Rating{}).
		Where("recipe_id = ?", recipeID).
		Order("created_at").
		Pluck("rating", &vals).Error
	return vals, err
}
