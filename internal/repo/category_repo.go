// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Category
// model and the maintenance of its cached recipe count.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// ListCategories returns categories ordered by name. Inactive categories are
// included only when includeInactive is true.
func ListCategories(ctx context.Context, db *gorm.DB, includeInactive bool) ([]domain.Category, error) {
	q := db.WithContext(ctx).Model(&domain.Category{})
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var out []domain.Category
	err := q.Order("name ASC").Find(&out).Error
	return out, err
}

// GetCategory loads a category by id.
func GetCategory(ctx context.Context, db *gorm.DB, id string) (*domain.Category, error) {
	var c domain.Category
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCategoryByName loads a category by its unique name.
func GetCategoryByName(ctx context.Context, db *gorm.DB, name string) (*domain.Category, error) {
	var c domain.Category
	if err := db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts c, assigning an id and timestamps. The IsActive flag
// is written explicitly so that false is not replaced by the column default.
func CreateCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return err
	}
	if !c.IsActive {
		return db.WithContext(ctx).Model(&domain.Category{}).
			Where("id = ?", c.ID).UpdateColumn("is_active", false).Error
	}
	return nil
}

// UpdateCategoryFields applies the given column values to category id.
func UpdateCategoryFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Category{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes category id.
func DeleteCategory(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Category{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecountCategory recomputes recipe_count of the category called name from
// the live recipes that reference it. It is a no-op for names without a
// category row.
func RecountCategory(ctx context.Context, db *gorm.DB, name string) error {
	if name == "" {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE categories SET recipe_count = (
			SELECT COUNT(*) FROM recipes WHERE recipes.category = ? AND recipes.deleted_at IS NULL
		) WHERE name = ?`, name, name).Error
}

// RecountAllCategories recomputes recipe_count for every category.
func RecountAllCategories(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(
		`UPDATE categories SET recipe_count = (
			SELECT COUNT(*) FROM recipes WHERE recipes.category = categories.name AND recipes.deleted_at IS NULL
		)`).Error
}

// CountActiveCategories returns the number of active categories.
func CountActiveCategories(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Category{}).Where("is_active = ?", true).Count(&n).Error
	return n, err
}
