// Package services – CategoryService
//
// This file implements the admin-managed category list. Renaming a category
// moves its recipes to the new name in the same transaction, and a category
// cannot be deleted while recipes still reference it.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

// CategoryInput is the body of a category create request.
type CategoryInput struct {
	Name        string `json:"name"        validate:"required,max=50"`
	Description string `json:"description" validate:"max=200"`
	Icon        string `json:"icon"        validate:"max=16"`
	Color       string `json:"color"       validate:"omitempty,hexcolor,len=7"`
	IsActive    *bool  `json:"isActive"`
}

// CategoryPatch is a partial category update. Nil fields are unchanged.
type CategoryPatch struct {
	Name        *string `json:"name"        validate:"omitnil,min=1,max=50"`
	Description *string `json:"description" validate:"omitnil,max=200"`
	Icon        *string `json:"icon"        validate:"omitnil,max=16"`
	Color       *string `json:"color"       validate:"omitnil,hexcolor,len=7"`
	IsActive    *bool   `json:"isActive"`
}

// CategoryService manages categories.
type CategoryService struct {
	DB   *gorm.DB
	Gate *authz.Gate
}

func (s *CategoryService) authorize(actor auth.Actor) error {
	if !s.Gate.Can(actor, authz.ObjCategory, authz.ActManage) {
		return ErrForbidden
	}
	return nil
}

// List returns categories sorted by name. Inactive ones are included only
// when includeInactive is set and the actor is an admin.
func (s *CategoryService) List(ctx context.Context, actor auth.Actor, includeInactive bool) ([]domain.Category, error) {
	if includeInactive && s.authorize(actor) != nil {
		includeInactive = false
	}
	return repo.ListCategories(ctx, s.DB, includeInactive)
}

// Get returns category id.
func (s *CategoryService) Get(ctx context.Context, id string) (*domain.Category, error) {
	c, err := repo.GetCategory(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	return c, err
}

// Create adds a category. Names are unique; the recipe count is computed
// from recipes that already use the name.
func (s *CategoryService) Create(ctx context.Context, actor auth.Actor, in CategoryInput) (*domain.Category, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Color = strings.ToUpper(strings.TrimSpace(in.Color))
	if err := Validate(in); err != nil {
		return nil, err
	}

	c := &domain.Category{
		Name:        in.Name,
		Description: in.Description,
		Icon:        strings.TrimSpace(in.Icon),
		Color:       in.Color,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if c.Icon == "" {
		c.Icon = "🍽️"
	}
	if c.Color == "" {
		c.Color = "#FF6B6B"
	}

	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		if err := repo.CreateCategory(ctx, tx, c); err != nil {
			if repo.IsDuplicate(err) {
				return ErrCategoryExists
			}
			return err
		}
		if err := repo.RecountCategory(ctx, tx, c.Name); err != nil {
			return err
		}
		got, err := repo.GetCategory(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		*c = *got
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return c, nil
}

// Update applies patch to category id. A rename moves every recipe of the
// old name to the new one.
func (s *CategoryService) Update(ctx context.Context, actor auth.Actor, id string, patch CategoryPatch) (*domain.Category, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		n := strings.TrimSpace(*patch.Name)
		patch.Name = &n
	}
	if patch.Color != nil {
		c := strings.ToUpper(strings.TrimSpace(*patch.Color))
		patch.Color = &c
	}
	if err := Validate(patch); err != nil {
		return nil, err
	}

	var out *domain.Category
	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		cur, err := repo.GetCategory(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}

		fields := map[string]any{}
		if patch.Name != nil {
			fields["name"] = *patch.Name
		}
		if patch.Description != nil {
			fields["description"] = strings.TrimSpace(*patch.Description)
		}
		if patch.Icon != nil {
			fields["icon"] = strings.TrimSpace(*patch.Icon)
		}
		if patch.Color != nil {
			fields["color"] = *patch.Color
		}
		if patch.IsActive != nil {
			fields["is_active"] = *patch.IsActive
		}
		if err := repo.UpdateCategoryFields(ctx, tx, id, fields); err != nil {
			if repo.IsDuplicate(err) {
				return ErrCategoryExists
			}
			return err
		}

		if patch.Name != nil && *patch.Name != cur.Name {
			if _, err := repo.MoveRecipesCategory(ctx, tx, cur.Name, *patch.Name); err != nil {
				return err
			}
			if err := repo.RecountCategory(ctx, tx, *patch.Name); err != nil {
				return err
			}
		}
		out, err = repo.GetCategory(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

// Delete removes category id unless recipes still reference it.
func (s *CategoryService) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authorize(actor); err != nil {
		return err
	}
	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		cur, err := repo.GetCategory(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}
		if err := repo.RecountCategory(ctx, tx, cur.Name); err != nil {
			return err
		}
		if cur, err = repo.GetCategory(ctx, tx, id); err != nil {
			return err
		}
		if cur.RecipeCount > 0 {
			return ErrCategoryInUse
		}
		return repo.DeleteCategory(ctx, tx, id)
	})
	return storageErr(err)
}

// SyncCounts recomputes the recipe count of every category.
func (s *CategoryService) SyncCounts(ctx context.Context) error {
	return storageErr(repo.RecountAllCategories(ctx, s.DB))
}
