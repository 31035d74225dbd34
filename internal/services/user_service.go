// Package services – UserService
//
// Users are owned by the identity provider; this service only lists them for
// admins, changes roles and upserts the records used by the seed command.
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
	"github.com/tbourn/go-recipe-backend/internal/utils"
)

// UserService manages the local user records.
type UserService struct {
	DB   *gorm.DB
	Gate *authz.Gate
}

// UserPage is one page of users.
type UserPage struct {
	Items    []domain.User `json:"items"`
	Total    int64         `json:"total"`
	Pages    int           `json:"pages"`
	Page     int           `json:"currentPage"`
	PageSize int           `json:"pageSize"`
}

func (s *UserService) authorize(actor auth.Actor) error {
	if !s.Gate.Can(actor, authz.ObjUser, authz.ActManage) {
		return ErrForbidden
	}
	return nil
}

// List returns a page of users, newest first.
func (s *UserService) List(ctx context.Context, actor auth.Actor, page, pageSize int) (*UserPage, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	page, pageSize = utils.NormalizePage(page, pageSize, 20, 100)
	total, err := repo.CountUsers(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := &UserPage{Items: []domain.User{}, Total: total, Pages: utils.TotalPages(total, pageSize), Page: page, PageSize: pageSize}
	if total == 0 {
		return out, nil
	}
	items, err := repo.ListUsersPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return out, nil
}

// SetRole changes the role of user id to role (user or admin). Admins cannot
// demote themselves.
func (s *UserService) SetRole(ctx context.Context, actor auth.Actor, id, role string) (*domain.User, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	r, ok := domain.ParseRole(role)
	if !ok {
		return nil, invalid("role", "must be one of: user, admin")
	}
	if id == actor.UserID && r != domain.RoleAdmin {
		return nil, invalid("role", "admins cannot remove their own admin role")
	}
	if err := repo.SetUserRole(ctx, s.DB, id, r); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return repo.GetUser(ctx, s.DB, id)
}

// Upsert stores u keyed by email.
func (s *UserService) Upsert(ctx context.Context, u *domain.User) (*domain.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	if u.Email == "" || u.Name == "" {
		ve := &ValidationError{}
		if u.Email == "" {
			ve.Fields = append(ve.Fields, FieldError{Field: "email", Message: "is required"})
		}
		if u.Name == "" {
			ve.Fields = append(ve.Fields, FieldError{Field: "name", Message: "is required"})
		}
		return nil, ve
	}
	return repo.UpsertUser(ctx, s.DB, u)
}
