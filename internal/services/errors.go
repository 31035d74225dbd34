// Package services implements the business rules of the recipe backend:
// recipe storage and moderation, rating aggregation, listings, categories,
// the admin dashboard and user roles.
//
// This file centralizes the service-level errors so handlers can map them to
// HTTP results in one place.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

var (
	// ErrRecipeNotFound indicates that the recipe does not exist or is not
	// visible to the caller.
	ErrRecipeNotFound = errors.New("recipe not found")

	// ErrForbidden is returned when the actor lacks permission. It is the
	// authorization gate's sentinel so either can be matched with errors.Is.
	ErrForbidden = authz.ErrForbidden

	// ErrStorageUnavailable is returned when storage stayed busy or
	// unreachable after the bounded retries.
	ErrStorageUnavailable = errors.New("storage temporarily unavailable")

	// ErrCategoryNotFound indicates an unknown category id.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCategoryExists is returned when a category name is already taken.
	ErrCategoryExists = errors.New("category already exists")

	// ErrCategoryInUse is returned when deleting a category that still has
	// recipes.
	ErrCategoryInUse = errors.New("category still has recipes")

	// ErrMediaUnavailable is returned when no media host is configured or the
	// host is failing.
	ErrMediaUnavailable = errors.New("media host unavailable")

	// ErrUserNotFound indicates an unknown user id.
	ErrUserNotFound = errors.New("user not found")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// storageErr converts exhausted retries into ErrStorageUnavailable and
// passes every other error through.
func storageErr(err error) error {
	if err != nil && errors.Is(err, repo.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}
