// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case. Generic codes mirror HTTP status semantics;
// the few domain codes name business failures a client may branch on.
// writeServiceError is the single place where service errors become HTTP
// results.
//
// Example response:
//
//	{
//	  "success": false,
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "validation_failed",
//	  "message": "validation failed",
//	  "errors": [{"field": "rating", "message": "must be between 1 and 5"}]
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/http/middleware"
	"github.com/tbourn/go-recipe-backend/internal/services"
)

const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeValidation         = "validation_failed"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimited        = "too_many_requests"
	ErrCodeInternal           = "internal_error"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodeUnavailable        = "service_unavailable"
	ErrCodeTimeout            = "timeout"
	ErrCodePreconditionFailed = "precondition_failed"

	// Domain-specific:
	ErrCodeCategoryInUse    = "category_in_use"
	ErrCodeMediaUnavailable = "media_unavailable"
)

// writeServiceError maps err to a status and error code and aborts the
// request with the error envelope.
func writeServiceError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		failWith(c, http.StatusBadRequest, ErrCodeValidation, "validation failed", ve.Fields)
	case errors.Is(err, services.ErrForbidden):
		if actorOf(c).IsAnonymous() {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
			return
		}
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not allowed")
	case errors.Is(err, services.ErrRecipeNotFound),
		errors.Is(err, services.ErrCategoryNotFound),
		errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrCategoryExists):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrCategoryInUse):
		fail(c, http.StatusConflict, ErrCodeCategoryInUse, err.Error())
	case errors.Is(err, services.ErrMediaUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeMediaUnavailable, err.Error())
	case errors.Is(err, services.ErrStorageUnavailable):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "storage temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
