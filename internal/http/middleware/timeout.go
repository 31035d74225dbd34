// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file bounds request processing time by attaching a deadline to the
// request context. Handlers and the storage layer honor it through ctx.
package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout derives a request context that is cancelled after d. A
// non-positive d disables the deadline.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
