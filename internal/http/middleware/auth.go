// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. Authenticate parses an optional
// bearer token into an auth.Actor; RequireAuth rejects anonymous callers on
// routes that need a principal. Role decisions are left to the authorization
// gate in the services layer.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/auth"
)

const (
	ctxKeyActor = "actor"
	// ctxKeyUserID is read by the request logger and the rate limiter.
	ctxKeyUserID = "userID"
)

// TokenParser turns a raw bearer token into an actor.
type TokenParser interface {
	Parse(raw string) (auth.Actor, error)
}

// Authenticate attaches the actor carried by the Authorization header to the
// request. Requests without a header continue as anonymous; a malformed or
// invalid token is rejected with 401 so clients notice expired sessions.
func Authenticate(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(ctxKeyActor, auth.Anonymous())
			c.Next()
			return
		}
		raw, ok := auth.BearerToken(header)
		if !ok {
			abortUnauthorized(c, "authorization header must use the Bearer scheme")
			return
		}
		actor, err := tokens.Parse(raw)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("bearer token rejected")
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ctxKeyActor, actor)
		c.Set(ctxKeyUserID, actor.UserID)
		c.Next()
	}
}

// RequireAuth rejects anonymous callers with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFrom(c).IsAnonymous() {
			abortUnauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor resolved by Authenticate, or the anonymous
// actor when none was attached.
func ActorFrom(c *gin.Context) auth.Actor {
	if v, ok := c.Get(ctxKeyActor); ok {
		if a, ok := v.(auth.Actor); ok {
			return a
		}
	}
	return auth.Anonymous()
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(c, "unauthorized", msg))
}

// errorBody is the error envelope shared by middleware that answers on its
// own (401, 429, 400, 500).
func errorBody(c *gin.Context, code, msg string) gin.H {
	return gin.H{
		"success":    false,
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	}
}
