// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for create requests. The
// middleware validates the header, scopes it to the caller and the route,
// and looks up a previously recorded result. A hit marks the request as a
// replay carrying the id of the resource created the first time; the handler
// then answers with that resource instead of creating a second one. Replays
// also bypass rate limiting.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay is set on responses that were served from a prior
// result.
const HeaderIdempotentReplay = "Idempotent-Replayed"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemScope    = "idem.scope"
	ctxKeyIdemResource = "idem.resource" // string: id created by the first request
	ctxKeyRateBypass   = "rate.bypass"   // bool: true to skip rate limiting
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key and its scope. ok is false when
// the request carried no key.
func GetIdempotencyKey(c *gin.Context) (key, scope string, ok bool) {
	key = c.GetString(ctxKeyIdemKey)
	scope = c.GetString(ctxKeyIdemScope)
	return key, scope, key != ""
}

// ReplayOf returns the id of the resource created by an earlier request with
// the same key, when this request is a replay.
func ReplayOf(c *gin.Context) (string, bool) {
	id := c.GetString(ctxKeyIdemResource)
	return id, id != ""
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Methods lists the methods the header is honored on. Empty means POST.
	Methods []string
}

// IdempotencyLookup returns the resource id recorded for (userID, scope, key)
// if the record is still valid at now. Lookup errors never block a request.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, found bool, err error)

// IdempotencyScope names the operation a key applies to: the method and the
// registered route, e.g. "POST /api/recipes".
func IdempotencyScope(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + " " + path
}

// IdempotencyValidator validates Idempotency-Key on the configured methods,
// stashes it with its scope, and marks replays found by lookup. Invalid keys
// are answered with 400 bad_idempotency_key. It must run after Authenticate
// so keys are scoped per user.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	methods := map[string]bool{http.MethodPost: true}
	if len(opts.Methods) > 0 {
		methods = make(map[string]bool, len(opts.Methods))
		for _, m := range opts.Methods {
			methods[strings.ToUpper(m)] = true
		}
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !methods[c.Request.Method] {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				errorBody(c, "bad_idempotency_key", "invalid Idempotency-Key"))
			return
		}

		scope := IdempotencyScope(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if lookup != nil {
			uid := c.GetString(ctxKeyUserID)
			id, found, err := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if found && id != "" {
				c.Set(ctxKeyIdemResource, id)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
