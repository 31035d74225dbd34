package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	userID, scope, key string
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	})
	r.Use(IdempotencyValidator(opts, lookup))
	r.POST("/api/recipes", h)
	r.GET("/api/recipes", h)
	return r
}

func TestIdempotencyValidator_NoHeaderOrUnsafeMethodOnly(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (string, bool, error) {
		called = true
		return "", false, nil
	}
	r := idemRouter(IdempotencyOptions{}, lookup, func(c *gin.Context) {
		if _, _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("key should not be stashed")
		}
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/recipes", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/recipes", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if called {
		t.Fatalf("lookup should not run without a key or on GET")
	}
}

func TestIdempotencyValidator_InvalidKeys(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc"},
		{"default pattern", IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		r := idemRouter(tc.opts, nil, func(c *gin.Context) { c.Status(http.StatusOK) })
		req := httptest.NewRequest(http.MethodPost, "/api/recipes", nil)
		req.Header.Set(HeaderIdempotencyKey, tc.key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d; want 400", tc.name, w.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: invalid json: %v", tc.name, err)
		}
		if body["code"] != "bad_idempotency_key" || body["success"] != false {
			t.Fatalf("%s: body = %v", tc.name, body)
		}
	}
}

func TestIdempotencyValidator_ReplayMarksResource(t *testing.T) {
	var got lookupCall
	lookup := func(_ context.Context, uid, scope, key string, _ time.Time) (string, bool, error) {
		got = lookupCall{uid, scope, key}
		return "recipe-1", true, nil
	}
	r := idemRouter(IdempotencyOptions{}, lookup, func(c *gin.Context) {
		key, scope, ok := GetIdempotencyKey(c)
		if !ok || key != "k-1" || scope != "POST /api/recipes" {
			t.Fatalf("key=%q scope=%q ok=%v", key, scope, ok)
		}
		id, replay := ReplayOf(c)
		if !replay || id != "recipe-1" || !IsRateBypass(c) {
			t.Fatalf("replay=%v id=%q bypass=%v", replay, id, IsRateBypass(c))
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/recipes", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	req.Header.Set("X-Test-User", "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got != (lookupCall{"alice", "POST /api/recipes", "k-1"}) {
		t.Fatalf("lookup called with %+v", got)
	}
}

func TestIdempotencyValidator_MissOrLookupErrorProceeds(t *testing.T) {
	for _, lookup := range []IdempotencyLookup{
		func(context.Context, string, string, string, time.Time) (string, bool, error) { return "", false, nil },
		func(context.Context, string, string, string, time.Time) (string, bool, error) {
			return "", false, errors.New("db down")
		},
	} {
		r := idemRouter(IdempotencyOptions{}, lookup, func(c *gin.Context) {
			if _, replay := ReplayOf(c); replay || IsRateBypass(c) {
				t.Fatalf("unexpected replay")
			}
			if _, _, ok := GetIdempotencyKey(c); !ok {
				t.Fatalf("key should still be stashed")
			}
			c.Status(http.StatusCreated)
		})
		req := httptest.NewRequest(http.MethodPost, "/api/recipes", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-2")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d", w.Code)
		}
	}
}
