package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, func(c *gin.Context) {
		c.Header(requestIDHeader, "rid-123")
		c.Next()
	}, httptest.NewRequest(http.MethodGet, "/api/recipes", nil))

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("unexpected optional headers: %#v", h)
	}
	if h.Get("Access-Control-Expose-Headers") != requestIDHeader {
		t.Fatalf("expose header = %q", h.Get("Access-Control-Expose-Headers"))
	}
}

func TestSecurityHeaders_ExposeHeaderMerging(t *testing.T) {
	cases := []struct{ existing, want string }{
		{"Foo", "Foo, X-Request-ID"},
		{"X-Request-ID, Foo", "X-Request-ID, Foo"},
	}
	for _, tc := range cases {
		h := serveSecurity(t, SecurityOptions{}, func(c *gin.Context) {
			c.Header(requestIDHeader, "rid")
			c.Header("Access-Control-Expose-Headers", tc.existing)
			c.Next()
		}, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
			t.Fatalf("existing %q: got %q; want %q", tc.existing, got, tc.want)
		}
	}
}

func TestSecurityHeaders_PolicyNoStoreHSTS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	h := serveSecurity(t, SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil, req)

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("missing policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("missing cache headers: %#v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}

	plain := serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, httptest.NewRequest(http.MethodGet, "/", nil))
	if plain.Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain HTTP")
	}
}

func TestSecurityHeaders_NoStorePrefixes(t *testing.T) {
	opt := SecurityOptions{NoStorePrefixes: []string{"/api/admin", "/api/recipes/admin"}}
	if h := serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)); h.Get("Cache-Control") != "no-store" {
		t.Fatalf("admin route should be no-store, got %q", h.Get("Cache-Control"))
	}
	if h := serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/api/recipes/admin/pending", nil)); h.Get("Cache-Control") != "no-store" {
		t.Fatalf("moderation route should be no-store, got %q", h.Get("Cache-Control"))
	}
	if h := serveSecurity(t, opt, nil, httptest.NewRequest(http.MethodGet, "/api/recipes", nil)); h.Get("Cache-Control") != "" {
		t.Fatalf("public route should be cacheable, got %q", h.Get("Cache-Control"))
	}
}

func Test_isHTTPS(t *testing.T) {
	if isHTTPS(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatalf("plain HTTP should not be https")
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	if !isHTTPS(req) {
		t.Fatalf("TLS request should be https")
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(req) {
		t.Fatalf("X-Forwarded-Proto=https should be https")
	}
}
