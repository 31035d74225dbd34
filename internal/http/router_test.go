package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/config"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/http/middleware"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

const testSecret = "router-test-secret-0123"

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api",
		RateRPS:     100,
		RateBurst:   50,
		OTEL:        config.OTELConfig{ServiceName: "recipes-test"},
	}
}

func newRouter(t *testing.T, db *gorm.DB, cfg config.Config) (*gin.Engine, *auth.Tokens) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	gate, err := authz.NewGate()
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	tokens := auth.NewTokens(testSecret, "test", time.Hour)
	RegisterRoutes(r, Deps{DB: db, Gate: gate, Tokens: tokens}, cfg)
	return r, tokens
}

func serve(r *gin.Engine, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader = http.NoBody
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, newTestDB(t), testConfig())

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	var health struct {
		Status          string `json:"status"`
		Database        string `json:"database"`
		MediaHost       string `json:"mediaHost"`
		MediaConfigured bool   `json:"mediaConfigured"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Database != "ok" || health.MediaHost != "none" || health.MediaConfigured {
		t.Fatalf("health = %+v", health)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w = serve(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w = serve(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://app.test"}}
	r, _ := newRouter(t, newTestDB(t), cfg)

	w := serve(r, http.MethodGet, "/api/categories", "", nil, "Origin", "http://app.test")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/categories = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.test" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = serve(r, http.MethodGet, "/api/categories", "", nil, "Origin", "http://evil.test")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin echoed: %q", got)
	}
}

func TestRegisterRoutes_InvalidTokenIsUnauthorized(t *testing.T) {
	r, _ := newRouter(t, newTestDB(t), testConfig())

	w := serve(r, http.MethodGet, "/api/recipes", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d; want 401", w.Code)
	}
}

func TestRegisterRoutes_RecipeLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "alice", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser},
		{ID: "root", Name: "Root", Email: "root@example.com", Role: domain.RoleAdmin},
	} {
		if _, err := repo.UpsertUser(ctx, db, &u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	r, tokens := newRouter(t, db, testConfig())
	userTok, err := tokens.Issue("alice", "Alice", domain.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	adminTok, err := tokens.Issue("root", "Root", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	body := map[string]any{
		"title":        "Shakshuka",
		"description":  "Eggs in spiced tomato sauce",
		"ingredients":  []string{"eggs", "tomatoes", "cumin"},
		"instructions": "Simmer the sauce. Poach the eggs.",
		"prepTime":     25,
		"difficulty":   "medium",
		"category":     "Breakfast",
		"cuisine":      "Middle Eastern",
		"servings":     2,
		"images":       []string{"https://cdn.test/shakshuka.jpg"},
	}

	if w := serve(r, http.MethodPost, "/api/recipes", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d; want 401", w.Code)
	}

	w := serve(r, http.MethodPost, "/api/recipes", userTok, body, middleware.HeaderIdempotencyKey, "create-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Data domain.Recipe `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id := created.Data.ID
	if id == "" || created.Data.Status != domain.StatusPending {
		t.Fatalf("created = %+v", created.Data)
	}

	w = serve(r, http.MethodPost, "/api/recipes", userTok, body, middleware.HeaderIdempotencyKey, "create-1")
	if w.Code != http.StatusCreated || w.Header().Get(middleware.HeaderIdempotentReplay) != "true" {
		t.Fatalf("replay = %d replayed=%q", w.Code, w.Header().Get(middleware.HeaderIdempotentReplay))
	}

	// Pending recipes are hidden from the public listing.
	var list struct {
		Data  []domain.Recipe `json:"data"`
		Count *int            `json:"count"`
	}
	w = serve(r, http.MethodGet, "/api/recipes", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Data) != 0 {
		t.Fatalf("pending recipe listed publicly: %+v", list.Data)
	}

	if w = serve(r, http.MethodPut, "/api/recipes/"+id+"/approve", userTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user approve = %d; want 403", w.Code)
	}
	if w = serve(r, http.MethodPut, "/api/recipes/"+id+"/approve", adminTok, nil); w.Code != http.StatusOK {
		t.Fatalf("admin approve = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/recipes", "", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Data) != 1 || list.Data[0].ID != id {
		t.Fatalf("published listing = %+v", list.Data)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("listing without ETag")
	}
	if w = serve(r, http.MethodGet, "/api/recipes", "", nil, "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("conditional list = %d; want 304", w.Code)
	}

	if w = serve(r, http.MethodPost, "/api/recipes/"+id+"/rate", adminTok, map[string]any{"rating": 4}); w.Code != http.StatusOK {
		t.Fatalf("rate = %d %s", w.Code, w.Body.String())
	}
	if w = serve(r, http.MethodGet, "/api/admin/recipes/pending", adminTok, nil); w.Code != http.StatusOK {
		t.Fatalf("admin alias = %d", w.Code)
	}
	if w = serve(r, http.MethodGet, "/api/admin/stats", adminTok, nil); w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got == "" {
		t.Fatalf("admin response is cacheable")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_joinPath(t *testing.T) {
	if got := joinPath("/api", "/admin"); got != "/api/admin" {
		t.Fatalf("joinPath = %q", got)
	}
	if got := joinPath("/", "/admin"); got != "/admin" {
		t.Fatalf("joinPath root = %q", got)
	}
}

func Test_listingRepoShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		rec := &domain.Recipe{
			Title: fmt.Sprintf("Recipe %d", i), Description: "d", Ingredients: []string{"x"},
			Instructions: "i", PrepTime: 5, Difficulty: domain.DifficultyEasy, Category: "Misc",
			Cuisine: "Any", Servings: 1, AuthorID: "alice", Status: domain.StatusPublished, PublishedAt: &now,
		}
		if err := repo.CreateRecipe(ctx, db, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	shim := listingRepoShim{}
	f := repo.RecipeFilter{Statuses: []domain.Status{domain.StatusPublished}}
	n, err := shim.CountRecipes(ctx, db, f)
	if err != nil || n != 3 {
		t.Fatalf("CountRecipes = %d, %v", n, err)
	}
	page, err := shim.ListRecipesPage(ctx, db, f, nil, 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListRecipesPage = %d, %v", len(page), err)
	}
	trending, err := shim.TrendingRecipes(ctx, db, 10)
	if err != nil || len(trending) != 3 {
		t.Fatalf("TrendingRecipes = %d, %v", len(trending), err)
	}
	st, err := shim.RecipesStats(ctx, db, f)
	if err != nil || st.Count != 3 || st.LatestUpdate == nil {
		t.Fatalf("RecipesStats = %+v %v", st, err)
	}
}

func Test_dbPinger(t *testing.T) {
	db := newTestDB(t)
	if err := (dbPinger{db: db}).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if err := (dbPinger{db: db}).Ping(context.Background()); err == nil {
		t.Fatalf("ping on closed db succeeded")
	}
}
