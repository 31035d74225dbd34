package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/media"
	"github.com/tbourn/go-recipe-backend/internal/repo"
)

var (
	anon  = auth.Anonymous()
	alice = auth.Actor{UserID: "alice", Name: "Alice", Role: domain.RoleUser}
	bob   = auth.Actor{UserID: "bob", Name: "Bob", Role: domain.RoleUser}
	admin = auth.Actor{UserID: "root", Name: "Root", Role: domain.RoleAdmin}
)

// newTestDB opens a private in-memory database with the full schema. A single
// connection makes SQLite transactions queue instead of failing with
// shared-cache lock errors.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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
	for _, u := range []auth.Actor{alice, bob, admin} {
		role := u.Role
		if _, err := repo.UpsertUser(context.Background(), db, &domain.User{
			ID: u.UserID, Name: u.Name, Email: u.UserID + "@example.com", Role: role,
		}); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	return db
}

// newFileDB opens a migrated database file through repo.OpenSQLite, so the
// pool and PRAGMAs match production.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "recipes.db"))
	if err != nil {
		t.Fatalf("open sqlite file: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

var (
	gateOnce sync.Once
	gate     *authz.Gate
)

func testGate() *authz.Gate {
	gateOnce.Do(func() { gate = authz.MustGate() })
	return gate
}

func validInput() RecipeInput {
	return RecipeInput{
		Title:        "Tomato soup",
		Description:  "A warm soup",
		Ingredients:  []string{"tomatoes", "salt"},
		Instructions: "Boil. Blend.",
		PrepTime:     30,
		Difficulty:   "easy",
		Category:     "Soups",
		Cuisine:      "Italian",
		Servings:     2,
		Images:       []string{"https://res.cloudinary.com/demo/image/upload/v1/recipes/soup.jpg"},
		Tags:         []string{"Vegan", " warm "},
	}
}

// insertRecipe stores a recipe directly, bypassing the service rules.
func insertRecipe(t *testing.T, db *gorm.DB, author string, st domain.Status, mutate func(*domain.Recipe)) *domain.Recipe {
	t.Helper()
	r := &domain.Recipe{
		Title:        "Recipe " + uuid.NewString()[:8],
		Description:  "desc",
		Ingredients:  []string{"x"},
		Instructions: "do it",
		PrepTime:     10,
		Difficulty:   domain.DifficultyEasy,
		Category:     "Soups",
		Cuisine:      "Greek",
		Servings:     1,
		Images:       []string{},
		Tags:         []string{},
		AuthorID:     author,
		Status:       st,
	}
	if mutate != nil {
		mutate(r)
	}
	if err := repo.CreateRecipe(context.Background(), db, r); err != nil {
		t.Fatalf("insert recipe: %v", err)
	}
	return r
}

func mustRecipe(t *testing.T, db *gorm.DB, id string) *domain.Recipe {
	t.Helper()
	r, err := repo.GetRecipe(context.Background(), db, id)
	if err != nil {
		t.Fatalf("get recipe %s: %v", id, err)
	}
	return r
}

func mustCategory(t *testing.T, db *gorm.DB, name string) *domain.Category {
	t.Helper()
	c, err := repo.GetCategoryByName(context.Background(), db, name)
	if err != nil {
		t.Fatalf("get category %s: %v", name, err)
	}
	return c
}

func seedCategory(t *testing.T, db *gorm.DB, name string) *domain.Category {
	t.Helper()
	c := &domain.Category{Name: name, Icon: "🍲", Color: "#123456", IsActive: true}
	if err := repo.CreateCategory(context.Background(), db, c); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return c
}

// recordingHost is a media.Host that records deletions and can be told to
// fail.
type recordingHost struct {
	mu      sync.Mutex
	deleted []string
	fail    bool
}

func (h *recordingHost) Name() string { return "recording" }

func (h *recordingHost) Upload(context.Context, string, string) (*media.Asset, error) {
	return &media.Asset{URL: "https://cdn.test/x.jpg", PublicID: "x"}, nil
}

func (h *recordingHost) DeleteAsset(_ context.Context, url string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, url)
	if h.fail {
		return false, errors.New("media host unavailable")
	}
	return true, nil
}

func (h *recordingHost) Ping(context.Context) error { return nil }

func newRecipeService(db *gorm.DB, host media.Host) *RecipeService {
	return NewRecipeService(db, testGate(), media.NewCleaner(host, time.Second))
}

// dbListingRepo adapts the repo package functions to ListingRepo.
type dbListingRepo struct{}

func (dbListingRepo) CountRecipes(ctx context.Context, db *gorm.DB, f repo.RecipeFilter) (int64, error) {
	return repo.CountRecipes(ctx, db, f)
}

func (dbListingRepo) ListRecipesPage(ctx context.Context, db *gorm.DB, f repo.RecipeFilter, o []repo.Order, offset, limit int) ([]domain.Recipe, error) {
	return repo.ListRecipesPage(ctx, db, f, o, offset, limit)
}

func (dbListingRepo) TrendingRecipes(ctx context.Context, db *gorm.DB, limit int) ([]domain.Recipe, error) {
	return repo.TrendingRecipes(ctx, db, limit)
}

func (dbListingRepo) RecipesStats(ctx context.Context, db *gorm.DB, f repo.RecipeFilter) (repo.ListStats, error) {
	return repo.RecipesStats(ctx, db, f)
}
