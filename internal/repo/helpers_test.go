package repo

import (
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-recipe-backend/internal/domain"
)

// newTestDB opens a private in-memory database named after the test and
// migrates the given models.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newSchemaDB opens a test database with the full schema.
func newSchemaDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// recipeFixture returns a valid recipe; mutate fields before inserting.
func recipeFixture(id, author string, status domain.Status) *domain.Recipe {
	return &domain.Recipe{
		ID:           id,
		Title:        "Recipe " + id,
		Description:  "A tasty dish",
		Ingredients:  []string{"flour", "water"},
		Instructions: "Mix and bake.",
		PrepTime:     30,
		Difficulty:   domain.DifficultyEasy,
		Category:     "Main Course",
		Cuisine:      "Italian",
		Servings:     2,
		Images:       []string{"https://res.cloudinary.com/demo/image/upload/v1/recipes/" + id + ".jpg"},
		Tags:         []string{"dinner"},
		AuthorID:     author,
		Status:       status,
	}
}

// insertRecipe stores r with explicit timestamps.
func insertRecipe(t *testing.T, db *gorm.DB, r *domain.Recipe, at time.Time) {
	t.Helper()
	r.CreatedAt, r.UpdatedAt = at, at
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("seed recipe %s: %v", r.ID, err)
	}
}
