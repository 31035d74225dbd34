// Package domain defines the persistence models for recipes, ratings,
// categories, and users. These types are mapped with GORM and form the core
// data layer of the recipe sharing application.
package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/search"
)

// Recipe is the central entity: a user-authored dish with moderation state
// and a rating aggregate derived from its Ratings.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title/Description/Instructions: free text content.
//   - Ingredients/Images/Tags: ordered string lists stored as JSON.
//   - AuthorID: owning user, immutable after creation.
//   - Status: moderation state (draft|pending|published|rejected).
//   - RejectionReason: only meaningful while Status is rejected.
//   - PublishedAt: set on every transition into published.
//   - AverageRating/RatingCount: derived from Ratings, written in the same
//     transaction as any rating mutation.
//   - Views: incremented on each detail read.
//   - SearchText: case-folded title, description and tags; text search
//     matches against this column only.
//   - DeletedAt: soft deletion marker.
type Recipe struct {
	ID              string         `json:"id"              gorm:"type:char(36);primaryKey"`
	Title           string         `json:"title"           gorm:"type:varchar(200);not null"`
	Description     string         `json:"description"     gorm:"type:varchar(500);not null"`
	Ingredients     []string       `json:"ingredients"     gorm:"serializer:json;type:text;not null"`
	Instructions    string         `json:"instructions"    gorm:"type:text;not null"`
	PrepTime        int            `json:"prepTime"        gorm:"not null;check:prep_time >= 1;index:idx_recipes_prep_time"`
	Difficulty      Difficulty     `json:"difficulty"      gorm:"type:varchar(16);not null;check:difficulty IN ('easy','medium','hard')"`
	Category        string         `json:"category"        gorm:"type:varchar(50);not null;index:idx_recipes_category"`
	Cuisine         string         `json:"cuisine"         gorm:"type:varchar(100);not null;index:idx_recipes_cuisine"`
	Servings        int            `json:"servings"        gorm:"not null;check:servings >= 1"`
	Images          []string       `json:"images"          gorm:"serializer:json;type:text"`
	Tags            []string       `json:"tags"            gorm:"serializer:json;type:text"`
	AuthorID        string         `json:"authorId"        gorm:"type:char(36);not null;index:idx_recipes_author"`
	Status          Status         `json:"status"          gorm:"type:varchar(16);not null;default:'pending';index:idx_recipes_status_created,priority:1"`
	RejectionReason string         `json:"rejectionReason,omitempty" gorm:"type:varchar(500)"`
	PublishedAt     *time.Time     `json:"publishedAt,omitempty"`
	AverageRating   float64        `json:"averageRating"   gorm:"not null;default:0"`
	RatingCount     int            `json:"ratingCount"     gorm:"not null;default:0"`
	Views           int64          `json:"views"           gorm:"not null;default:0"`
	FavoritesCount  int            `json:"favoritesCount"  gorm:"not null;default:0"`
	SearchText      string         `json:"-"               gorm:"type:text;not null;default:''"`
	CreatedAt       time.Time      `json:"createdAt"       gorm:"index:idx_recipes_status_created,priority:2"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	DeletedAt       gorm.DeletedAt `json:"-"               gorm:"index"`

	// Author is the owning user, preloaded with a narrow column set for
	// listings (id, name, avatar).
	Author *User `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID;constraint:-"`

	// Ratings are loaded on detail views only.
	Ratings []Rating `json:"ratings,omitempty" gorm:"foreignKey:RecipeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Recipe.
func (Recipe) TableName() string { return "recipes" }

// SearchDocument returns the SearchText for the recipe's current content.
func (r *Recipe) SearchDocument() string {
	return search.Document(r.Title, r.Description, r.Tags)
}

// BeforeCreate fills SearchText.
func (r *Recipe) BeforeCreate(*gorm.DB) error {
	r.SearchText = r.SearchDocument()
	return nil
}

// OwnedBy reports whether userID authored the recipe.
func (r *Recipe) OwnedBy(userID string) bool {
	return r != nil && userID != "" && r.AuthorID == userID
}

// Rating is a single user's score (1..5) and optional review for a recipe.
// A user can rate a recipe at most once (enforced by unique index); a
// second rating updates the existing row in place.
type Rating struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	RecipeID  string    `json:"recipeId"  gorm:"type:char(36);not null;uniqueIndex:ux_rating_recipe_user,priority:1"`
	UserID    string    `json:"userId"    gorm:"type:char(36);not null;uniqueIndex:ux_rating_recipe_user,priority:2;index"`
	Rating    int       `json:"rating"    gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Review    string    `json:"review"    gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`

	// User is the rater, preloaded on detail views.
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:-"`
}

// TableName returns the database table name for Rating.
func (Rating) TableName() string { return "recipe_ratings" }

// Category is an admin-managed reference list used for filtering and display.
// RecipeCount is a cached count of non-deleted recipes whose Category equals
// Name; it is recomputed in the same transaction as any recipe mutation that
// can change it.
type Category struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"        gorm:"type:varchar(50);not null;uniqueIndex:ux_category_name"`
	Description string    `json:"description" gorm:"type:varchar(200)"`
	Icon        string    `json:"icon"        gorm:"type:varchar(16);not null;default:'🍽️'"`
	Color       string    `json:"color"       gorm:"type:varchar(7);not null;default:'#FF6B6B'"`
	RecipeCount int       `json:"recipeCount" gorm:"not null;default:0"`
	IsActive    bool      `json:"isActive"    gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// User is the minimal principal record consumed by this service for
// authorship, ratings and admin management. Credentials live with the
// identity provider that issues tokens, so recipes and ratings reference users
// without a foreign key constraint.
type User struct {
	ID        string    `json:"id"              gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"            gorm:"type:varchar(100);not null"`
	Email     string    `json:"email,omitempty" gorm:"type:varchar(255);not null;uniqueIndex:ux_user_email"`
	Avatar    string    `json:"avatar,omitempty" gorm:"type:varchar(500)"`
	Bio       string    `json:"bio,omitempty"   gorm:"type:varchar(500)"`
	Role      Role      `json:"role,omitempty"  gorm:"type:varchar(16);not null;default:'user';check:role IN ('user','admin')"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }
