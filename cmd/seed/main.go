// Command seed fills an empty database with demo categories, users and
// recipes, then prints a bearer token for each seeded user.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/config"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/media"
	"github.com/tbourn/go-recipe-backend/internal/repo"
	"github.com/tbourn/go-recipe-backend/internal/services"
	"github.com/tbourn/go-recipe-backend/internal/sysutil"
)

var categories = []services.CategoryInput{
	{Name: "Breakfast", Description: "Morning meals", Icon: "🍳", Color: "#f5a623"},
	{Name: "Main Course", Description: "Lunch and dinner", Icon: "🍽", Color: "#d0021b"},
	{Name: "Desserts", Description: "Sweet things", Icon: "🍰", Color: "#bd10e0"},
	{Name: "Soups", Description: "Warm bowls", Icon: "🥣", Color: "#7ed321"},
	{Name: "Salads", Description: "Fresh and light", Icon: "🥗", Color: "#417505"},
}

var users = []domain.User{
	{Name: "Admin", Email: "admin@recipes.local", Role: domain.RoleAdmin},
	{Name: "Maria Rossi", Email: "maria@recipes.local", Role: domain.RoleUser},
	{Name: "Kenji Sato", Email: "kenji@recipes.local", Role: domain.RoleUser},
}

var recipes = []services.RecipeInput{
	{
		Title:        "Classic Margherita Pizza",
		Description:  "Thin crust pizza with tomato, mozzarella and basil.",
		Ingredients:  []string{"pizza dough", "tomato sauce", "mozzarella", "fresh basil", "olive oil"},
		Instructions: "Stretch the dough. Spread the sauce, add mozzarella. Bake at 250C for 8 minutes. Finish with basil and oil.",
		PrepTime:     30, Difficulty: "medium", Category: "Main Course", Cuisine: "Italian", Servings: 2,
		Images: []string{"https://images.unsplash.com/photo-1574071318508-1cdbab80d002"},
		Tags:   []string{"pizza", "vegetarian"},
	},
	{
		Title:        "Miso Soup",
		Description:  "Light Japanese soup with tofu and wakame.",
		Ingredients:  []string{"dashi", "white miso", "silken tofu", "wakame", "spring onion"},
		Instructions: "Warm the dashi. Dissolve the miso off the boil. Add tofu and wakame, garnish with onion.",
		PrepTime:     15, Difficulty: "easy", Category: "Soups", Cuisine: "Japanese", Servings: 4,
		Images: []string{"https://images.unsplash.com/photo-1547592166-23ac45744acd"},
		Tags:   []string{"soup", "vegan", "quick"},
	},
	{
		Title:        "Greek Salad",
		Description:  "Tomatoes, cucumber, olives and feta.",
		Ingredients:  []string{"tomatoes", "cucumber", "red onion", "kalamata olives", "feta", "oregano"},
		Instructions: "Chop the vegetables, add olives and a slab of feta. Dress with oil and oregano.",
		PrepTime:     10, Difficulty: "easy", Category: "Salads", Cuisine: "Greek", Servings: 2,
		Images: []string{"https://images.unsplash.com/photo-1540420773420-3366772f4999"},
		Tags:   []string{"salad", "vegetarian"},
	},
	{
		Title:        "Chocolate Lava Cake",
		Description:  "Individual cakes with a molten centre.",
		Ingredients:  []string{"dark chocolate", "butter", "eggs", "sugar", "flour"},
		Instructions: "Melt chocolate with butter. Whisk eggs and sugar, fold together with flour. Bake 12 minutes at 220C.",
		PrepTime:     25, Difficulty: "hard", Category: "Desserts", Cuisine: "French", Servings: 4,
		Images: []string{"https://images.unsplash.com/photo-1606313564200-e75d5e30476c"},
		Tags:   []string{"chocolate", "dessert"},
	},
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		sysutil.ConfigureLogger(nil, "info", false)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogger(nil, cfg.LogLevel, true)

	if err := run(context.Background(), cfg); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	gate, err := authz.NewGate()
	if err != nil {
		return err
	}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	userSvc := &services.UserService{DB: db, Gate: gate}
	catSvc := &services.CategoryService{DB: db, Gate: gate}
	recipeSvc := services.NewRecipeService(db, gate, media.NewCleaner(media.Noop{}, time.Second))

	actors := make([]auth.Actor, 0, len(users))
	for i := range users {
		u, err := userSvc.Upsert(ctx, &users[i])
		if err != nil {
			return fmt.Errorf("user %s: %w", users[i].Email, err)
		}
		actors = append(actors, auth.Actor{UserID: u.ID, Name: u.Name, Role: u.Role})
	}
	admin := actors[0]

	for _, in := range categories {
		_, err := catSvc.Create(ctx, admin, in)
		switch {
		case err == nil:
			log.Info().Str("category", in.Name).Msg("category created")
		case errors.Is(err, services.ErrCategoryExists):
		default:
			return fmt.Errorf("category %s: %w", in.Name, err)
		}
	}

	n, err := repo.CountRecipes(ctx, db, repo.RecipeFilter{})
	if err != nil {
		return err
	}
	if n == 0 {
		// Admin-authored recipes are published at once; the rest wait for
		// moderation.
		for i, in := range recipes {
			author := actors[i%len(actors)]
			r, err := recipeSvc.Create(ctx, author, in)
			if err != nil {
				return fmt.Errorf("recipe %q: %w", in.Title, err)
			}
			log.Info().Str("recipe", r.Title).Str("status", string(r.Status)).Msg("recipe created")
		}
	} else {
		log.Info().Int64("recipes", n).Msg("recipes present, skipping")
	}

	if err := catSvc.SyncCounts(ctx); err != nil {
		return err
	}

	for _, a := range actors {
		tok, err := tokens.Issue(a.UserID, a.Name, a.Role)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%-6s %-12s %s\n", a.Role, a.Name, tok)
	}
	return nil
}
