// Package services – RecipeService
//
// This file implements the recipe entity store use-cases: create, partial
// update, delete with media cleanup, detail reads and view counting. Every
// write recomputes the affected category counts in the same transaction, and
// authorization is decided by the authz.Gate before anything is written.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-recipe-backend/internal/auth"
	"github.com/tbourn/go-recipe-backend/internal/authz"
	"github.com/tbourn/go-recipe-backend/internal/domain"
	"github.com/tbourn/go-recipe-backend/internal/media"
	"github.com/tbourn/go-recipe-backend/internal/repo"
	"github.com/tbourn/go-recipe-backend/internal/search"
)

// RecipeInput is the content of a recipe as submitted by a client. Call
// Normalize before validating it.
type RecipeInput struct {
	Title        string   `json:"title"        validate:"required,max=200"`
	Description  string   `json:"description"  validate:"required,max=500"`
	Ingredients  []string `json:"ingredients"  validate:"min=1,dive,required,max=300"`
	Instructions string   `json:"instructions" validate:"required"`
	PrepTime     int      `json:"prepTime"     validate:"gte=1"`
	Difficulty   string   `json:"difficulty"   validate:"required,oneof=easy medium hard"`
	Category     string   `json:"category"     validate:"required,max=50"`
	Cuisine      string   `json:"cuisine"      validate:"required,max=100"`
	Servings     int      `json:"servings"     validate:"gte=1"`
	Images       []string `json:"images"       validate:"dive,required,max=500"`
	Tags         []string `json:"tags"         validate:"max=30,dive,max=50"`
}

// Normalize trims text fields, drops blank list entries and normalizes tags.
func (in *RecipeInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Instructions = strings.TrimSpace(in.Instructions)
	in.Difficulty = strings.ToLower(strings.TrimSpace(in.Difficulty))
	in.Category = strings.TrimSpace(in.Category)
	in.Cuisine = strings.TrimSpace(in.Cuisine)
	in.Ingredients = compact(in.Ingredients)
	in.Images = compact(in.Images)
	in.Tags = search.NormalizeTags(in.Tags)
}

func (in *RecipeInput) toRecipe() *domain.Recipe {
	return &domain.Recipe{
		Title:        in.Title,
		Description:  in.Description,
		Ingredients:  in.Ingredients,
		Instructions: in.Instructions,
		PrepTime:     in.PrepTime,
		Difficulty:   domain.Difficulty(in.Difficulty),
		Category:     in.Category,
		Cuisine:      in.Cuisine,
		Servings:     in.Servings,
		Images:       in.Images,
		Tags:         in.Tags,
	}
}

func inputOf(r *domain.Recipe) RecipeInput {
	return RecipeInput{
		Title:        r.Title,
		Description:  r.Description,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions,
		PrepTime:     r.PrepTime,
		Difficulty:   string(r.Difficulty),
		Category:     r.Category,
		Cuisine:      r.Cuisine,
		Servings:     r.Servings,
		Images:       r.Images,
		Tags:         r.Tags,
	}
}

// compact trims every entry and drops the blank ones, keeping order.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RecipePatch is a partial update. Nil fields are left unchanged. Author and
// status are not patchable.
type RecipePatch struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Ingredients  *[]string `json:"ingredients"`
	Instructions *string   `json:"instructions"`
	PrepTime     *int      `json:"prepTime"`
	Difficulty   *string   `json:"difficulty"`
	Category     *string   `json:"category"`
	Cuisine      *string   `json:"cuisine"`
	Servings     *int      `json:"servings"`
	Images       *[]string `json:"images"`
	Tags         *[]string `json:"tags"`
}

// apply merges the patch into in and returns the JSON names of the patched
// fields.
func (p RecipePatch) apply(in *RecipeInput) map[string]bool {
	set := map[string]bool{}
	str := func(name string, dst *string, v *string) {
		if v != nil {
			*dst = *v
			set[name] = true
		}
	}
	num := func(name string, dst *int, v *int) {
		if v != nil {
			*dst = *v
			set[name] = true
		}
	}
	list := func(name string, dst *[]string, v *[]string) {
		if v != nil {
			*dst = *v
			set[name] = true
		}
	}
	str("title", &in.Title, p.Title)
	str("description", &in.Description, p.Description)
	list("ingredients", &in.Ingredients, p.Ingredients)
	str("instructions", &in.Instructions, p.Instructions)
	num("prepTime", &in.PrepTime, p.PrepTime)
	str("difficulty", &in.Difficulty, p.Difficulty)
	str("category", &in.Category, p.Category)
	str("cuisine", &in.Cuisine, p.Cuisine)
	num("servings", &in.Servings, p.Servings)
	list("images", &in.Images, p.Images)
	list("tags", &in.Tags, p.Tags)
	return set
}

// RecipeService provides the recipe write paths and detail reads.
type RecipeService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gate decides who may do what.
	Gate *authz.Gate
	// Media removes images that are no longer referenced. May be nil.
	Media *media.Cleaner
	// OnChange is called after a committed write that can change public
	// listings, e.g. to drop cached read models. May be nil.
	OnChange func(ctx context.Context)

	now func() time.Time
}

// NewRecipeService wires a RecipeService.
func NewRecipeService(db *gorm.DB, gate *authz.Gate, cleaner *media.Cleaner) *RecipeService {
	return &RecipeService{DB: db, Gate: gate, Media: cleaner, now: time.Now}
}

func (s *RecipeService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *RecipeService) changed(ctx context.Context) {
	if s.OnChange != nil {
		s.OnChange(ctx)
	}
}

// Create stores a new recipe authored by the actor. Admin submissions are
// published immediately; everyone else's land in pending. Every invalid field
// is reported at once in a *ValidationError.
func (s *RecipeService) Create(ctx context.Context, actor auth.Actor, in RecipeInput) (*domain.Recipe, error) {
	tr := otel.Tracer("services/RecipeService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.String("user.id", actor.UserID)))
	defer span.End()

	if err := s.Gate.Authorize(actor, authz.ActionCreate, nil); err != nil {
		return nil, err
	}
	in.Normalize()
	if err := Validate(in); err != nil {
		return nil, err
	}

	r := in.toRecipe()
	r.AuthorID = actor.UserID
	r.Status = domain.StatusPending
	if actor.IsAdmin() {
		now := s.clock()
		r.Status = domain.StatusPublished
		r.PublishedAt = &now
	}

	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		if err := repo.CreateRecipe(ctx, tx, r); err != nil {
			return err
		}
		return repo.RecountCategory(ctx, tx, r.Category)
	})
	if err != nil {
		return nil, storageErr(err)
	}
	span.SetAttributes(attribute.String("recipe.id", r.ID), attribute.String("recipe.status", string(r.Status)))
	s.changed(ctx)
	return r, nil
}

// Update applies patch to recipe id on behalf of its author or an admin.
// Only the patched fields are validated. When the image list changes, images
// that are no longer referenced are removed from the media host after the
// update commits.
func (s *RecipeService) Update(ctx context.Context, actor auth.Actor, id string, patch RecipePatch) (*domain.Recipe, error) {
	tr := otel.Tracer("services/RecipeService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("recipe.id", id)))
	defer span.End()

	var (
		updated   *domain.Recipe
		oldImages []string
	)
	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		cur, err := repo.GetRecipe(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRecipeNotFound
			}
			return err
		}
		if err := s.Gate.Authorize(actor, authz.ActionUpdate, cur); err != nil {
			return err
		}

		in := inputOf(cur)
		patched := patch.apply(&in)
		in.Normalize()
		if err := onlyFields(Validate(in), patched); err != nil {
			return err
		}
		if len(patched) == 0 {
			updated = cur
			return nil
		}

		next := in.toRecipe()
		fields := map[string]any{}
		for name := range patched {
			col, val := columnFor(name, next)
			fields[col] = val
		}
		if patched["title"] || patched["description"] || patched["tags"] {
			fields["search_text"] = next.SearchDocument()
		}
		if err := repo.UpdateRecipeFields(ctx, tx, id, fields); err != nil {
			return err
		}
		if patched["category"] && next.Category != cur.Category {
			if err := repo.RecountCategory(ctx, tx, cur.Category); err != nil {
				return err
			}
			if err := repo.RecountCategory(ctx, tx, next.Category); err != nil {
				return err
			}
		}

		oldImages = nil
		if patched["images"] {
			oldImages = media.Removed(cur.Images, next.Images)
		}
		updated, err = repo.GetRecipe(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}

	if len(oldImages) > 0 {
		s.Media.Remove(ctx, oldImages)
	}
	s.changed(ctx)
	return updated, nil
}

// columnFor maps a JSON field name to its column and new value.
func columnFor(name string, r *domain.Recipe) (string, any) {
	switch name {
	case "title":
		return "title", r.Title
	case "description":
		return "description", r.Description
	case "ingredients":
		return "ingredients", jsonList(r.Ingredients)
	case "instructions":
		return "instructions", r.Instructions
	case "prepTime":
		return "prep_time", r.PrepTime
	case "difficulty":
		return "difficulty", r.Difficulty
	case "category":
		return "category", r.Category
	case "cuisine":
		return "cuisine", r.Cuisine
	case "servings":
		return "servings", r.Servings
	case "images":
		return "images", jsonList(r.Images)
	default:
		return "tags", jsonList(r.Tags)
	}
}

// jsonList encodes a list column the way the json serializer stores it; map
// based updates bypass model serializers.
func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// onlyFields keeps the violations whose field was patched. Fields that were
// not touched are not re-validated.
func onlyFields(err error, patched map[string]bool) error {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	kept := &ValidationError{}
	for _, f := range ve.Fields {
		name, _, _ := strings.Cut(f.Field, "[")
		if patched[name] {
			kept.Fields = append(kept.Fields, f)
		}
	}
	if len(kept.Fields) == 0 {
		return nil
	}
	return kept
}

// Delete soft-deletes recipe id on behalf of its author or an admin, then
// removes its images from the media host. Media failures are logged and
// counted by the cleaner and never fail the delete.
func (s *RecipeService) Delete(ctx context.Context, actor auth.Actor, id string) error {
	tr := otel.Tracer("services/RecipeService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("recipe.id", id)))
	defer span.End()

	var images []string
	err := repo.Transaction(ctx, s.DB, func(tx *gorm.DB) error {
		cur, err := repo.GetRecipe(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRecipeNotFound
			}
			return err
		}
		if err := s.Gate.Authorize(actor, authz.ActionDelete, cur); err != nil {
			return err
		}
		if err := repo.DeleteRecipe(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRecipeNotFound
			}
			return err
		}
		images = cur.Images
		return repo.RecountCategory(ctx, tx, cur.Category)
	})
	if err != nil {
		return storageErr(err)
	}

	if failed := s.Media.Remove(ctx, images); failed > 0 {
		span.SetAttributes(attribute.Int("media.cleanup_failures", failed))
	}
	s.changed(ctx)
	return nil
}

// Get returns the recipe detail (author and ratings expanded) if the actor
// may see it, and counts the view. Recipes that are not published are only
// visible to their author and admins; for everyone else they do not exist.
func (s *RecipeService) Get(ctx context.Context, actor auth.Actor, id string) (*domain.Recipe, error) {
	tr := otel.Tracer("services/RecipeService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("recipe.id", id)))
	defer span.End()

	r, err := s.Lookup(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.RecordView(ctx, id); err == nil {
		r.Views++
	}
	return r, nil
}

// Lookup is Get without the view count.
func (s *RecipeService) Lookup(ctx context.Context, actor auth.Actor, id string) (*domain.Recipe, error) {
	r, err := repo.GetRecipeDetail(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}
	if err := s.Gate.Authorize(actor, authz.ActionRead, r); err != nil {
		return nil, ErrRecipeNotFound
	}
	return r, nil
}

// RecordView increments the view counter of recipe id. No authorization is
// applied; it is a side effect of reading.
func (s *RecipeService) RecordView(ctx context.Context, id string) error {
	if err := repo.IncrementViews(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRecipeNotFound
		}
		return err
	}
	return nil
}
