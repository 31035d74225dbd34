// Recipe HTTP handlers.
//
// This file exposes REST endpoints for recipe resources:
//   - GET    /recipes                 (list, paginated, ETag support)
//   - GET    /recipes/trending        (most viewed)
//   - GET    /recipes/user/{userId}   (published recipes of an author)
//   - GET    /recipes/{id}            (detail, counts a view)
//   - POST   /recipes                 (create, Idempotency-Key support)
//   - PUT    /recipes/{id}            (partial update)
//   - DELETE /recipes/{id}            (delete and clean up images)
//   - POST   /recipes/{id}/rate       (rate and review)
//   - POST   /recipes/upload-image    (upload to the media host)
package handlers

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/http/middleware"
	"github.com/tbourn/go-recipe-backend/internal/services"
	"github.com/tbourn/go-recipe-backend/internal/utils"
)

//
// DTOs
//

// CreateRecipeRequest is the JSON payload for creating a recipe. A new
// recipe needs at least one image.
type CreateRecipeRequest struct {
	services.RecipeInput
	Images []string `json:"images" validate:"min=1,dive,required,max=500" example:"https://res.cloudinary.com/demo/image/upload/v1/recipes/soup.jpg"`
}

// RateRequest is the JSON payload for rating a recipe.
type RateRequest struct {
	// Rating is an integer from 1 to 5.
	Rating int `json:"rating" example:"5"`
	// Review is optional; an empty review keeps the previous one.
	Review string `json:"review" validate:"max=1000" example:"Lovely and easy"`
}

// UploadImageRequest is the JSON payload for an image upload.
type UploadImageRequest struct {
	// Image is a data URI or bare base64 payload.
	Image string `json:"image" example:"data:image/png;base64,iVBORw0KGgo="`
	// Folder optionally overrides the default upload folder.
	Folder string `json:"folder" example:"recipes"`
}

//
// Helpers
//

// listQuery maps the list query string onto services.ListQuery.
func listQuery(c *gin.Context) services.ListQuery {
	page, limit := pageParams(c)
	return services.ListQuery{
		Search:      strings.TrimSpace(c.Query("search")),
		Category:    strings.TrimSpace(c.Query("category")),
		Cuisine:     strings.TrimSpace(c.Query("cuisine")),
		Difficulty:  strings.TrimSpace(c.Query("difficulty")),
		AuthorID:    strings.TrimSpace(c.Query("author")),
		MaxPrepTime: maxTime(c),
		Status:      strings.TrimSpace(c.Query("status")),
		Sort:        strings.TrimSpace(c.Query("sort")),
		Page:        page,
		PageSize:    limit,
	}
}

// maxTime reads ?maxTime, falling back to the older ?maxPrepTime name.
func maxTime(c *gin.Context) int {
	if v, ok := c.GetQuery("maxTime"); ok {
		return utils.AtoiDefault(v, 0)
	}
	return utils.AtoiDefault(c.Query("maxPrepTime"), 0)
}

// listETag derives a weak ETag from the caller's role, the query and the
// matching set's size, latest update and total views.
func (h *Handlers) listETag(c *gin.Context, q services.ListQuery) (string, bool) {
	actor := actorOf(c)
	st, err := h.Listing.Stats(c.Request.Context(), actor, q)
	if err != nil {
		return "", false
	}
	var ts int64
	if st.LatestUpdate != nil {
		ts = st.LatestUpdate.UnixNano()
	}
	hs := fnv.New64a()
	_, _ = hs.Write([]byte(string(actor.RoleName()) + "|" + c.Request.URL.RawQuery))
	return fmt.Sprintf(`W/"recipes:%x:%d:%d:%d"`, hs.Sum64(), st.Count, ts, st.Views), true
}

// bindJSON decodes the body into dst, answering 413 or 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

//
// Handlers
//

// ListRecipes godoc
// @ID          listRecipes
// @Summary     List recipes (paginated)
// @Description Returns a page of recipes. Anonymous users and regular users only see published recipes; admins may filter by status.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Recipes
// @Produce     json
//
// @Param       Authorization  header  string  false "Bearer token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       search         query   string  false "Words that must all appear in title, description or tags"
// @Param       category       query   string  false "Category name"
// @Param       cuisine        query   string  false "Cuisine"
// @Param       difficulty     query   string  false "easy|medium|hard"
// @Param       author         query   string  false "Author user id"
// @Param       maxTime        query   int     false "Maximum preparation time in minutes"
// @Param       maxPrepTime    query   int     false "Deprecated alias of maxTime"
// @Param       status         query   string  false "Status filter (admins only)"
// @Param       sort           query   string  false "field:dir[,field:dir]"  example(averageRating:desc)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"  minimum(1) maximum(100) default(12)
//
// @Success     200  {object} handlers.Response
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Invalid filter"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes [get]
func (h *Handlers) ListRecipes(c *gin.Context) {
	q := listQuery(c)

	// ETag pre-check (best effort).
	if etag, ok := h.listETag(c, q); ok {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	p, err := h.Listing.List(c.Request.Context(), actorOf(c), q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	okList(c, p.Items, len(p.Items), newPagination(p.Page, p.PageSize, p.Total, p.Pages))
}

// TrendingRecipes godoc
// @ID          trendingRecipes
// @Summary     Trending recipes
// @Description Most viewed published recipes, best rated and newest first on ties.
// @Tags        Recipes
// @Produce     json
// @Param       limit  query  int  false "Number of recipes"  minimum(1) maximum(50) default(10)
// @Success     200  {object} handlers.Response
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes/trending [get]
func (h *Handlers) TrendingRecipes(c *gin.Context) {
	items, err := h.Listing.Trending(c.Request.Context(), utils.AtoiDefault(c.Query("limit"), 10))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	okList(c, items, len(items), nil)
}

// RecipesByAuthor godoc
// @ID          recipesByAuthor
// @Summary     Published recipes of a user
// @Tags        Recipes
// @Produce     json
// @Param       userId  path  string  true "Author user id"
// @Success     200  {object} handlers.Response
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes/user/{userId} [get]
func (h *Handlers) RecipesByAuthor(c *gin.Context) {
	items, err := h.Listing.ByAuthor(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	okList(c, items, len(items), nil)
}

// GetRecipe godoc
// @ID          getRecipe
// @Summary     Recipe detail
// @Description Returns the recipe with its author and ratings and counts a view. Unpublished recipes are only visible to their author and admins.
// @Tags        Recipes
// @Produce     json
// @Param       Authorization  header  string  false "Bearer token"
// @Param       id             path    string  true  "Recipe ID"  format(uuid)
// @Success     200  {object} handlers.Response
// @Failure     404  {object} handlers.ErrorResponse "Recipe not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /recipes/{id} [get]
func (h *Handlers) GetRecipe(c *gin.Context) {
	r, err := h.Recipes.Get(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// CreateRecipe godoc
// @ID          createRecipe
// @Summary     Create a recipe
// @Description Creates a recipe authored by the caller. Admin recipes are published immediately; others wait for moderation.
// @Description Supports idempotency via the Idempotency-Key header (same key → same recipe).
// @Tags        Recipes
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  true  "Bearer token"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.CreateRecipeRequest  true  "Recipe"
//
// @Success     201  {object}  handlers.Response
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /recipes [post]
func (h *Handlers) CreateRecipe(c *gin.Context) {
	ctx := c.Request.Context()
	actor := actorOf(c)

	// Idempotency (replay path): the validator middleware already resolved
	// the key to the recipe it produced.
	if id, replay := middleware.ReplayOf(c); replay {
		if prev, err := h.Recipes.Lookup(ctx, actor, id); err == nil {
			c.Header(middleware.HeaderIdempotentReplay, "true")
			ok(c, http.StatusCreated, prev)
			return
		}
	}

	var req CreateRecipeRequest
	if !bindJSON(c, &req) {
		return
	}
	req.RecipeInput.Images = req.Images
	req.Normalize()
	req.Images = req.RecipeInput.Images
	if err := services.Validate(&req); err != nil {
		writeServiceError(c, err)
		return
	}

	r, err := h.Recipes.Create(ctx, actor, req.RecipeInput)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if key, scope, has := middleware.GetIdempotencyKey(c); has && h.Idempotency != nil {
		if err := h.Idempotency.Save(ctx, actor.UserID, scope, key, r.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not saved")
		}
	}

	ok(c, http.StatusCreated, r)
}

// UpdateRecipe godoc
// @ID          updateRecipe
// @Summary     Update a recipe
// @Description Applies the fields present in the body. Only the author or an admin may update.
// @Tags        Recipes
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Recipe ID"  format(uuid)
// @Param       body           body    services.RecipePatch  true  "Fields to change"
// @Success     200  {object}  handlers.Response
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse  "Recipe not found"
// @Router      /recipes/{id} [put]
func (h *Handlers) UpdateRecipe(c *gin.Context) {
	var patch services.RecipePatch
	if !bindJSON(c, &patch) {
		return
	}
	r, err := h.Recipes.Update(c.Request.Context(), actorOf(c), c.Param("id"), patch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteRecipe godoc
// @ID          deleteRecipe
// @Summary     Delete a recipe
// @Description Deletes the recipe and removes its images from the media host. Only the author or an admin may delete.
// @Tags        Recipes
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Recipe ID"  format(uuid)
// @Success     200  {object}  handlers.Response
// @Failure     403  {object}  handlers.ErrorResponse  "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse  "Recipe not found"
// @Router      /recipes/{id} [delete]
func (h *Handlers) DeleteRecipe(c *gin.Context) {
	if err := h.Recipes.Delete(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	okMessage(c, "Recipe deleted successfully")
}

// RateRecipe godoc
// @ID          rateRecipe
// @Summary     Rate a recipe
// @Description Records the caller's rating (1-5). Rating again replaces the previous rating.
// @Tags        Recipes
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Recipe ID"  format(uuid)
// @Param       body           body    handlers.RateRequest  true  "Rating"
// @Success     200  {object}  handlers.Response  "averageRating and totalRatings"
// @Failure     400  {object}  handlers.ErrorResponse  "Rating out of range"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Recipe not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable"
// @Router      /recipes/{id}/rate [post]
func (h *Handlers) RateRecipe(c *gin.Context) {
	var req RateRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Review = strings.TrimSpace(req.Review)
	if err := services.Validate(&req); err != nil {
		writeServiceError(c, err)
		return
	}
	agg, err := h.Ratings.Rate(c.Request.Context(), actorOf(c), c.Param("id"), req.Rating, req.Review)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, agg)
}

// UploadImage godoc
// @ID          uploadImage
// @Summary     Upload a recipe image
// @Description Stores a base64 image on the media host and returns its public URL.
// @Tags        Recipes
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       body           body    handlers.UploadImageRequest  true  "Image"
// @Success     200  {object}  handlers.Response  "url and publicId"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid image"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     503  {object}  handlers.ErrorResponse  "Media host unavailable"
// @Router      /recipes/upload-image [post]
func (h *Handlers) UploadImage(c *gin.Context) {
	var req UploadImageRequest
	if !bindJSON(c, &req) {
		return
	}
	asset, err := h.Media.Upload(c.Request.Context(), actorOf(c), req.Image, req.Folder)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, asset)
}
