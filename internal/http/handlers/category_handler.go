// Category HTTP handlers:
//   - GET    /categories        (active categories; ?all=true for admins)
//   - GET    /categories/{id}
//   - POST   /categories        (admin)
//   - PUT    /categories/{id}   (admin)
//   - DELETE /categories/{id}   (admin)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/services"
	"github.com/tbourn/go-recipe-backend/internal/sysutil"
)

// ListCategories godoc
// @ID          listCategories
// @Summary     List categories
// @Description Active categories sorted by name. Admins may pass all=true to include inactive ones.
// @Tags        Categories
// @Produce     json
// @Param       all  query  bool  false "Include inactive (admins only)"
// @Success     200  {object} handlers.Response
// @Router      /categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	items, err := h.Categories.List(c.Request.Context(), actorOf(c), sysutil.IsTruthy(c.Query("all")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	okList(c, items, len(items), nil)
}

// GetCategory godoc
// @ID          getCategory
// @Summary     Category detail
// @Tags        Categories
// @Produce     json
// @Param       id  path  string  true  "Category ID"
// @Success     200  {object} handlers.Response
// @Failure     404  {object} handlers.ErrorResponse "Category not found"
// @Router      /categories/{id} [get]
func (h *Handlers) GetCategory(c *gin.Context) {
	cat, err := h.Categories.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, cat)
}

// CreateCategory godoc
// @ID          createCategory
// @Summary     Create a category
// @Tags        Categories
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       body           body    services.CategoryInput  true  "Category"
// @Success     201  {object} handlers.Response
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     409  {object} handlers.ErrorResponse "Name taken"
// @Router      /categories [post]
func (h *Handlers) CreateCategory(c *gin.Context) {
	var in services.CategoryInput
	if !bindJSON(c, &in) {
		return
	}
	cat, err := h.Categories.Create(c.Request.Context(), actorOf(c), in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, cat)
}

// UpdateCategory godoc
// @ID          updateCategory
// @Summary     Update a category
// @Description Renaming moves the category's recipes to the new name.
// @Tags        Categories
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       id             path    string  true  "Category ID"
// @Param       body           body    services.CategoryPatch  true  "Fields to change"
// @Success     200  {object} handlers.Response
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     404  {object} handlers.ErrorResponse "Category not found"
// @Failure     409  {object} handlers.ErrorResponse "Name taken"
// @Router      /categories/{id} [put]
func (h *Handlers) UpdateCategory(c *gin.Context) {
	var patch services.CategoryPatch
	if !bindJSON(c, &patch) {
		return
	}
	cat, err := h.Categories.Update(c.Request.Context(), actorOf(c), c.Param("id"), patch)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, cat)
}

// DeleteCategory godoc
// @ID          deleteCategory
// @Summary     Delete a category
// @Description Refused while recipes still use the category.
// @Tags        Categories
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       id             path    string  true  "Category ID"
// @Success     200  {object} handlers.Response
// @Failure     404  {object} handlers.ErrorResponse "Category not found"
// @Failure     409  {object} handlers.ErrorResponse "Category in use"
// @Router      /categories/{id} [delete]
func (h *Handlers) DeleteCategory(c *gin.Context) {
	if err := h.Categories.Delete(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	okMessage(c, "Category deleted successfully")
}
