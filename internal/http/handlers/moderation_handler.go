// Moderation HTTP handlers (admin only):
//   - GET /recipes/admin/all       (list with any status)
//   - GET /recipes/admin/pending   (moderation queue)
//   - PUT /recipes/{id}/approve
//   - PUT /recipes/{id}/reject
//   - PUT /recipes/{id}/status
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-recipe-backend/internal/services"
)

// RejectRequest is the JSON payload for rejecting a recipe.
type RejectRequest struct {
	// Reason is shown to the author; "Not specified" when empty.
	Reason string `json:"reason" example:"Photos are missing"`
}

// StatusRequest is the JSON payload for setting a recipe status.
type StatusRequest struct {
	Status string `json:"status" example:"published"`
	Reason string `json:"reason" example:""`
}

// AdminListRecipes godoc
// @Summary     List recipes with any status
// @Description Same filters as the public list; `status` narrows the result.
// @Tags        Moderation
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       status         query   string  false "draft|pending|published|rejected"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"  minimum(1) maximum(100) default(12)
// @Success     200  {object} handlers.Response
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Router      /recipes/admin/all [get]
// @Router      /admin/recipes [get]
func (h *Handlers) AdminListRecipes(c *gin.Context) {
	actor := actorOf(c)
	if !actor.IsAdmin() {
		writeServiceError(c, services.ErrForbidden)
		return
	}
	p, err := h.Listing.List(c.Request.Context(), actor, listQuery(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	okList(c, p.Items, len(p.Items), newPagination(p.Page, p.PageSize, p.Total, p.Pages))
}

// PendingRecipes godoc
// @Summary     Moderation queue
// @Description Pending recipes, newest first, with their authors.
// @Tags        Moderation
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Success     200  {object} handlers.Response
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Router      /recipes/admin/pending [get]
// @Router      /admin/recipes/pending [get]
func (h *Handlers) PendingRecipes(c *gin.Context) {
	items, err := h.Moderation.Pending(c.Request.Context(), actorOf(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	okList(c, items, len(items), nil)
}

// ApproveRecipe godoc
// @ID          approveRecipe
// @Summary     Approve a recipe
// @Tags        Moderation
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       id             path    string  true  "Recipe ID"  format(uuid)
// @Success     200  {object} handlers.Response
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     404  {object} handlers.ErrorResponse "Recipe not found"
// @Router      /recipes/{id}/approve [put]
func (h *Handlers) ApproveRecipe(c *gin.Context) {
	r, err := h.Moderation.Approve(c.Request.Context(), actorOf(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r, Message: "Recipe approved"})
}

// RejectRecipe godoc
// @ID          rejectRecipe
// @Summary     Reject a recipe
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       id             path    string  true  "Recipe ID"  format(uuid)
// @Param       body           body    handlers.RejectRequest  false  "Reason"
// @Success     200  {object} handlers.Response
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     404  {object} handlers.ErrorResponse "Recipe not found"
// @Router      /recipes/{id}/reject [put]
func (h *Handlers) RejectRecipe(c *gin.Context) {
	var req RejectRequest
	// The body is optional.
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	r, err := h.Moderation.Reject(c.Request.Context(), actorOf(c), c.Param("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r, Message: "Recipe rejected"})
}

// SetRecipeStatus godoc
// @ID          setRecipeStatus
// @Summary     Set a recipe status
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       id             path    string  true  "Recipe ID"  format(uuid)
// @Param       body           body    handlers.StatusRequest  true  "Target status"
// @Success     200  {object} handlers.Response
// @Failure     400  {object} handlers.ErrorResponse "Unknown status"
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     404  {object} handlers.ErrorResponse "Recipe not found"
// @Router      /recipes/{id}/status [put]
func (h *Handlers) SetRecipeStatus(c *gin.Context) {
	var req StatusRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.Moderation.SetStatus(c.Request.Context(), actorOf(c), c.Param("id"),
		strings.TrimSpace(req.Status), strings.TrimSpace(req.Reason))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r, Message: "Recipe status updated"})
}
