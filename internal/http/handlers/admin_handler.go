// Admin HTTP handlers:
//   - GET /admin/stats              (dashboard)
//   - GET /admin/users              (paginated users)
//   - PUT /admin/users/{id}/role
//
// and the unauthenticated GET /health check.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RoleRequest is the JSON payload for changing a user's role.
type RoleRequest struct {
	Role string `json:"role" example:"admin"`
}

// HealthResponse reports the state of the service dependencies.
type HealthResponse struct {
	Status          string `json:"status" example:"ok"`
	Database        string `json:"database" example:"ok"`
	MediaHost       string `json:"mediaHost" example:"cloudinary"`
	MediaConfigured bool   `json:"mediaConfigured"`
}

const healthTimeout = 2 * time.Second

// DashboardStats godoc
// @ID          dashboardStats
// @Summary     Admin dashboard
// @Description Totals, status counts, average rating, recent and top rated recipes and a six month chart.
// @Tags        Admin
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Success     200  {object} handlers.Response
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Router      /admin/stats [get]
func (h *Handlers) DashboardStats(c *gin.Context) {
	d, err := h.Dashboard.Stats(c.Request.Context(), actorOf(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Tags        Admin
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.Response
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Router      /admin/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	page, limit := pageParams(c)
	p, err := h.Users.List(c.Request.Context(), actorOf(c), page, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	okList(c, p.Items, len(p.Items), newPagination(p.Page, p.PageSize, p.Total, p.Pages))
}

// SetUserRole godoc
// @ID          setUserRole
// @Summary     Change a user's role
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       Authorization  header  string  true  "Bearer token (admin)"
// @Param       id             path    string  true  "User ID"
// @Param       body           body    handlers.RoleRequest  true  "Role"
// @Success     200  {object} handlers.Response
// @Failure     400  {object} handlers.ErrorResponse "Unknown role"
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /admin/users/{id}/role [put]
func (h *Handlers) SetUserRole(c *gin.Context) {
	var req RoleRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.Users.SetRole(c.Request.Context(), actorOf(c), c.Param("id"), strings.TrimSpace(req.Role))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// Health godoc
// @ID          health
// @Summary     Liveness and dependency status
// @Description 200 when the database answers, 503 otherwise. The media host is informational.
// @Tags        Health
// @Produce     json
// @Success     200  {object} handlers.HealthResponse
// @Failure     503  {object} handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", MediaHost: "none"}
	status := http.StatusOK
	if h.DB != nil {
		if err := h.DB.Ping(ctx); err != nil {
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.MediaHost != nil {
		resp.MediaHost = h.MediaHost.Name()
		resp.MediaConfigured = h.MediaHost.Name() != "none"
	}
	c.JSON(status, resp)
}
