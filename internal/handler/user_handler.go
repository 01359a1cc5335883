package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

type staffAccounts interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, req service.CreateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error)
	Update(ctx context.Context, id string, req service.UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error)
	Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error
}

// UserHandler manages back-office staff accounts. Applicants never appear here.
type UserHandler struct {
	accounts staffAccounts
}

// NewUserHandler creates a new user handler.
func NewUserHandler(accounts staffAccounts) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// actor returns the calling staff member and the request metadata stored with audit entries.
func actor(c *gin.Context) (string, models.RequestMeta, bool) {
	claims := claimsFromContext(c)
	if claims == nil || !claims.Role.Staff() {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", models.RequestMeta{}, false
	}
	return claims.UserID, requestMeta(c), true
}

func staffRole(raw string) (*models.UserRole, bool) {
	if raw == "" {
		return nil, true
	}
	role := models.UserRole(strings.ToUpper(raw))
	if !role.Staff() {
		return nil, false
	}
	return &role, true
}

// List godoc
// @Summary List staff accounts
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "SUPERADMIN, ADMIN or REVIEWER"
// @Param active query bool false "Active filter"
// @Param search query string false "Matches name or email"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	role, ok := staffRole(trimmed(c, "role"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "role must be SUPERADMIN, ADMIN or REVIEWER"))
		return
	}
	page, size := pageParams(c, 20)
	filter := models.UserFilter{
		Role:      role,
		Active:    boolQuery(c, "active"),
		Search:    trimmed(c, "search"),
		Page:      page,
		PageSize:  size,
		SortBy:    trimmed(c, "sort_by"),
		SortOrder: strings.ToLower(trimmed(c, "sort_order")),
	}

	users, pagination, err := h.accounts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get staff account
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create staff account
// @Description Superadmin only. Role must be SUPERADMIN, ADMIN or REVIEWER.
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body service.CreateUserRequest true "Create user payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	actorID, meta, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.accounts.Create(c.Request.Context(), req, actorID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update staff account
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body service.UpdateUserRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	actorID, meta, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.accounts.Update(c.Request.Context(), c.Param("id"), req, actorID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Deactivate staff account
// @Description Marks the account inactive; its audit history is kept.
// @Tags Users
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	actorID, meta, ok := actor(c)
	if !ok {
		return
	}
	if err := h.accounts.Delete(c.Request.Context(), c.Param("id"), actorID, meta); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
