package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

// SchoolHandler serves the public school picker and admin school management.
type SchoolHandler struct {
	schools *service.SchoolService
}

// NewSchoolHandler constructs SchoolHandler.
func NewSchoolHandler(schools *service.SchoolService) *SchoolHandler {
	return &SchoolHandler{schools: schools}
}

// Search godoc
// @Summary Search active schools
// @Tags Schools
// @Produce json
// @Param q query string false "Fuzzy name or city"
// @Param limit query int false "Maximum results (max 50)"
// @Success 200 {object} response.Envelope
// @Router /schools [get]
func (h *SchoolHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	schools, err := h.schools.Search(c.Request.Context(), trimmed(c, "q"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, nil)
}

// List godoc
// @Summary List schools
// @Tags Admin Schools
// @Produce json
// @Param search query string false "Name contains"
// @Param active query bool false "Active filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/schools [get]
func (h *SchoolHandler) List(c *gin.Context) {
	page, size := pageParams(c, 50)
	filter := models.SchoolFilter{Search: trimmed(c, "search"), Active: boolQuery(c, "active"), Page: page, PageSize: size}
	schools, pagination, err := h.schools.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, pagination)
}

// Create godoc
// @Summary Create school
// @Tags Admin Schools
// @Accept json
// @Produce json
// @Param payload body service.SchoolRequest true "School"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/schools [post]
func (h *SchoolHandler) Create(c *gin.Context) {
	var req service.SchoolRequest
	if !bindJSON(c, &req) {
		return
	}
	school, err := h.schools.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, school)
}

// Update godoc
// @Summary Update school
// @Tags Admin Schools
// @Accept json
// @Produce json
// @Param id path string true "School ID"
// @Param payload body service.SchoolRequest true "School"
// @Success 200 {object} response.Envelope
// @Router /admin/schools/{id} [put]
func (h *SchoolHandler) Update(c *gin.Context) {
	var req service.SchoolRequest
	if !bindJSON(c, &req) {
		return
	}
	school, err := h.schools.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}

// Delete godoc
// @Summary Delete school
// @Tags Admin Schools
// @Param id path string true "School ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /admin/schools/{id} [delete]
func (h *SchoolHandler) Delete(c *gin.Context) {
	if err := h.schools.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
