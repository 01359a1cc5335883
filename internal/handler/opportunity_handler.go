package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

// OpportunityHandler exposes admin management of brand opportunities.
type OpportunityHandler struct {
	service *service.OpportunityService
}

// NewOpportunityHandler constructs OpportunityHandler.
func NewOpportunityHandler(svc *service.OpportunityService) *OpportunityHandler {
	return &OpportunityHandler{service: svc}
}

// List godoc
// @Summary List opportunities
// @Tags Opportunities
// @Produce json
// @Param status query string false "draft, open or closed"
// @Success 200 {object} response.Envelope
// @Router /admin/opportunities [get]
func (h *OpportunityHandler) List(c *gin.Context) {
	var status *models.OpportunityStatus
	if raw := strings.ToLower(trimmed(c, "status")); raw != "" {
		s := models.OpportunityStatus(raw)
		status = &s
	}
	items, err := h.service.List(c.Request.Context(), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get opportunity
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Router /admin/opportunities/{id} [get]
func (h *OpportunityHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create opportunity
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param payload body service.OpportunityRequest true "Opportunity"
// @Success 201 {object} response.Envelope
// @Router /admin/opportunities [post]
func (h *OpportunityHandler) Create(c *gin.Context) {
	var req service.OpportunityRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update opportunity
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param payload body service.OpportunityRequest true "Opportunity"
// @Success 200 {object} response.Envelope
// @Router /admin/opportunities/{id} [put]
func (h *OpportunityHandler) Update(c *gin.Context) {
	var req service.OpportunityRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete opportunity
// @Tags Opportunities
// @Param id path string true "Opportunity ID"
// @Success 204
// @Router /admin/opportunities/{id} [delete]
func (h *OpportunityHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Applications godoc
// @Summary Applications to an opportunity
// @Tags Opportunities
// @Produce json
// @Param id path string true "Opportunity ID"
// @Success 200 {object} response.Envelope
// @Router /admin/opportunities/{id}/applications [get]
func (h *OpportunityHandler) Applications(c *gin.Context) {
	items, err := h.service.ListApplications(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Review godoc
// @Summary Approve or reject an application
// @Tags Opportunities
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.ReviewApplicationRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /admin/opportunity-applications/{id}/review [post]
func (h *OpportunityHandler) Review(c *gin.Context) {
	var req service.ReviewApplicationRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.Review(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
