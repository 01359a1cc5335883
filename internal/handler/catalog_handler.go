package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/service"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

// CatalogHandler manages ambassador types and challenges.
type CatalogHandler struct {
	service *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// ListTypes godoc
// @Summary List ambassador types
// @Tags Catalog
// @Produce json
// @Param active query bool false "Only active types"
// @Success 200 {object} response.Envelope
// @Router /admin/ambassador-types [get]
func (h *CatalogHandler) ListTypes(c *gin.Context) {
	activeOnly := boolQuery(c, "active")
	items, err := h.service.ListTypes(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateType godoc
// @Summary Create ambassador type
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.AmbassadorTypeRequest true "Type"
// @Success 201 {object} response.Envelope
// @Router /admin/ambassador-types [post]
func (h *CatalogHandler) CreateType(c *gin.Context) {
	var req service.AmbassadorTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.CreateType(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateType godoc
// @Summary Update ambassador type
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Type ID"
// @Param payload body service.AmbassadorTypeRequest true "Type"
// @Success 200 {object} response.Envelope
// @Router /admin/ambassador-types/{id} [put]
func (h *CatalogHandler) UpdateType(c *gin.Context) {
	var req service.AmbassadorTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.UpdateType(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteType godoc
// @Summary Delete ambassador type
// @Tags Catalog
// @Param id path string true "Type ID"
// @Success 204
// @Router /admin/ambassador-types/{id} [delete]
func (h *CatalogHandler) DeleteType(c *gin.Context) {
	if err := h.service.DeleteType(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListChallenges godoc
// @Summary List challenges
// @Tags Catalog
// @Produce json
// @Param active query bool false "Only active challenges"
// @Success 200 {object} response.Envelope
// @Router /admin/challenges [get]
func (h *CatalogHandler) ListChallenges(c *gin.Context) {
	activeOnly := boolQuery(c, "active")
	items, err := h.service.ListChallenges(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateChallenge godoc
// @Summary Create challenge
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.ChallengeRequest true "Challenge"
// @Success 201 {object} response.Envelope
// @Router /admin/challenges [post]
func (h *CatalogHandler) CreateChallenge(c *gin.Context) {
	var req service.ChallengeRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.CreateChallenge(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateChallenge godoc
// @Summary Update challenge
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Challenge ID"
// @Param payload body service.ChallengeRequest true "Challenge"
// @Success 200 {object} response.Envelope
// @Router /admin/challenges/{id} [put]
func (h *CatalogHandler) UpdateChallenge(c *gin.Context) {
	var req service.ChallengeRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.UpdateChallenge(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteChallenge godoc
// @Summary Delete challenge
// @Description Challenges with completions are deactivated instead of removed.
// @Tags Catalog
// @Produce json
// @Param id path string true "Challenge ID"
// @Success 200 {object} response.Envelope
// @Success 204
// @Router /admin/challenges/{id} [delete]
func (h *CatalogHandler) DeleteChallenge(c *gin.Context) {
	deactivated, err := h.service.DeleteChallenge(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if deactivated {
		response.JSON(c, http.StatusOK, gin.H{"deactivated": true}, nil)
		return
	}
	response.NoContent(c)
}
