package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/middleware"
	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context) (*models.DashboardSummary, bool, error)
}

// DashboardHandler serves the admin funnel summary.
type DashboardHandler struct {
	summaries dashboardService
}

func NewDashboardHandler(summaries dashboardService) *DashboardHandler {
	return &DashboardHandler{summaries: summaries}
}

// Summary godoc
// @Summary Admin funnel summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.summaries == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	summary, cacheHit, err := h.summaries.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
