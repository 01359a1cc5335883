package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

// AuditHandler lists the audit trail.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit logs
// @Tags Audit
// @Produce json
// @Param action query string false "Action"
// @Param resource query string false "Resource"
// @Param resource_id query string false "Resource ID"
// @Param user_id query string false "Actor"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	page, size := pageParams(c, 50)
	filter := models.AuditLogFilter{
		Action:     trimmed(c, "action"),
		Resource:   trimmed(c, "resource"),
		ResourceID: trimmed(c, "resource_id"),
		UserID:     trimmed(c, "user_id"),
		Page:       page,
		PageSize:   size,
	}
	logs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
