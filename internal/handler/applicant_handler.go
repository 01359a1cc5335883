package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

type applicantAdmin interface {
	List(ctx context.Context, filter models.ApplicantFilter) ([]models.ApplicantDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ApplicantDetail, error)
	UpdateStatus(ctx context.Context, actor *models.JWTClaims, id string, req service.UpdateApplicantStatusRequest) (*models.ApplicantDetail, error)
	BulkUpdateStatus(ctx context.Context, actor *models.JWTClaims, req service.BulkApplicantStatusRequest) (*service.BulkResult, error)
	OverridePosition(ctx context.Context, actor *models.JWTClaims, id string, req service.OverridePositionRequest) (*models.ApplicantDetail, error)
	Recalculate(ctx context.Context, actor *models.JWTClaims, id string) (*waitlist.Ledger, error)
	BulkDelete(ctx context.Context, actor *models.JWTClaims, req service.BulkDeleteRequest) (*service.BulkResult, error)
}

type applicantExporter interface {
	ExportApplicants(ctx context.Context, filter models.ApplicantFilter, format service.ExportFormat) (*service.ExportResult, error)
}

// ApplicantHandler exposes the admin applicant screens.
type ApplicantHandler struct {
	service  applicantAdmin
	exporter applicantExporter
}

// NewApplicantHandler constructs ApplicantHandler.
func NewApplicantHandler(svc applicantAdmin, exporter applicantExporter) *ApplicantHandler {
	return &ApplicantHandler{service: svc, exporter: exporter}
}

func applicantFilter(c *gin.Context) (models.ApplicantFilter, error) {
	page, size := pageParams(c, 20)
	filter := models.ApplicantFilter{
		Search:         trimmed(c, "search"),
		SchoolID:       trimmed(c, "school_id"),
		AmbassadorType: trimmed(c, "ambassador_type"),
		Page:           page,
		PageSize:       size,
		SortBy:         trimmed(c, "sort_by"),
		SortOrder:      strings.ToLower(trimmed(c, "sort_order")),
	}
	if raw := trimmed(c, "status"); raw != "" {
		status := models.ApplicantStatus(strings.ToLower(raw))
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
		}
		filter.Status = &status
	}
	return filter, nil
}

// List godoc
// @Summary List applicants
// @Tags Applicants
// @Produce json
// @Param search query string false "Name, email or referral code"
// @Param status query string false "Review status"
// @Param school_id query string false "School ID"
// @Param ambassador_type query string false "Ambassador type"
// @Param sort_by query string false "created_at, points, waitlist_position, last_name"
// @Param sort_order query string false "asc or desc"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/applicants [get]
func (h *ApplicantHandler) List(c *gin.Context) {
	filter, err := applicantFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get applicant
// @Tags Applicants
// @Produce json
// @Param id path string true "Applicant ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/applicants/{id} [get]
func (h *ApplicantHandler) Get(c *gin.Context) {
	applicant, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applicant, nil)
}

// UpdateStatus godoc
// @Summary Change an applicant's review status
// @Tags Applicants
// @Accept json
// @Produce json
// @Param id path string true "Applicant ID"
// @Param payload body service.UpdateApplicantStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /admin/applicants/{id}/status [patch]
func (h *ApplicantHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateApplicantStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	applicant, err := h.service.UpdateStatus(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applicant, nil)
}

// BulkStatus godoc
// @Summary Change the review status of several applicants
// @Tags Applicants
// @Accept json
// @Produce json
// @Param payload body service.BulkApplicantStatusRequest true "IDs and status"
// @Success 200 {object} response.Envelope
// @Router /admin/applicants/bulk/status [post]
func (h *ApplicantHandler) BulkStatus(c *gin.Context) {
	var req service.BulkApplicantStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkUpdateStatus(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// OverridePosition godoc
// @Summary Pin an applicant's waitlist position
// @Tags Applicants
// @Accept json
// @Produce json
// @Param id path string true "Applicant ID"
// @Param payload body service.OverridePositionRequest true "Position"
// @Success 200 {object} response.Envelope
// @Router /admin/applicants/{id}/position [put]
func (h *ApplicantHandler) OverridePosition(c *gin.Context) {
	var req service.OverridePositionRequest
	if !bindJSON(c, &req) {
		return
	}
	applicant, err := h.service.OverridePosition(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applicant, nil)
}

// Recalculate godoc
// @Summary Rebuild an applicant's points from score, referrals and completions
// @Tags Applicants
// @Produce json
// @Param id path string true "Applicant ID"
// @Success 200 {object} response.Envelope
// @Router /admin/applicants/{id}/recalculate [post]
func (h *ApplicantHandler) Recalculate(c *gin.Context) {
	ledger, err := h.service.Recalculate(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ledger, nil)
}

// BulkDelete godoc
// @Summary Delete several applicants
// @Tags Applicants
// @Accept json
// @Produce json
// @Param payload body service.BulkDeleteRequest true "IDs"
// @Success 200 {object} response.Envelope
// @Router /admin/applicants/bulk/delete [post]
func (h *ApplicantHandler) BulkDelete(c *gin.Context) {
	var req service.BulkDeleteRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkDelete(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export applicants matching the list filters
// @Tags Applicants
// @Produce json
// @Param format query string true "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /admin/applicants/export [post]
func (h *ApplicantHandler) Export(c *gin.Context) {
	filter, err := applicantFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	result, err := h.exporter.ExportApplicants(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
