package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/middleware"
	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/service"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

type portalSessionIssuer interface {
	PortalSession(ctx context.Context, req models.PortalSessionRequest) (*models.PortalToken, error)
}

type applicantReader interface {
	Get(ctx context.Context, id string) (*models.ApplicantDetail, error)
}

type boostCompleter interface {
	List(ctx context.Context, applicantID string) ([]models.Boost, error)
	Complete(ctx context.Context, applicantID, challengeID string) (*models.BoostResult, error)
}

type opportunityBrowser interface {
	ListOpen(ctx context.Context) ([]models.Opportunity, error)
	Apply(ctx context.Context, applicantID, opportunityID string, req service.ApplyOpportunityRequest) (*models.OpportunityApplication, error)
	MyApplications(ctx context.Context, applicantID string) ([]models.OpportunityApplication, error)
}

type leaderboardReader interface {
	Top(ctx context.Context) ([]models.LeaderboardEntry, bool, error)
}

// PortalHandler serves the applicant portal. Every route acts on the
// applicant named by the portal token.
type PortalHandler struct {
	sessions      portalSessionIssuer
	applicants    applicantReader
	boosts        boostCompleter
	opportunities opportunityBrowser
	leaderboard   leaderboardReader
}

// NewPortalHandler constructs PortalHandler.
func NewPortalHandler(sessions portalSessionIssuer, applicants applicantReader, boosts boostCompleter, opportunities opportunityBrowser, leaderboard leaderboardReader) *PortalHandler {
	return &PortalHandler{
		sessions:      sessions,
		applicants:    applicants,
		boosts:        boosts,
		opportunities: opportunities,
		leaderboard:   leaderboard,
	}
}

func portalApplicantID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleApplicant {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

// Session godoc
// @Summary Recover portal access
// @Tags Portal
// @Accept json
// @Produce json
// @Param payload body models.PortalSessionRequest true "Email and referral code"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /portal/session [post]
func (h *PortalHandler) Session(c *gin.Context) {
	var req models.PortalSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	token, err := h.sessions.PortalSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// Me godoc
// @Summary Current applicant profile
// @Tags Portal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /portal/me [get]
func (h *PortalHandler) Me(c *gin.Context) {
	id, ok := portalApplicantID(c)
	if !ok {
		return
	}
	applicant, err := h.applicants.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applicant, nil)
}

// Boosts godoc
// @Summary List challenges with completion flags
// @Tags Portal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /portal/boosts [get]
func (h *PortalHandler) Boosts(c *gin.Context) {
	id, ok := portalApplicantID(c)
	if !ok {
		return
	}
	boosts, err := h.boosts.List(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if boosts == nil {
		boosts = []models.Boost{}
	}
	response.JSON(c, http.StatusOK, boosts, nil)
}

// CompleteBoost godoc
// @Summary Complete a challenge
// @Tags Portal
// @Produce json
// @Param id path string true "Challenge ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /portal/boosts/{id}/complete [post]
func (h *PortalHandler) CompleteBoost(c *gin.Context) {
	id, ok := portalApplicantID(c)
	if !ok {
		return
	}
	result, err := h.boosts.Complete(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Opportunities godoc
// @Summary Open brand opportunities
// @Tags Portal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /portal/opportunities [get]
func (h *PortalHandler) Opportunities(c *gin.Context) {
	if _, ok := portalApplicantID(c); !ok {
		return
	}
	items, err := h.opportunities.ListOpen(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Apply godoc
// @Summary Apply to an opportunity
// @Tags Portal
// @Accept json
// @Produce json
// @Param id path string true "Opportunity ID"
// @Param payload body service.ApplyOpportunityRequest false "Pitch"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /portal/opportunities/{id}/apply [post]
func (h *PortalHandler) Apply(c *gin.Context) {
	id, ok := portalApplicantID(c)
	if !ok {
		return
	}
	var req service.ApplyOpportunityRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	application, err := h.opportunities.Apply(c.Request.Context(), id, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, application)
}

// Applications godoc
// @Summary The applicant's opportunity applications
// @Tags Portal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /portal/applications [get]
func (h *PortalHandler) Applications(c *gin.Context) {
	id, ok := portalApplicantID(c)
	if !ok {
		return
	}
	items, err := h.opportunities.MyApplications(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Leaderboard godoc
// @Summary Top applicants by points
// @Tags Portal
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /portal/leaderboard [get]
func (h *PortalHandler) Leaderboard(c *gin.Context) {
	entries, cacheHit, err := h.leaderboard.Top(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, entries, nil, middleware.ExtractMeta(c))
}
