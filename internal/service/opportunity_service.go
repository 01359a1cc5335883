package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type opportunityRepository interface {
	List(ctx context.Context, status *models.OpportunityStatus) ([]models.Opportunity, error)
	FindByID(ctx context.Context, id string) (*models.Opportunity, error)
	Create(ctx context.Context, item *models.Opportunity) error
	Update(ctx context.Context, item *models.Opportunity) error
	Delete(ctx context.Context, id string) error
	Apply(ctx context.Context, application *models.OpportunityApplication) error
	ListApplications(ctx context.Context, opportunityID string) ([]models.OpportunityApplicationDetail, error)
	ListApplicationsForApplicant(ctx context.Context, applicantID string) ([]models.OpportunityApplication, error)
	ReviewApplication(ctx context.Context, applicationID string, status models.ApplicationStatus, reviewerID string) (*models.OpportunityApplication, error)
}

type applicantFinder interface {
	FindByID(ctx context.Context, id string) (*models.ApplicantDetail, error)
}

// OpportunityRequest is the admin payload for a brand opportunity.
type OpportunityRequest struct {
	Brand       string                   `json:"brand" validate:"required,max=200"`
	Title       string                   `json:"title" validate:"required,max=200"`
	Description string                   `json:"description" validate:"max=5000"`
	TotalSpots  int                      `json:"total_spots" validate:"gte=0"`
	Status      models.OpportunityStatus `json:"status" validate:"omitempty,oneof=draft open closed"`
	Deadline    *time.Time               `json:"deadline"`
}

// ApplyOpportunityRequest is the applicant's pitch.
type ApplyOpportunityRequest struct {
	Pitch string `json:"pitch" validate:"max=2000"`
}

// ReviewApplicationRequest approves or rejects an application.
type ReviewApplicationRequest struct {
	Status models.ApplicationStatus `json:"status" validate:"required,oneof=pending approved rejected"`
}

// OpportunityService manages brand opportunities and applications to them.
type OpportunityService struct {
	repo       opportunityRepository
	applicants applicantFinder
	audit      auditLogger
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewOpportunityService constructs an OpportunityService.
func NewOpportunityService(repo opportunityRepository, applicants applicantFinder, audit auditLogger, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *OpportunityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &OpportunityService{repo: repo, applicants: applicants, audit: audit, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// List returns opportunities, optionally narrowed to one status.
func (s *OpportunityService) List(ctx context.Context, status *models.OpportunityStatus) ([]models.Opportunity, error) {
	items, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list opportunities")
	}
	return items, nil
}

// ListOpen returns opportunities applicants can still apply to.
func (s *OpportunityService) ListOpen(ctx context.Context) ([]models.Opportunity, error) {
	open := models.OpportunityStatusOpen
	items, err := s.List(ctx, &open)
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := make([]models.Opportunity, 0, len(items))
	for _, item := range items {
		if item.Deadline != nil && item.Deadline.Before(now) {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

// Get returns one opportunity.
func (s *OpportunityService) Get(ctx context.Context, id string) (*models.Opportunity, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapOpportunityError(err, "failed to load opportunity")
	}
	return item, nil
}

// Create adds an opportunity.
func (s *OpportunityService) Create(ctx context.Context, req OpportunityRequest) (*models.Opportunity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid opportunity payload")
	}
	status := req.Status
	if status == "" {
		status = models.OpportunityStatusDraft
	}
	item := &models.Opportunity{
		Brand:       strings.TrimSpace(req.Brand),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		TotalSpots:  req.TotalSpots,
		Status:      status,
		Deadline:    req.Deadline,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Internal(err, "failed to create opportunity")
	}
	_ = s.cache.Invalidate(ctx, dashboardCachePattern)
	return item, nil
}

// Update modifies an opportunity. Spots cannot drop below those already filled.
func (s *OpportunityService) Update(ctx context.Context, id string, req OpportunityRequest) (*models.Opportunity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid opportunity payload")
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapOpportunityError(err, "failed to load opportunity")
	}
	if req.TotalSpots < item.SpotsFilled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "total_spots cannot be less than spots already filled")
	}
	item.Brand = strings.TrimSpace(req.Brand)
	item.Title = strings.TrimSpace(req.Title)
	item.Description = req.Description
	item.TotalSpots = req.TotalSpots
	item.Deadline = req.Deadline
	if req.Status != "" {
		item.Status = req.Status
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, mapOpportunityError(err, "failed to update opportunity")
	}
	_ = s.cache.Invalidate(ctx, dashboardCachePattern)
	return item, nil
}

// Delete removes an opportunity with its applications.
func (s *OpportunityService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapOpportunityError(err, "failed to delete opportunity")
	}
	_ = s.cache.Invalidate(ctx, dashboardCachePattern)
	return nil
}

// Apply lets an accepted applicant apply to an open opportunity.
func (s *OpportunityService) Apply(ctx context.Context, applicantID, opportunityID string, req ApplyOpportunityRequest) (*models.OpportunityApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid application payload")
	}
	applicant, err := s.applicants.FindByID(ctx, applicantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant not found")
		}
		return nil, appErrors.Internal(err, "failed to load applicant")
	}
	if applicant.Status != models.ApplicantStatusAccepted {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only accepted ambassadors can apply to opportunities")
	}

	opportunity, err := s.repo.FindByID(ctx, opportunityID)
	if err != nil {
		return nil, mapOpportunityError(err, "failed to load opportunity")
	}
	if opportunity.Status != models.OpportunityStatusOpen || (opportunity.Deadline != nil && opportunity.Deadline.Before(s.now())) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "opportunity is not accepting applications")
	}
	if opportunity.SpotsFilled >= opportunity.TotalSpots {
		return nil, appErrors.Clone(appErrors.ErrOpportunityFull, "")
	}

	application := &models.OpportunityApplication{
		OpportunityID: opportunity.ID,
		ApplicantID:   applicantID,
		Pitch:         strings.TrimSpace(req.Pitch),
		Status:        models.ApplicationStatusPending,
	}
	if err := s.repo.Apply(ctx, application); err != nil {
		if errors.Is(err, repository.ErrDuplicateApplication) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already applied to this opportunity")
		}
		return nil, appErrors.Internal(err, "failed to apply")
	}
	return application, nil
}

// MyApplications lists the applicant's own applications.
func (s *OpportunityService) MyApplications(ctx context.Context, applicantID string) ([]models.OpportunityApplication, error) {
	items, err := s.repo.ListApplicationsForApplicant(ctx, applicantID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list applications")
	}
	return items, nil
}

// ListApplications returns applications to one opportunity.
func (s *OpportunityService) ListApplications(ctx context.Context, opportunityID string) ([]models.OpportunityApplicationDetail, error) {
	if _, err := s.Get(ctx, opportunityID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListApplications(ctx, opportunityID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list applications")
	}
	return items, nil
}

// Review approves or rejects an application, keeping spots_filled in step.
func (s *OpportunityService) Review(ctx context.Context, actor *models.JWTClaims, applicationID string, req ReviewApplicationRequest) (*models.OpportunityApplication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid review payload")
	}
	application, err := s.repo.ReviewApplication(ctx, applicationID, req.Status, actor.UserID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		case errors.Is(err, repository.ErrOpportunityFull):
			return nil, appErrors.Clone(appErrors.ErrOpportunityFull, "")
		default:
			return nil, appErrors.Internal(err, "failed to review application")
		}
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionApplicationReview, "opportunity_applications", applicationID, req)
	return application, nil
}

func mapOpportunityError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "opportunity not found")
	}
	return appErrors.Internal(err, message)
}
