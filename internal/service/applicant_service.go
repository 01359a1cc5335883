package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type applicantRepository interface {
	List(ctx context.Context, filter models.ApplicantFilter) ([]models.ApplicantDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ApplicantDetail, error)
	UpdateStatus(ctx context.Context, ids []string, status models.ApplicantStatus) ([]string, error)
	OverridePosition(ctx context.Context, id string, position int) error
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	RecalculatePoints(ctx context.Context, id string, referralBonus int, position repository.PositionFunc) (waitlist.Ledger, error)
}

type acceptanceNotifier interface {
	Accepted(applicant *models.Applicant)
}

// UpdateApplicantStatusRequest moves one applicant through review.
type UpdateApplicantStatusRequest struct {
	Status models.ApplicantStatus `json:"status" validate:"required,oneof=new reviewed contacted accepted rejected"`
}

// BulkApplicantStatusRequest moves several applicants at once.
type BulkApplicantStatusRequest struct {
	IDs    []string               `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
	Status models.ApplicantStatus `json:"status" validate:"required,oneof=new reviewed contacted accepted rejected"`
}

// OverridePositionRequest pins an applicant to a waitlist position.
type OverridePositionRequest struct {
	Position int `json:"waitlist_position" validate:"required,min=1"`
}

// BulkDeleteRequest lists applicants to remove.
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
}

// BulkResult reports how many rows a bulk command touched.
type BulkResult struct {
	Requested int      `json:"requested"`
	Affected  int      `json:"affected"`
	IDs       []string `json:"ids,omitempty"`
}

// ApplicantService backs the admin applicant screens and the portal profile.
type ApplicantService struct {
	repo          applicantRepository
	audit         auditLogger
	notifier      acceptanceNotifier
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
	waitlist      waitlist.Config
	referralBonus int
}

// NewApplicantService constructs an ApplicantService.
func NewApplicantService(repo applicantRepository, audit auditLogger, notifier acceptanceNotifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg waitlist.Config, referralBonus int) *ApplicantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApplicantService{
		repo:          repo,
		audit:         audit,
		notifier:      notifier,
		cache:         cache,
		validator:     validate,
		logger:        logger,
		waitlist:      cfg.Normalize(),
		referralBonus: referralBonus,
	}
}

// List returns applicants matching filter.
func (s *ApplicantService) List(ctx context.Context, filter models.ApplicantFilter) ([]models.ApplicantDetail, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list applicants")
	}
	return items, paginationFor(filter.Page, filter.PageSize, 20, total), nil
}

// Get returns one applicant.
func (s *ApplicantService) Get(ctx context.Context, id string) (*models.ApplicantDetail, error) {
	applicant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant not found")
		}
		return nil, appErrors.Internal(err, "failed to load applicant")
	}
	return applicant, nil
}

// UpdateStatus changes one applicant's review status.
func (s *ApplicantService) UpdateStatus(ctx context.Context, actor *models.JWTClaims, id string, req UpdateApplicantStatusRequest) (*models.ApplicantDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid status payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.applyStatus(ctx, actor, []string{id}, req.Status); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// BulkUpdateStatus changes the status of many applicants.
func (s *ApplicantService) BulkUpdateStatus(ctx context.Context, actor *models.JWTClaims, req BulkApplicantStatusRequest) (*BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid bulk status payload")
	}
	changed, err := s.applyStatus(ctx, actor, req.IDs, req.Status)
	if err != nil {
		return nil, err
	}
	return &BulkResult{Requested: len(req.IDs), Affected: len(changed), IDs: changed}, nil
}

func (s *ApplicantService) applyStatus(ctx context.Context, actor *models.JWTClaims, ids []string, status models.ApplicantStatus) ([]string, error) {
	changed, err := s.repo.UpdateStatus(ctx, ids, status)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update applicant status")
	}
	for _, id := range changed {
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionApplicantStatus, "applicants", id, map[string]interface{}{"status": status})
	}
	if status == models.ApplicantStatusAccepted && s.notifier != nil {
		for _, id := range changed {
			applicant, err := s.repo.FindByID(ctx, id)
			if err != nil {
				s.logger.Warn("acceptance email skipped", zap.String("applicant_id", id), zap.Error(err))
				continue
			}
			s.notifier.Accepted(&applicant.Applicant)
		}
	}
	if len(changed) > 0 {
		s.invalidate(ctx)
	}
	return changed, nil
}

// OverridePosition pins the waitlist position until the next ledger change.
func (s *ApplicantService) OverridePosition(ctx context.Context, actor *models.JWTClaims, id string, req OverridePositionRequest) (*models.ApplicantDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid position payload")
	}
	if err := s.repo.OverridePosition(ctx, id, req.Position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant not found")
		}
		return nil, appErrors.Internal(err, "failed to override position")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionApplicantPosition, "applicants", id, req)
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// Recalculate rebuilds an applicant's points from score, completions and referrals.
func (s *ApplicantService) Recalculate(ctx context.Context, actor *models.JWTClaims, id string) (*waitlist.Ledger, error) {
	ledger, err := s.repo.RecalculatePoints(ctx, id, s.referralBonus, s.waitlist.Position)
	if err != nil {
		if errors.Is(err, repository.ErrApplicantNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant not found")
		}
		return nil, appErrors.Internal(err, "failed to recalculate points")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionPointsRecalculate, "applicants", id, ledger)
	s.invalidate(ctx)
	return &ledger, nil
}

// BulkDelete removes applicants with their completions and applications.
func (s *ApplicantService) BulkDelete(ctx context.Context, actor *models.JWTClaims, req BulkDeleteRequest) (*BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid delete payload")
	}
	deleted, err := s.repo.DeleteMany(ctx, req.IDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to delete applicants")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionApplicantDelete, "applicants", "", req)
	s.invalidate(ctx)
	return &BulkResult{Requested: len(req.IDs), Affected: int(deleted)}, nil
}

func (s *ApplicantService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, leaderboardCachePattern, dashboardCachePattern)
}
