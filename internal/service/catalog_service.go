package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type ambassadorTypeRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.AmbassadorType, error)
	FindByID(ctx context.Context, id string) (*models.AmbassadorType, error)
	Create(ctx context.Context, item *models.AmbassadorType) error
	Update(ctx context.Context, item *models.AmbassadorType) error
	Delete(ctx context.Context, id string) error
}

type challengeRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Challenge, error)
	FindByID(ctx context.Context, id string) (*models.Challenge, error)
	Create(ctx context.Context, challenge *models.Challenge) error
	Update(ctx context.Context, challenge *models.Challenge) error
	Delete(ctx context.Context, id string) (bool, error)
}

// AmbassadorTypeRequest is the admin payload for an ambassador type.
type AmbassadorTypeRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Weight      *float64 `json:"weight" validate:"required,gte=0"`
	Active      *bool    `json:"active"`
}

// ChallengeRequest is the admin payload for a challenge.
type ChallengeRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Points      *int   `json:"points" validate:"required,gte=0"`
	ActionURL   string `json:"action_url" validate:"omitempty,url,max=512"`
	Active      *bool  `json:"active"`
	SortOrder   int    `json:"sort_order"`
}

// CatalogService manages ambassador types and challenges.
type CatalogService struct {
	types      ambassadorTypeRepository
	challenges challengeRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(types ambassadorTypeRepository, challenges challengeRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CatalogService{types: types, challenges: challenges, validator: validate, logger: logger}
}

// ListTypes returns ambassador types.
func (s *CatalogService) ListTypes(ctx context.Context, activeOnly bool) ([]models.AmbassadorType, error) {
	items, err := s.types.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list ambassador types")
	}
	return items, nil
}

// CreateType adds an ambassador type.
func (s *CatalogService) CreateType(ctx context.Context, req AmbassadorTypeRequest) (*models.AmbassadorType, error) {
	if err := s.validateType(req); err != nil {
		return nil, err
	}
	item := &models.AmbassadorType{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Weight:      *req.Weight,
		Active:      req.Active == nil || *req.Active,
	}
	if err := s.types.Create(ctx, item); err != nil {
		return nil, mapTypeError(err, "failed to create ambassador type")
	}
	return item, nil
}

// UpdateType modifies an ambassador type.
func (s *CatalogService) UpdateType(ctx context.Context, id string, req AmbassadorTypeRequest) (*models.AmbassadorType, error) {
	if err := s.validateType(req); err != nil {
		return nil, err
	}
	item, err := s.types.FindByID(ctx, id)
	if err != nil {
		return nil, mapTypeError(err, "failed to load ambassador type")
	}
	item.Name = strings.TrimSpace(req.Name)
	item.Description = req.Description
	item.Weight = *req.Weight
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := s.types.Update(ctx, item); err != nil {
		return nil, mapTypeError(err, "failed to update ambassador type")
	}
	return item, nil
}

// DeleteType removes an ambassador type.
func (s *CatalogService) DeleteType(ctx context.Context, id string) error {
	if err := s.types.Delete(ctx, id); err != nil {
		return mapTypeError(err, "failed to delete ambassador type")
	}
	return nil
}

func (s *CatalogService) validateType(req AmbassadorTypeRequest) error {
	if req.Weight != nil && *req.Weight < 0 {
		return appErrors.Clone(appErrors.ErrInvalidWeights, "weight must not be negative")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Invalid(err, "invalid ambassador type payload")
	}
	return nil
}

func mapTypeError(err error, message string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "ambassador type not found")
	case errors.Is(err, repository.ErrDuplicateAmbassadorType):
		return appErrors.Clone(appErrors.ErrConflict, "ambassador type name already exists")
	default:
		return appErrors.Internal(err, message)
	}
}

// ListChallenges returns challenges in display order.
func (s *CatalogService) ListChallenges(ctx context.Context, activeOnly bool) ([]models.Challenge, error) {
	items, err := s.challenges.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list challenges")
	}
	return items, nil
}

// CreateChallenge adds a challenge.
func (s *CatalogService) CreateChallenge(ctx context.Context, req ChallengeRequest) (*models.Challenge, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid challenge payload")
	}
	challenge := &models.Challenge{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Points:      *req.Points,
		ActionURL:   req.ActionURL,
		Active:      req.Active == nil || *req.Active,
		SortOrder:   req.SortOrder,
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, appErrors.Internal(err, "failed to create challenge")
	}
	return challenge, nil
}

// UpdateChallenge modifies a challenge. Points already awarded are not revisited.
func (s *CatalogService) UpdateChallenge(ctx context.Context, id string, req ChallengeRequest) (*models.Challenge, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid challenge payload")
	}
	challenge, err := s.challenges.FindByID(ctx, id)
	if err != nil {
		return nil, mapChallengeError(err, "failed to load challenge")
	}
	challenge.Title = strings.TrimSpace(req.Title)
	challenge.Description = req.Description
	challenge.Points = *req.Points
	challenge.ActionURL = req.ActionURL
	challenge.SortOrder = req.SortOrder
	if req.Active != nil {
		challenge.Active = *req.Active
	}
	if err := s.challenges.Update(ctx, challenge); err != nil {
		return nil, mapChallengeError(err, "failed to update challenge")
	}
	return challenge, nil
}

// DeleteChallenge removes a challenge, or deactivates it once it has completions.
func (s *CatalogService) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	deactivated, err := s.challenges.Delete(ctx, id)
	if err != nil {
		return false, mapChallengeError(err, "failed to delete challenge")
	}
	if deactivated {
		s.logger.Info("challenge deactivated instead of deleted", zap.String("challenge_id", id))
	}
	return deactivated, nil
}

func mapChallengeError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "challenge not found")
	}
	return appErrors.Internal(err, message)
}
