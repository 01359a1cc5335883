package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

const (
	schoolsCacheKey     = "schools:active"
	schoolSearchDefault = 10
	schoolSearchMax     = 50
)

type schoolRepository interface {
	List(ctx context.Context, filter models.SchoolFilter) ([]models.School, int, error)
	ListActive(ctx context.Context) ([]models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	Update(ctx context.Context, school *models.School) error
	Delete(ctx context.Context, id string) error
}

// SchoolRequest is the admin payload for creating or updating a school.
type SchoolRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	City   string `json:"city" validate:"max=100"`
	State  string `json:"state" validate:"max=100"`
	Active *bool  `json:"active"`
}

// SchoolService manages schools and the public school picker.
type SchoolService struct {
	repo      schoolRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	ttl       time.Duration
}

// NewSchoolService constructs a SchoolService.
func NewSchoolService(repo schoolRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SchoolService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SchoolService{repo: repo, cache: cache, validator: validate, logger: logger, ttl: 15 * time.Minute}
}

// Search fuzzy-matches active schools by name and city, best match first.
func (s *SchoolService) Search(ctx context.Context, query string, limit int) ([]models.School, error) {
	if limit <= 0 {
		limit = schoolSearchDefault
	}
	if limit > schoolSearchMax {
		limit = schoolSearchMax
	}
	schools, err := s.activeSchools(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		if len(schools) > limit {
			schools = schools[:limit]
		}
		return schools, nil
	}

	targets := make([]string, len(schools))
	for i, school := range schools {
		targets[i] = searchLabel(school)
	}
	ranks := fuzzy.RankFindNormalizedFold(query, targets)
	sort.Stable(ranks)

	result := make([]models.School, 0, limit)
	for _, rank := range ranks {
		if len(result) == limit {
			break
		}
		result = append(result, schools[rank.OriginalIndex])
	}
	return result, nil
}

func searchLabel(school models.School) string {
	parts := []string{school.Name}
	if school.City != "" {
		parts = append(parts, school.City)
	}
	if school.State != "" {
		parts = append(parts, school.State)
	}
	return strings.Join(parts, " ")
}

func (s *SchoolService) activeSchools(ctx context.Context) ([]models.School, error) {
	schools, _, err := remember(ctx, s.cache, schoolsCacheKey, s.ttl, func(ctx context.Context) ([]models.School, error) {
		schools, err := s.repo.ListActive(ctx)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load schools")
		}
		return schools, nil
	})
	return schools, err
}

// List returns schools for the admin screen.
func (s *SchoolService) List(ctx context.Context, filter models.SchoolFilter) ([]models.School, *models.Pagination, error) {
	schools, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list schools")
	}
	return schools, paginationFor(filter.Page, filter.PageSize, 50, total), nil
}

// Create adds a school.
func (s *SchoolService) Create(ctx context.Context, req SchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid school payload")
	}
	school := &models.School{
		Name:   strings.TrimSpace(req.Name),
		City:   strings.TrimSpace(req.City),
		State:  strings.TrimSpace(req.State),
		Active: req.Active == nil || *req.Active,
	}
	if err := s.repo.Create(ctx, school); err != nil {
		return nil, s.mapWriteError(err, "failed to create school")
	}
	s.invalidate(ctx)
	return school, nil
}

// Update modifies a school.
func (s *SchoolService) Update(ctx context.Context, id string, req SchoolRequest) (*models.School, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid school payload")
	}
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapWriteError(err, "failed to load school")
	}
	school.Name = strings.TrimSpace(req.Name)
	school.City = strings.TrimSpace(req.City)
	school.State = strings.TrimSpace(req.State)
	if req.Active != nil {
		school.Active = *req.Active
	}
	if err := s.repo.Update(ctx, school); err != nil {
		return nil, s.mapWriteError(err, "failed to update school")
	}
	s.invalidate(ctx)
	return school, nil
}

// Delete removes a school that has no applicants.
func (s *SchoolService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapWriteError(err, "failed to delete school")
	}
	s.invalidate(ctx)
	return nil
}

func (s *SchoolService) mapWriteError(err error, message string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "school not found")
	case errors.Is(err, repository.ErrDuplicateSchool):
		return appErrors.Clone(appErrors.ErrConflict, "school already exists")
	case errors.Is(err, repository.ErrSchoolInUse):
		return appErrors.Clone(appErrors.ErrConflict, "school has applicants; deactivate it instead")
	default:
		return appErrors.Internal(err, message)
	}
}

func (s *SchoolService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, "schools:*", dashboardCachePattern)
}
