package service

import (
	"context"
	"time"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

const dashboardCacheKey = "dash:admin"

type dashboardApplicantStats interface {
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) ([]models.DashboardCount, error)
	CountByAmbassadorType(ctx context.Context) ([]models.DashboardCount, error)
	TopSchools(ctx context.Context, limit int) ([]models.DashboardCount, error)
}

type completionCounter interface {
	CountCompletions(ctx context.Context) (int, error)
}

type openOpportunityCounter interface {
	CountOpen(ctx context.Context) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL      time.Duration
	TopSchoolsMax int
}

// DashboardService composes the admin overview.
type DashboardService struct {
	applicants    dashboardApplicantStats
	completions   completionCounter
	opportunities openOpportunityCounter
	cache         *CacheService
	now           func() time.Time
	cfg           DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Applicants    dashboardApplicantStats
	Completions   completionCounter
	Opportunities openOpportunityCounter
	Cache         *CacheService
	Config        DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopSchoolsMax <= 0 {
		cfg.TopSchoolsMax = 5
	}
	return &DashboardService{
		applicants:    params.Applicants,
		completions:   params.Completions,
		opportunities: params.Opportunities,
		cache:         params.Cache,
		now:           time.Now,
		cfg:           cfg,
	}
}

// Summary returns the admin dashboard and indicates cache utilisation.
func (s *DashboardService) Summary(ctx context.Context) (*models.DashboardSummary, bool, error) {
	return remember(ctx, s.cache, dashboardCacheKey, s.cfg.CacheTTL, s.compose)
}

func (s *DashboardService) compose(ctx context.Context) (*models.DashboardSummary, error) {
	wrap := func(err error) error {
		return appErrors.Internal(err, "failed to build dashboard")
	}
	total, err := s.applicants.Count(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	byStatus, err := s.applicants.CountByStatus(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	byType, err := s.applicants.CountByAmbassadorType(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	topSchools, err := s.applicants.TopSchools(ctx, s.cfg.TopSchoolsMax)
	if err != nil {
		return nil, wrap(err)
	}
	completions, err := s.completions.CountCompletions(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	open, err := s.opportunities.CountOpen(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	return &models.DashboardSummary{
		TotalApplicants:   total,
		ByStatus:          nonNilCounts(byStatus),
		ByAmbassadorType:  nonNilCounts(byType),
		TopSchools:        nonNilCounts(topSchools),
		CompletionsTotal:  completions,
		OpenOpportunities: open,
		GeneratedAt:       s.now().UTC(),
	}, nil
}

func nonNilCounts(counts []models.DashboardCount) []models.DashboardCount {
	if counts == nil {
		return []models.DashboardCount{}
	}
	return counts
}
