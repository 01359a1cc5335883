package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/repository"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

type boostRepository interface {
	FindByID(ctx context.Context, id string) (*models.Challenge, error)
	ListBoosts(ctx context.Context, applicantID string) ([]models.Boost, error)
	CompleteChallenge(ctx context.Context, completion *models.ChallengeCompletion, ledger repository.LedgerFunc) (waitlist.Ledger, error)
}

// BoostService lets applicants complete challenges for points.
type BoostService struct {
	repo    boostRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	cfg     waitlist.Config
	now     func() time.Time
}

// NewBoostService constructs a BoostService.
func NewBoostService(repo boostRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg waitlist.Config) *BoostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoostService{repo: repo, cache: cache, metrics: metrics, logger: logger, cfg: cfg.Normalize(), now: time.Now}
}

// List returns active challenges flagged with the applicant's completions.
func (s *BoostService) List(ctx context.Context, applicantID string) ([]models.Boost, error) {
	boosts, err := s.repo.ListBoosts(ctx, applicantID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list boosts")
	}
	return boosts, nil
}

// Complete records a challenge completion and credits its points atomically.
func (s *BoostService) Complete(ctx context.Context, applicantID, challengeID string) (*models.BoostResult, error) {
	challenge, err := s.repo.FindByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "challenge not found")
		}
		return nil, appErrors.Internal(err, "failed to load challenge")
	}
	if !challenge.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "challenge not found")
	}

	completion := &models.ChallengeCompletion{
		ID:            uuid.NewString(),
		ApplicantID:   applicantID,
		ChallengeID:   challenge.ID,
		PointsAwarded: challenge.Points,
		CompletedAt:   s.now().UTC(),
	}
	ledger, err := s.repo.CompleteChallenge(ctx, completion, s.cfg.ApplyPoints)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateCompletion):
			return nil, appErrors.Clone(appErrors.ErrAlreadyCompleted, "")
		case errors.Is(err, repository.ErrApplicantNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant not found")
		case errors.Is(err, repository.ErrChallengeNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "challenge not found")
		default:
			return nil, appErrors.Internal(err, "failed to record completion")
		}
	}

	s.metrics.RecordCompletion()
	s.metrics.RecordPoints("challenge", challenge.Points)
	_ = s.cache.Invalidate(ctx, leaderboardCachePattern, dashboardCachePattern)
	s.logger.Info("challenge completed",
		zap.String("applicant_id", applicantID),
		zap.String("challenge_id", challenge.ID),
		zap.Int("points", ledger.Total),
		zap.Int("waitlist_position", ledger.Position),
	)

	return &models.BoostResult{
		ChallengeID:      challenge.ID,
		PointsAwarded:    challenge.Points,
		Points:           ledger.Total,
		WaitlistPosition: ledger.Position,
	}, nil
}
