package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

const (
	leaderboardCachePattern = "leaderboard:*"
	dashboardCachePattern   = "dash:*"
)

type leaderboardRepository interface {
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// LeaderboardService serves the portal leaderboard from cache when possible.
type LeaderboardService struct {
	repo  leaderboardRepository
	cache *CacheService
	size  int
	ttl   time.Duration
}

// NewLeaderboardService constructs a LeaderboardService.
func NewLeaderboardService(repo leaderboardRepository, cache *CacheService, size int, ttl time.Duration) *LeaderboardService {
	if size <= 0 {
		size = 25
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LeaderboardService{repo: repo, cache: cache, size: size, ttl: ttl}
}

// Top returns the ranked leaderboard and whether it came from cache.
func (s *LeaderboardService) Top(ctx context.Context) ([]models.LeaderboardEntry, bool, error) {
	key := fmt.Sprintf("leaderboard:top:%d", s.size)
	return remember(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.LeaderboardEntry, error) {
		entries, err := s.repo.Leaderboard(ctx, s.size)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load leaderboard")
		}
		if entries == nil {
			entries = []models.LeaderboardEntry{}
		}
		return entries, nil
	})
}
