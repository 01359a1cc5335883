package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheRepository(client, "amb", zap.NewNop()), mr
}

func TestCacheRoundTripAndExpiry(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	entries := []models.LeaderboardEntry{{Rank: 1, ApplicantID: "a", DisplayName: "Maya L", Points: 90}}
	require.NoError(t, repo.Set(ctx, "leaderboard:25", entries, time.Minute))
	assert.True(t, mr.Exists("amb:leaderboard:25"))

	var got []models.LeaderboardEntry
	require.NoError(t, repo.Get(ctx, "leaderboard:25", &got))
	assert.Equal(t, entries, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "leaderboard:25", &got), appErrors.ErrCacheMiss)
}

func TestCacheUndecodableEntryIsMiss(t *testing.T) {
	repo, mr := newCacheRepo(t)
	require.NoError(t, mr.Set("amb:dash:summary", "{not json"))

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(context.Background(), "dash:summary", &dest), appErrors.ErrCacheMiss)
}

func TestCacheDeleteByPatternStaysInNamespace(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	for i := 0; i < scanBatch+5; i++ {
		require.NoError(t, repo.Set(ctx, fmt.Sprintf("dash:%d", i), i, time.Minute))
	}
	require.NoError(t, repo.Set(ctx, "leaderboard:25", []int{1}, time.Minute))
	require.NoError(t, mr.Set("other:dash:1", "x"))

	require.NoError(t, repo.DeleteByPattern(ctx, "dash:*"))
	assert.False(t, mr.Exists("amb:dash:0"))
	assert.False(t, mr.Exists(fmt.Sprintf("amb:dash:%d", scanBatch+4)))
	assert.True(t, mr.Exists("amb:leaderboard:25"))
	assert.True(t, mr.Exists("other:dash:1"))
}

func TestCacheNilClientIsMiss(t *testing.T) {
	repo := NewCacheRepository(nil, "", nil)
	var dest map[string]int
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Second))
	assert.NoError(t, repo.Ping(context.Background()))
}
