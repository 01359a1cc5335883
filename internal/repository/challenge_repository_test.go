package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/internal/waitlist"
)

func TestCompleteChallengeCreditsPoints(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)
	cfg := waitlist.DefaultConfig()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO challenge_completions")).
		WithArgs(sqlmock.AnyArg(), "app-1", "ch-1", 15, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT points FROM applicants WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(40))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applicants SET points = $2")).
		WithArgs("app-1", 55, 945, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	completion := &models.ChallengeCompletion{ApplicantID: "app-1", ChallengeID: "ch-1", PointsAwarded: 15}
	ledger, err := repo.CompleteChallenge(context.Background(), completion, cfg.ApplyPoints)
	require.NoError(t, err)
	assert.Equal(t, 55, ledger.Total)
	assert.NotEmpty(t, completion.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteChallengeDuplicateLeavesPoints(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO challenge_completions")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: constraintCompletionUnique})
	mock.ExpectRollback()

	completion := &models.ChallengeCompletion{ApplicantID: "app-1", ChallengeID: "ch-1", PointsAwarded: 15}
	_, err := repo.CompleteChallenge(context.Background(), completion, waitlist.DefaultConfig().ApplyPoints)
	assert.ErrorIs(t, err, ErrDuplicateCompletion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteChallengeMapsForeignKeys(t *testing.T) {
	cases := []struct {
		constraint string
		want       error
	}{
		{constraintCompletionChallengeFK, ErrChallengeNotFound},
		{"challenge_completions_applicant_id_fkey", ErrApplicantNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			db, mock, cleanup := newMock(t)
			defer cleanup()
			repo := NewChallengeRepository(db)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO challenge_completions")).
				WillReturnError(&pq.Error{Code: pqForeignKeyViolation, Constraint: tc.constraint})
			mock.ExpectRollback()

			completion := &models.ChallengeCompletion{ApplicantID: "app-1", ChallengeID: "ch-1", PointsAwarded: 15}
			_, err := repo.CompleteChallenge(context.Background(), completion, waitlist.DefaultConfig().ApplyPoints)
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListBoostsMarksCompleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "description", "points", "action_url", "active", "sort_order", "created_at", "updated_at", "completed", "completed_at"}).
		AddRow("ch-1", "Follow us", "", 15, "https://example.com", true, 1, now, now, true, now).
		AddRow("ch-2", "Share a post", "", 25, "", true, 2, now, now, false, nil)
	mock.ExpectQuery("LEFT JOIN challenge_completions cc").WithArgs("app-1").WillReturnRows(rows)

	boosts, err := repo.ListBoosts(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, boosts, 2)
	assert.True(t, boosts[0].Completed)
	assert.NotNil(t, boosts[0].CompletedAt)
	assert.False(t, boosts[1].Completed)
	assert.Nil(t, boosts[1].CompletedAt)
}

func TestDeleteChallengeFallsBackToDeactivate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewChallengeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM challenges WHERE id = $1")).
		WithArgs("ch-1").
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
	mock.ExpectExec(regexp.QuoteMeta("UPDATE challenges SET active = FALSE")).
		WithArgs("ch-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deactivated, err := repo.Delete(context.Background(), "ch-1")
	require.NoError(t, err)
	assert.True(t, deactivated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
