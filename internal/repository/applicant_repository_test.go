package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
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

var applicantColumnNames = []string{"id", "school_id", "first_name", "last_name", "email", "phone", "age_eligible", "instagram_handle", "tiktok_handle",
	"follower_count", "personality_type", "interests", "scenes", "household_size", "content_uploaded", "content_urls", "ambassador_type",
	"score", "points", "waitlist_position", "referral_code", "referred_by", "status", "created_at", "updated_at"}

func applicantRow(id, code string, points int) []driver.Value {
	now := time.Now()
	return []driver.Value{id, "school-1", "Maya", "Lopez", "maya@example.com", "", true, "@maya", "", 1200, "creator",
		"{music,art}", "{}", 3, true, "{}", "Creator", 50, points, 1000 - points, code, nil, "new", now, now}
}

func TestApplicantApplyPointsLocksAndWrites(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)
	cfg := waitlist.DefaultConfig()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT points FROM applicants WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(40))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applicants SET points = $2, waitlist_position = $3")).
		WithArgs("app-1", 55, 945, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ledger, err := repo.ApplyPoints(context.Background(), "app-1", 15, cfg.ApplyPoints)
	require.NoError(t, err)
	assert.Equal(t, waitlist.Ledger{Total: 55, Position: 945}, ledger)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicantApplyPointsMissingApplicant(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT points FROM applicants WHERE id = $1 FOR UPDATE")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ApplyPoints(context.Background(), "ghost", 5, waitlist.DefaultConfig().ApplyPoints)
	assert.ErrorIs(t, err, ErrApplicantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicantApplyPointsRejectsNegativeDelta(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT points FROM applicants")).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(40))
	mock.ExpectRollback()

	_, err := repo.ApplyPoints(context.Background(), "app-1", -5, waitlist.DefaultConfig().ApplyPoints)
	assert.ErrorIs(t, err, waitlist.ErrNegativeDelta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicantCreateIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	mock.ExpectExec("INSERT INTO applicants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO applicants").WillReturnResult(sqlmock.NewResult(0, 0))

	applicant := &models.Applicant{ID: "app-1", FirstName: "Maya", Email: "maya@example.com", ReferralCode: "ABCDEFGH", Status: models.ApplicantStatusNew}
	created, err := repo.Create(context.Background(), applicant)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(context.Background(), applicant)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicantCreateReferralCollision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	mock.ExpectExec("INSERT INTO applicants").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: constraintReferralCodeUnique})

	_, err := repo.Create(context.Background(), &models.Applicant{FirstName: "Maya", ReferralCode: "ABCDEFGH"})
	assert.True(t, errors.Is(err, ErrDuplicateReferralCode))
}

func TestApplicantRecalculatePoints(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)
	cfg := waitlist.DefaultConfig()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT score, referral_code FROM applicants WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"score", "referral_code"}).AddRow(57, "ABCDEFGH"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(points_awarded), 0) FROM challenge_completions")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applicants WHERE referred_by = $1")).
		WithArgs("ABCDEFGH").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applicants SET points = $2")).
		WithArgs("app-1", 107, 893, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ledger, err := repo.RecalculatePoints(context.Background(), "app-1", 10, cfg.Position)
	require.NoError(t, err)
	assert.Equal(t, 107, ledger.Total)
	assert.Equal(t, 893, ledger.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicantListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	status := models.ApplicantStatusNew
	cols := append(append([]string{}, applicantColumnNames...), "school_name")
	row := append(applicantRow("app-1", "ABCDEFGH", 50), "Central High")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND a.status = $1 AND a.school_id = $2 ORDER BY a.points ASC LIMIT 10 OFFSET 10")).
		WithArgs(status, "school-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(row...))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applicants a LEFT JOIN schools s ON s.id = a.school_id WHERE 1=1 AND a.status = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), models.ApplicantFilter{
		Status: &status, SchoolID: "school-1", Page: 2, PageSize: 10, SortBy: "points", SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, "Central High", *items[0].SchoolName)
	assert.Equal(t, []string{"music", "art"}, []string(items[0].Interests))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicantUpdateStatusReturnsChanged(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE applicants SET status = ?")).
		WithArgs(models.ApplicantStatusAccepted, sqlmock.AnyArg(), "a", "b", models.ApplicantStatusAccepted).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a"))

	changed, err := repo.UpdateStatus(context.Background(), []string{"a", "b"}, models.ApplicantStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicantOverridePositionMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE applicants SET waitlist_position = $2")).
		WithArgs("ghost", 5, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.OverridePosition(context.Background(), "ghost", 5)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestApplicantLeaderboardRanks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	rows := sqlmock.NewRows([]string{"id", "display_name", "school_name", "points", "waitlist_position"}).
		AddRow("a", "Maya L", "Central", 90, 910).
		AddRow("b", "Jon P", "North", 70, 930)
	mock.ExpectQuery("FROM applicants a LEFT JOIN schools").
		WithArgs(models.ApplicantStatusRejected, 25).
		WillReturnRows(rows)

	entries, err := repo.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "b", entries[1].ApplicantID)
}

func TestApplicantDeleteMany(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicantRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM challenge_completions").WithArgs("a", "b").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM opportunity_applications").WithArgs("a", "b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM applicants").WithArgs("a", "b").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, err := repo.DeleteMany(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
