package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ambassador-api/internal/models"
)

func TestSchoolListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	active := true
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM schools WHERE 1=1 AND active = $1 AND LOWER(name) LIKE $2 ORDER BY name ASC LIMIT 50 OFFSET 0")).
		WithArgs(true, "%central%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "city", "state", "active", "created_at", "updated_at"}).
			AddRow("s-1", "Central High", "Austin", "TX", true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schools WHERE 1=1 AND active = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.SchoolFilter{Active: &active, Search: "Central"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolDeleteInUse(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSchoolRepository(db)

	mock.ExpectExec("DELETE FROM schools").WithArgs("s-1").WillReturnError(&pq.Error{Code: pqForeignKeyViolation})
	assert.ErrorIs(t, repo.Delete(context.Background(), "s-1"), ErrSchoolInUse)

	mock.ExpectExec("DELETE FROM schools").WithArgs("s-2").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "s-2"), sql.ErrNoRows)
}

func TestAmbassadorTypeListActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAmbassadorTypeRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM ambassador_types WHERE active = TRUE ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "weight", "active", "created_at", "updated_at"}).
			AddRow("t-1", "Creator", "", 50.0, true, now, now).
			AddRow("t-2", "Connector", "", 30.0, true, now, now))

	types, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, 50.0, types[0].Weight)
}

func TestAmbassadorTypeCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAmbassadorTypeRepository(db)

	mock.ExpectExec("INSERT INTO ambassador_types").WillReturnError(&pq.Error{Code: pqUniqueViolation})
	err := repo.Create(context.Background(), &models.AmbassadorType{Name: "Creator", Weight: 1})
	assert.ErrorIs(t, err, ErrDuplicateAmbassadorType)
}
