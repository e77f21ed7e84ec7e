package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/models"
)

func newPeriodRepoMock(t *testing.T) (*PeriodRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewPeriodRepository(sqlxDB), mock, func() { _ = sqlxDB.Close() }
}

func TestPeriodRepositoryFindByID(t *testing.T) {
	repo, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM course_periods WHERE id = $1")).
		WithArgs(testPeriodID).
		WillReturnRows(openPeriodRows(now, 5, true))

	period, err := repo.FindByID(context.Background(), testPeriodID)
	require.NoError(t, err)
	assert.Equal(t, "Spring intake", period.Name)
	assert.Nil(t, period.Description)
	assert.Equal(t, models.PeriodStateOpen, period.StateAt(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepositoryCreateAssignsIdentity(t *testing.T) {
	repo, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_periods")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	period := &models.Period{AcademyID: testAcademyID, Name: "Summer", DefaultCapacity: 5, SlotIntervalMinutes: 30, MaxWeeklyHours: 5}
	require.NoError(t, repo.Create(context.Background(), period))
	assert.NotEmpty(t, period.ID)
	assert.False(t, period.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepositoryUpdateScopedToAcademy(t *testing.T) {
	repo, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $10 AND academy_id = $11")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Period{ID: testPeriodID, AcademyID: "other"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepositorySetActiveAndDelete(t *testing.T) {
	repo, mock, cleanup := newPeriodRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_periods SET is_active = $3")).
		WithArgs(testPeriodID, testAcademyID, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_periods")).
		WithArgs(testPeriodID, testAcademyID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetActive(context.Background(), testPeriodID, testAcademyID, false))
	err := repo.Delete(context.Background(), testPeriodID, testAcademyID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
