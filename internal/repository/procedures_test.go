package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/models"
)

const (
	testPeriodID  = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	testAcademyID = "academy-1"
	testRegID     = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
	slotA         = "11111111-1111-4111-8111-111111111111"
	slotB         = "22222222-2222-4222-8222-222222222222"
	slotC         = "33333333-3333-4333-8333-333333333333"
	testPhone     = "010-1111-1111"
)

var (
	periodCols = []string{"id", "academy_id", "name", "description", "open_datetime", "close_datetime", "default_capacity",
		"slot_interval_minutes", "max_weekly_hours", "is_active", "last_submission_order", "created_at", "updated_at"}
	slotCols = []string{"id", "period_id", "day_of_week", "start_time", "end_time", "capacity", "current_count", "created_at", "updated_at"}
	regCols  = []string{"id", "period_id", "academy_id", "submission_order", "submitted_at", "updated_at", "cancelled_at",
		"student_name", "school_name", "grade", "guardian_phone", "selected_slot_ids", "status"}
)

func newRegistrationRepoMock(t *testing.T) (*RegistrationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewRegistrationRepository(sqlxDB), mock, func() { _ = sqlxDB.Close() }
}

func openPeriodRows(now time.Time, maxHours int, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(periodCols).
		AddRow(testPeriodID, testAcademyID, "Spring intake", nil, now.Add(-time.Hour), nil, 5, 30, maxHours, active, 3, now, now)
}

func slotRow(rows *sqlmock.Rows, id, day, start, end string, capacity, count int, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, testPeriodID, day, start, end, capacity, count, now, now)
}

func submitParams(now time.Time, slots ...string) SubmitParams {
	return SubmitParams{
		PeriodID:      testPeriodID,
		AcademyID:     testAcademyID,
		Student:       models.Student{Name: "Kim Minjun", School: "Hanbit Elementary", Grade: 3},
		GuardianPhone: testPhone,
		SlotIDs:       slots,
		Status:        models.RegistrationPending,
		Now:           now,
	}
}

func TestSubmitClaimsSeatsAndAllocatesOrder(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ids := []string{slotB, slotA}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_periods WHERE id = $1 FOR UPDATE")).
		WithArgs(testPeriodID).
		WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_registrations")).
		WithArgs(testPeriodID, testPhone).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	slots := sqlmock.NewRows(slotCols)
	slotRow(slots, slotA, "mon", "09:00", "09:30", 5, 0, now)
	slotRow(slots, slotB, "tue", "09:00", "09:30", 5, 4, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_time_slots\nWHERE period_id = $1 AND id = ANY($2::uuid[]) ORDER BY id FOR UPDATE")).
		WithArgs(testPeriodID, pq.Array(ids)).
		WillReturnRows(slots)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_time_slots SET current_count = current_count + 1")).
		WithArgs(sqlmock.AnyArg(), pq.Array(ids)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE course_periods SET last_submission_order = last_submission_order + 1")).
		WithArgs(testPeriodID).
		WillReturnRows(sqlmock.NewRows([]string{"last_submission_order"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_registrations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Submit(context.Background(), submitParams(now, ids...))
	require.NoError(t, err)
	require.True(t, result.OK())
	assert.Equal(t, 4, result.Registration.SubmissionOrder)
	assert.Equal(t, []string{slotB, slotA}, []string(result.Registration.SelectedSlotIDs))
	assert.Equal(t, models.RegistrationPending, result.Registration.Status)
	require.Len(t, result.Slots, 2)
	assert.Equal(t, 1, result.Slots[0].CurrentCount)
	assert.Equal(t, 5, result.Slots[1].CurrentCount)
	assert.True(t, result.Slots[1].IsFull())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectsFullSlotsInRequestOrder(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ids := []string{slotC, slotA, slotB}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_periods WHERE id = $1 FOR UPDATE")).
		WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_registrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	slots := sqlmock.NewRows(slotCols)
	slotRow(slots, slotA, "mon", "09:00", "09:30", 2, 2, now)
	slotRow(slots, slotB, "mon", "09:30", "10:00", 2, 1, now)
	slotRow(slots, slotC, "tue", "09:00", "09:30", 1, 1, now)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).WillReturnRows(slots)
	mock.ExpectRollback()

	result, err := repo.Submit(context.Background(), submitParams(now, ids...))
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureSlotsFull, result.Code)
	assert.Equal(t, []string{slotC, slotA}, result.FullSlots)
	assert.Nil(t, result.Registration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectsDuplicatePhone(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_registrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testRegID))
	mock.ExpectRollback()

	result, err := repo.Submit(context.Background(), submitParams(now, slotA))
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureDuplicatePhone, result.Code)
	assert.Contains(t, result.Message, "use edit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitChecksHourCapBeforeTouchingSlots(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	// 30 minute slots with a 1 hour cap: three slots is over.
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(openPeriodRows(now, 1, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_registrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	result, err := repo.Submit(context.Background(), submitParams(now, slotA, slotB, slotC))
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureCapacityExceeded, result.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectsUnknownSlots(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_registrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
		WillReturnRows(slotRow(sqlmock.NewRows(slotCols), slotA, "mon", "09:00", "09:30", 5, 0, now))
	mock.ExpectRollback()

	result, err := repo.Submit(context.Background(), submitParams(now, slotA, slotB))
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureValidation, result.Code)
	assert.Contains(t, result.Message, slotB)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectsClosedAndMissingPeriods(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("inactive", func(t *testing.T) {
		repo, mock, cleanup := newRegistrationRepoMock(t)
		defer cleanup()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(openPeriodRows(now, 5, false))
		mock.ExpectRollback()

		result, err := repo.Submit(context.Background(), submitParams(now, slotA))
		require.NoError(t, err)
		assert.Equal(t, models.ProcedurePeriodNotOpen, result.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, cleanup := newRegistrationRepoMock(t)
		defer cleanup()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		result, err := repo.Submit(context.Background(), submitParams(now, slotA))
		require.NoError(t, err)
		assert.Equal(t, models.ProcedureNotFound, result.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other academy", func(t *testing.T) {
		repo, mock, cleanup := newRegistrationRepoMock(t)
		defer cleanup()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(openPeriodRows(now, 5, true))
		mock.ExpectRollback()

		params := submitParams(now, slotA)
		params.AcademyID = "academy-2"
		result, err := repo.Submit(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, models.ProcedureNotFound, result.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSubmitValidatesSlotListWithoutTransaction(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Now()

	for _, ids := range [][]string{nil, {slotA, slotA}, {"not-a-uuid"}} {
		result, err := repo.Submit(context.Background(), submitParams(now, ids...))
		require.NoError(t, err)
		assert.Equal(t, models.ProcedureValidation, result.Code)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitMapsUniqueViolationToDuplicatePhone(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_registrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
		WillReturnRows(slotRow(sqlmock.NewRows(slotCols), slotA, "mon", "09:00", "09:30", 5, 0, now))
	mock.ExpectExec(regexp.QuoteMeta("current_count = current_count + 1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING last_submission_order")).
		WillReturnRows(sqlmock.NewRows([]string{"last_submission_order"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_registrations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_course_registrations_active_phone"})
	mock.ExpectRollback()

	result, err := repo.Submit(context.Background(), submitParams(now, slotA))
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureDuplicatePhone, result.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitBackendFailureRollsBack(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(boom)
	mock.ExpectRollback()

	result, err := repo.Submit(context.Background(), submitParams(now, slotA))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func registrationRows(now time.Time, status string, slots string) *sqlmock.Rows {
	return sqlmock.NewRows(regCols).
		AddRow(testRegID, testPeriodID, testAcademyID, 2, now, now, nil, "Kim Minjun", "Hanbit Elementary", 3, testPhone, slots, status)
}

func TestCancelReleasesSeats(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	claimed := []string{slotA, slotB}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period_id FROM course_registrations")).
		WithArgs(testRegID, testAcademyID).
		WillReturnRows(sqlmock.NewRows([]string{"period_id"}).AddRow(testPeriodID))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_periods WHERE id = $1 FOR UPDATE")).
		WithArgs(testPeriodID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testPeriodID))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND academy_id = $2 AND status <> 'cancelled' FOR UPDATE")).
		WithArgs(testRegID, testAcademyID).
		WillReturnRows(registrationRows(now, "pending", "{"+slotA+","+slotB+"}"))
	slots := sqlmock.NewRows(slotCols)
	slotRow(slots, slotA, "mon", "09:00", "09:30", 5, 3, now)
	slotRow(slots, slotB, "mon", "09:30", "10:00", 5, 1, now)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
		WithArgs(testPeriodID, pq.Array(claimed)).
		WillReturnRows(slots)
	mock.ExpectExec(regexp.QuoteMeta("GREATEST(current_count - 1, 0)")).
		WithArgs(now, pq.Array(claimed)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_registrations SET status = 'cancelled'")).
		WithArgs(testRegID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Cancel(context.Background(), testRegID, testAcademyID, now)
	require.NoError(t, err)
	require.True(t, result.OK())
	assert.Equal(t, models.RegistrationCancelled, result.Registration.Status)
	require.Len(t, result.Slots, 2)
	assert.Equal(t, 2, result.Slots[0].CurrentCount)
	assert.Equal(t, 0, result.Slots[1].CurrentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelTwiceIsNotFound(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period_id FROM course_registrations")).
		WithArgs(testRegID, testAcademyID).
		WillReturnRows(sqlmock.NewRows([]string{"period_id"}))
	mock.ExpectRollback()

	result, err := repo.Cancel(context.Background(), testRegID, testAcademyID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureNotFound, result.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelLosingRaceToAnotherCancelIsNotFound(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period_id FROM course_registrations")).
		WillReturnRows(sqlmock.NewRows([]string{"period_id"}).AddRow(testPeriodID))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_periods WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testPeriodID))
	mock.ExpectQuery(regexp.QuoteMeta("status <> 'cancelled' FOR UPDATE")).
		WithArgs(testRegID, testAcademyID).
		WillReturnRows(sqlmock.NewRows(regCols))
	mock.ExpectRollback()

	result, err := repo.Cancel(context.Background(), testRegID, testAcademyID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureNotFound, result.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMalformedIDsAreNotFoundWithoutQuerying(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	result, err := repo.Cancel(context.Background(), "not-a-uuid", testAcademyID, now)
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureNotFound, result.Code)

	params := submitParams(now, slotA)
	params.PeriodID = "42"
	result, err = repo.Submit(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureNotFound, result.Code)

	result, err = repo.Update(context.Background(), UpdateParams{PeriodID: "abc", GuardianPhone: testPhone, SlotIDs: []string{slotA}, Now: now})
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureNotFound, result.Code)

	_, err = repo.ResetPeriod(context.Background(), "abc", testAcademyID, now)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMovesSeats(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_periods WHERE id = $1 FOR UPDATE")).
		WithArgs(testPeriodID).
		WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE period_id = $1 AND guardian_phone = $2 AND status <> 'cancelled' FOR UPDATE")).
		WithArgs(testPeriodID, testPhone).
		WillReturnRows(registrationRows(now, "pending", "{"+slotA+","+slotB+"}"))
	// keep A, drop B, add C. C is the only slot that must have room.
	slots := sqlmock.NewRows(slotCols)
	slotRow(slots, slotB, "mon", "09:30", "10:00", 2, 2, now)
	slotRow(slots, slotC, "tue", "09:00", "09:30", 2, 1, now)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
		WithArgs(testPeriodID, pq.Array([]string{slotB, slotC})).
		WillReturnRows(slots)
	mock.ExpectExec(regexp.QuoteMeta("GREATEST(current_count - 1, 0)")).
		WithArgs(now, pq.Array([]string{slotB})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("current_count = current_count + 1")).
		WithArgs(now, pq.Array([]string{slotC})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_registrations SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Update(context.Background(), UpdateParams{
		PeriodID:      testPeriodID,
		AcademyID:     testAcademyID,
		Student:       models.Student{Name: "Kim Minjun", School: "Hanbit Elementary", Grade: 4},
		GuardianPhone: testPhone,
		SlotIDs:       []string{slotA, slotC},
		Now:           now,
	})
	require.NoError(t, err)
	require.True(t, result.OK())
	assert.Equal(t, []string{slotA, slotC}, []string(result.Registration.SelectedSlotIDs))
	assert.Equal(t, 4, result.Registration.Grade)
	require.Len(t, result.Slots, 2)
	assert.Equal(t, 1, result.Slots[0].CurrentCount)
	assert.Equal(t, 2, result.Slots[1].CurrentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateKeepsOwnFullSlotsAndRejectsNewFullOnes(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_periods WHERE id = $1")).WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("guardian_phone = $2 AND status <> 'cancelled' FOR UPDATE")).
		WillReturnRows(registrationRows(now, "pending", "{"+slotA+"}"))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
		WithArgs(testPeriodID, pq.Array([]string{slotB})).
		WillReturnRows(slotRow(sqlmock.NewRows(slotCols), slotB, "mon", "09:30", "10:00", 1, 1, now))
	mock.ExpectRollback()

	result, err := repo.Update(context.Background(), UpdateParams{
		PeriodID:      testPeriodID,
		GuardianPhone: testPhone,
		Student:       models.Student{Name: "Kim Minjun", School: "Hanbit Elementary", Grade: 3},
		SlotIDs:       []string{slotA, slotB},
		Now:           now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureSlotsFull, result.Code)
	assert.Equal(t, []string{slotB}, result.FullSlots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithoutRegistrationIsNotFound(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_periods WHERE id = $1")).WillReturnRows(openPeriodRows(now, 5, true))
	mock.ExpectQuery(regexp.QuoteMeta("guardian_phone = $2 AND status <> 'cancelled' FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(regCols))
	mock.ExpectRollback()

	result, err := repo.Update(context.Background(), UpdateParams{PeriodID: testPeriodID, GuardianPhone: testPhone, SlotIDs: []string{slotA}, Now: now})
	require.NoError(t, err)
	assert.Equal(t, models.ProcedureNotFound, result.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPeriod(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM course_periods WHERE id = $1 AND academy_id = $2 FOR UPDATE")).
		WithArgs(testPeriodID, testAcademyID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testPeriodID))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_registrations SET status = 'cancelled'")).
		WithArgs(testPeriodID, now).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE course_time_slots SET current_count = 0")).
		WithArgs(testPeriodID, now).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectCommit()

	cancelled, err := repo.ResetPeriod(context.Background(), testPeriodID, testAcademyID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 7, cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPeriodOfOtherAcademy(t *testing.T) {
	repo, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.ResetPeriod(context.Background(), testPeriodID, "academy-2", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderedSubset(t *testing.T) {
	assert.Equal(t, []string{"c", "a"}, orderedSubset([]string{"c", "b", "a"}, []string{"a", "c"}))
	assert.Nil(t, orderedSubset([]string{"a"}, nil))
}
