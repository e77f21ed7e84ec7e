package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/models"
)

const periodColumns = `id, academy_id, name, description, open_datetime, close_datetime, default_capacity,
slot_interval_minutes, max_weekly_hours, is_active, last_submission_order, created_at, updated_at`

// PeriodRepository persists registration periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs the repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// FindByID returns the period or sql.ErrNoRows.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.Period, error) {
	const query = `SELECT ` + periodColumns + ` FROM course_periods WHERE id = $1`
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, fmt.Errorf("get period: %w", err)
	}
	return &period, nil
}

// ListByAcademy returns the academy's periods, newest opening first.
func (r *PeriodRepository) ListByAcademy(ctx context.Context, academyID string) ([]models.Period, error) {
	const query = `SELECT ` + periodColumns + ` FROM course_periods WHERE academy_id = $1 ORDER BY open_datetime DESC, created_at DESC`
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query, academyID); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// Create inserts a period, assigning its ID and timestamps.
func (r *PeriodRepository) Create(ctx context.Context, period *models.Period) error {
	now := time.Now().UTC()
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	period.CreatedAt = now
	period.UpdatedAt = now
	period.LastSubmissionOrder = 0

	const query = `
INSERT INTO course_periods (id, academy_id, name, description, open_datetime, close_datetime, default_capacity,
	slot_interval_minutes, max_weekly_hours, is_active, last_submission_order, created_at, updated_at)
VALUES (:id, :academy_id, :name, :description, :open_datetime, :close_datetime, :default_capacity,
	:slot_interval_minutes, :max_weekly_hours, :is_active, :last_submission_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}

// Update rewrites the editable fields of a period within its academy.
func (r *PeriodRepository) Update(ctx context.Context, period *models.Period) error {
	period.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE course_periods SET
	name = :name,
	description = :description,
	open_datetime = :open_datetime,
	close_datetime = :close_datetime,
	default_capacity = :default_capacity,
	slot_interval_minutes = :slot_interval_minutes,
	max_weekly_hours = :max_weekly_hours,
	is_active = :is_active,
	updated_at = :updated_at
WHERE id = :id AND academy_id = :academy_id`
	res, err := r.db.NamedExecContext(ctx, query, period)
	if err != nil {
		return fmt.Errorf("update period: %w", err)
	}
	return expectAffected(res, "update period")
}

// SetActive toggles whether the period accepts registrations.
func (r *PeriodRepository) SetActive(ctx context.Context, id, academyID string, active bool) error {
	const query = `UPDATE course_periods SET is_active = $3, updated_at = $4 WHERE id = $1 AND academy_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, academyID, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set period active: %w", err)
	}
	return expectAffected(res, "set period active")
}

// Delete removes a period; slots and registrations cascade.
func (r *PeriodRepository) Delete(ctx context.Context, id, academyID string) error {
	const query = `DELETE FROM course_periods WHERE id = $1 AND academy_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, academyID)
	if err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	return expectAffected(res, "delete period")
}

func expectAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}
