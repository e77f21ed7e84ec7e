package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-registration-api/internal/models"
)

const registrationColumns = `id, period_id, academy_id, submission_order, submitted_at, updated_at, cancelled_at,
student_name, school_name, grade, guardian_phone, selected_slot_ids, status`

// RegistrationRepository is the registration ledger. Reads live here; the mutating
// procedures are in procedures.go.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// List returns registrations of a period in submission order with the total count.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	where := strings.Builder{}
	where.WriteString(" WHERE period_id = $1")
	args := []interface{}{filter.PeriodID}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		fmt.Fprintf(&where, " AND status = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM course_registrations`+where.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT %s FROM course_registrations%s ORDER BY submission_order ASC LIMIT $%d OFFSET $%d`,
		registrationColumns, where.String(), len(args)-1, len(args))

	var registrations []models.Registration
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	return registrations, total, nil
}

// FindByID returns a registration or sql.ErrNoRows.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	const query = `SELECT ` + registrationColumns + ` FROM course_registrations WHERE id = $1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &registration, nil
}

// FindActiveByPhone returns the non-cancelled registration for (period, phone), or nil.
func (r *RegistrationRepository) FindActiveByPhone(ctx context.Context, periodID, phone string) (*models.Registration, error) {
	const query = `SELECT ` + registrationColumns + ` FROM course_registrations
WHERE period_id = $1 AND guardian_phone = $2 AND status <> 'cancelled'`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, periodID, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration by phone: %w", err)
	}
	return &registration, nil
}

// ListActiveByPeriod returns every non-cancelled registration in submission order.
func (r *RegistrationRepository) ListActiveByPeriod(ctx context.Context, periodID string) ([]models.Registration, error) {
	const query = `SELECT ` + registrationColumns + ` FROM course_registrations
WHERE period_id = $1 AND status <> 'cancelled' ORDER BY submission_order ASC`
	var registrations []models.Registration
	if err := r.db.SelectContext(ctx, &registrations, query, periodID); err != nil {
		return nil, fmt.Errorf("list active registrations: %w", err)
	}
	return registrations, nil
}
