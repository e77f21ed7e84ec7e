package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// Lock order shared by every procedure and by slot deletion: period row, then
// registration row, then slot rows in ascending id order. Every writer of seat counts
// or claim lists takes the period row first, so writers of one period run one at a time.
const (
	lockPeriodQuery   = `SELECT ` + periodColumns + ` FROM course_periods WHERE id = $1 FOR UPDATE`
	lockPeriodIDQuery = `SELECT id FROM course_periods WHERE id = $1 FOR UPDATE`
	lockSlotsQuery    = `SELECT ` + slotColumns + ` FROM course_time_slots
WHERE period_id = $1 AND id = ANY($2::uuid[]) ORDER BY id FOR UPDATE`
	activeIDByPhoneQuery = `SELECT id FROM course_registrations
WHERE period_id = $1 AND guardian_phone = $2 AND status <> 'cancelled' LIMIT 1`
	lockRegistrationByPhoneQuery = `SELECT ` + registrationColumns + ` FROM course_registrations
WHERE period_id = $1 AND guardian_phone = $2 AND status <> 'cancelled' FOR UPDATE`
	activePeriodOfRegistrationQuery = `SELECT period_id FROM course_registrations
WHERE id = $1 AND academy_id = $2 AND status <> 'cancelled'`
	lockRegistrationByIDQuery = `SELECT ` + registrationColumns + ` FROM course_registrations
WHERE id = $1 AND academy_id = $2 AND status <> 'cancelled' FOR UPDATE`
	incrementSlotsQuery = `UPDATE course_time_slots SET current_count = current_count + 1, updated_at = $1
WHERE id = ANY($2::uuid[])`
	decrementSlotsQuery = `UPDATE course_time_slots SET current_count = GREATEST(current_count - 1, 0), updated_at = $1
WHERE id = ANY($2::uuid[])`
	nextSubmissionOrderQuery = `UPDATE course_periods SET last_submission_order = last_submission_order + 1
WHERE id = $1 RETURNING last_submission_order`
	insertRegistrationQuery = `
INSERT INTO course_registrations (id, period_id, academy_id, submission_order, submitted_at, updated_at,
	student_name, school_name, grade, guardian_phone, selected_slot_ids, status)
VALUES (:id, :period_id, :academy_id, :submission_order, :submitted_at, :updated_at,
	:student_name, :school_name, :grade, :guardian_phone, :selected_slot_ids, :status)`
	updateRegistrationQuery = `
UPDATE course_registrations SET
	student_name = :student_name,
	school_name = :school_name,
	grade = :grade,
	selected_slot_ids = :selected_slot_ids,
	updated_at = :updated_at
WHERE id = :id`
	cancelRegistrationQuery = `UPDATE course_registrations SET status = 'cancelled', cancelled_at = $2, updated_at = $2
WHERE id = $1`
)

const (
	duplicatePhoneMessage = "this phone number is already registered for the period; use edit to change slots"
	periodNotFoundMessage = "registration period not found"
	registrationNotFound  = "registration not found or already cancelled"
)

// SubmitParams is the input of the atomic registration procedure.
type SubmitParams struct {
	PeriodID string
	// AcademyID, when set, must own the period.
	AcademyID     string
	Student       models.Student
	GuardianPhone string
	SlotIDs       []string
	Status        models.RegistrationStatus
	Now           time.Time
}

// UpdateParams is the input of the edit path. The registration is found by phone.
type UpdateParams struct {
	PeriodID      string
	AcademyID     string
	Student       models.Student
	GuardianPhone string
	SlotIDs       []string
	Now           time.Time
}

// Submit claims one seat in every requested slot and records the registration, or
// changes nothing. Checks run in a fixed order: period, duplicate phone, weekly hour cap
// (before any slot is read), slot existence, slot capacity.
func (r *RegistrationRepository) Submit(ctx context.Context, params SubmitParams) (*models.ProcedureResult, error) {
	if !validID(params.PeriodID) {
		return models.Reject(models.ProcedureNotFound, periodNotFoundMessage), nil
	}
	if reason := checkSlotIDs(params.SlotIDs); reason != "" {
		return models.Reject(models.ProcedureValidation, reason), nil
	}

	return r.inTx(ctx, "submit registration", func(tx *sqlx.Tx) (*models.ProcedureResult, error) {
		period, rejected, err := loadOpenPeriod(ctx, tx, lockPeriodQuery, params.PeriodID, params.AcademyID, params.Now)
		if err != nil || rejected != nil {
			return rejected, err
		}

		var existingID string
		err = tx.GetContext(ctx, &existingID, activeIDByPhoneQuery, period.ID, params.GuardianPhone)
		switch {
		case err == nil:
			return models.Reject(models.ProcedureDuplicatePhone, duplicatePhoneMessage), nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("check duplicate phone: %w", err)
		}

		if !period.WithinHourCap(len(params.SlotIDs)) {
			return capacityExceeded(period, len(params.SlotIDs)), nil
		}

		slots, err := lockSlots(ctx, tx, period.ID, params.SlotIDs)
		if err != nil {
			return nil, err
		}
		if missing := missingSlots(params.SlotIDs, slots); len(missing) > 0 {
			return models.Reject(models.ProcedureValidation, "unknown slots: "+strings.Join(missing, ", ")), nil
		}
		if full := fullSlots(params.SlotIDs, slots); len(full) > 0 {
			return slotsFull(full), nil
		}

		if _, err := tx.ExecContext(ctx, incrementSlotsQuery, params.Now, pq.Array(params.SlotIDs)); err != nil {
			return nil, fmt.Errorf("claim slots: %w", err)
		}

		var order int
		if err := tx.GetContext(ctx, &order, nextSubmissionOrderQuery, period.ID); err != nil {
			return nil, fmt.Errorf("allocate submission order: %w", err)
		}

		registration := &models.Registration{
			ID:              uuid.NewString(),
			PeriodID:        period.ID,
			AcademyID:       period.AcademyID,
			SubmissionOrder: order,
			SubmittedAt:     params.Now,
			UpdatedAt:       params.Now,
			StudentName:     params.Student.Name,
			SchoolName:      params.Student.School,
			Grade:           params.Student.Grade,
			GuardianPhone:   params.GuardianPhone,
			SelectedSlotIDs: pq.StringArray(append([]string(nil), params.SlotIDs...)),
			Status:          params.Status,
		}
		if _, err := tx.NamedExecContext(ctx, insertRegistrationQuery, registration); err != nil {
			if isUniqueViolation(err) {
				return models.Reject(models.ProcedureDuplicatePhone, duplicatePhoneMessage), nil
			}
			return nil, fmt.Errorf("insert registration: %w", err)
		}

		return &models.ProcedureResult{
			Registration: registration,
			Slots:        adjustCounts(slots, params.SlotIDs, nil, params.Now),
		}, nil
	})
}

// Update replaces the slot set and student details of the guardian's active
// registration. Seats already held are never reported full for their holder.
func (r *RegistrationRepository) Update(ctx context.Context, params UpdateParams) (*models.ProcedureResult, error) {
	if !validID(params.PeriodID) {
		return models.Reject(models.ProcedureNotFound, periodNotFoundMessage), nil
	}
	if reason := checkSlotIDs(params.SlotIDs); reason != "" {
		return models.Reject(models.ProcedureValidation, reason), nil
	}

	return r.inTx(ctx, "update registration", func(tx *sqlx.Tx) (*models.ProcedureResult, error) {
		period, rejected, err := loadOpenPeriod(ctx, tx, lockPeriodQuery, params.PeriodID, params.AcademyID, params.Now)
		if err != nil || rejected != nil {
			return rejected, err
		}

		var registration models.Registration
		if err := tx.GetContext(ctx, &registration, lockRegistrationByPhoneQuery, period.ID, params.GuardianPhone); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.Reject(models.ProcedureNotFound, "no registration found for this phone number"), nil
			}
			return nil, fmt.Errorf("lock registration: %w", err)
		}

		if !period.WithinHourCap(len(params.SlotIDs)) {
			return capacityExceeded(period, len(params.SlotIDs)), nil
		}

		removed := difference(registration.SelectedSlotIDs, params.SlotIDs)
		added := difference(params.SlotIDs, registration.SelectedSlotIDs)

		var slots []models.TimeSlot
		if touched := append(append([]string(nil), removed...), added...); len(touched) > 0 {
			if slots, err = lockSlots(ctx, tx, period.ID, touched); err != nil {
				return nil, err
			}
		}
		if missing := missingSlots(added, slots); len(missing) > 0 {
			return models.Reject(models.ProcedureValidation, "unknown slots: "+strings.Join(missing, ", ")), nil
		}
		if full := fullSlots(orderedSubset(params.SlotIDs, added), slots); len(full) > 0 {
			return slotsFull(full), nil
		}

		if len(removed) > 0 {
			if _, err := tx.ExecContext(ctx, decrementSlotsQuery, params.Now, pq.Array(removed)); err != nil {
				return nil, fmt.Errorf("release slots: %w", err)
			}
		}
		if len(added) > 0 {
			if _, err := tx.ExecContext(ctx, incrementSlotsQuery, params.Now, pq.Array(added)); err != nil {
				return nil, fmt.Errorf("claim slots: %w", err)
			}
		}

		registration.StudentName = params.Student.Name
		registration.SchoolName = params.Student.School
		registration.Grade = params.Student.Grade
		registration.SelectedSlotIDs = pq.StringArray(append([]string(nil), params.SlotIDs...))
		registration.UpdatedAt = params.Now
		if _, err := tx.NamedExecContext(ctx, updateRegistrationQuery, &registration); err != nil {
			return nil, fmt.Errorf("update registration: %w", err)
		}

		return &models.ProcedureResult{
			Registration: &registration,
			Slots:        adjustCounts(slots, added, removed, params.Now),
		}, nil
	})
}

// Cancel releases every seat of an active registration and marks it cancelled. A
// second cancel finds nothing active and returns NOT_FOUND, so seats are released once.
// The period is looked up without a lock and then locked before the registration row.
func (r *RegistrationRepository) Cancel(ctx context.Context, registrationID, academyID string, now time.Time) (*models.ProcedureResult, error) {
	if !validID(registrationID) {
		return models.Reject(models.ProcedureNotFound, registrationNotFound), nil
	}

	return r.inTx(ctx, "cancel registration", func(tx *sqlx.Tx) (*models.ProcedureResult, error) {
		var periodID string
		if err := tx.GetContext(ctx, &periodID, activePeriodOfRegistrationQuery, registrationID, academyID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.Reject(models.ProcedureNotFound, registrationNotFound), nil
			}
			return nil, fmt.Errorf("find registration period: %w", err)
		}
		if err := tx.GetContext(ctx, &periodID, lockPeriodIDQuery, periodID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.Reject(models.ProcedureNotFound, registrationNotFound), nil
			}
			return nil, fmt.Errorf("lock period: %w", err)
		}

		var registration models.Registration
		if err := tx.GetContext(ctx, &registration, lockRegistrationByIDQuery, registrationID, academyID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.Reject(models.ProcedureNotFound, registrationNotFound), nil
			}
			return nil, fmt.Errorf("lock registration: %w", err)
		}

		claimed := []string(registration.SelectedSlotIDs)
		var slots []models.TimeSlot
		if len(claimed) > 0 {
			var err error
			if slots, err = lockSlots(ctx, tx, registration.PeriodID, claimed); err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, decrementSlotsQuery, now, pq.Array(claimed)); err != nil {
				return nil, fmt.Errorf("release slots: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, cancelRegistrationQuery, registration.ID, now); err != nil {
			return nil, fmt.Errorf("mark registration cancelled: %w", err)
		}

		registration.Status = models.RegistrationCancelled
		registration.CancelledAt = &now
		registration.UpdatedAt = now
		return &models.ProcedureResult{
			Registration: &registration,
			Slots:        adjustCounts(slots, nil, claimed, now),
		}, nil
	})
}

// ResetPeriod cancels every active registration of the period and zeroes all slot
// counts in one transaction. Cancelled rows are kept for history.
func (r *RegistrationRepository) ResetPeriod(ctx context.Context, periodID, academyID string, now time.Time) (cancelled int64, err error) {
	if !validID(periodID) {
		return 0, fmt.Errorf("lock period: %w", sql.ErrNoRows)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin period reset: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id string
	if err = tx.GetContext(ctx, &id, `SELECT id FROM course_periods WHERE id = $1 AND academy_id = $2 FOR UPDATE`, periodID, academyID); err != nil {
		return 0, fmt.Errorf("lock period: %w", err)
	}

	const cancelAll = `UPDATE course_registrations SET status = 'cancelled', cancelled_at = $2, updated_at = $2
WHERE period_id = $1 AND status <> 'cancelled'`
	res, err := tx.ExecContext(ctx, cancelAll, id, now)
	if err != nil {
		return 0, fmt.Errorf("cancel registrations: %w", err)
	}
	if cancelled, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("cancel registrations rows affected: %w", err)
	}

	const zeroCounts = `UPDATE course_time_slots SET current_count = 0, updated_at = $2 WHERE period_id = $1`
	if _, err = tx.ExecContext(ctx, zeroCounts, id, now); err != nil {
		return 0, fmt.Errorf("reset slot counts: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit period reset: %w", err)
	}
	return cancelled, nil
}

// inTx runs fn in a transaction. Errors and rejected results roll back; only an OK
// result commits.
func (r *RegistrationRepository) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) (*models.ProcedureResult, error)) (*models.ProcedureResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", op, err)
	}

	result, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !result.OK() {
		_ = tx.Rollback()
		return result, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", op, err)
	}
	return result, nil
}

// loadOpenPeriod reads the period with the given query and rejects it when missing,
// owned by another academy, or not accepting registrations at now.
func loadOpenPeriod(ctx context.Context, tx *sqlx.Tx, query, periodID, academyID string, now time.Time) (*models.Period, *models.ProcedureResult, error) {
	var period models.Period
	if err := tx.GetContext(ctx, &period, query, periodID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.Reject(models.ProcedureNotFound, periodNotFoundMessage), nil
		}
		return nil, nil, fmt.Errorf("load period: %w", err)
	}
	if academyID != "" && period.AcademyID != academyID {
		return nil, models.Reject(models.ProcedureNotFound, periodNotFoundMessage), nil
	}
	if state := period.StateAt(now); state != models.PeriodStateOpen {
		return nil, models.Reject(models.ProcedurePeriodNotOpen, fmt.Sprintf("registration period is %s", state)), nil
	}
	return &period, nil, nil
}

func lockSlots(ctx context.Context, tx *sqlx.Tx, periodID string, ids []string) ([]models.TimeSlot, error) {
	var slots []models.TimeSlot
	if err := tx.SelectContext(ctx, &slots, lockSlotsQuery, periodID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock slots: %w", err)
	}
	return slots, nil
}

// validID reports whether id can be compared against a uuid column at all.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func checkSlotIDs(ids []string) string {
	if len(ids) == 0 {
		return "at least one slot must be selected"
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Sprintf("invalid slot id %q", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Sprintf("slot %s selected twice", id)
		}
		seen[id] = struct{}{}
	}
	return ""
}

func capacityExceeded(period *models.Period, count int) *models.ProcedureResult {
	return models.Reject(models.ProcedureCapacityExceeded, fmt.Sprintf(
		"%d slots of %d minutes exceed the weekly limit of %d hours",
		count, period.SlotIntervalMinutes, period.MaxWeeklyHours,
	))
}

func slotsFull(full []string) *models.ProcedureResult {
	return &models.ProcedureResult{
		Code:      models.ProcedureSlotsFull,
		Message:   "some selected slots are already full",
		FullSlots: full,
	}
}

// missingSlots lists requested IDs with no locked row, in request order.
func missingSlots(requested []string, slots []models.TimeSlot) []string {
	found := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		found[slot.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// fullSlots lists requested IDs whose slot has no seat left, in request order.
func fullSlots(requested []string, slots []models.TimeSlot) []string {
	byID := make(map[string]models.TimeSlot, len(slots))
	for _, slot := range slots {
		byID[slot.ID] = slot
	}
	var full []string
	for _, id := range requested {
		if slot, ok := byID[id]; ok && slot.IsFull() {
			full = append(full, id)
		}
	}
	return full
}

// difference returns the members of a not in b, keeping a's order.
func difference(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, id := range b {
		exclude[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := exclude[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// orderedSubset keeps the members of subset in the order they appear in ordered.
func orderedSubset(ordered, subset []string) []string {
	return difference(ordered, difference(ordered, subset))
}

// adjustCounts mirrors the committed count changes onto the locked rows.
func adjustCounts(slots []models.TimeSlot, claimed, released []string, now time.Time) []models.TimeSlot {
	delta := make(map[string]int, len(claimed)+len(released))
	for _, id := range claimed {
		delta[id]++
	}
	for _, id := range released {
		delta[id]--
	}
	out := make([]models.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		d, ok := delta[slot.ID]
		if !ok {
			continue
		}
		slot.CurrentCount += d
		if slot.CurrentCount < 0 {
			slot.CurrentCount = 0
		}
		slot.UpdatedAt = now
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
