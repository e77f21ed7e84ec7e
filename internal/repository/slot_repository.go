package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-registration-api/internal/models"
)

const (
	slotColumns = `id, period_id, day_of_week, start_time, end_time, capacity, current_count, created_at, updated_at`
	slotOrder   = `ORDER BY array_position(ARRAY['mon','tue','wed','thu','fri']::text[], day_of_week), start_time`
)

var (
	// ErrSlotConflict reports a second slot at the same (period, day, start).
	ErrSlotConflict = errors.New("slot already exists at this day and time")
	// ErrSlotOccupied blocks deleting slots that still hold seats.
	ErrSlotOccupied = errors.New("slot has active registrations")
)

// SlotRepository stores the weekly slot grid. Occupancy is only ever written by the
// registration procedures and by forced deletes.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository builds repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// ListByPeriod returns slots ordered by weekday then start time.
func (r *SlotRepository) ListByPeriod(ctx context.Context, periodID string) ([]models.TimeSlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM course_time_slots WHERE period_id = $1 ` + slotOrder
	var slots []models.TimeSlot
	if err := r.db.SelectContext(ctx, &slots, query, periodID); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// FindByID returns one slot or sql.ErrNoRows.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM course_time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return &slot, nil
}

// InsertBatch inserts all slots or none. A duplicate (period, day, start) yields ErrSlotConflict.
func (r *SlotRepository) InsertBatch(ctx context.Context, slots []models.TimeSlot) (err error) {
	if len(slots) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin slot insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `
INSERT INTO course_time_slots (id, period_id, day_of_week, start_time, end_time, capacity, current_count, created_at, updated_at)
VALUES (:id, :period_id, :day_of_week, :start_time, :end_time, :capacity, 0, :created_at, :updated_at)`

	now := time.Now().UTC()
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.CurrentCount = 0
		slot.CreatedAt = now
		slot.UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, query, slot); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%s: %w", slot.Label(), ErrSlotConflict)
			}
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit slot insert: %w", err)
	}
	return nil
}

// UpdateCapacity sets the seat count. Lowering it below the current occupancy is allowed;
// the slot simply reads as full until enough seats are released.
func (r *SlotRepository) UpdateCapacity(ctx context.Context, id string, capacity int) (*models.TimeSlot, error) {
	const query = `UPDATE course_time_slots SET capacity = $2, updated_at = $3 WHERE id = $1 RETURNING ` + slotColumns
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id, capacity, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("update slot capacity: %w", err)
	}
	return &slot, nil
}

// DeleteSlotsParams selects the slots to delete: one slot, one weekday, or the whole period.
type DeleteSlotsParams struct {
	PeriodID string
	SlotID   string
	Day      models.Weekday
	// Force detaches the slots from active registrations instead of refusing.
	Force bool
	Now   time.Time
}

// Delete removes slots under the occupancy policy. Without Force, any targeted slot with
// seats taken aborts the delete with ErrSlotOccupied and the result lists those slots.
// With Force, the slot IDs are removed from every active registration's claim list in
// the same transaction. The period row is locked before the slots, in the same order the
// registration procedures use.
func (r *SlotRepository) Delete(ctx context.Context, params DeleteSlotsParams) (result *models.SlotDeletion, err error) {
	if !validID(params.PeriodID) || (params.SlotID != "" && !validID(params.SlotID)) {
		return nil, fmt.Errorf("delete slot: %w", sql.ErrNoRows)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin slot delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var periodID string
	if err = tx.GetContext(ctx, &periodID, lockPeriodIDQuery, params.PeriodID); err != nil {
		return nil, fmt.Errorf("lock period for slot delete: %w", err)
	}

	query := strings.Builder{}
	query.WriteString(`SELECT ` + slotColumns + ` FROM course_time_slots WHERE period_id = $1`)
	args := []interface{}{params.PeriodID}
	switch {
	case params.SlotID != "":
		args = append(args, params.SlotID)
		query.WriteString(` AND id = $2`)
	case params.Day != "":
		args = append(args, string(params.Day))
		query.WriteString(` AND day_of_week = $2`)
	}
	query.WriteString(` ORDER BY id FOR UPDATE`)

	var slots []models.TimeSlot
	if err = tx.SelectContext(ctx, &slots, query.String(), args...); err != nil {
		return nil, fmt.Errorf("lock slots for delete: %w", err)
	}
	if len(slots) == 0 && params.SlotID != "" {
		return nil, fmt.Errorf("delete slot: %w", sql.ErrNoRows)
	}

	result = &models.SlotDeletion{Deleted: make([]string, 0, len(slots))}
	for _, slot := range slots {
		result.Deleted = append(result.Deleted, slot.ID)
		if slot.CurrentCount > 0 {
			result.Occupied = append(result.Occupied, slot.ID)
		}
	}
	if len(result.Deleted) == 0 {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit slot delete: %w", err)
		}
		return result, nil
	}
	if len(result.Occupied) > 0 && !params.Force {
		return &models.SlotDeletion{Occupied: result.Occupied}, ErrSlotOccupied
	}

	if params.Force {
		const detachQuery = `
UPDATE course_registrations
SET selected_slot_ids = ARRAY(
		SELECT s FROM unnest(selected_slot_ids) WITH ORDINALITY AS u(s, ord)
		WHERE NOT (s = ANY($2::uuid[]))
		ORDER BY ord
	),
	updated_at = $3
WHERE period_id = $1 AND status <> 'cancelled' AND selected_slot_ids && $2::uuid[]`
		var res sql.Result
		res, err = tx.ExecContext(ctx, detachQuery, params.PeriodID, pq.Array(result.Deleted), params.Now)
		if err != nil {
			return nil, fmt.Errorf("detach slots from registrations: %w", err)
		}
		if result.DetachedRegistrations, err = res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("detach slots rows affected: %w", err)
		}
	}

	const deleteQuery = `DELETE FROM course_time_slots WHERE id = ANY($1::uuid[])`
	if _, err = tx.ExecContext(ctx, deleteQuery, pq.Array(result.Deleted)); err != nil {
		return nil, fmt.Errorf("delete slots: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit slot delete: %w", err)
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
