package models

import "time"

// Period defaults applied when an admin omits a value.
const (
	DefaultSlotCapacity        = 5
	DefaultSlotIntervalMinutes = 30
	DefaultMaxWeeklyHours      = 5
)

// PeriodState is the lifecycle phase of a registration period as seen at an instant.
type PeriodState string

const (
	PeriodStateCountdown PeriodState = "countdown"
	PeriodStateOpen      PeriodState = "open"
	PeriodStateClosed    PeriodState = "closed"
	// PeriodStateError covers inactive periods; the public page shows an error instead of the grid.
	PeriodStateError PeriodState = "error"
)

// Period is a registration campaign owned by one academy.
type Period struct {
	ID                  string     `db:"id" json:"id"`
	AcademyID           string     `db:"academy_id" json:"academy_id"`
	Name                string     `db:"name" json:"name"`
	Description         *string    `db:"description" json:"description,omitempty"`
	OpenAt              time.Time  `db:"open_datetime" json:"open_datetime"`
	CloseAt             *time.Time `db:"close_datetime" json:"close_datetime,omitempty"`
	DefaultCapacity     int        `db:"default_capacity" json:"default_capacity"`
	SlotIntervalMinutes int        `db:"slot_interval_minutes" json:"slot_interval_minutes"`
	MaxWeeklyHours      int        `db:"max_weekly_hours" json:"max_weekly_hours"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	LastSubmissionOrder int        `db:"last_submission_order" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// StateAt resolves the period phase. The open instant is inclusive, the close instant exclusive.
func (p *Period) StateAt(now time.Time) PeriodState {
	if p == nil || !p.IsActive {
		return PeriodStateError
	}
	if now.Before(p.OpenAt) {
		return PeriodStateCountdown
	}
	if p.CloseAt != nil && !now.Before(*p.CloseAt) {
		return PeriodStateClosed
	}
	return PeriodStateOpen
}

// WithinHourCap reports whether claiming slotCount slots stays within the weekly hour limit.
func (p *Period) WithinHourCap(slotCount int) bool {
	return slotCount*p.SlotIntervalMinutes <= p.MaxWeeklyHours*60
}

// MaxSlots is the largest selection the hour cap allows.
func (p *Period) MaxSlots() int {
	if p.SlotIntervalMinutes <= 0 {
		return 0
	}
	return p.MaxWeeklyHours * 60 / p.SlotIntervalMinutes
}
