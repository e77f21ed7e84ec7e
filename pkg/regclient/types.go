package regclient

import (
	"encoding/json"
	"time"
)

// Phase is what the registration page shows for a period.
type Phase string

const (
	PhaseCountdown Phase = "countdown"
	PhaseOpen      Phase = "open"
	PhaseClosed    Phase = "closed"
	// PhaseError is shown for inactive or unknown periods.
	PhaseError Phase = "error"
)

// Weekdays in grid order.
var Weekdays = []string{"mon", "tue", "wed", "thu", "fri"}

// Period is the public view of a registration period.
type Period struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Description         *string    `json:"description,omitempty"`
	OpenAt              time.Time  `json:"open_datetime"`
	CloseAt             *time.Time `json:"close_datetime,omitempty"`
	SlotIntervalMinutes int        `json:"slot_interval_minutes"`
	MaxWeeklyHours      int        `json:"max_weekly_hours"`
	IsActive            bool       `json:"is_active"`
	State               Phase      `json:"state"`
	ServerTime          time.Time  `json:"server_time"`
}

// PhaseAt evaluates the period lifecycle at now.
func (p Period) PhaseAt(now time.Time) Phase {
	switch {
	case p.ID == "" || !p.IsActive:
		return PhaseError
	case now.Before(p.OpenAt):
		return PhaseCountdown
	case p.CloseAt != nil && !now.Before(*p.CloseAt):
		return PhaseClosed
	default:
		return PhaseOpen
	}
}

// Slot is one bookable time block.
type Slot struct {
	ID           string `json:"id"`
	PeriodID     string `json:"period_id"`
	DayOfWeek    string `json:"day_of_week"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Capacity     int    `json:"capacity"`
	CurrentCount int    `json:"current_count"`
}

// Full reports whether every seat is taken.
func (s Slot) Full() bool {
	return s.CurrentCount >= s.Capacity
}

// Label renders the slot as "mon 09:00-09:30".
func (s Slot) Label() string {
	return s.DayOfWeek + " " + s.StartTime + "-" + s.EndTime
}

// Grid is the period together with its slots.
type Grid struct {
	Period Period `json:"period"`
	Slots  []Slot `json:"slots"`
}

// Guardian identifies the student being registered and the contact phone.
type Guardian struct {
	StudentName string
	SchoolName  string
	Grade       int
	Phone       string
}

// Registration is a stored registration as returned by the procedures.
type Registration struct {
	ID              string    `json:"id"`
	PeriodID        string    `json:"period_id"`
	SubmissionOrder int       `json:"submission_order"`
	StudentName     string    `json:"student_name"`
	SchoolName      string    `json:"school_name"`
	Grade           int       `json:"grade"`
	GuardianPhone   string    `json:"guardian_phone"`
	SelectedSlotIDs []string  `json:"selected_slot_ids"`
	Status          string    `json:"status"`
	SubmittedAt     time.Time `json:"submitted_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type registrationPayload struct {
	StudentName     string   `json:"student_name"`
	SchoolName      string   `json:"school_name"`
	Grade           int      `json:"grade"`
	GuardianPhone   string   `json:"guardian_phone"`
	SelectedSlotIDs []string `json:"selected_slot_ids"`
}

type procedurePayload struct {
	Success      bool          `json:"success"`
	Registration *Registration `json:"registration"`
	Error        string        `json:"error"`
	Message      string        `json:"message"`
	FullSlots    []string      `json:"full_slots"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError        `json:"error"`
}
