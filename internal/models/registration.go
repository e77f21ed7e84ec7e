package models

import (
	"time"

	"github.com/lib/pq"
)

// RegistrationStatus tracks the lifecycle of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationWaiting   RegistrationStatus = "waiting"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Valid reports whether the status is known.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationPending, RegistrationConfirmed, RegistrationWaiting, RegistrationCancelled:
		return true
	}
	return false
}

// Active reports whether the registration still holds its seats.
func (s RegistrationStatus) Active() bool {
	return s.Valid() && s != RegistrationCancelled
}

// Registration is one guardian's claim on a set of slots within a period.
type Registration struct {
	ID              string             `db:"id" json:"id"`
	PeriodID        string             `db:"period_id" json:"period_id"`
	AcademyID       string             `db:"academy_id" json:"academy_id"`
	SubmissionOrder int                `db:"submission_order" json:"submission_order"`
	SubmittedAt     time.Time          `db:"submitted_at" json:"submitted_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
	CancelledAt     *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
	StudentName     string             `db:"student_name" json:"student_name"`
	SchoolName      string             `db:"school_name" json:"school_name"`
	Grade           int                `db:"grade" json:"grade"`
	GuardianPhone   string             `db:"guardian_phone" json:"guardian_phone"`
	SelectedSlotIDs pq.StringArray     `db:"selected_slot_ids" json:"selected_slot_ids"`
	Status          RegistrationStatus `db:"status" json:"status"`
}

// Claims reports whether the registration holds slotID.
func (r *Registration) Claims(slotID string) bool {
	for _, id := range r.SelectedSlotIDs {
		if id == slotID {
			return true
		}
	}
	return false
}

// RegistrationFilter narrows admin listings.
type RegistrationFilter struct {
	PeriodID string
	Status   *RegistrationStatus
	Page     int
	PageSize int
}

// Student is the learner part of a submission.
type Student struct {
	Name   string
	School string
	Grade  int
}

// ProcedureCode is the domain outcome of a registration procedure.
type ProcedureCode string

const (
	ProcedureOK               ProcedureCode = ""
	ProcedureDuplicatePhone   ProcedureCode = "DUPLICATE_PHONE"
	ProcedureCapacityExceeded ProcedureCode = "CAPACITY_EXCEEDED"
	ProcedureSlotsFull        ProcedureCode = "SLOTS_FULL"
	ProcedureNotFound         ProcedureCode = "NOT_FOUND"
	ProcedureValidation       ProcedureCode = "VALIDATION"
	ProcedurePeriodNotOpen    ProcedureCode = "PERIOD_NOT_OPEN"
)

// ProcedureResult is the tagged outcome of submit, update and cancel. Rejections are
// values, not errors: the transaction was rolled back and nothing changed.
type ProcedureResult struct {
	Code         ProcedureCode
	Message      string
	Registration *Registration
	// FullSlots lists the requested slots that were full, in request order.
	FullSlots []string
	// Slots holds the committed state of every slot the procedure touched.
	Slots []TimeSlot
}

// OK reports whether the procedure committed.
func (r *ProcedureResult) OK() bool {
	return r != nil && r.Code == ProcedureOK
}

// Reject builds a rejected result.
func Reject(code ProcedureCode, message string) *ProcedureResult {
	return &ProcedureResult{Code: code, Message: message}
}

// TimetableEntry pairs a slot with the active registrations holding it.
type TimetableEntry struct {
	Slot        TimeSlot       `json:"slot"`
	Registrants []Registration `json:"registrants"`
}
