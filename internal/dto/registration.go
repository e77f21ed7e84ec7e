package dto

import (
	"time"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// RegistrationRequest is the guardian's submission. It serves both the first submit and
// the edit path, which finds the existing registration by phone.
type RegistrationRequest struct {
	AcademyID       string   `json:"academy_id" validate:"omitempty,max=64"`
	StudentName     string   `json:"student_name" validate:"required,max=50"`
	SchoolName      string   `json:"school_name" validate:"required,max=100"`
	Grade           int      `json:"grade" validate:"required,min=1,max=6"`
	GuardianPhone   string   `json:"guardian_phone" validate:"required,krphone"`
	SelectedSlotIDs []string `json:"selected_slot_ids" validate:"required,min=1,unique,dive,uuid"`
}

// ProcedureResponse is the wire form of a procedure outcome. Domain rejections are
// returned with HTTP 200 and success=false.
type ProcedureResponse struct {
	Success      bool                 `json:"success"`
	Registration *models.Registration `json:"registration,omitempty"`
	Error        string               `json:"error,omitempty"`
	Message      string               `json:"message,omitempty"`
	FullSlots    []string             `json:"full_slots,omitempty"`
}

// NewProcedureResponse converts a procedure result.
func NewProcedureResponse(result *models.ProcedureResult) ProcedureResponse {
	if result == nil {
		return ProcedureResponse{Error: string(models.ProcedureNotFound)}
	}
	return ProcedureResponse{
		Success:      result.OK(),
		Registration: result.Registration,
		Error:        string(result.Code),
		Message:      result.Message,
		FullSlots:    result.FullSlots,
	}
}

// RegistrationView is an admin row: the registration with its phone possibly masked and
// slot labels resolved.
type RegistrationView struct {
	models.Registration
	SlotLabels []string `json:"slot_labels"`
}

// RegistrationListQuery filters the admin list.
type RegistrationListQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=pending confirmed waiting cancelled"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=500"`
	Unmask   bool   `form:"unmask"`
}

// ResetResult reports the outcome of a period reset.
type ResetResult struct {
	PeriodID       string    `json:"period_id"`
	CancelledCount int64     `json:"cancelled_count"`
	ResetAt        time.Time `json:"reset_at"`
}

// RegistrationLookup is what a guardian sees of their own active registration. It lets
// the page enter edit mode and resolve a submit whose response was lost.
type RegistrationLookup struct {
	ID              string                    `json:"id"`
	PeriodID        string                    `json:"period_id"`
	SubmissionOrder int                       `json:"submission_order"`
	StudentName     string                    `json:"student_name"`
	SchoolName      string                    `json:"school_name"`
	Grade           int                       `json:"grade"`
	GuardianPhone   string                    `json:"guardian_phone"`
	SelectedSlotIDs []string                  `json:"selected_slot_ids"`
	Status          models.RegistrationStatus `json:"status"`
	SubmittedAt     time.Time                 `json:"submitted_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// NewRegistrationLookup projects a registration with its phone masked.
func NewRegistrationLookup(r *models.Registration) RegistrationLookup {
	ids := []string(r.SelectedSlotIDs)
	if ids == nil {
		ids = []string{}
	}
	return RegistrationLookup{
		ID:              r.ID,
		PeriodID:        r.PeriodID,
		SubmissionOrder: r.SubmissionOrder,
		StudentName:     r.StudentName,
		SchoolName:      r.SchoolName,
		Grade:           r.Grade,
		GuardianPhone:   models.MaskPhone(r.GuardianPhone),
		SelectedSlotIDs: ids,
		Status:          r.Status,
		SubmittedAt:     r.SubmittedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// TimetableQuery controls the admin timetable view.
type TimetableQuery struct {
	Unmask bool `form:"unmask"`
}
