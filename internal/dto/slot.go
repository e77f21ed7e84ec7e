package dto

import "github.com/noah-isme/course-registration-api/internal/models"

// GenerateSlotsRequest creates a block of slots on each listed weekday.
type GenerateSlotsRequest struct {
	Days            []models.Weekday `json:"days" validate:"required,min=1,max=5,unique,dive,weekday"`
	StartTime       string           `json:"start_time" validate:"required,hhmm"`
	EndTime         string           `json:"end_time" validate:"required,hhmm"`
	IntervalMinutes int              `json:"interval_minutes" validate:"omitempty,min=5,max=120"`
	Capacity        int              `json:"capacity" validate:"omitempty,min=1,max=50"`
}

// AddSlotRequest adds one slot using the period interval.
type AddSlotRequest struct {
	Day       models.Weekday `json:"day_of_week" validate:"required,weekday"`
	StartTime string         `json:"start_time" validate:"required,hhmm"`
	Capacity  int            `json:"capacity" validate:"omitempty,min=1,max=50"`
}

// UpdateCapacityRequest changes the seat count of one slot.
type UpdateCapacityRequest struct {
	Capacity int `json:"capacity" validate:"required,min=1,max=50"`
}

// CapacityWarning flags a capacity set below the seats already taken. The cut is applied
// anyway; existing registrations keep their seats.
type CapacityWarning struct {
	CurrentCount int `json:"current_count"`
	Capacity     int `json:"capacity"`
	OverBy       int `json:"over_by"`
}

// CapacityUpdateResponse returns the updated slot with an optional warning.
type CapacityUpdateResponse struct {
	Slot    models.TimeSlot  `json:"slot"`
	Warning *CapacityWarning `json:"warning,omitempty"`
}

// SlotGrid is the public view of a period's slots.
type SlotGrid struct {
	Period PublicPeriod      `json:"period"`
	Slots  []models.TimeSlot `json:"slots"`
}
