package dto

import (
	"time"

	"github.com/noah-isme/course-registration-api/internal/models"
)

// PeriodRequest creates or fully replaces a registration period. Zero numeric values
// fall back to the period defaults.
type PeriodRequest struct {
	Name                string     `json:"name" validate:"required,max=100"`
	Description         *string    `json:"description" validate:"omitempty,max=1000"`
	OpenAt              time.Time  `json:"open_datetime" validate:"required"`
	CloseAt             *time.Time `json:"close_datetime"`
	DefaultCapacity     int        `json:"default_capacity" validate:"omitempty,min=1,max=50"`
	SlotIntervalMinutes int        `json:"slot_interval_minutes" validate:"omitempty,min=5,max=120"`
	MaxWeeklyHours      int        `json:"max_weekly_hours" validate:"omitempty,min=1,max=50"`
	IsActive            *bool      `json:"is_active"`
}

// SetPeriodActiveRequest toggles a period.
type SetPeriodActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// PeriodResponse decorates a period with its phase at ServerTime.
type PeriodResponse struct {
	models.Period
	State      models.PeriodState `json:"state"`
	ServerTime time.Time          `json:"server_time"`
}

// PublicPeriod is the subset of a period exposed to guardians.
type PublicPeriod struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Description         *string            `json:"description,omitempty"`
	OpenAt              time.Time          `json:"open_datetime"`
	CloseAt             *time.Time         `json:"close_datetime,omitempty"`
	SlotIntervalMinutes int                `json:"slot_interval_minutes"`
	MaxWeeklyHours      int                `json:"max_weekly_hours"`
	IsActive            bool               `json:"is_active"`
	State               models.PeriodState `json:"state"`
	ServerTime          time.Time          `json:"server_time"`
}

// NewPublicPeriod projects a period for the public page.
func NewPublicPeriod(p *models.Period, now time.Time) PublicPeriod {
	return PublicPeriod{
		ID:                  p.ID,
		Name:                p.Name,
		Description:         p.Description,
		OpenAt:              p.OpenAt,
		CloseAt:             p.CloseAt,
		SlotIntervalMinutes: p.SlotIntervalMinutes,
		MaxWeeklyHours:      p.MaxWeeklyHours,
		IsActive:            p.IsActive,
		State:               p.StateAt(now),
		ServerTime:          now,
	}
}
