package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodStateAt(t *testing.T) {
	open := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	closeAt := open.Add(48 * time.Hour)
	p := &Period{IsActive: true, OpenAt: open, CloseAt: &closeAt}

	assert.Equal(t, PeriodStateCountdown, p.StateAt(open.Add(-time.Second)))
	assert.Equal(t, PeriodStateOpen, p.StateAt(open))
	assert.Equal(t, PeriodStateOpen, p.StateAt(closeAt.Add(-time.Nanosecond)))
	assert.Equal(t, PeriodStateClosed, p.StateAt(closeAt))

	p.CloseAt = nil
	assert.Equal(t, PeriodStateOpen, p.StateAt(open.Add(1000*time.Hour)))

	p.IsActive = false
	assert.Equal(t, PeriodStateError, p.StateAt(open))
	var missing *Period
	assert.Equal(t, PeriodStateError, missing.StateAt(open))
}

func TestWithinHourCap(t *testing.T) {
	p := &Period{SlotIntervalMinutes: 30, MaxWeeklyHours: 5}
	assert.True(t, p.WithinHourCap(10))
	assert.False(t, p.WithinHourCap(11))
	assert.Equal(t, 10, p.MaxSlots())

	p = &Period{SlotIntervalMinutes: 50, MaxWeeklyHours: 2}
	assert.True(t, p.WithinHourCap(2))
	assert.False(t, p.WithinHourCap(3))
}

func TestClockRoundTrip(t *testing.T) {
	minutes, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, minutes)
	assert.Equal(t, "09:30", FormatClock(minutes))
	assert.Equal(t, "00:05", FormatClock(5))

	for _, bad := range []string{"9:30", "24:00", "12:60", "ab:cd", "1230"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestSortSlotsUsesCalendarOrder(t *testing.T) {
	slots := []TimeSlot{
		{ID: "c", DayOfWeek: Friday, StartTime: "09:00"},
		{ID: "b", DayOfWeek: Monday, StartTime: "10:00"},
		{ID: "a", DayOfWeek: Monday, StartTime: "09:00"},
		{ID: "d", DayOfWeek: Tuesday, StartTime: "08:00"},
	}
	SortSlots(slots)
	ids := []string{slots[0].ID, slots[1].ID, slots[2].ID, slots[3].ID}
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids)
}

func TestSlotRemainingNeverNegative(t *testing.T) {
	s := TimeSlot{Capacity: 2, CurrentCount: 3}
	assert.True(t, s.IsFull())
	assert.Equal(t, 0, s.Remaining())
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"010-1234-5678":   "010-1234-5678",
		"01012345678":     "010-1234-5678",
		" 010 1234 5678 ": "010-1234-5678",
		"011-123-4567":    "011-123-4567",
	}
	for in, want := range cases {
		got, ok := NormalizePhone(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "02-123-4567", "010-12-5678", "010123456789"} {
		_, ok := NormalizePhone(bad)
		assert.False(t, ok, bad)
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "010-****-5678", MaskPhone("010-1234-5678"))
	assert.Equal(t, "011-***-4567", MaskPhone("011-123-4567"))
	assert.Equal(t, "***", MaskPhone("12"))
}

func TestRegistrationStatus(t *testing.T) {
	assert.True(t, RegistrationWaiting.Active())
	assert.False(t, RegistrationCancelled.Active())
	assert.False(t, RegistrationStatus("archived").Active())
}
