package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Weekday is a teaching day. Weekends are not offered.
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
)

// Weekdays lists the teaching days in calendar order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// Index returns the calendar position of the day, or -1 when unknown.
func (d Weekday) Index() int {
	for i, day := range Weekdays {
		if day == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is a teaching day.
func (d Weekday) Valid() bool { return d.Index() >= 0 }

// ParseWeekday accepts the short lowercase form in any case.
func ParseWeekday(raw string) (Weekday, bool) {
	d := Weekday(strings.ToLower(strings.TrimSpace(raw)))
	return d, d.Valid()
}

// TimeSlot is one bookable cell of the weekly grid.
type TimeSlot struct {
	ID           string    `db:"id" json:"id"`
	PeriodID     string    `db:"period_id" json:"period_id"`
	DayOfWeek    Weekday   `db:"day_of_week" json:"day_of_week"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	Capacity     int       `db:"capacity" json:"capacity"`
	CurrentCount int       `db:"current_count" json:"current_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsFull reports whether no seat is left.
func (s TimeSlot) IsFull() bool { return s.CurrentCount >= s.Capacity }

// Remaining returns free seats, never negative even after a capacity cut.
func (s TimeSlot) Remaining() int {
	if s.CurrentCount >= s.Capacity {
		return 0
	}
	return s.Capacity - s.CurrentCount
}

// Label renders "mon 09:00-09:30".
func (s TimeSlot) Label() string {
	return fmt.Sprintf("%s %s-%s", s.DayOfWeek, s.StartTime, s.EndTime)
}

// SortSlots orders slots by weekday then start time.
func SortSlots(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		di, dj := slots[i].DayOfWeek.Index(), slots[j].DayOfWeek.Index()
		if di != dj {
			return di < dj
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}

// ParseClock converts "HH:MM" into minutes after midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hours*60 + minutes, nil
}

// FormatClock renders minutes after midnight as zero padded "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// SlotDeletion reports what a slot delete touched.
type SlotDeletion struct {
	Deleted               []string `json:"deleted"`
	Occupied              []string `json:"occupied,omitempty"`
	DetachedRegistrations int64    `json:"detached_registrations"`
}
