package regclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownSlot      = errors.New("regclient: slot is not in the grid")
	ErrSlotFull         = errors.New("regclient: slot is full")
	ErrHourCap          = errors.New("regclient: selection exceeds the weekly hour limit")
	ErrEmptySelection   = errors.New("regclient: select at least one slot")
	ErrSubmitInProgress = errors.New("regclient: a submission is already in progress")
	ErrNotOpen          = errors.New("regclient: registration is not open")
)

// Session holds one guardian's view of a period: the grid, the tentative selection,
// the slots they already hold and whether a submission is in flight. It is owned by a
// single page and discarded with it.
type Session struct {
	client   *Client
	periodID string

	mu         sync.Mutex
	period     Period
	clockSkew  time.Duration
	slots      map[string]Slot
	selected   map[string][]string
	own        map[string]struct{}
	submitting bool
}

// NewSession builds an empty session for periodID. Call Load before use.
func NewSession(client *Client, periodID string) *Session {
	return &Session{
		client:   client,
		periodID: periodID,
		slots:    map[string]Slot{},
		selected: map[string][]string{},
		own:      map[string]struct{}{},
	}
}

// Load fetches the grid and records the offset between the local and server clocks.
// Newly full selections are dropped and returned.
func (s *Session) Load(ctx context.Context) ([]Slot, error) {
	grid, err := s.client.Slots(ctx, s.periodID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.period = grid.Period
	if !grid.Period.ServerTime.IsZero() {
		s.clockSkew = grid.Period.ServerTime.Sub(time.Now())
	}
	s.mu.Unlock()
	return s.ApplySlots(grid.Slots), nil
}

// Period returns the last loaded period.
func (s *Session) Period() Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// State is the page phase at the local time now, corrected by the server clock offset.
func (s *Session) State(now time.Time) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period.PhaseAt(now.Add(s.clockSkew))
}

// UntilOpen is the countdown shown before the period opens; zero once open.
func (s *Session) UntilOpen(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.period.OpenAt.Sub(now.Add(s.clockSkew))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EnterEdit marks the slots of an existing registration as the guardian's own and
// selects them. Own slots stay selectable even when full.
func (s *Session) EnterEdit(slotIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.own = make(map[string]struct{}, len(slotIDs))
	s.selected = map[string][]string{}
	for _, id := range slotIDs {
		s.own[id] = struct{}{}
		if slot, ok := s.slots[id]; ok {
			s.selected[slot.DayOfWeek] = append(s.selected[slot.DayOfWeek], id)
		}
	}
}

// Editing reports whether the session updates an existing registration.
func (s *Session) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.own) > 0
}

// Toggle selects or deselects a slot. Selecting fails without a network call when the
// slot is full and not the guardian's own, or when it would pass the hour cap.
func (s *Session) Toggle(slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return ErrUnknownSlot
	}
	day := slot.DayOfWeek
	for i, id := range s.selected[day] {
		if id == slotID {
			s.selected[day] = append(s.selected[day][:i:i], s.selected[day][i+1:]...)
			return nil
		}
	}

	if _, mine := s.own[slotID]; !mine && slot.Full() {
		return fmt.Errorf("%w: %s", ErrSlotFull, slot.Label())
	}
	if !s.withinCapLocked(s.countLocked() + 1) {
		return fmt.Errorf("%w of %d hours", ErrHourCap, s.period.MaxWeeklyHours)
	}
	s.selected[day] = append(s.selected[day], slotID)
	return nil
}

// Selected returns the selected slot IDs in weekday then start time order.
func (s *Session) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

// SelectedMinutes is the weekly time the selection claims.
func (s *Session) SelectedMinutes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked() * s.period.SlotIntervalMinutes
}

// ApplySlots replaces the grid with a fresh read and deselects any selected slot that
// has filled up since, unless the guardian already holds it. The dropped slots are
// returned so the page can say exactly which times were lost.
func (s *Session) ApplySlots(slots []Slot) []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots = make(map[string]Slot, len(slots))
	for _, slot := range slots {
		s.slots[slot.ID] = slot
	}

	var dropped []Slot
	for day, ids := range s.selected {
		kept := ids[:0]
		for _, id := range ids {
			slot, exists := s.slots[id]
			_, mine := s.own[id]
			switch {
			case !exists && !mine:
				dropped = append(dropped, Slot{ID: id, DayOfWeek: day})
			case exists && !mine && slot.Full():
				dropped = append(dropped, slot)
			default:
				kept = append(kept, id)
			}
		}
		s.selected[day] = kept
	}
	sortSlots(dropped)
	return dropped
}

// Submit sends the selection. Edit mode updates the existing registration, otherwise a
// new one is submitted. Local refusals are returned as errors; every server outcome is a
// Result. On SLOTS_FULL only the named slots are deselected. A transport failure is
// resolved by looking the registration up by phone.
func (s *Session) Submit(ctx context.Context, g Guardian) (Result, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return Result{}, ErrSubmitInProgress
	}
	if s.period.PhaseAt(time.Now().Add(s.clockSkew)) != PhaseOpen {
		s.mu.Unlock()
		return Result{}, ErrNotOpen
	}
	if s.countLocked() == 0 {
		s.mu.Unlock()
		return Result{}, ErrEmptySelection
	}
	s.submitting = true
	editing := len(s.own) > 0
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	// optimistic re-check; the procedure stays the authority
	if grid, err := s.client.Slots(ctx, s.periodID); err == nil {
		if dropped := s.ApplySlots(grid.Slots); len(dropped) > 0 {
			return Result{Kind: KindSlotsFull, FullSlots: slotIDs(dropped), Message: "selected slots filled up before submitting"}, nil
		}
	}

	selection := s.Selected()
	if len(selection) == 0 {
		return Result{}, ErrEmptySelection
	}

	var result Result
	if editing {
		result = s.client.Update(ctx, s.periodID, g, selection)
	} else {
		result = s.client.Submit(ctx, s.periodID, g, selection)
	}

	switch result.Kind {
	case KindOK:
		s.claim(selection)
	case KindSlotsFull:
		s.deselect(result.FullSlots)
	case KindNotFound:
		if editing {
			// the registration was cancelled meanwhile; the next submit starts a new one
			s.leaveEdit()
		}
	case KindTransport:
		result = s.resolve(ctx, g.Phone, selection, result)
	}
	return result, nil
}

// resolve decides a transport failure: if the stored registration holds exactly the
// submitted selection the call committed.
func (s *Session) resolve(ctx context.Context, phone string, selection []string, failed Result) Result {
	reg, err := s.client.Lookup(ctx, s.periodID, phone)
	if err != nil || !sameSet(reg.SelectedSlotIDs, selection) {
		return failed
	}
	s.claim(selection)
	return Result{Kind: KindOK, Registration: reg, Recovered: true}
}

func (s *Session) claim(selection []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.own = make(map[string]struct{}, len(selection))
	for _, id := range selection {
		s.own[id] = struct{}{}
	}
}

func (s *Session) leaveEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.own = map[string]struct{}{}
}

func (s *Session) deselect(ids []string) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for day, selected := range s.selected {
		kept := selected[:0]
		for _, id := range selected {
			if _, gone := drop[id]; !gone {
				kept = append(kept, id)
			}
		}
		s.selected[day] = kept
	}
}

func (s *Session) countLocked() int {
	n := 0
	for _, ids := range s.selected {
		n += len(ids)
	}
	return n
}

func (s *Session) withinCapLocked(count int) bool {
	return count*s.period.SlotIntervalMinutes <= s.period.MaxWeeklyHours*60
}

func (s *Session) selectedLocked() []string {
	slots := make([]Slot, 0, s.countLocked())
	for day, ids := range s.selected {
		for _, id := range ids {
			slot, ok := s.slots[id]
			if !ok {
				slot = Slot{ID: id, DayOfWeek: day}
			}
			slots = append(slots, slot)
		}
	}
	sortSlots(slots)
	return slotIDs(slots)
}

func sortSlots(slots []Slot) {
	dayIndex := make(map[string]int, len(Weekdays))
	for i, d := range Weekdays {
		dayIndex[d] = i
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return dayIndex[slots[i].DayOfWeek] < dayIndex[slots[j].DayOfWeek]
		}
		if slots[i].StartTime != slots[j].StartTime {
			return slots[i].StartTime < slots[j].StartTime
		}
		return slots[i].ID < slots[j].ID
	})
}

func slotIDs(slots []Slot) []string {
	ids := make([]string, len(slots))
	for i, slot := range slots {
		ids[i] = slot.ID
	}
	return ids
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
