package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names what changed inside a period.
type Kind string

const (
	KindSlotChanged         Kind = "slot_changed"
	KindSlotAdded           Kind = "slot_added"
	KindSlotRemoved         Kind = "slot_removed"
	KindRegistrationChanged Kind = "registration_changed"
	// KindReady opens every stream, so subscribers refresh after each reconnect.
	KindReady Kind = "ready"
)

// Event is a change notice for one period. Subscribers treat it as a hint and re-fetch
// the authoritative state, so a dropped event only delays a refresh.
type Event struct {
	ID       string      `json:"id"`
	Kind     Kind        `json:"kind"`
	PeriodID string      `json:"period_id"`
	SlotIDs  []string    `json:"slot_ids,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Source   string      `json:"source,omitempty"`
	At       time.Time   `json:"at"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(kind Kind, periodID string, slotIDs []string, data interface{}) Event {
	return Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		PeriodID: periodID,
		SlotIDs:  slotIDs,
		Data:     data,
		At:       time.Now().UTC(),
	}
}

// Publisher fans events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}
