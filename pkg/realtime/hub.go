package realtime

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 16

type subscriber struct {
	ch chan Event
}

// Hub is the in-process pub/sub keyed by period ID.
type Hub struct {
	mu      sync.RWMutex
	periods map[string]map[*subscriber]struct{}
	buffer  int
	count   int64
	dropped uint64
}

// NewHub builds a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{periods: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe registers interest in a period. The returned cancel func unregisters and
// closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(periodID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	subs, ok := h.periods[periodID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.periods[periodID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	atomic.AddInt64(&h.count, 1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.periods[periodID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.periods, periodID)
				}
			}
			close(sub.ch)
			h.mu.Unlock()
			atomic.AddInt64(&h.count, -1)
		})
	}
	return sub.ch, cancel
}

// Publish delivers evt to the period's local subscribers without blocking. A subscriber
// whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, evt Event) error {
	h.deliver(evt)
	return nil
}

func (h *Hub) deliver(evt Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.periods[evt.PeriodID] {
		select {
		case sub.ch <- evt:
			delivered++
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
	return delivered
}

// Subscribers returns the number of open subscriptions across all periods.
func (h *Hub) Subscribers() int {
	return int(atomic.LoadInt64(&h.count))
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}
