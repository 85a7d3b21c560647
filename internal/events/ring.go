package events

import (
	"sync"
	"time"
)

// Level classifies an orchestrator event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a single orchestrator occurrence surfaced through status().
type Event struct {
	Time      time.Time `json:"time"`
	Level     Level     `json:"level"`
	AccountID string    `json:"account_id,omitempty"`
	Message   string    `json:"message"`
}

// Ring is a bounded buffer of the most recent events. Older entries are
// overwritten once capacity is reached.
type Ring struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
	now    func() time.Time
}

// NewRing creates a ring holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring{
		events: make([]Event, capacity),
		now:    time.Now,
	}
}

// Add records an event, evicting the oldest entry when full.
func (r *Ring) Add(level Level, accountID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = Event{
		Time:      r.now(),
		Level:     level,
		AccountID: accountID,
		Message:   message,
	}
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.full = true
	}
}

// Recent returns the buffered events, oldest first.
func (r *Ring) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Event, r.next)
		copy(out, r.events[:r.next])
		return out
	}

	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	out = append(out, r.events[:r.next]...)
	return out
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		return len(r.events)
	}
	return r.next
}
