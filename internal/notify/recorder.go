package notify

import (
	"context"
	"sync"
)

// Entry is one recorded item, either a notification or an event.
type Entry struct {
	Notification *Notification `json:"notification,omitempty"`
	Event        *Event        `json:"event,omitempty"`
}

// Recorder keeps every notification and event in arrival order until drained.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Notification: &n})
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Event: &e})
}

// Drain returns and clears everything recorded so far.
func (r *Recorder) Drain() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = nil
	return out
}

// Notifications returns the recorded notifications without clearing them.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, e := range r.entries {
		if e.Notification != nil {
			out = append(out, *e.Notification)
		}
	}
	return out
}

// Events returns the recorded events without clearing them.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.entries {
		if e.Event != nil {
			out = append(out, *e.Event)
		}
	}
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if n := r.entries[i].Notification; n != nil {
			return *n, true
		}
	}
	return Notification{}, false
}
