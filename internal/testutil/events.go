package testutil

import (
	"slices"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/uploader"
)

// EventRecorder collects uploader events for assertions.
type EventRecorder struct {
	mu     sync.Mutex
	events []uploader.Event
}

// Record appends e. Pass it to Uploader.Subscribe.
func (r *EventRecorder) Record(e uploader.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events, optionally only those of the given
// kinds.
func (r *EventRecorder) Events(kinds ...uploader.EventKind) []uploader.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []uploader.Event
	for _, e := range r.events {
		if len(kinds) == 0 || slices.Contains(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

// Kinds returns the kinds of the recorded events, optionally filtered.
func (r *EventRecorder) Kinds(kinds ...uploader.EventKind) []uploader.EventKind {
	events := r.Events(kinds...)
	out := make([]uploader.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *EventRecorder) Count(kind uploader.EventKind) int {
	return len(r.Events(kind))
}
