package events

import (
	"sync"

	"file-nft-market/internal/domain"
)

// Recorder keeps the most recent events in memory. Nothing is persisted.
type Recorder struct {
	mu     sync.RWMutex
	buf    []domain.Event
	start  int // index of the oldest event in buf
	filled bool
	next   int
}

// NewRecorder creates a recorder holding up to capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recorder{buf: make([]domain.Event, capacity)}
}

// Attach subscribes r to every event on bus.
func (r *Recorder) Attach(bus *Bus) (func(), error) {
	return bus.Subscribe(TopicAll, r.Record)
}

// Record appends e, evicting the oldest event when full.
func (r *Recorder) Record(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.filled {
		r.start = r.next
	} else if r.next == 0 {
		r.filled = true
	}
}

// Events returns recorded events, oldest first.
func (r *Recorder) Events() []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

// Since returns recorded events with Seq greater than seq, oldest first.
func (r *Recorder) Since(seq uint64) []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Event
	for _, e := range r.snapshot() {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.filled {
		return len(r.buf)
	}
	return r.next
}

func (r *Recorder) snapshot() []domain.Event {
	if !r.filled {
		return append([]domain.Event(nil), r.buf[:r.next]...)
	}
	out := make([]domain.Event, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}
