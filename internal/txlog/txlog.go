// Package txlog keeps the short list of recent delivery attempts shown to operators.
package txlog

import (
	"sync"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 8

// Delivery statuses.
const (
	Pending = "pending"
	Success = "success"
	Error   = "error"
)

// Entry is the latest known state of one correlation id.
type Entry struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Log is a most-recent-first list of delivery attempts keyed by correlation id.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	bus     *bus.Bus
	now     func() time.Time
}

// New creates a log keeping up to capacity entries.
func New(capacity int, b *bus.Bus) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{cap: capacity, bus: b, now: time.Now}
}

// Observe records a status for id, moving it to the front. Entries beyond
// capacity fall off the end.
func (l *Log) Observe(id, status, message string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	entry := Entry{ID: id, Status: normalize(status), Message: message, UpdatedAt: l.now()}
	l.entries = append([]Entry{entry}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
	l.mu.Unlock()

	l.bus.Emit(bus.KindTxLogUpdated, entry)
}

// normalize folds backend wording into the three delivery statuses.
func normalize(status string) string {
	switch status {
	case Success, "completed", "sent", "done":
		return Success
	case Error, "failed", "failure":
		return Error
	default:
		return Pending
	}
}

// Entries returns a copy, most recent first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
