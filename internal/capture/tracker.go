package capture

import (
	"sync"
	"time"

	"github.com/kozaktomas/checkpoint/internal/constants"
)

// Tracker suppresses repeated confirmations of the same subject within a window.
// It is held in memory only and cleared when the session stops.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	seen   map[int64]time.Time
}

// NewTracker creates a tracker. max <= 0 selects constants.MaxDebounceEntries.
func NewTracker(window time.Duration, max int) *Tracker {
	if max <= 0 {
		max = constants.MaxDebounceEntries
	}
	return &Tracker{window: window, max: max, seen: make(map[int64]time.Time)}
}

// Allow reports whether a confirmation of subjectID at now should be shown.
// An allowed confirmation starts a new window; a suppressed one does not extend it.
func (t *Tracker) Allow(subjectID int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictStale(now)
	if last, ok := t.seen[subjectID]; ok && now.Sub(last) < t.window {
		return false
	}
	if len(t.seen) >= t.max {
		t.evictOldest()
	}
	t.seen[subjectID] = now
	return true
}

func (t *Tracker) evictStale(now time.Time) {
	for id, at := range t.seen {
		if now.Sub(at) >= t.window {
			delete(t.seen, id)
		}
	}
}

func (t *Tracker) evictOldest() {
	var (
		oldestID int64
		oldestAt time.Time
		found    bool
	)
	for id, at := range t.seen {
		if !found || at.Before(oldestAt) {
			oldestID, oldestAt, found = id, at, true
		}
	}
	if found {
		delete(t.seen, oldestID)
	}
}

// Reset forgets every confirmation.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.seen)
}

// Len returns the number of tracked subjects.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
