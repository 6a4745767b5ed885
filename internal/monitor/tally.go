package monitor

import (
	"sync"
	"time"
)

// DateKey formats the calendar date (UTC) used to aggregate disturbances.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Tally counts newly disturbed pixels per calendar date. The zero value is
// an empty tally. It is safe for concurrent use; workers typically fill a
// private Tally and Merge it into a shared one when done.
type Tally struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// Add records one newly disturbed pixel on date.
func (t *Tally) Add(date time.Time) {
	t.mu.Lock()
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	t.counts[DateKey(date)]++
	t.mu.Unlock()
}

// AddEvent records e. A nil event is ignored.
func (t *Tally) AddEvent(e *Event) {
	if e != nil {
		t.Add(e.Date)
	}
}

// Merge adds every count of other into t.
func (t *Tally) Merge(other *Tally) {
	if other == nil || other == t {
		return
	}
	snap := other.Snapshot()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[string]int, len(snap))
	}
	for k, v := range snap {
		t.counts[k] += v
	}
}

// Snapshot returns a copy of the per-date counts.
func (t *Tally) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Total returns the number of disturbed pixels across all dates.
func (t *Tally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, v := range t.counts {
		n += v
	}
	return n
}
