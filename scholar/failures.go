package scholar

import (
	"sync"
	"time"
)

const (
	// skipThreshold is how many failures within the window mark a source
	// as down.
	skipThreshold = 3

	// skipWindow is how far back failures count. Sources typically recover
	// within minutes, so old failures expire rather than pinning a source
	// off forever.
	skipWindow = 120 * time.Second
)

// FailureTracker records per-source search failures and answers whether a
// source should be skipped. A source with skipThreshold failures inside
// skipWindow is considered down until the window slides past them or a
// success clears it. Safe for concurrent use.
type FailureTracker struct {
	mu        sync.Mutex
	failures  map[Source][]time.Time
	threshold int
	window    time.Duration

	now func() time.Time // test hook
}

// NewFailureTracker creates a tracker with the default threshold and window.
func NewFailureTracker() *FailureTracker {
	return &FailureTracker{
		failures:  make(map[Source][]time.Time),
		threshold: skipThreshold,
		window:    skipWindow,
		now:       time.Now,
	}
}

// RecordFailure notes a failed search against the source.
func (t *FailureTracker) RecordFailure(src Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[src] = append(t.pruneLocked(src), t.now())
}

// RecordSuccess clears the source's failure history.
func (t *FailureTracker) RecordSuccess(src Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, src)
}

// ShouldSkip reports whether the source has accumulated enough recent
// failures to be skipped.
func (t *FailureTracker) ShouldSkip(src Source) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	recent := t.pruneLocked(src)
	t.failures[src] = recent
	return len(recent) >= t.threshold
}

func (t *FailureTracker) pruneLocked(src Source) []time.Time {
	cutoff := t.now().Add(-t.window)
	kept := t.failures[src][:0]
	for _, ts := range t.failures[src] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
