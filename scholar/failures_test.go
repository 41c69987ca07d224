package scholar

import (
	"testing"
	"time"
)

func TestFailureTracker(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	newAt := func(clock *time.Time) *FailureTracker {
		tr := NewFailureTracker()
		tr.now = func() time.Time { return *clock }
		return tr
	}

	t.Run("below threshold does not skip", func(t *testing.T) {
		clock := base
		tr := newAt(&clock)
		tr.RecordFailure(SourceArxiv)
		tr.RecordFailure(SourceArxiv)
		if tr.ShouldSkip(SourceArxiv) {
			t.Error("skipped after 2 failures")
		}
	})

	t.Run("threshold failures inside window skip", func(t *testing.T) {
		clock := base
		tr := newAt(&clock)
		for i := 0; i < skipThreshold; i++ {
			tr.RecordFailure(SourceArxiv)
			clock = clock.Add(10 * time.Second)
		}
		if !tr.ShouldSkip(SourceArxiv) {
			t.Error("not skipped at threshold")
		}
	})

	t.Run("failures expire with the window", func(t *testing.T) {
		clock := base
		tr := newAt(&clock)
		for i := 0; i < skipThreshold; i++ {
			tr.RecordFailure(SourceArxiv)
		}
		clock = clock.Add(skipWindow + time.Second)
		if tr.ShouldSkip(SourceArxiv) {
			t.Error("expired failures still counted")
		}
	})

	t.Run("success clears the history", func(t *testing.T) {
		clock := base
		tr := newAt(&clock)
		for i := 0; i < skipThreshold; i++ {
			tr.RecordFailure(SourceArxiv)
		}
		tr.RecordSuccess(SourceArxiv)
		if tr.ShouldSkip(SourceArxiv) {
			t.Error("skip state survived a success")
		}
	})

	t.Run("sources tracked independently", func(t *testing.T) {
		clock := base
		tr := newAt(&clock)
		for i := 0; i < skipThreshold; i++ {
			tr.RecordFailure(SourceArxiv)
		}
		if tr.ShouldSkip(SourceSemanticScholar) {
			t.Error("failure bled across sources")
		}
	})
}
