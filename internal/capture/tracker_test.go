package capture

import (
	"testing"
	"time"
)

func TestTracker_SuppressesWithinWindow(t *testing.T) {
	tr := NewTracker(10*time.Second, 0)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !tr.Allow(7, t0) {
		t.Fatal("first confirmation must be allowed")
	}
	if tr.Allow(7, t0.Add(4*time.Second)) {
		t.Error("second confirmation within window must be suppressed")
	}
	if !tr.Allow(7, t0.Add(10*time.Second)) {
		t.Error("confirmation after the window must be allowed")
	}
}

func TestTracker_SuppressionDoesNotExtendWindow(t *testing.T) {
	tr := NewTracker(10*time.Second, 0)
	t0 := time.Now()

	tr.Allow(1, t0)
	tr.Allow(1, t0.Add(9*time.Second))
	if !tr.Allow(1, t0.Add(11*time.Second)) {
		t.Error("window must be measured from the last accepted confirmation")
	}
}

func TestTracker_DistinctSubjects(t *testing.T) {
	tr := NewTracker(10*time.Second, 0)
	t0 := time.Now()

	if !tr.Allow(1, t0) || !tr.Allow(2, t0) {
		t.Error("different subjects must not suppress each other")
	}
}

func TestTracker_EvictsStaleEntries(t *testing.T) {
	tr := NewTracker(time.Second, 0)
	t0 := time.Now()
	for i := range 100 {
		tr.Allow(int64(i), t0)
	}
	tr.Allow(1000, t0.Add(2*time.Second))
	if got := tr.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after stale eviction", got)
	}
}

func TestTracker_HardCap(t *testing.T) {
	tr := NewTracker(time.Hour, 3)
	t0 := time.Now()
	for i := range 5 {
		tr.Allow(int64(i), t0.Add(time.Duration(i)*time.Second))
	}
	if got := tr.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	// Subject 0 was the oldest and got evicted, so it is allowed again.
	if !tr.Allow(0, t0.Add(10*time.Second)) {
		t.Error("evicted subject should be allowed")
	}
	if tr.Allow(4, t0.Add(10*time.Second)) {
		t.Error("recent subject should still be suppressed")
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(time.Hour, 0)
	t0 := time.Now()
	tr.Allow(1, t0)
	tr.Reset()
	if !tr.Allow(1, t0.Add(time.Second)) {
		t.Error("Reset must clear suppression state")
	}
}
