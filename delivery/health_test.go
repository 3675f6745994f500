package delivery

import "testing"

func TestHealthTracker_NoSignalUntilWindowFull(t *testing.T) {
	h := NewHealthTracker(4, 0.5)

	// Three straight failures: window not full, no signal.
	for range 3 {
		if h.Record("ep-1", false) {
			t.Fatal("should not signal before the window is full")
		}
	}

	// Fourth failure fills the window at 0% success.
	if !h.Record("ep-1", false) {
		t.Fatal("should signal once the window is full of failures")
	}
}

func TestHealthTracker_ThresholdBoundary(t *testing.T) {
	h := NewHealthTracker(4, 0.5)

	// 2/4 success is exactly at the threshold, not below it.
	h.Record("ep-1", true)
	h.Record("ep-1", false)
	h.Record("ep-1", true)
	if h.Record("ep-1", false) {
		t.Fatal("50% success rate should not trip a 50% threshold")
	}

	// Sliding one more failure in drops below.
	if !h.Record("ep-1", false) {
		t.Fatal("success rate below threshold should signal")
	}
}

func TestHealthTracker_PerEndpointIsolation(t *testing.T) {
	h := NewHealthTracker(2, 0.5)

	h.Record("ep-bad", false)
	h.Record("ep-good", true)
	h.Record("ep-good", true)

	if !h.Record("ep-bad", false) {
		t.Fatal("ep-bad should signal")
	}
	if h.Record("ep-good", true) {
		t.Fatal("ep-good should not signal")
	}
}

func TestHealthTracker_Reset(t *testing.T) {
	h := NewHealthTracker(2, 0.5)

	h.Record("ep-1", false)
	if !h.Record("ep-1", false) {
		t.Fatal("expected signal")
	}

	h.Reset("ep-1")
	if h.Record("ep-1", false) {
		t.Fatal("reset should empty the window")
	}
}
