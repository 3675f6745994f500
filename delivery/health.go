package delivery

import "sync"

// HealthTracker watches a trailing window of attempt outcomes per endpoint
// and signals when an endpoint should be auto-paused. It is the safety valve
// against hammering a permanently broken destination.
type HealthTracker struct {
	mu        sync.Mutex
	window    int
	threshold float64
	histories map[string]*history
}

type history struct {
	outcomes []bool // ring buffer of success flags
	next     int
	filled   bool
}

// NewHealthTracker creates a tracker over the given trailing window size.
// threshold is the minimum success rate; below it, Record reports the
// endpoint should be paused.
func NewHealthTracker(window int, threshold float64) *HealthTracker {
	if window <= 0 {
		window = 20
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	return &HealthTracker{
		window:    window,
		threshold: threshold,
		histories: make(map[string]*history),
	}
}

// Record registers an attempt outcome and reports whether the endpoint's
// trailing success rate has fallen below the threshold. The signal only
// fires once the window is full, so a single early failure cannot pause an
// endpoint.
func (h *HealthTracker) Record(endpointID string, success bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	hist, ok := h.histories[endpointID]
	if !ok {
		hist = &history{outcomes: make([]bool, h.window)}
		h.histories[endpointID] = hist
	}

	hist.outcomes[hist.next] = success
	hist.next = (hist.next + 1) % h.window
	if hist.next == 0 {
		hist.filled = true
	}

	if !hist.filled {
		return false
	}

	successes := 0
	for _, ok := range hist.outcomes {
		if ok {
			successes++
		}
	}

	return float64(successes)/float64(h.window) < h.threshold
}

// Reset clears an endpoint's history, e.g. after an operator reactivates it.
func (h *HealthTracker) Reset(endpointID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.histories, endpointID)
}
