package inference

import (
	"sync"
	"time"
)

// Window is a closed span of video that should be linked for playback.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Seconds returns the window length rounded to whole seconds.
func (w Window) Seconds() int {
	return int(w.Duration().Round(time.Second) / time.Second)
}

// WindowTracker groups inference bursts into bounded video windows.
//
// Tick is driven once per second while a pipeline is active; RecordInference is
// called from the ingestion path. All methods take the current time explicitly.
type WindowTracker struct {
	mu            sync.Mutex
	lastInference time.Time
	windowStart   time.Time
	pendingLink   bool
	count         int64
}

func NewWindowTracker() *WindowTracker {
	return &WindowTracker{lastInference: time.Unix(0, 0).UTC()}
}

// Reset starts bookkeeping for a freshly started pipeline.
func (t *WindowTracker) Reset(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastInference = time.Unix(0, 0).UTC()
	t.windowStart = now
	t.pendingLink = false
}

// RecordInference marks an inference observed at now and returns the running total.
func (t *WindowTracker) RecordInference(now time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastInference = now
	t.count++
	return t.count
}

// Count returns the number of inferences recorded since creation.
func (t *WindowTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Tick evaluates the window at now. It returns a window to link when one closes,
// either because inferences stopped for timeout or because the window reached maxDuration.
func (t *WindowTracker) Tick(now time.Time, timeout, maxDuration time.Duration) (Window, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sinceLast := now.Sub(t.lastInference)
	windowLen := now.Sub(t.windowStart)

	if sinceLast >= timeout {
		if t.pendingLink {
			t.pendingLink = false
			w := Window{Start: t.windowStart, End: now}
			t.windowStart = now
			return w, true
		}
		t.windowStart = now
		return Window{}, false
	}

	t.pendingLink = true
	if windowLen >= maxDuration {
		w := Window{Start: t.windowStart, End: now}
		t.windowStart = now
		return w, true
	}
	return Window{}, false
}
