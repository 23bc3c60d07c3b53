// internal/browser/jsexec/tracker.go
package jsexec

import (
	"context"
	"sync"
)

// JobTracker counts outstanding background work (timers, requests,
// script-initiated navigations) for one browsing session. WaitIdle blocks
// on a channel rather than polling.
type JobTracker struct {
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// NewJobTracker returns an idle tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{}
}

// Track registers one outstanding job.
func (t *JobTracker) Track() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == 0 {
		t.idle = make(chan struct{})
	}
	t.pending++
}

// Done releases one job. Calls beyond the tracked count are ignored.
func (t *JobTracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == 0 {
		return
	}
	t.pending--
	if t.pending == 0 {
		close(t.idle)
		t.idle = nil
	}
}

// Pending returns the number of outstanding jobs.
func (t *JobTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// WaitIdle blocks until no job is outstanding or ctx ends. A job tracked
// while waiting extends the wait.
func (t *JobTracker) WaitIdle(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.pending == 0 {
			t.mu.Unlock()
			return nil
		}
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
