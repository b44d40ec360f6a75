package mocks

import (
	"context"
	"sync"
)

// ProgressUpdate is one recorded UpdateProgress call.
type ProgressUpdate struct {
	Value int
	Step  string
}

// JobTracker is a thread-safe in-memory implementation of ports.JobTracker.
type JobTracker struct {
	mu        sync.RWMutex
	total     int
	progress  []ProgressUpdate
	errors    []string
	statuses  []string
	completed bool

	// UpdateProgressFn allows overriding UpdateProgress behavior.
	UpdateProgressFn func(ctx context.Context, value int, step string) error
}

// NewJobTracker creates a new mock job tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{}
}

// SetTotal records the total.
func (j *JobTracker) SetTotal(_ context.Context, total int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.total = total

	return nil
}

// UpdateProgress records a progress update.
func (j *JobTracker) UpdateProgress(ctx context.Context, value int, step string) error {
	if j.UpdateProgressFn != nil {
		if err := j.UpdateProgressFn(ctx, value, step); err != nil {
			return err
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.progress = append(j.progress, ProgressUpdate{Value: value, Step: step})

	return nil
}

// Complete marks the job completed.
func (j *JobTracker) Complete(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.completed = true

	return nil
}

// AddError records an error message.
func (j *JobTracker) AddError(_ context.Context, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.errors = append(j.errors, message)

	return nil
}

// UpdateStatus records a status change.
func (j *JobTracker) UpdateStatus(_ context.Context, status string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.statuses = append(j.statuses, status)

	return nil
}

// Total returns the last total set.
func (j *JobTracker) Total() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.total
}

// Progress returns the recorded progress updates.
func (j *JobTracker) Progress() []ProgressUpdate {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return append([]ProgressUpdate(nil), j.progress...)
}

// Errors returns the recorded error messages.
func (j *JobTracker) Errors() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return append([]string(nil), j.errors...)
}

// Statuses returns the recorded statuses in order.
func (j *JobTracker) Statuses() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return append([]string(nil), j.statuses...)
}

// Completed reports whether Complete was called.
func (j *JobTracker) Completed() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.completed
}

// Reset clears all recorded calls.
func (j *JobTracker) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.total = 0
	j.progress = nil
	j.errors = nil
	j.statuses = nil
	j.completed = false
}

// CancelChecker is a thread-safe implementation of ports.CancelChecker.
type CancelChecker struct {
	mu       sync.Mutex
	checks   int
	cancelAt int

	// IsCanceledFn allows overriding IsCanceled behavior.
	IsCanceledFn func(ctx context.Context) (bool, error)
}

// NewCancelChecker returns a checker that never reports cancellation.
func NewCancelChecker() *CancelChecker {
	return &CancelChecker{}
}

// CancelAfter makes the checker report cancellation from the n-th check on
// (1-based). Zero disables cancellation.
func (c *CancelChecker) CancelAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelAt = n
}

// IsCanceled implements ports.CancelChecker.
func (c *CancelChecker) IsCanceled(ctx context.Context) (bool, error) {
	if c.IsCanceledFn != nil {
		return c.IsCanceledFn(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks++

	return c.cancelAt > 0 && c.checks >= c.cancelAt, nil
}

// Checks returns how many times IsCanceled was called.
func (c *CancelChecker) Checks() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.checks
}
