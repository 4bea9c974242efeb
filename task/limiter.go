package task

import (
	"context"
	"sync"
)

// limiter caps how many operations are in their running phase at once.
// Tasks over the cap stay registered and cancellable while they queue here.
//
// The cap may change while waiters are parked (SetMaxConcurrent), so the
// wait loop always re-reads limit after waking. A limit of 0 lifts the cap.
type limiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int // 0 = unlimited
	acquired int
}

// newLimiter creates a limiter. Non-positive limits mean no cap.
func newLimiter(limit int) *limiter {
	if limit < 0 {
		limit = 0
	}
	l := &limiter{limit: limit}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// acquire takes a running slot, parking the caller while the cap is full.
// A cancelled ctx aborts the wait and returns its error.
func (l *limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit == 0 {
		l.acquired++
		return nil
	}

	// Cond.Wait cannot select on ctx.Done, so a watcher turns the
	// cancellation into a Broadcast for the duration of this acquire.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.cond.Broadcast()
		case <-done:
		}
	}()

	for l.acquired >= l.limit && l.limit > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}

	// A wake from the watcher leaves the slot count unchanged.
	if err := ctx.Err(); err != nil {
		return err
	}

	l.acquired++
	return nil
}

// release returns a slot and wakes at most one queued task.
func (l *limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.acquired > 0 {
		l.acquired--
	}
	l.cond.Signal()
}

// setLimit replaces the cap and wakes every queued task so each one
// re-checks whether it now fits. Non-positive values lift the cap.
func (l *limiter) setLimit(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n < 0 {
		n = 0
	}
	l.limit = n
	l.cond.Broadcast()
}

// running reports how many operations currently hold a slot.
func (l *limiter) running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}
