package task

import (
	"context"
	"time"
)

// handle tracks one in-flight operation: its identity, a cancellation
// source derived from the orchestrator's cancel-all context and any
// caller-supplied parent context, and the single-assignment completion.
//
// Lifecycle: created and registered when the orchestrator accepts work,
// mutated only by its own execution goroutine, and removed from the
// registry exactly once, immediately upon reaching a terminal state.
type handle struct {
	id         int64
	name       string
	ctx        context.Context
	cancel     context.CancelFunc
	unlink     func() bool // detaches the parent-context watcher, nil if none
	completion *Completion
}

// Cancel triggers the handle's cancellation source. Idempotent; has no
// effect once the task is terminal.
func (h *handle) Cancel() {
	h.cancel()
}

// release frees the cancellation source and the parent-context link.
// Called exactly once, after the terminal outcome is decided.
func (h *handle) release() {
	if h.unlink != nil {
		h.unlink()
	}
	h.cancel()
}

// linkedContext joins the orchestrator-derived cancellable context with a
// caller-supplied parent: the task is cancelled iff either signals.
//
// Done is driven by the embedded context, whose cancel func an AfterFunc
// on the parent invokes. That wake-up is asynchronous, so Err consults the
// parent directly: an operation that checks ctx.Err() right after the
// parent signals must already see the cancellation, not a stale nil.
type linkedContext struct {
	context.Context                 // orchestrator-derived, cancellable
	parent          context.Context // caller-supplied
}

func (c *linkedContext) Err() error {
	if err := c.parent.Err(); err != nil {
		return err
	}
	return c.Context.Err()
}

// Deadline reports the parent's deadline; the embedded context never
// carries one of its own.
func (c *linkedContext) Deadline() (time.Time, bool) {
	return c.parent.Deadline()
}

// Value prefers the embedded chain, then falls back to the caller's
// context so request-scoped values survive the link.
func (c *linkedContext) Value(key any) any {
	if v := c.Context.Value(key); v != nil {
		return v
	}
	return c.parent.Value(key)
}
