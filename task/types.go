package task

import (
	"context"
	"errors"
)

// Operation is a unit of asynchronous work. It must honor ctx: cancellation
// is cooperative, and an operation that ignores its context cannot be
// cancelled. Returning the context's error reports the work as cancelled
// rather than faulted.
type Operation func(ctx context.Context) error

// Sentinel errors returned by orchestrator operations.
var (
	// ErrNilOperation is recorded on the completion when a nil operation
	// is submitted.
	ErrNilOperation = errors.New("operation must not be nil")
)

// Outcome is the terminal state of a tracked task.
type Outcome int

const (
	// OutcomePending indicates the task has not yet reached a terminal
	// state. It is the zero value and is never recorded on a settled
	// completion.
	OutcomePending Outcome = iota

	// OutcomeSucceeded indicates the operation returned nil.
	OutcomeSucceeded

	// OutcomeCancelled indicates the operation observed cancellation.
	OutcomeCancelled

	// OutcomeFaulted indicates the operation failed or panicked.
	OutcomeFaulted
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if this outcome represents a final state.
func (o Outcome) IsTerminal() bool {
	return o != OutcomePending
}

// Completion is the single-assignment result of a tracked task. It settles
// exactly once; the task is removed from its orchestrator's registry
// strictly before Done is closed.
type Completion struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// settle records the terminal outcome. Must be called exactly once.
func (c *Completion) settle(outcome Outcome, err error) {
	c.outcome = outcome
	c.err = err
	close(c.done)
}

// settled returns an already-terminal completion, used for usage errors
// detected before a task is ever registered.
func settled(outcome Outcome, err error) *Completion {
	c := newCompletion()
	c.settle(outcome, err)
	return c
}

// Done returns a channel closed when the task reaches a terminal state.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Outcome returns the terminal outcome, or OutcomePending if the task has
// not finished yet.
func (c *Completion) Outcome() Outcome {
	select {
	case <-c.done:
		return c.outcome
	default:
		return OutcomePending
	}
}

// Err blocks until the task is terminal and returns its error: nil for
// Succeeded, the context error for Cancelled, and the operation's error
// (or recovered panic) for Faulted.
func (c *Completion) Err() error {
	<-c.done
	return c.err
}

// Wait blocks until the task is terminal or ctx is done. It returns the
// task's error, or ctx.Err() if the wait itself was abandoned.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskInfo is a point-in-time snapshot of one registered task.
type TaskInfo struct {
	ID   int64
	Name string
}
