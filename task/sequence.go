package task

import (
	"context"
	"time"
)

// Sequence composes operations into a single operation that awaits each
// step strictly in order. The first step that fails or observes
// cancellation aborts the remaining steps. A nil step faults the sequence
// with ErrNilOperation.
func Sequence(ops ...Operation) Operation {
	return func(ctx context.Context) error {
		for _, op := range ops {
			if err := ctx.Err(); err != nil {
				return err
			}
			if op == nil {
				return ErrNilOperation
			}
			if err := op(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Delayed wraps op so it starts only after d has elapsed. The wait honors
// cancellation: if the context is done before the delay expires, op never
// runs and the context error is returned.
func Delayed(d time.Duration, op Operation) Operation {
	return func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if op == nil {
			return ErrNilOperation
		}
		return op(ctx)
	}
}

// RunSequence registers the ordered steps as exactly one task. Individual
// steps are not independently cancellable or trackable; cancelling the
// returned task aborts whichever step is running and skips the rest.
func (o *Orchestrator) RunSequence(ops []Operation, opts ...RunOption) *Completion {
	return o.Run(Sequence(ops...), opts...)
}

// RunDelayed registers op as one task that suspends for d before running.
func (o *Orchestrator) RunDelayed(d time.Duration, op Operation, opts ...RunOption) *Completion {
	if op == nil {
		o.logger.Error("rejected nil operation")
		return settled(OutcomeFaulted, ErrNilOperation)
	}
	return o.Run(Delayed(d, op), opts...)
}

// RunDetached starts op via Run and discards the Completion. This is an
// explicit opt-out of failure observability: success or failure is visible
// only through side effects the operation itself produces, though faults
// still reach the orchestrator's logger.
func (o *Orchestrator) RunDetached(op Operation, opts ...RunOption) {
	_ = o.Run(op, opts...)
}
