// Package task runs, cancels, and sequences asynchronous units of work.
//
// An [Orchestrator] accepts operations (func(ctx) error), assigns each a
// registry id, and tracks it until it reaches exactly one terminal
// [Outcome]: Succeeded, Cancelled, or Faulted. Cancellation is cooperative
// and composes three sources: the task's own Cancel, the orchestrator-wide
// CancelAll, and an optional caller-supplied parent context.
//
// The registry's bookkeeping is the only cross-task shared state; it is
// guarded by one mutex per orchestrator, never held while an operation
// body runs. A task is removed from the registry strictly before its
// [Completion] settles, so a drained registry implies every outcome is
// observable.
//
// [Sequence], [Delayed], and the Run helpers built on them are pure
// composition over Run; they add no state or locking of their own.
//
// There is no built-in timeout primitive. Compose timeouts by linking a
// deadline context via WithParent:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	c := orch.Run(op, task.WithParent(ctx))
package task
