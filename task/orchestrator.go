package task

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/uiforge/appcore/logging"
)

// Orchestrator runs, cancels, and tracks asynchronous operations. It owns a
// registry of id-to-handle entries guarded by one mutex; the mutex is only
// held for bookkeeping, never across an operation body.
//
// Every task's context is derived from the orchestrator's shared cancel-all
// context and, when supplied, a caller's parent context: the task is
// cancelled as soon as either signals, or when Cancel is called with its id.
//
// Failure in one task never affects siblings. Faults are logged and
// recorded on that task's Completion only.
type Orchestrator struct {
	mu           sync.Mutex
	handles      map[int64]*handle
	nextID       int64
	sharedCtx    context.Context
	sharedCancel context.CancelFunc
	logger       *logging.Logger
	limiter      *limiter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used as the fault and lifecycle sink.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxConcurrent caps how many operations run simultaneously.
// 0 means unlimited. Queued operations still count as active and are
// cancellable while waiting for a slot.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) { o.limiter = newLimiter(n) }
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		handles:      make(map[int64]*handle),
		nextID:       1,
		sharedCtx:    ctx,
		sharedCancel: cancel,
		logger:       logging.Discard(),
		limiter:      newLimiter(0),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// runConfig collects per-run options.
type runConfig struct {
	name   string
	parent context.Context
}

// RunOption configures a single Run/RunWithID call.
type RunOption func(*runConfig)

// WithName attaches a diagnostic name to the task. Names appear in logs and
// TaskInfo snapshots; they carry no identity.
func WithName(name string) RunOption {
	return func(c *runConfig) { c.name = name }
}

// WithParent links the task's cancellation to ctx: the task is cancelled
// when ctx is done, in addition to Cancel, CancelAll, and its own
// completion.
func WithParent(ctx context.Context) RunOption {
	return func(c *runConfig) { c.parent = ctx }
}

// Run accepts an operation, registers it, starts it, and returns its
// Completion. The returned Completion settles with exactly one of
// Succeeded, Cancelled, or Faulted; the task is removed from the registry
// before the outcome becomes observable.
//
// A nil operation yields an immediately-faulted Completion carrying
// ErrNilOperation.
func (o *Orchestrator) Run(op Operation, opts ...RunOption) *Completion {
	if op == nil {
		o.logger.Error("rejected nil operation")
		return settled(OutcomeFaulted, ErrNilOperation)
	}
	return o.start(op, opts).completion
}

// RunWithID is Run, but returns the task's id for later out-of-band
// cancellation instead of the Completion. Returns 0 for a nil operation.
func (o *Orchestrator) RunWithID(op Operation, opts ...RunOption) int64 {
	if op == nil {
		o.logger.Error("rejected nil operation")
		return 0
	}
	return o.start(op, opts).id
}

// start allocates an id, registers a handle whose context links the shared
// cancel-all context with any caller-supplied parent, and launches the
// execution goroutine.
func (o *Orchestrator) start(op Operation, opts []RunOption) *handle {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	o.mu.Lock()
	id := o.nextID
	o.nextID++

	ctx, cancel := context.WithCancel(o.sharedCtx)
	h := &handle{
		id:         id,
		name:       cfg.name,
		ctx:        ctx,
		cancel:     cancel,
		completion: newCompletion(),
	}
	if cfg.parent != nil {
		h.unlink = context.AfterFunc(cfg.parent, cancel)
		h.ctx = &linkedContext{Context: ctx, parent: cfg.parent}
	}
	o.handles[id] = h
	o.mu.Unlock()

	o.logger.WithTask(id, cfg.name).Debug("task started")

	go o.execute(h, op)
	return h
}

// execute runs the operation and settles the handle. Registry removal
// happens unconditionally, strictly before the completion settles.
func (o *Orchestrator) execute(h *handle, op Operation) {
	logger := o.logger.WithTask(h.id, h.name)

	var err error
	var recovered *panics.Recovered
	if err = o.limiter.acquire(h.ctx); err == nil {
		recovered = panics.Try(func() { err = op(h.ctx) })
		o.limiter.release()
	}

	var outcome Outcome
	switch {
	case recovered != nil:
		outcome = OutcomeFaulted
		err = recovered.AsError()
		logger.Error("task panicked", "error", err)
	case err == nil:
		outcome = OutcomeSucceeded
		logger.Debug("task succeeded")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = OutcomeCancelled
		logger.Info("task cancelled")
	default:
		outcome = OutcomeFaulted
		logger.Error("task faulted", "error", err)
	}

	o.mu.Lock()
	delete(o.handles, h.id)
	o.mu.Unlock()

	h.release()
	h.completion.settle(outcome, err)
}

// Cancel cancels the task with the given id. Returns false if no such task
// is registered; absence is not an error, the task may simply have
// finished already.
func (o *Orchestrator) Cancel(id int64) bool {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()

	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// CancelAll cancels every task registered before the call and installs a
// fresh cancel-all context, so tasks started afterward are unaffected.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	cancel := o.sharedCancel
	o.sharedCtx, o.sharedCancel = context.WithCancel(context.Background())
	count := len(o.handles)
	o.mu.Unlock()

	cancel()
	o.logger.Info("cancelled all tasks", "task_count", count)
}

// Wait blocks until every task registered at call time has completed.
// Tasks started afterward are not waited on.
func (o *Orchestrator) Wait() {
	for _, c := range o.snapshot() {
		<-c.Done()
	}
}

// WaitContext is Wait with an upper bound: it returns ctx.Err() if ctx is
// done before the snapshot drains, nil otherwise.
func (o *Orchestrator) WaitContext(ctx context.Context) error {
	for _, c := range o.snapshot() {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// snapshot returns the completions of all currently registered tasks.
func (o *Orchestrator) snapshot() []*Completion {
	o.mu.Lock()
	defer o.mu.Unlock()

	completions := make([]*Completion, 0, len(o.handles))
	for _, h := range o.handles {
		completions = append(completions, h.completion)
	}
	return completions
}

// ActiveCount returns the number of registered tasks at the instant of the
// call. The count is advisory under concurrent mutation, but a task is
// never reported absent before its completion is observable.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

// ActiveTasks returns a snapshot of the registered tasks for diagnostics.
func (o *Orchestrator) ActiveTasks() []TaskInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	infos := make([]TaskInfo, 0, len(o.handles))
	for _, h := range o.handles {
		infos = append(infos, TaskInfo{ID: h.id, Name: h.name})
	}
	return infos
}

// SetMaxConcurrent adjusts the concurrency cap at runtime. 0 means
// unlimited. Operations already waiting for a slot re-evaluate against the
// new limit.
func (o *Orchestrator) SetMaxConcurrent(n int) {
	o.limiter.setLimit(n)
}
