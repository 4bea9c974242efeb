package task

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/uiforge/appcore/logging"
)

// blockUntil returns an operation that waits for release or cancellation.
func blockUntil(release <-chan struct{}) Operation {
	return func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sleepOp returns an operation that sleeps for d, honoring cancellation.
func sleepOp(d time.Duration) Operation {
	return func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestRun_Succeeds(t *testing.T) {
	o := New()

	c := o.Run(func(ctx context.Context) error {
		return nil
	})

	if err := c.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
	if c.Outcome() != OutcomeSucceeded {
		t.Errorf("Outcome = %v, want succeeded", c.Outcome())
	}
	if o.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", o.ActiveCount())
	}
}

func TestRun_RemovedBeforeOutcomeObservable(t *testing.T) {
	o := New()

	c := o.Run(func(ctx context.Context) error {
		return nil
	})

	<-c.Done()
	// Registry removal happens strictly before Done closes.
	if o.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after completion, want 0", o.ActiveCount())
	}
}

func TestRun_Faulted(t *testing.T) {
	o := New()

	boom := errors.New("boom")
	c := o.Run(func(ctx context.Context) error {
		return boom
	})

	if err := c.Err(); !errors.Is(err, boom) {
		t.Fatalf("Err = %v, want boom", err)
	}
	if c.Outcome() != OutcomeFaulted {
		t.Errorf("Outcome = %v, want faulted", c.Outcome())
	}
}

func TestRun_FaultIsolatedFromSiblings(t *testing.T) {
	o := New()

	release := make(chan struct{})
	sibling := o.Run(blockUntil(release))
	faulty := o.Run(func(ctx context.Context) error {
		return errors.New("boom")
	})

	<-faulty.Done()
	if sibling.Outcome() != OutcomePending {
		t.Error("a fault in one task must not touch siblings")
	}

	close(release)
	if err := sibling.Err(); err != nil {
		t.Errorf("sibling Err = %v, want nil", err)
	}
}

func TestRun_PanicBecomesFault(t *testing.T) {
	var buf bytes.Buffer
	o := New(WithLogger(logging.New(&buf, logging.LevelDebug)))

	c := o.Run(func(ctx context.Context) error {
		panic("kaboom")
	})

	err := c.Err()
	if err == nil {
		t.Fatal("a panicking operation must fault its completion")
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("Err should carry the panic value, got %v", err)
	}
	if c.Outcome() != OutcomeFaulted {
		t.Errorf("Outcome = %v, want faulted", c.Outcome())
	}
	if !strings.Contains(buf.String(), "task panicked") {
		t.Error("panic should reach the logger")
	}
}

func TestRun_NilOperation(t *testing.T) {
	o := New()

	c := o.Run(nil)
	if err := c.Err(); !errors.Is(err, ErrNilOperation) {
		t.Errorf("Err = %v, want ErrNilOperation", err)
	}
	if c.Outcome() != OutcomeFaulted {
		t.Errorf("Outcome = %v, want faulted", c.Outcome())
	}
	if o.ActiveCount() != 0 {
		t.Error("a rejected operation must not be registered")
	}

	if id := o.RunWithID(nil); id != 0 {
		t.Errorf("RunWithID(nil) = %d, want 0", id)
	}
}

func TestRunWithID_CancelByID(t *testing.T) {
	o := New()

	started := make(chan struct{})
	id := o.RunWithID(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, WithName("cancellable"))

	if id == 0 {
		t.Fatal("RunWithID should return a non-zero id")
	}

	<-started
	if o.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d while running, want 1", o.ActiveCount())
	}

	found := false
	for _, info := range o.ActiveTasks() {
		if info.ID == id && info.Name == "cancellable" {
			found = true
		}
	}
	if !found {
		t.Error("ActiveTasks should report a still-running RunWithID task")
	}

	if !o.Cancel(id) {
		t.Error("Cancel of a running task should return true")
	}

	o.Wait()
	if o.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after cancel, want 0", o.ActiveCount())
	}
}

func TestCancel_UnknownID(t *testing.T) {
	o := New()

	if o.Cancel(12345) {
		t.Error("Cancel of an unknown id should return false")
	}
	if o.ActiveCount() != 0 {
		t.Error("Cancel of an unknown id should have no side effect")
	}
}

func TestCancel_AfterCompletionReturnsFalse(t *testing.T) {
	o := New()

	started := make(chan struct{})
	id := o.RunWithID(func(ctx context.Context) error {
		close(started)
		return nil
	})
	<-started
	o.Wait()

	if o.Cancel(id) {
		t.Error("Cancel after the task finished should return false")
	}
}

func TestCancelAll(t *testing.T) {
	o := New()

	first := o.Run(blockUntil(nil))
	second := o.Run(blockUntil(nil))

	o.CancelAll()

	if err := first.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("first Err = %v, want context.Canceled", err)
	}
	if err := second.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("second Err = %v, want context.Canceled", err)
	}
	if first.Outcome() != OutcomeCancelled || second.Outcome() != OutcomeCancelled {
		t.Error("both outstanding tasks should be cancelled")
	}

	// Tasks started after CancelAll get a fresh cancel-all token.
	after := o.Run(func(ctx context.Context) error {
		return ctx.Err()
	})
	if err := after.Err(); err != nil {
		t.Errorf("task started after CancelAll should be unaffected, got %v", err)
	}
}

func TestRun_ParentContextCancellation(t *testing.T) {
	o := New()

	parent, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	c := o.Run(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, WithParent(parent))

	<-started
	cancel()

	if err := c.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", err)
	}
	if c.Outcome() != OutcomeCancelled {
		t.Errorf("Outcome = %v, want cancelled", c.Outcome())
	}
}

func TestRun_ParentCancellationVisibleImmediately(t *testing.T) {
	o := New()

	parent, cancel := context.WithCancel(context.Background())
	c := o.Run(func(ctx context.Context) error {
		cancel()
		// The parent's cancellation must be observable right here,
		// without waiting for the Done watcher to fire.
		return ctx.Err()
	}, WithParent(parent))

	if err := c.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", err)
	}
	if c.Outcome() != OutcomeCancelled {
		t.Errorf("Outcome = %v, want cancelled", c.Outcome())
	}
}

func TestRun_ParentTimeoutComposesDeadline(t *testing.T) {
	o := New()

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := o.Run(blockUntil(nil), WithParent(parent))

	if err := c.Err(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want context.DeadlineExceeded", err)
	}
	if c.Outcome() != OutcomeCancelled {
		t.Errorf("Outcome = %v, want cancelled", c.Outcome())
	}
}

func TestWait_ReturnsAfterSlowest(t *testing.T) {
	o := New()

	start := time.Now()
	a := o.Run(sleepOp(100*time.Millisecond), WithName("a"))
	b := o.Run(sleepOp(10*time.Millisecond), WithName("b"))

	o.Wait()
	elapsed := time.Since(start)

	if a.Outcome() != OutcomeSucceeded || b.Outcome() != OutcomeSucceeded {
		t.Error("Wait should return only after both tasks complete")
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("Wait returned after %v, want ~100ms (slowest task)", elapsed)
	}
}

func TestWait_SnapshotSemantics(t *testing.T) {
	o := New()

	release := make(chan struct{})
	first := o.Run(blockUntil(release))

	waited := make(chan struct{})
	go func() {
		o.Wait()
		close(waited)
	}()

	// Give the waiter time to take its snapshot, then start a task that
	// never finishes. The snapshot wait must not cover it.
	time.Sleep(50 * time.Millisecond)
	o.Run(blockUntil(nil), WithName("late"))

	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait should cover only the snapshot, not late tasks")
	}

	if first.Outcome() != OutcomeSucceeded {
		t.Error("snapshot member should have completed before Wait returned")
	}
	if o.ActiveCount() == 0 {
		t.Error("late task should still be active after the snapshot wait")
	}

	o.CancelAll()
	o.Wait()
}

func TestWaitContext_Bounded(t *testing.T) {
	o := New()

	o.Run(blockUntil(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := o.WaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitContext = %v, want context.DeadlineExceeded", err)
	}

	o.CancelAll()
	o.Wait()
}

func TestMaxConcurrent_CapsRunningOperations(t *testing.T) {
	o := New(WithMaxConcurrent(1))

	release := make(chan struct{})
	firstRunning := make(chan struct{})
	first := o.Run(func(ctx context.Context) error {
		close(firstRunning)
		<-release
		return nil
	})

	<-firstRunning
	secondRan := make(chan struct{})
	second := o.Run(func(ctx context.Context) error {
		close(secondRan)
		return nil
	})

	select {
	case <-secondRan:
		t.Fatal("second operation ran while the first held the only slot")
	case <-time.After(30 * time.Millisecond):
	}

	// Queued operations still count as active.
	if o.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d, want 2", o.ActiveCount())
	}

	close(release)
	if err := first.Err(); err != nil {
		t.Errorf("first Err = %v, want nil", err)
	}
	if err := second.Err(); err != nil {
		t.Errorf("second Err = %v, want nil", err)
	}
}

func TestMaxConcurrent_CancelWhileQueued(t *testing.T) {
	o := New(WithMaxConcurrent(1))

	release := make(chan struct{})
	firstRunning := make(chan struct{})
	o.Run(func(ctx context.Context) error {
		close(firstRunning)
		<-release
		return nil
	})
	<-firstRunning

	ran := false
	id := o.RunWithID(func(ctx context.Context) error {
		ran = true
		return nil
	})

	if !o.Cancel(id) {
		t.Fatal("Cancel of a queued task should return true")
	}

	close(release)
	o.Wait()

	if ran {
		t.Error("a task cancelled while queued must never run")
	}
}

func TestRun_LifecycleIsLogged(t *testing.T) {
	var buf bytes.Buffer
	o := New(WithLogger(logging.New(&buf, logging.LevelDebug)))

	c := o.Run(func(ctx context.Context) error {
		return nil
	}, WithName("loader"))
	<-c.Done()

	logs := buf.String()
	if !strings.Contains(logs, "task started") {
		t.Error("task start should be logged")
	}
	if !strings.Contains(logs, "task succeeded") {
		t.Error("task success should be logged")
	}
	if !strings.Contains(logs, "loader") {
		t.Error("logs should carry the diagnostic name")
	}
}
