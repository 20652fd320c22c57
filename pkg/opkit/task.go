package opkit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TaskState is the lifecycle of a Task, matching §3's TaskState enum.
type TaskState int32

const (
	TaskInitial TaskState = iota
	TaskRunning
	TaskFinished
)

// TaskConfig names a task for logging/metrics and expresses its executor
// preference.
type TaskConfig struct {
	Name     string
	Executor Executor
}

// Dependency is the type-erased view of a Task used for scheduling edges:
// a Task[V]'s dependency list can hold tasks of any value type, since
// dependencies order side effects only and never hand back a value (§9
// design notes).
type Dependency interface {
	taskID() string
	dependencies() []Dependency
	runIfNeeded(ctx context.Context)
}

// Task is an immutable descriptor for a single cancellable unit of async
// work with at-most-once execution: the first caller of RunIfNeeded runs
// the body, every other (concurrent or later) caller awaits the same
// result. Grounded on bufbuild-protocompile's experimental/incremental
// package, which memoizes query execution the same way with an atomic
// "try to become the executor" handoff; this version trades that package's
// CompareAndSwap-on-a-pointer for a sync.Once, since a Task (unlike an
// incremental Executor's task) is single-use by construction.
type Task[V any] struct {
	id     string
	herdID uint64
	cfg    TaskConfig
	opCtx  *OpContext
	fn     func(context.Context, *OpContext, *Continuation[V]) (V, error)

	onYield func(Result[V])
	sink    DiagnosticSink

	runCtx context.Context
	cancel context.CancelFunc

	depsMu sync.Mutex
	deps   []Dependency

	cancelled atomic.Bool
	state     atomic.Int32

	startOnce sync.Once
	done      chan struct{}
	result    V
	err       error
}

// NewTask constructs a Task bound to opCtx and parent, ready to run fn.
// parent governs the task's own cancellation context (derived via
// context.WithCancel); cancelling parent cancels the task cooperatively the
// same way Task.Cancel does.
func NewTask[V any](parent context.Context, cfg TaskConfig, opCtx *OpContext, fn func(context.Context, *OpContext, *Continuation[V]) (V, error)) *Task[V] {
	runCtx, cancel := context.WithCancel(parent)
	return &Task[V]{
		id:     uuid.NewString(),
		cfg:    cfg,
		opCtx:  opCtx,
		fn:     fn,
		runCtx: runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// OnYield registers the callback invoked for every intermediate Yield the
// task's body produces before its final return. Must be called before
// RunIfNeeded's first invocation; the owning Store is the only caller.
func (t *Task[V]) OnYield(sink DiagnosticSink, fn func(Result[V])) {
	t.sink = sink
	t.onYield = fn
}

// HerdID returns the herd generation last stamped with SetHerdID, or zero
// if none was. The Store does not read it: it records each task's herd in
// its OperationState and checks that record after a reset.
func (t *Task[V]) HerdID() uint64 { return t.herdID }

// SetHerdID stamps the task with a herd generation. Must be called before
// RunIfNeeded's first invocation.
func (t *Task[V]) SetHerdID(id uint64) { t.herdID = id }

// ID returns the task's unique identifier.
func (t *Task[V]) ID() string { return t.id }

func (t *Task[V]) taskID() string { return t.id }

func (t *Task[V]) dependencies() []Dependency {
	t.depsMu.Lock()
	defer t.depsMu.Unlock()
	out := make([]Dependency, len(t.deps))
	copy(out, t.deps)
	return out
}

// ScheduleAfter appends other to this task's dependency list: when this
// task runs, other is run to completion (failures ignored) before this
// task's own body executes. If doing so would create a cycle along the
// "after" edges, the edge is refused, a circular_task_scheduling
// diagnostic is reported to the task's sink (the default sink if none was
// bound), and ErrCircularSchedule is returned.
func (t *Task[V]) ScheduleAfter(other Dependency) error {
	if other == nil {
		return nil
	}
	if dependsOn(other, t.id) || other.taskID() == t.id {
		sink := t.sink
		if sink == nil {
			sink = defaultSink
		}
		sink.Warn("circular_task_scheduling", map[string]any{"task": t.id, "after": other.taskID()})
		return ErrCircularSchedule
	}
	t.depsMu.Lock()
	t.deps = append(t.deps, other)
	t.depsMu.Unlock()
	return nil
}

func dependsOn(d Dependency, targetID string) bool {
	visited := map[string]bool{}
	var walk func(Dependency) bool
	walk = func(cur Dependency) bool {
		if cur.taskID() == targetID {
			return true
		}
		if visited[cur.taskID()] {
			return false
		}
		visited[cur.taskID()] = true
		for _, dep := range cur.dependencies() {
			if walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(d)
}

// HasStarted reports whether RunIfNeeded has been called at least once.
func (t *Task[V]) HasStarted() bool { return TaskState(t.state.Load()) != TaskInitial }

// IsRunning reports whether the task's body is currently executing.
func (t *Task[V]) IsRunning() bool { return TaskState(t.state.Load()) == TaskRunning }

// IsFinished reports whether the task has produced a final result.
func (t *Task[V]) IsFinished() bool { return TaskState(t.state.Load()) == TaskFinished }

// IsCancelled reports whether Cancel has been called, regardless of whether
// the body observed it yet.
func (t *Task[V]) IsCancelled() bool { return t.cancelled.Load() }

// FinishedResult returns the task's result and whether it has one yet.
func (t *Task[V]) FinishedResult() (V, bool) {
	if !t.IsFinished() {
		var zero V
		return zero, false
	}
	return t.result, true
}

// Cancel marks the task cancelled and attempts cooperative cancellation of
// an in-flight body by cancelling its run context. Cancelling a task that
// has already finished is a no-op for state purposes; the stored result is
// unaffected.
func (t *Task[V]) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// RunIfNeeded runs the task body on first call; every call (concurrent or
// sequential) blocks until the body has produced a result and returns that
// same result. waitCtx governs only this caller's wait — cancelling it
// returns early with waitCtx.Err() without affecting the task itself or any
// other waiter.
func (t *Task[V]) RunIfNeeded(waitCtx context.Context) (V, error) {
	t.startOnce.Do(func() {
		t.state.Store(int32(TaskRunning))
		go t.execute()
	})

	select {
	case <-t.done:
		return t.result, t.err
	case <-waitCtx.Done():
		var zero V
		return zero, waitCtx.Err()
	}
}

// execute runs the body once on its own goroutine, so the caller that
// started the task waits on done exactly like every other caller.
func (t *Task[V]) execute() {
	defer func() {
		t.state.Store(int32(TaskFinished))
		close(t.done)
	}()

	if t.cancelled.Load() {
		var zero V
		t.result, t.err = zero, ErrCancelled
		return
	}

	for _, dep := range t.dependencies() {
		dep.runIfNeeded(t.runCtx)
	}

	cont := newContinuation[V](t.sink)
	if t.onYield != nil {
		cont.bind(t.onYield)
	}
	run := func() {
		t.result, t.err = t.fn(t.runCtx, t.opCtx, cont)
	}
	if t.cfg.Executor != nil {
		t.cfg.Executor.Execute(run)
	} else {
		InlineExecutor{}.Execute(run)
	}
	cont.finish()

	if t.runCtx.Err() != nil && (t.err == nil || errors.Is(t.err, t.runCtx.Err())) {
		var zero V
		t.result, t.err = zero, ErrCancelled
	}
}

func (t *Task[V]) runIfNeeded(ctx context.Context) {
	_, _ = t.RunIfNeeded(ctx)
}

// Map returns a new Task that awaits t and applies fn to its successful
// result; a failure or cancellation of t propagates to the mapped task
// untouched.
func Map[V, W any](t *Task[V], fn func(V) W) *Task[W] {
	return NewTask(t.runCtx, TaskConfig{Name: t.cfg.Name + ".map"}, t.opCtx, func(ctx context.Context, _ *OpContext, _ *Continuation[W]) (W, error) {
		v, err := t.RunIfNeeded(ctx)
		var zero W
		if err != nil {
			return zero, err
		}
		return fn(v), nil
	})
}
