package opkit

import (
	"context"
	"sync"
)

// storeConfig collects NewStore's optional settings (§4.6). Grounded on the
// functional-options shape `pkg/storage`'s Config constructors use.
type storeConfig[V any] struct {
	initial    V
	hasInitial bool
	sink       DiagnosticSink
	metrics    MetricsRecorder
}

// StoreOption configures a Store at construction time.
type StoreOption[V any] func(*storeConfig[V])

// WithInitialValue seeds the store's initial/current value, restored on
// every ResetState.
func WithInitialValue[V any](v V) StoreOption[V] {
	return func(c *storeConfig[V]) { c.initial, c.hasInitial = v, true }
}

// WithDiagnosticSink overrides the default (no-op) diagnostic sink.
func WithDiagnosticSink[V any](sink DiagnosticSink) StoreOption[V] {
	return func(c *storeConfig[V]) { c.sink = sink }
}

// WithMetrics attaches a MetricsRecorder the store and its Retry modifier
// report run/retry counts to.
func WithMetrics[V any](m MetricsRecorder) StoreOption[V] {
	return func(c *storeConfig[V]) { c.metrics = m }
}

// Store owns one operation's runtime state, serialising every mutation
// behind a single mutex and fanning observers out once that mutation is
// complete (§4.6). Grounded on pkg/manager/manager.go's shape: one struct
// owning authoritative state behind a lock, exposing narrow methods, plus
// pkg/events.Broker for the subscriber fan-out wired in below.
//
// Go's sync.Mutex is not re-entrant, unlike the spec's required store
// lock. Rather than hand-roll a recursive lock, this Store never calls
// back into user code (event handlers, subscribers, controllers) while
// holding its mutex — every emit* helper runs after the lock has been
// released. WithExclusiveAccess, the one place the spec wants a
// read-modify-write critical section, takes get/set closures instead of
// `*Store` so the callback never needs to reacquire the lock.
type Store[V any] struct {
	pathValue Path
	op        Operation[V]
	baseCtx   *OpContext

	mu    sync.Mutex
	state *OperationState[V]

	statusSubs *SubscriptionList[func(Status[V])]
	handlers   []EventHandler[V]

	autoRunTask *Task[V]

	inFlight     *Task[V]
	inFlightRefs int

	clock   Clock
	sink    DiagnosticSink
	metrics MetricsRecorder

	controllersMu sync.Mutex
	controllers   []*Subscription
	closed        boolFlag
}

// boolFlag is a tiny CAS-guarded bool, avoiding an import of sync/atomic's
// Bool type alias churn across the file; kept local since only Store.Close
// needs it.
type boolFlag struct {
	mu sync.Mutex
	v  bool
}

func (b *boolFlag) set()      { b.mu.Lock(); b.v = true; b.mu.Unlock() }
func (b *boolFlag) get() bool { b.mu.Lock(); defer b.mu.Unlock(); return b.v }

// NewStore builds a Store for op at path, running op's Setup chain once to
// seed the base context.
func NewStore[V any](path Path, op Operation[V], opts ...StoreOption[V]) *Store[V] {
	cfg := &storeConfig[V]{sink: defaultSink, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(cfg)
	}
	baseCtx := op.Setup(NewOpContext())
	baseCtx = Set(baseCtx, MetricsRecorderKey, cfg.metrics)

	return &Store[V]{
		pathValue:  path,
		op:         op,
		baseCtx:    baseCtx,
		state:      NewOperationState[V](cfg.initial, cfg.hasInitial),
		statusSubs: NewSubscriptionList[func(Status[V])](),
		handlers:   Get(baseCtx, EventHandlersKey[V]()),
		clock:      Get(baseCtx, ClockKey),
		sink:       cfg.sink,
		metrics:    cfg.metrics,
	}
}

// Path returns the operation's registry path.
func (s *Store[V]) Path() Path { return s.pathValue }

// Context returns the store's base context, the snapshot every task forks
// from.
func (s *Store[V]) Context() *OpContext { return s.baseCtx }

// Status returns the current derived status.
func (s *Store[V]) Status() Status[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.status()
}

// CurrentValue returns the current value and whether one has ever been set.
func (s *Store[V]) CurrentValue() (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentValue()
}

// IsLoading reports whether any task is currently scheduled or running.
func (s *Store[V]) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsLoading()
}

// IsStale evaluates the composite StalePredicate seeded by
// StaleWhenRevalidate (AlwaysStale if none was applied).
func (s *Store[V]) IsStale() bool {
	predicate := Get(s.baseCtx, StalePredicateKey[V]())
	s.mu.Lock()
	defer s.mu.Unlock()
	return predicate(s.state, s.baseCtx)
}

// IsAutomaticRunningEnabled reports whether Subscribe may trigger a run on
// first subscriber while stale.
func (s *Store[V]) IsAutomaticRunningEnabled() bool {
	return Get(s.baseCtx, AutoRunEnabledKey)
}

// SubscriberCount returns the number of non-temporary subscribers.
func (s *Store[V]) SubscriberCount() int { return s.statusSubs.Count() }

// RunTask schedules a task for this operation and starts it in the
// background without awaiting it, returning the Task handle so callers may
// await or cancel it themselves. If DedupEnabledKey is set and a task for
// this path is already in flight, the existing Task is returned instead of
// a new one, and no second owner is started for it.
func (s *Store[V]) RunTask(ctx context.Context) *Task[V] {
	task, isOwner := s.acquireTask(ctx)
	if isOwner {
		go s.own(task)
	}
	return task
}

// Run ensures a task exists for this operation, optionally attaching
// temporary handlers for the duration of the call, and awaits its result.
// The caller that creates the task (the first one in, or any caller when
// deduplication is off) drives it through to completion itself, so Run
// never returns before the task's result has been folded into state.
// Later callers that attach to an already in-flight task (§4.5
// Deduplication) instead await that task directly; if their own ctx is
// cancelled first they detach without disturbing the shared run, which is
// only cancelled once its last attached caller has dropped.
func (s *Store[V]) Run(ctx context.Context, handlers ...func(Status[V])) (V, error) {
	task, isOwner := s.acquireTask(ctx)

	var temp []*Subscription
	for _, h := range handlers {
		sub, _ := s.statusSubs.Add(h, true)
		temp = append(temp, sub)
	}
	defer func() {
		for _, sub := range temp {
			sub.Cancel()
		}
	}()

	if isOwner {
		return s.own(task)
	}

	value, err := task.RunIfNeeded(ctx)
	if ctx.Err() != nil && err == ctx.Err() {
		s.detach(task)
	}
	return value, err
}

// acquireTask returns the Task this caller should run or await, and
// whether this caller is its owner (responsible for calling own). When
// deduplication is enabled and a task for this path is still in flight, an
// existing caller's Task is reused and isOwner is false; otherwise a fresh
// task is created, recorded as active under the store lock, and this
// caller becomes its owner.
func (s *Store[V]) acquireTask(ctx context.Context) (task *Task[V], isOwner bool) {
	dedup := Get(s.baseCtx, DedupEnabledKey)

	s.mu.Lock()
	if dedup && s.inFlight != nil && !s.inFlight.IsFinished() {
		task = s.inFlight
		s.inFlightRefs++
		s.mu.Unlock()
		return task, false
	}

	cfg := Get(s.baseCtx, TaskConfigKey)
	if cfg.Name == "" {
		cfg.Name = s.pathValue.String()
	}
	snapshot := s.baseCtx.clone()
	task = NewTask[V](ctx, cfg, snapshot, s.op.Run)
	task.OnYield(s.sink, func(res Result[V]) { s.ingestYield(task, res) })
	s.state.schedule(task.ID(), task.Cancel)
	if dedup {
		s.inFlight = task
		s.inFlightRefs = 1
	}
	s.mu.Unlock()

	s.forEachHandler(func(h EventHandler[V]) {
		if h.OnRunStarted != nil {
			h.OnRunStarted()
		}
	})
	return task, true
}

// detach records that one attached (non-owner) caller of a shared,
// deduplicated task is no longer waiting on it because its own context was
// cancelled. The shared task itself is only cancelled once every attached
// caller, including its owner, has dropped.
func (s *Store[V]) detach(task *Task[V]) {
	s.mu.Lock()
	if s.inFlight == task {
		s.inFlightRefs--
		if s.inFlightRefs <= 0 {
			s.mu.Unlock()
			task.Cancel()
			return
		}
	}
	s.mu.Unlock()
}

// own runs task to completion, folds its result into state, and returns
// that result. The owner returned by acquireTask is the only caller that
// may invoke own for a given task; Run calls it synchronously so it never
// returns ahead of state ingestion, and RunTask launches it in the
// background, matching its documented fire-and-forget contract.
func (s *Store[V]) own(task *Task[V]) (V, error) {
	start := s.clock.Now()
	value, err := task.RunIfNeeded(context.Background())

	outcome := "success"
	switch {
	case err == ErrCancelled:
		outcome = "cancelled"
	case err != nil:
		outcome = "failure"
	}
	s.metrics.RecordRun(s.pathValue.String(), outcome, s.clock.Now().Sub(start))

	s.finishTask(task, Result[V]{Value: value, Err: err})

	s.mu.Lock()
	if s.inFlight == task {
		s.inFlight = nil
		s.inFlightRefs = 0
	}
	s.mu.Unlock()

	return value, err
}

// ingestYield applies an intermediate result if task is still the active
// task of record for its herd, then notifies observers.
func (s *Store[V]) ingestYield(task *Task[V], res Result[V]) {
	s.mu.Lock()
	herd, tracked := s.state.herdOf(task.ID())
	if !tracked {
		s.mu.Unlock()
		return
	}
	if res.Err != nil {
		s.state.ingestFailure(res.Err, herd, s.clock)
	} else {
		s.state.ingestSuccess(res.Value, herd, s.clock)
	}
	status := s.state.status()
	s.mu.Unlock()

	s.emitResultReceived(res, ReasonYielded)
	s.emitStateChanged(status)
}

// finishTask applies a final result, removes task from the active set, and
// notifies observers that the run has ended.
func (s *Store[V]) finishTask(task *Task[V], res Result[V]) {
	s.mu.Lock()
	herd, tracked := s.state.herdOf(task.ID())
	if tracked {
		if res.Err != nil {
			s.state.ingestFailure(res.Err, herd, s.clock)
		} else {
			s.state.ingestSuccess(res.Value, herd, s.clock)
		}
	}
	s.state.finish(task.ID())
	status := s.state.status()
	s.mu.Unlock()

	s.emitResultReceived(res, ReasonReturnedFinal)
	s.forEachHandler(func(h EventHandler[V]) {
		if h.OnRunEnded != nil {
			h.OnRunEnded()
		}
	})
	s.emitStateChanged(status)
}

// SetResult applies res directly, as if it were a task's final result, for
// callers (controllers, tests) that want to drive state without going
// through the task machinery.
func (s *Store[V]) SetResult(res Result[V]) {
	s.mu.Lock()
	herd := s.state.HerdID()
	if res.Err != nil {
		s.state.ingestFailure(res.Err, herd, s.clock)
	} else {
		s.state.ingestSuccess(res.Value, herd, s.clock)
	}
	status := s.state.status()
	s.mu.Unlock()

	s.emitResultReceived(res, ReasonReturnedFinal)
	s.emitStateChanged(status)
}

// SetCurrentValue sets the value directly, equivalent to SetResult(Ok(v)).
func (s *Store[V]) SetCurrentValue(v V) { s.SetResult(Ok(v)) }

// ResetState restores the initial value, clears counters, bumps the herd
// generation, and cancels any tasks that were in flight.
func (s *Store[V]) ResetState() {
	s.mu.Lock()
	effect := s.state.reset(s.clock)
	status := s.state.status()
	s.mu.Unlock()

	effect.Cancel()
	s.emitStateChanged(status)
}

// WithExclusiveAccess runs fn with exclusive access to the current value,
// guaranteeing no task or controller can ingest a result between the read
// and the write. fn is given a snapshot getter and a setter that both
// operate on the live state; it must not call back into any other Store
// method, which would deadlock against the held lock.
func (s *Store[V]) WithExclusiveAccess(fn func(get func() (V, bool), set func(V))) {
	s.mu.Lock()
	get := func() (V, bool) { return s.state.CurrentValue() }
	set := func(v V) { s.state.ingestSuccess(v, s.state.HerdID(), s.clock) }
	fn(get, set)
	status := s.state.status()
	s.mu.Unlock()

	s.emitStateChanged(status)
}

// Subscribe registers handler for state-change notifications, invoking it
// immediately with the current status. If handler is the first
// non-temporary subscriber and the store is both stale and eligible for
// automatic running, a run is scheduled. Cancelling the returned
// Subscription cancels that automatic run once the last subscriber drops.
func (s *Store[V]) Subscribe(handler func(Status[V])) *Subscription {
	sub, isFirst := s.statusSubs.Add(handler, false)
	handler(s.Status())
	s.metrics.SetSubscribers(s.pathValue.String(), s.statusSubs.Count())

	if isFirst && s.IsStale() && s.IsAutomaticRunningEnabled() {
		s.mu.Lock()
		needsStart := s.autoRunTask == nil || s.autoRunTask.IsFinished()
		s.mu.Unlock()
		if needsStart {
			task := s.RunTask(context.Background())
			s.mu.Lock()
			s.autoRunTask = task
			s.mu.Unlock()
		}
	}

	return NewSubscription(func() {
		sub.Cancel()
		s.metrics.SetSubscribers(s.pathValue.String(), s.statusSubs.Count())
		if s.statusSubs.Count() == 0 {
			s.mu.Lock()
			task := s.autoRunTask
			s.autoRunTask = nil
			s.mu.Unlock()
			if task != nil {
				task.Cancel()
			}
		}
	})
}

func (s *Store[V]) forEachHandler(fn func(EventHandler[V])) {
	for _, h := range s.handlers {
		fn(h)
	}
}

func (s *Store[V]) emitResultReceived(res Result[V], reason UpdateReason) {
	s.forEachHandler(func(h EventHandler[V]) {
		if h.OnResultReceived != nil {
			h.OnResultReceived(res, reason)
		}
	})
}

func (s *Store[V]) emitStateChanged(status Status[V]) {
	s.forEachHandler(func(h EventHandler[V]) {
		if h.OnStateChanged != nil {
			h.OnStateChanged(status)
		}
	})
	s.statusSubs.ForEach(func(handler func(Status[V])) { handler(status) })
}

// Controller is an external driver of a store's state, injecting values
// from outside the normal operation-body flow (push notifications,
// websocket frames, manual overrides).
type Controller[V any] interface {
	Control(controls Controls[V]) *Subscription
}

// Controls is the narrow surface a Controller uses to drive its store.
// Every method reports a controller_deallocated_access diagnostic once the
// owning store has been closed; after that, Status still returns the
// store's current status and every other method leaves the store untouched.
type Controls[V any] struct {
	store *Store[V]
}

// Yield pushes a successful value into the store.
func (c Controls[V]) Yield(v V) error {
	if c.store.closed.get() {
		c.store.sink.Warn("controller_deallocated_access", map[string]any{"path": c.store.pathValue.String()})
		return ErrControllerDeallocated
	}
	c.store.SetCurrentValue(v)
	return nil
}

// YieldFailure pushes a failed result into the store.
func (c Controls[V]) YieldFailure(err error) error {
	if c.store.closed.get() {
		c.store.sink.Warn("controller_deallocated_access", map[string]any{"path": c.store.pathValue.String()})
		return ErrControllerDeallocated
	}
	c.store.SetResult(Failed[V](err))
	return nil
}

// YieldRefetchTask schedules a fresh run, or returns nil with no error if
// automatic running is disabled for this operation.
func (c Controls[V]) YieldRefetchTask() (*Task[V], error) {
	if c.store.closed.get() {
		c.store.sink.Warn("controller_deallocated_access", map[string]any{"path": c.store.pathValue.String()})
		return nil, ErrControllerDeallocated
	}
	if !c.store.IsAutomaticRunningEnabled() {
		return nil, nil
	}
	return c.store.RunTask(context.Background()), nil
}

// YieldResetState resets the store's state.
func (c Controls[V]) YieldResetState() error {
	if c.store.closed.get() {
		c.store.sink.Warn("controller_deallocated_access", map[string]any{"path": c.store.pathValue.String()})
		return ErrControllerDeallocated
	}
	c.store.ResetState()
	return nil
}

// Status returns the store's current derived status.
func (c Controls[V]) Status() Status[V] {
	if c.store.closed.get() {
		c.store.sink.Warn("controller_deallocated_access", map[string]any{"path": c.store.pathValue.String()})
	}
	return c.store.Status()
}

// WithExclusiveAccess delegates to the store's exclusive-access critical
// section.
func (c Controls[V]) WithExclusiveAccess(fn func(get func() (V, bool), set func(V))) {
	if c.store.closed.get() {
		c.store.sink.Warn("controller_deallocated_access", map[string]any{"path": c.store.pathValue.String()})
		return
	}
	c.store.WithExclusiveAccess(fn)
}

// AddController registers c to drive this store and returns the
// subscription c itself produced, tracked so Close can tear it down.
func (s *Store[V]) AddController(c Controller[V]) *Subscription {
	sub := c.Control(Controls[V]{store: s})
	s.controllersMu.Lock()
	s.controllers = append(s.controllers, sub)
	s.controllersMu.Unlock()
	return sub
}

// Close cancels every controller subscription and marks the store closed,
// so further Controls calls are reported as diagnostics instead of
// mutating state. Close does not cancel in-flight tasks; callers wanting
// that should ResetState first.
func (s *Store[V]) Close() {
	s.closed.set()
	s.controllersMu.Lock()
	subs := s.controllers
	s.controllers = nil
	s.controllersMu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}
