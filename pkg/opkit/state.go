package opkit

import "time"

// activeTaskEntry is what OperationState tracks per in-flight task: enough
// to cancel it on reset and to tell whether a later result still belongs to
// the current herd.
type activeTaskEntry struct {
	id     string
	herdID uint64
	cancel func()
}

// OperationState is the per-operation runtime state described in §3:
// current/initial value, update counters and timestamps, the active error,
// and the ordered set of in-flight tasks. It is plain data — every mutating
// method here is unexported and called only by the owning Store while that
// Store holds its lock, per §3's "reads/writes to state are serialised by
// the owning store's lock".
type OperationState[V any] struct {
	currentValue V
	hasValue     bool
	initialValue V
	hasInitial   bool

	valueUpdateCount   int
	valueLastUpdatedAt time.Time

	errorUpdateCount   int
	errorLastUpdatedAt time.Time
	err                error

	activeTasks []activeTaskEntry
	herdID      uint64
}

// NewOperationState seeds state with an initial value (if any) and no
// activity.
func NewOperationState[V any](initial V, hasInitial bool) *OperationState[V] {
	s := &OperationState[V]{initialValue: initial, hasInitial: hasInitial}
	if hasInitial {
		s.currentValue = initial
		s.hasValue = true
	}
	return s
}

// CurrentValue returns the current value and whether one has ever been set.
func (s *OperationState[V]) CurrentValue() (V, bool) { return s.currentValue, s.hasValue }

// Error returns the active error, if any.
func (s *OperationState[V]) Error() error { return s.err }

// IsLoading reports whether one or more tasks are scheduled, running or
// queued (§3 invariant: isLoading == activeTasks.nonEmpty).
func (s *OperationState[V]) IsLoading() bool { return len(s.activeTasks) > 0 }

// ValueUpdateCount returns how many times a successful ingest has occurred.
func (s *OperationState[V]) ValueUpdateCount() int { return s.valueUpdateCount }

// ValueLastUpdatedAt returns the timestamp of the most recent successful
// ingest.
func (s *OperationState[V]) ValueLastUpdatedAt() time.Time { return s.valueLastUpdatedAt }

// ErrorUpdateCount returns how many times a failed ingest has occurred.
func (s *OperationState[V]) ErrorUpdateCount() int { return s.errorUpdateCount }

// ErrorLastUpdatedAt returns the timestamp of the most recent failed ingest.
func (s *OperationState[V]) ErrorLastUpdatedAt() time.Time { return s.errorLastUpdatedAt }

// HerdID returns the current herd generation; results stamped with an older
// herd are ignored by ingestSuccess/ingestFailure.
func (s *OperationState[V]) HerdID() uint64 { return s.herdID }

// schedule records a newly created task as active and marks the state
// loading.
func (s *OperationState[V]) schedule(id string, cancel func()) {
	s.activeTasks = append(s.activeTasks, activeTaskEntry{id: id, herdID: s.herdID, cancel: cancel})
}

// herdOf reports the herd a given active task was scheduled under, and
// whether that task is still tracked at all.
func (s *OperationState[V]) herdOf(id string) (uint64, bool) {
	for _, t := range s.activeTasks {
		if t.id == id {
			return t.herdID, true
		}
	}
	return 0, false
}

// ingestSuccess applies a successful result if taskHerd matches the
// current herd. A successful ingest always clears the active error — see
// DESIGN.md's Open Question decision.
func (s *OperationState[V]) ingestSuccess(value V, taskHerd uint64, clock Clock) {
	if taskHerd != s.herdID {
		return
	}
	s.currentValue = value
	s.hasValue = true
	s.valueUpdateCount++
	s.valueLastUpdatedAt = clock.Now()
	s.err = nil
}

// ingestFailure applies a failed result if taskHerd matches the current
// herd.
func (s *OperationState[V]) ingestFailure(err error, taskHerd uint64, clock Clock) {
	if taskHerd != s.herdID {
		return
	}
	s.err = err
	s.errorUpdateCount++
	s.errorLastUpdatedAt = clock.Now()
}

// finish removes id from the active task set.
func (s *OperationState[V]) finish(id string) {
	for i, t := range s.activeTasks {
		if t.id == id {
			s.activeTasks = append(s.activeTasks[:i], s.activeTasks[i+1:]...)
			return
		}
	}
}

// ResetEffect is returned by reset so the Store can cancel the tasks that
// were in flight at reset time outside of its own lock, avoiding a
// cancellation callback re-entering the lock it was called under.
type ResetEffect struct {
	cancels []func()
}

// Cancel invokes every captured cancellation. Safe to call once; later
// calls are harmless no-ops since Task.Cancel is itself idempotent.
func (r *ResetEffect) Cancel() {
	if r == nil {
		return
	}
	for _, c := range r.cancels {
		if c != nil {
			c()
		}
	}
}

// reset restores the initial value, clears counters and the active error,
// bumps the herd generation so late results from the outgoing tasks are
// ignored, and returns a ResetEffect that cancels those outgoing tasks.
func (s *OperationState[V]) reset(clock Clock) *ResetEffect {
	effect := &ResetEffect{}
	for _, t := range s.activeTasks {
		effect.cancels = append(effect.cancels, t.cancel)
	}

	s.currentValue = s.initialValue
	s.hasValue = s.hasInitial
	s.activeTasks = nil
	s.valueUpdateCount = 0
	s.valueLastUpdatedAt = time.Time{}
	s.errorUpdateCount = 0
	s.errorLastUpdatedAt = time.Time{}
	s.err = nil
	s.herdID++

	_ = clock
	return effect
}

// StatusKind is the discriminant of a derived Status.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusLoading
	StatusSuccess
	StatusFailure
)

// String renders the kind for logging.
func (k StatusKind) String() string {
	switch k {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "idle"
	}
}

// Status is the derived, UI-facing view of an OperationState: idle,
// loading, success(value), or failure(error). It is a pure function of the
// state's fields (§8's "Status mapping" property).
type Status[V any] struct {
	Kind  StatusKind
	Value V
	Err   error
}

// IsCancelled reports whether this status represents a cancelled run.
func (s Status[V]) IsCancelled() bool {
	return s.Kind == StatusFailure && s.Err != nil && isCancellation(s.Err)
}

func isCancellation(err error) bool {
	return err == ErrCancelled
}

// status computes the derived Status for the current state, per §3's rule:
// loading if any task is active; else idle if nothing has ever happened;
// else success or failure depending on which timestamp is newer.
func (s *OperationState[V]) status() Status[V] {
	if s.IsLoading() {
		st := Status[V]{Kind: StatusLoading}
		st.Value = s.currentValue
		return st
	}
	if s.valueUpdateCount == 0 && s.errorUpdateCount == 0 {
		return Status[V]{Kind: StatusIdle}
	}
	if !s.valueLastUpdatedAt.Before(s.errorLastUpdatedAt) {
		return Status[V]{Kind: StatusSuccess, Value: s.currentValue}
	}
	return Status[V]{Kind: StatusFailure, Err: s.err}
}
