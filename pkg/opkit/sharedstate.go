package opkit

import (
	"context"
	"sync"
)

// SharedState is a read-write observable cell that optionally mirrors a
// backing Store: callers that just want "the current value, settable, and
// a subscription" without touching tasks/operations directly use this
// instead of a raw Store. Grounded on the Store itself (whose subscription
// fan-out this reuses directly) and on
// other_examples/.../runtime-api-store.go's shadow-state pattern of
// mirroring an authoritative run's state into a plain observable cell for
// UI-adjacent code.
type SharedState[V any] struct {
	mu       sync.Mutex
	value    V
	hasValue bool

	backing *Store[V]
	backSub *Subscription

	subs *SubscriptionList[func(V)]
	sink DiagnosticSink
}

// NewSharedState returns a standalone cell seeded with initial, with no
// backing operation. Run on an unbacked cell always fails with
// ErrUnbackedRun (§7).
func NewSharedState[V any](initial V) *SharedState[V] {
	return &SharedState[V]{
		value:    initial,
		hasValue: true,
		subs:     NewSubscriptionList[func(V)](),
		sink:     defaultSink,
	}
}

// NewBackedSharedState returns a cell that mirrors store: every successful
// status the store reports is copied into the cell and fanned out to the
// cell's own subscribers, and Run delegates to the backing store.
func NewBackedSharedState[V any](store *Store[V]) *SharedState[V] {
	s := &SharedState[V]{
		backing: store,
		subs:    NewSubscriptionList[func(V)](),
		sink:    defaultSink,
	}
	s.backSub = store.Subscribe(func(status Status[V]) {
		if status.Kind != StatusSuccess {
			return
		}
		s.mu.Lock()
		s.value, s.hasValue = status.Value, true
		s.mu.Unlock()
		s.subs.ForEach(func(h func(V)) { h(status.Value) })
	})
	return s
}

// Value returns the current value and whether one has ever been set.
func (s *SharedState[V]) Value() (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Set updates the cell. On a backed cell this pushes the value into the
// backing store (so subscribers of the store and of this cell both see
// it); on a standalone cell it updates locally and notifies subscribers
// directly.
func (s *SharedState[V]) Set(v V) {
	if s.backing != nil {
		s.backing.SetCurrentValue(v)
		return
	}
	s.mu.Lock()
	s.value, s.hasValue = v, true
	s.mu.Unlock()
	s.subs.ForEach(func(h func(V)) { h(v) })
}

// Subscribe registers handler for value changes, invoking it immediately
// with the current value if one has been set.
func (s *SharedState[V]) Subscribe(handler func(V)) *Subscription {
	sub, _ := s.subs.Add(handler, false)
	if v, ok := s.Value(); ok {
		handler(v)
	}
	return sub
}

// Run delegates to the backing store if this cell has one; an unbacked
// cell reports the UnbackedRun diagnostic and returns ErrUnbackedRun
// without ever running anything (§7).
func (s *SharedState[V]) Run(ctx context.Context) (V, error) {
	if s.backing == nil {
		s.sink.Warn("unbacked_run", nil)
		var zero V
		return zero, ErrUnbackedRun
	}
	return s.backing.Run(ctx)
}

// Close tears down the mirror subscription to the backing store, if any.
// A no-op on a standalone cell.
func (s *SharedState[V]) Close() {
	s.backSub.Cancel()
}
