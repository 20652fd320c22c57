package opkit

import (
	"reflect"
	"sync"
	"time"
)

// stalePredicateKeys memoizes one *Key[StalePredicate[V]] per value type V,
// since a fresh Key instance per call would break lookups (Key identity is
// the pointer; see context.go).
var stalePredicateKeys sync.Map // reflect.Type -> any (*Key[StalePredicate[V]])

// StalePredicateKey returns the context key StaleWhenRevalidate seeds and
// Store.IsStale reads, creating it on first use for this V.
func StalePredicateKey[V any]() *Key[StalePredicate[V]] {
	var zero V
	t := reflect.TypeOf(&zero).Elem()
	if existing, ok := stalePredicateKeys.Load(t); ok {
		return existing.(*Key[StalePredicate[V]])
	}
	key := NewKey[StalePredicate[V]]("opkit.stalePredicate", AlwaysStale[V]())
	actual, _ := stalePredicateKeys.LoadOrStore(t, key)
	return actual.(*Key[StalePredicate[V]])
}

// StalePredicate reports whether state counts as stale under ctx. Store's
// IsStale evaluates the composite predicate seeded by StaleWhenRevalidate
// (§3 "staleWhenRevalidateCondition"); a store with no StaleWhenRevalidate
// modifier keeps the AlwaysStale default, so its first subscriber always
// triggers a run when automatic running is enabled.
type StalePredicate[V any] func(state *OperationState[V], opCtx *OpContext) bool

// AlwaysStale reports stale unconditionally.
func AlwaysStale[V any]() StalePredicate[V] {
	return func(*OperationState[V], *OpContext) bool { return true }
}

// HasNoValue reports stale only when the state has never received a value.
func HasNoValue[V any]() StalePredicate[V] {
	return func(state *OperationState[V], _ *OpContext) bool {
		_, has := state.CurrentValue()
		return !has
	}
}

// AgeExceeds reports stale once the current value is older than d, or when
// there is no value at all.
func AgeExceeds[V any](d time.Duration) StalePredicate[V] {
	return func(state *OperationState[V], opCtx *OpContext) bool {
		_, has := state.CurrentValue()
		if !has {
			return true
		}
		clock := Get(opCtx, ClockKey)
		return clock.Now().Sub(state.ValueLastUpdatedAt()) > d
	}
}

// FetchCondition reports stale when the supplied predicate, evaluated
// against the operation's context, returns true. Useful for app-defined
// triggers (a feature flag, a pending-invalidation flag stashed in context)
// that don't depend on the state itself.
func FetchCondition[V any](predicate func(opCtx *OpContext) bool) StalePredicate[V] {
	return func(_ *OperationState[V], opCtx *OpContext) bool { return predicate(opCtx) }
}

// orPredicates combines predicates with a boolean OR, short-circuiting on
// the first true result, per §3's "boolean OR of predicates".
func orPredicates[V any](predicates ...StalePredicate[V]) StalePredicate[V] {
	return func(state *OperationState[V], opCtx *OpContext) bool {
		for _, p := range predicates {
			if p(state, opCtx) {
				return true
			}
		}
		return false
	}
}

// staleOperation is a pass-through Operation whose only role is seeding the
// composite StalePredicate into context; it never alters Run.
type staleOperation[V any] struct {
	Operation[V]
	predicate StalePredicate[V]
}

// StaleWhenRevalidate returns a Modifier that ORs predicates into the
// store's staleness condition, read by Store.IsStale before deciding
// whether a subscribe should trigger an automatic run (§3, §8 scenario 4).
func StaleWhenRevalidate[V any](predicates ...StalePredicate[V]) Modifier[V] {
	combined := orPredicates(predicates...)
	return func(op Operation[V]) Operation[V] {
		return &staleOperation[V]{Operation: op, predicate: combined}
	}
}

func (s *staleOperation[V]) Setup(opCtx *OpContext) *OpContext {
	opCtx = s.Operation.Setup(opCtx)
	key := StalePredicateKey[V]()
	if existing, ok := opCtx.values[key]; ok {
		return Set(opCtx, key, orPredicates(existing.(StalePredicate[V]), s.predicate))
	}
	return Set(opCtx, key, s.predicate)
}
