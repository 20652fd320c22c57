package opkit

// OpaqueStore erases a Store[V]'s value type so a Client can hold
// heterogeneous stores in one directory (§4.7). Grounded in shape on the
// interface-boxes-a-concrete-backend idiom `pkg/storage/store.go` uses for
// its own pluggable `Store` interface, generalized here with a runtime
// downcast since the boxed value is a generic type the erasing interface
// cannot name.
type OpaqueStore interface {
	// Path returns the boxed store's registry path.
	Path() Path

	// Status returns the boxed store's status as an `any`, concretely a
	// Status[V] for the boxed V. Callers that know V should use Unwrap
	// instead of type-asserting this.
	Status() any

	// SubscriberCount returns the boxed store's subscriber count.
	SubscriberCount() int

	// IsStale reports the boxed store's staleness.
	IsStale() bool

	// EvictableLevels lists the memory-pressure levels at which the Client
	// may evict this store while it has no subscribers.
	EvictableLevels() []PressureLevel

	// Close tears down the boxed store's controllers.
	Close()

	// uncheckedSetCurrentValue downcasts to Store[V] and sets its current
	// value; a type mismatch panics, matching §4.7's "type mismatch is a
	// panic of the local call only."
	uncheckedSetCurrentValue(value any)
}

// opaqueStore wraps a concrete *Store[V].
type opaqueStore[V any] struct {
	store *Store[V]
}

// Wrap boxes store as an OpaqueStore.
func Wrap[V any](store *Store[V]) OpaqueStore { return &opaqueStore[V]{store: store} }

func (o *opaqueStore[V]) Path() Path           { return o.store.Path() }
func (o *opaqueStore[V]) Status() any          { return o.store.Status() }
func (o *opaqueStore[V]) SubscriberCount() int { return o.store.SubscriberCount() }
func (o *opaqueStore[V]) IsStale() bool        { return o.store.IsStale() }
func (o *opaqueStore[V]) Close()               { o.store.Close() }

func (o *opaqueStore[V]) EvictableLevels() []PressureLevel {
	return Get(o.store.Context(), EvictableMemoryPressureKey)
}

func (o *opaqueStore[V]) uncheckedSetCurrentValue(value any) {
	o.store.SetCurrentValue(value.(V))
}

// Unwrap recovers the typed *Store[V] from an OpaqueStore, reporting false
// if the boxed value type does not match V.
func Unwrap[V any](o OpaqueStore) (*Store[V], bool) {
	typed, ok := o.(*opaqueStore[V])
	if !ok {
		return nil, false
	}
	return typed.store, true
}

// UncheckedSetCurrentValue downcasts o to Store[V] and sets its current
// value. It panics if o does not box a Store[V], matching the spec's
// "type mismatch is a panic of the local call only."
func UncheckedSetCurrentValue[V any](o OpaqueStore, value V) {
	o.uncheckedSetCurrentValue(value)
}
