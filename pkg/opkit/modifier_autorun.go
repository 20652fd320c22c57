package opkit

// autoRunOperation seeds AutoRunEnabledKey, read by Store.subscribe to
// decide whether a first non-temporary subscriber should trigger a run
// when the store is stale (§4.6 "subscribe").
type autoRunOperation[V any] struct {
	Operation[V]
	enabled bool
}

// EnableAutomaticRunning returns a Modifier that marks the operation as
// eligible for subscribe-triggered runs (the default for non-mutation
// operations set up by StoreCreator).
func EnableAutomaticRunning[V any]() Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		return &autoRunOperation[V]{Operation: op, enabled: true}
	}
}

// DisableAutomaticRunning returns a Modifier that prevents subscribe from
// ever triggering a run on this operation; callers must invoke Store.Run
// explicitly (the default StoreCreator applies this to mutation-shaped
// operations).
func DisableAutomaticRunning[V any]() Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		return &autoRunOperation[V]{Operation: op, enabled: false}
	}
}

func (a *autoRunOperation[V]) Setup(opCtx *OpContext) *OpContext {
	opCtx = a.Operation.Setup(opCtx)
	return Set(opCtx, AutoRunEnabledKey, a.enabled)
}

// handleEventsOperation wraps an Operation with an EventHandler, registered
// in context for the owning Store to invoke alongside its own bookkeeping
// (§4.5 "HandleEvents"). Run is untouched; events fire from the Store's run
// protocol, not from this modifier, since only the Store sees
// scheduling/cancellation/state-change events as a whole.
type handleEventsOperation[V any] struct {
	Operation[V]
	handler EventHandler[V]
}

// HandleEvents returns a Modifier that registers handler to observe this
// operation's store-level lifecycle: run started/ended, results received,
// and derived-state changes.
func HandleEvents[V any](handler EventHandler[V]) Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		return &handleEventsOperation[V]{Operation: op, handler: handler}
	}
}

func (h *handleEventsOperation[V]) Setup(opCtx *OpContext) *OpContext {
	opCtx = h.Operation.Setup(opCtx)
	existing := Get(opCtx, EventHandlersKey[V]())
	return Set(opCtx, EventHandlersKey[V](), append(append([]EventHandler[V]{}, existing...), h.handler))
}
