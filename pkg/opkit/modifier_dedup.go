package opkit

// dedupOperation seeds DedupEnabledKey, read by Store's task-scheduling
// protocol to decide whether concurrent Run/RunTask callers attach to the
// same in-flight Task instead of each getting their own (§4.5, §8
// scenario 3). Grounded on autoRunOperation's shape: a modifier that does
// nothing to Run itself and only stamps context, leaving the actual
// behaviour to the Store, which is the only thing that can see every
// concurrent caller for a path at once.
type dedupOperation[V any] struct {
	Operation[V]
}

// Deduplicated returns a Modifier that makes the Store share one in-flight
// Task across all concurrent callers for the operation's Path, reusing the
// same Task (and its single eventual ingestion into state) rather than
// starting a redundant run per caller. Cancellation is reference-counted
// at the Store: a caller whose own context is cancelled while attached
// detaches without affecting other attached callers, and the shared Task
// is only cancelled once the last attached caller has dropped.
func Deduplicated[V any]() Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		return &dedupOperation[V]{Operation: op}
	}
}

func (d *dedupOperation[V]) Setup(opCtx *OpContext) *OpContext {
	opCtx = d.Operation.Setup(opCtx)
	return Set(opCtx, DedupEnabledKey, true)
}
