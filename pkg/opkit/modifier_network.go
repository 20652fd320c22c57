package opkit

import (
	"context"
)

// networkRunOperation blocks Run until the observer reports a status at or
// above the context's satisfied-connection threshold, so operations that
// need connectivity don't fail repeatedly while offline (§4.5
// "Network-connection run specification").
type networkRunOperation[V any] struct {
	inner    Operation[V]
	observer NetworkObserver
}

// NetworkRunSpec returns a Modifier that waits for observer to report a
// ConnStatus at or above SatisfiedConnectionKey's threshold before invoking
// the wrapped operation, and fails fast with ErrCancelled if ctx is
// cancelled while waiting.
func NetworkRunSpec[V any](observer NetworkObserver) Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		return &networkRunOperation[V]{inner: op, observer: observer}
	}
}

func (n *networkRunOperation[V]) Path() Path { return n.inner.Path() }

func (n *networkRunOperation[V]) Setup(opCtx *OpContext) *OpContext {
	return n.inner.Setup(opCtx)
}

func (n *networkRunOperation[V]) Run(ctx context.Context, opCtx *OpContext, cont *Continuation[V]) (V, error) {
	threshold := Get(opCtx, SatisfiedConnectionKey)
	if n.observer.Status() < threshold {
		if err := n.waitForSatisfied(ctx, threshold); err != nil {
			var zero V
			return zero, err
		}
	}
	return n.inner.Run(ctx, opCtx, cont)
}

// waitForSatisfied blocks until the observer reports status >= threshold or
// ctx is done.
func (n *networkRunOperation[V]) waitForSatisfied(ctx context.Context, threshold ConnStatus) error {
	changed := make(chan ConnStatus, 1)
	sub := n.observer.Subscribe(func(status ConnStatus) {
		select {
		case changed <- status:
		default:
		}
	})
	defer sub.Cancel()

	if n.observer.Status() >= threshold {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ErrCancelled
		case status := <-changed:
			if status >= threshold {
				return nil
			}
		}
	}
}

// CompletelyOffline returns a Modifier for operations that never touch the
// network: it lowers the satisfied-connection threshold to
// ConnDisconnected (so NetworkRunSpec never blocks) and disables retry
// (§4.5 "CompletelyOffline").
func CompletelyOffline[V any]() Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		return &offlineOperation[V]{inner: op}
	}
}

type offlineOperation[V any] struct {
	inner Operation[V]
}

func (o *offlineOperation[V]) Path() Path { return o.inner.Path() }

func (o *offlineOperation[V]) Setup(opCtx *OpContext) *OpContext {
	opCtx = o.inner.Setup(opCtx)
	opCtx = Set(opCtx, SatisfiedConnectionKey, ConnDisconnected)
	opCtx = Set(opCtx, MaxRetriesKey, 0)
	opCtx = Set(opCtx, BackoffKey, BackoffFunc(NoBackoff))
	return opCtx
}

func (o *offlineOperation[V]) Run(ctx context.Context, opCtx *OpContext, cont *Continuation[V]) (V, error) {
	return o.inner.Run(ctx, opCtx, cont)
}
