package opkit

import "context"

// retryOperation wraps an Operation to retry its Run on failure, up to
// maxRetries times, waiting between attempts per the configured backoff.
// Grounded on the retry-then-continue shape of pkg/reconciler/reconciler.go
// and pkg/scheduler/scheduler.go's "log the error but keep going" cycles,
// generalized from a fixed ticker interval to an explicit BackoffFunc.
type retryOperation[V any] struct {
	inner      Operation[V]
	maxRetries int
	backoff    BackoffFunc
}

// Retry returns a Modifier that retries a failing Run up to maxRetries
// times using backoff between attempts. ErrCancelled is never retried.
func Retry[V any](maxRetries int, backoff BackoffFunc) Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		return &retryOperation[V]{inner: op, maxRetries: maxRetries, backoff: backoff}
	}
}

func (r *retryOperation[V]) Path() Path { return r.inner.Path() }

func (r *retryOperation[V]) Setup(opCtx *OpContext) *OpContext {
	opCtx = r.inner.Setup(opCtx)
	opCtx = Set(opCtx, MaxRetriesKey, r.maxRetries)
	opCtx = Set(opCtx, BackoffKey, r.backoff)
	return opCtx
}

func (r *retryOperation[V]) Run(ctx context.Context, opCtx *OpContext, cont *Continuation[V]) (V, error) {
	maxRetries := Get(opCtx, MaxRetriesKey)
	backoff := Get(opCtx, BackoffKey)
	delayer := Get(opCtx, DelayerKey)
	metrics := Get(opCtx, MetricsRecorderKey)

	attempt := 0
	for {
		value, err := r.inner.Run(ctx, Set(opCtx, RetryIndexKey, attempt), cont)
		if err == nil {
			return value, nil
		}
		if err == ErrCancelled || attempt >= maxRetries {
			return value, err
		}
		attempt++
		metrics.RecordRetry(r.inner.Path().String())
		if delayErr := delayer.Delay(ctx, backoff(attempt)); delayErr != nil {
			return value, delayErr
		}
	}
}
