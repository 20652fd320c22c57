package opkit

import "context"

// Queue is a single-worker FIFO that runs submitted functions one at a
// time, in submission order, on its own goroutine. It exists for critical
// sections that must never interleave but shouldn't block the submitter's
// own goroutine while waiting their turn (Controllers coordinating
// multiple event sources, for instance). Grounded on
// pkg/reconciler/reconciler.go and pkg/scheduler/scheduler.go's
// stopCh-guarded goroutine lifecycle, generalized from "run one fixed
// function on a ticker" to "run arbitrary submitted functions in order."
type Queue struct {
	work   chan func()
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewQueue starts a Queue with the given submission buffer size. A size of
// 0 makes Submit block until the worker is ready for the next item.
func NewQueue(buffer int) *Queue {
	q := &Queue{
		work:   make(chan func(), buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.doneCh)
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}
		select {
		case fn := <-q.work:
			fn()
		case <-q.stopCh:
			return
		}
	}
}

// Submit enqueues fn to run on the worker goroutine, blocking until either
// it is accepted or ctx is done. It does not wait for fn to finish
// executing; use SubmitAndWait for that.
func (q *Queue) Submit(ctx context.Context, fn func()) error {
	select {
	case <-q.stopCh:
		return ErrCancelled
	default:
	}
	select {
	case q.work <- fn:
		return nil
	case <-q.stopCh:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAndWait enqueues fn and blocks until it has finished executing.
func (q *Queue) SubmitAndWait(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	err := q.Submit(ctx, func() {
		defer close(done)
		fn()
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the worker loop. Queued-but-unstarted work is dropped; the
// item currently executing (if any) runs to completion.
func (q *Queue) Stop() {
	close(q.stopCh)
	<-q.doneCh
}
