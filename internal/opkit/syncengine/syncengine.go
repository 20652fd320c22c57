// Package syncengine implements the serialized replace-all sync pattern
// described in opkit's design (§4.10): an external store is kept in lock
// step with a database observation stream by cancelling and
// re-scheduling its entire contents on every emission.
package syncengine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cuemby/opkit/pkg/opkit"
)

// Record is anything the engine can schedule against the external store,
// identified by a comparable id.
type Record[ID comparable] interface {
	RecordID() ID
}

// ScheduleResult pairs a scheduled item with the error (if any) scheduling
// it produced.
type ScheduleResult[T any] struct {
	Item T
	Err  error
}

// ExternalStore is the system of record the engine replaces the contents
// of on every observation. Grounded on the spec's "scheduleAll(&[T]) ->
// Vec<(T, Option<Error>)>" and "all() -> Set<Id>".
type ExternalStore[T Record[ID], ID comparable] interface {
	CancelAll(ctx context.Context) error
	ScheduleOne(ctx context.Context, item T) error
	All(ctx context.Context) (map[ID]struct{}, error)
}

// RowStatusWriter persists the local scheduling status for a record,
// mirroring the "scheduled"/"pending"/"finished" states named in §4.10.
type RowStatusWriter[ID comparable] interface {
	MarkScheduled(ctx context.Context, id ID) error
	MarkPending(ctx context.Context, id ID, cause error) error
	MarkFinished(ctx context.Context, id ID) error

	// Scheduled lists the ids this writer currently considers locally
	// scheduled or pending, so Start can reconcile them against the
	// external store's actual membership before the observation loop
	// takes over.
	Scheduled(ctx context.Context) ([]ID, error)
}

// Observation streams the full current record set whenever the underlying
// rows change. BoltObservation (boltobservation.go) adapts a bbolt bucket
// into this shape by polling a revision counter; tests use
// opkittest.FakeObservation, which is channel-driven.
type Observation[T any] interface {
	Subscribe(ctx context.Context) (<-chan []T, error)
}

// Engine drives ExternalStore from an Observation stream, replacing its
// full contents on every emission. Grounded on pkg/reconciler's
// ticker-driven "reconcile, log failures, keep going" loop, recomposed
// around a push-based observation channel instead of a ticker, and on
// pkg/events.Broker's subscription lifecycle for Start/Stop.
type Engine[T Record[ID], ID comparable] struct {
	store       ExternalStore[T, ID]
	rows        RowStatusWriter[ID]
	observation Observation[T]
	onScheduled func([]T)
	sink        opkit.DiagnosticSink
	concurrency int64

	mu         sync.Mutex
	cancelLoop context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures an Engine at construction time.
type Option[T Record[ID], ID comparable] func(*Engine[T, ID])

// WithOnScheduled registers a callback invoked with the records
// successfully scheduled on each replace-all pass.
func WithOnScheduled[T Record[ID], ID comparable](fn func([]T)) Option[T, ID] {
	return func(e *Engine[T, ID]) { e.onScheduled = fn }
}

// WithDiagnosticSink overrides the default no-op diagnostic sink.
func WithDiagnosticSink[T Record[ID], ID comparable](sink opkit.DiagnosticSink) Option[T, ID] {
	return func(e *Engine[T, ID]) { e.sink = sink }
}

// WithConcurrency bounds how many ScheduleOne calls run concurrently
// during a replace-all pass. The default is 4.
func WithConcurrency[T Record[ID], ID comparable](n int64) Option[T, ID] {
	return func(e *Engine[T, ID]) { e.concurrency = n }
}

// New builds an Engine over store, driven by observation, persisting row
// status through rows.
func New[T Record[ID], ID comparable](store ExternalStore[T, ID], rows RowStatusWriter[ID], observation Observation[T], opts ...Option[T, ID]) *Engine[T, ID] {
	e := &Engine[T, ID]{store: store, rows: rows, observation: observation, concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = opkit.NoopDiagnosticSink()
	}
	return e
}

// Start reconciles local status against the external store's current
// membership, marking any row this writer still considers scheduled but
// which the external store no longer carries as finished, then subscribes
// to the observation stream for as long as ctx is alive (Stop, or
// cancelling ctx, ends the loop).
func (e *Engine[T, ID]) Start(ctx context.Context) error {
	if err := e.reconcile(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelLoop = cancel
	e.mu.Unlock()

	stream, err := e.observation.Subscribe(loopCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("opkit/syncengine: subscribe: %w", err)
	}

	e.wg.Add(1)
	go e.run(loopCtx, stream)
	return nil
}

// reconcile marks any row the writer lists as locally scheduled but that
// is absent from the external store's current membership as finished,
// covering the case where a process restarts with stale local status
// after rows were completed or removed out from under it.
func (e *Engine[T, ID]) reconcile(ctx context.Context) error {
	present, err := e.store.All(ctx)
	if err != nil {
		return fmt.Errorf("opkit/syncengine: initial reconcile: %w", err)
	}

	scheduled, err := e.rows.Scheduled(ctx)
	if err != nil {
		return fmt.Errorf("opkit/syncengine: list scheduled rows: %w", err)
	}

	for _, id := range scheduled {
		if _, ok := present[id]; ok {
			continue
		}
		if err := e.rows.MarkFinished(ctx, id); err != nil {
			e.sink.Warn("syncengine_mark_finished_failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// Stop cancels the observation subscription and waits for the run loop to
// exit.
func (e *Engine[T, ID]) Stop() {
	e.mu.Lock()
	cancel := e.cancelLoop
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine[T, ID]) run(ctx context.Context, stream <-chan []T) {
	defer e.wg.Done()

	var inFlight context.CancelFunc
	defer func() {
		if inFlight != nil {
			inFlight()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case records, ok := <-stream:
			if !ok {
				return
			}
			if inFlight != nil {
				inFlight()
			}
			passCtx, cancel := context.WithCancel(ctx)
			inFlight = cancel
			e.replaceAll(passCtx, records)
		}
	}
}

// replaceAll cancels the store's current scheduling, then schedules every
// record concurrently (bounded by e.concurrency via semaphore.Weighted),
// waits for every schedule call, then updates each record's row status
// from its result.
// Failures are reported to the sink, never returned, per §4.10's "failures
// are logged, not propagated."
func (e *Engine[T, ID]) replaceAll(ctx context.Context, records []T) {
	if err := e.store.CancelAll(ctx); err != nil {
		e.sink.Warn("syncengine_cancel_failed", map[string]any{"error": err.Error()})
		return
	}

	sem := semaphore.NewWeighted(e.concurrency)
	results := make([]ScheduleResult[T], len(records))

	var wg sync.WaitGroup
	for i, record := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = ScheduleResult[T]{Item: record, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func(i int, record T) {
			defer wg.Done()
			defer sem.Release(1)
			err := e.store.ScheduleOne(ctx, record)
			results[i] = ScheduleResult[T]{Item: record, Err: err}
		}(i, record)
	}
	wg.Wait()

	var scheduled []T
	for _, res := range results {
		id := res.Item.RecordID()
		if res.Err != nil {
			if err := e.rows.MarkPending(ctx, id, res.Err); err != nil {
				e.sink.Warn("syncengine_mark_pending_failed", map[string]any{"error": err.Error()})
			}
			continue
		}
		if err := e.rows.MarkScheduled(ctx, id); err != nil {
			e.sink.Warn("syncengine_mark_scheduled_failed", map[string]any{"error": err.Error()})
			continue
		}
		scheduled = append(scheduled, res.Item)
	}

	if e.onScheduled != nil && len(scheduled) > 0 {
		e.onScheduled(scheduled)
	}
}
