package opkit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock, local to this package's tests so
// they don't need to reach into internal/opkit/opkittest.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Scenario 1: basic success.
func TestStoreBasicSuccess(t *testing.T) {
	op := NewOperation[int](NewPath("basic"), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		return 1, nil
	})
	store := NewStore[int](op.Path(), op)

	assert.Equal(t, 0, store.SubscriberCount())
	assert.Equal(t, StatusIdle, store.Status().Kind)

	value, err := store.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	current, ok := store.CurrentValue()
	require.True(t, ok)
	assert.Equal(t, 1, current)
	status := store.Status()
	assert.Equal(t, StatusSuccess, status.Kind)
	assert.Equal(t, 1, status.Value)
}

// Scenario 2: retry with count.
func TestStoreRetryWithCount(t *testing.T) {
	failure := errors.New("boom")
	var invocations int32
	op := NewOperation[int](NewPath("retry"), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		atomic.AddInt32(&invocations, 1)
		return 0, failure
	})
	retried := Retry[int](3, NoBackoff)(op)
	store := NewStore[int](op.Path(), retried)

	_, err := store.Run(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.EqualValues(t, 4, atomic.LoadInt32(&invocations))

	status := store.Status()
	assert.Equal(t, StatusFailure, status.Kind)
	assert.ErrorIs(t, status.Err, failure)
}

// Scenario 3: deduplicated concurrent run.
func TestStoreDeduplicatedConcurrentRun(t *testing.T) {
	var invocations int32
	op := NewOperation[string](NewPath("dedup"), func(context.Context, *OpContext, *Continuation[string]) (string, error) {
		atomic.AddInt32(&invocations, 1)
		time.Sleep(100 * time.Millisecond)
		return "blob", nil
	})
	deduped := Deduplicated[string]()(op)
	store := NewStore[string](op.Path(), deduped)

	results := make([]string, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Run(context.Background())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&invocations))
	for i := range results {
		assert.NoError(t, errs[i])
		assert.Equal(t, "blob", results[i])
	}
	assert.Equal(t, 1, store.state.ValueUpdateCount())
}

// Scenario 4: stale-after seconds.
func TestStoreStaleAfterSeconds(t *testing.T) {
	clock := newFakeClock(time.Unix(0, 0))
	op := NewOperation[int](NewPath("stale"), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		return 42, nil
	})
	staled := StaleWhenRevalidate[int](AgeExceeds[int](time.Second))(op)
	store := NewStore[int](op.Path(), staled)
	store.baseCtx = Set(store.baseCtx, ClockKey, clock)
	store.clock = clock

	assert.True(t, store.IsStale())

	_, err := store.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, store.IsStale())

	clock.advance(2 * time.Second)
	assert.True(t, store.IsStale())
}

// Scenario 5: reset cancels in-flight.
func TestStoreResetCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	op := NewOperation[int](NewPath("hangs"), func(ctx context.Context, _ *OpContext, _ *Continuation[int]) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	store := NewStore[int](op.Path(), op, WithInitialValue[int](0))

	task := store.RunTask(context.Background())
	<-started
	store.ResetState()

	_, err := task.RunIfNeeded(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)

	current, ok := store.CurrentValue()
	require.True(t, ok)
	assert.Equal(t, 0, current)
	assert.Equal(t, 0, store.state.ValueUpdateCount())
}

func TestStoreResetIdempotent(t *testing.T) {
	op := NewOperation[int](NewPath("idempotent-reset"), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		return 9, nil
	})
	store := NewStore[int](op.Path(), op)
	_, err := store.Run(context.Background())
	require.NoError(t, err)

	store.ResetState()
	afterFirst := store.Status()
	store.ResetState()
	afterSecond := store.Status()

	assert.Equal(t, afterFirst, afterSecond)
}

func TestStoreHerdIsolation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	op := NewOperation[int](NewPath("herd"), func(ctx context.Context, _ *OpContext, _ *Continuation[int]) (int, error) {
		close(started)
		select {
		case <-release:
			return 99, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	store := NewStore[int](op.Path(), op, WithInitialValue[int](0))

	task := store.RunTask(context.Background())
	<-started
	store.ResetState()
	close(release)

	_, _ = task.RunIfNeeded(context.Background())
	time.Sleep(20 * time.Millisecond)

	current, ok := store.CurrentValue()
	require.True(t, ok)
	assert.Equal(t, 0, current)
	assert.Equal(t, 0, store.state.ValueUpdateCount())
}

func TestStoreIsLoadingInvariant(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	op := NewOperation[int](NewPath("loading"), func(ctx context.Context, _ *OpContext, _ *Continuation[int]) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	store := NewStore[int](op.Path(), op)

	assert.False(t, store.IsLoading())
	task := store.RunTask(context.Background())
	<-started
	assert.True(t, store.IsLoading())

	close(release)
	_, err := task.RunIfNeeded(context.Background())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, store.IsLoading())
}

func TestStoreSuccessfulIngestClearsError(t *testing.T) {
	op := NewOperation[int](NewPath("clear-error"), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		return 0, nil
	})
	store := NewStore[int](op.Path(), op)

	store.SetResult(Failed[int](errors.New("first failure")))
	assert.Equal(t, StatusFailure, store.Status().Kind)

	store.SetResult(Ok(5))
	status := store.Status()
	assert.Equal(t, StatusSuccess, status.Kind)
	assert.NoError(t, status.Err)
}

func TestStoreSubscribeTriggersAutomaticRunWhenStale(t *testing.T) {
	var invocations int32
	op := NewOperation[int](NewPath("auto-run"), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		atomic.AddInt32(&invocations, 1)
		return 1, nil
	})
	store := NewStore[int](op.Path(), op)

	var received []Status[int]
	var mu sync.Mutex
	sub := store.Subscribe(func(status Status[int]) {
		mu.Lock()
		received = append(received, status)
		mu.Unlock()
	})
	defer sub.Cancel()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&invocations) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStoreWithExclusiveAccess(t *testing.T) {
	op := NewOperation[int](NewPath("exclusive"), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		return 0, nil
	})
	store := NewStore[int](op.Path(), op, WithInitialValue[int](1))

	store.WithExclusiveAccess(func(get func() (int, bool), set func(int)) {
		v, ok := get()
		require.True(t, ok)
		set(v + 41)
	})

	current, ok := store.CurrentValue()
	require.True(t, ok)
	assert.Equal(t, 42, current)
}
