package opkit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskAtMostOnceExecution(t *testing.T) {
	var invocations int32
	task := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(ctx context.Context, _ *OpContext, _ *Continuation[int]) (int, error) {
		atomic.AddInt32(&invocations, 1)
		return 7, nil
	})

	const callers = 20
	results := make([]int, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = task.RunIfNeeded(context.Background())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&invocations))
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, 7, results[i])
	}
}

func TestTaskCancelBeforeStartYieldsCancelled(t *testing.T) {
	var invoked bool
	task := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(ctx context.Context, _ *OpContext, _ *Continuation[int]) (int, error) {
		invoked = true
		return 1, nil
	})
	task.Cancel()

	_, err := task.RunIfNeeded(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, invoked)
}

func TestTaskCancelDuringRunPropagatesContext(t *testing.T) {
	started := make(chan struct{})
	task := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(ctx context.Context, _ *OpContext, _ *Continuation[int]) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	done := make(chan struct{})
	var result int
	var err error
	go func() {
		result, err = task.RunIfNeeded(context.Background())
		close(done)
	}()

	<-started
	task.Cancel()
	<-done

	assert.Equal(t, 0, result)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestTaskWaitCtxCancellationDoesNotAffectOtherWaiters(t *testing.T) {
	release := make(chan struct{})
	task := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(ctx context.Context, _ *OpContext, _ *Continuation[int]) (int, error) {
		<-release
		return 42, nil
	})

	waitCtx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := task.RunIfNeeded(waitCtx)
		waiterDone <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-waiterDone, context.Canceled)

	close(release)
	value, err := task.RunIfNeeded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestTaskScheduleAfterRejectsCycles(t *testing.T) {
	a := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(context.Context, *OpContext, *Continuation[int]) (int, error) { return 0, nil })
	b := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(context.Context, *OpContext, *Continuation[int]) (int, error) { return 0, nil })

	require.NoError(t, b.ScheduleAfter(a))
	err := a.ScheduleAfter(b)
	assert.ErrorIs(t, err, ErrCircularSchedule)
}

func TestTaskScheduleAfterRunsDependencyFirst(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	dep := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		record("dep")
		return 0, nil
	})
	main := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(context.Context, *OpContext, *Continuation[int]) (int, error) {
		record("main")
		return 0, nil
	})
	require.NoError(t, main.ScheduleAfter(dep))

	_, err := main.RunIfNeeded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dep", "main"}, order)
}

func TestTaskYieldReachesBoundSink(t *testing.T) {
	var yields []int
	task := NewTask[int](context.Background(), TaskConfig{}, NewOpContext(), func(ctx context.Context, _ *OpContext, cont *Continuation[int]) (int, error) {
		cont.Yield(Ok(1))
		cont.Yield(Ok(2))
		return 3, nil
	})
	task.OnYield(NoopDiagnosticSink(), func(res Result[int]) {
		yields = append(yields, res.Value)
	})

	value, err := task.RunIfNeeded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, value)
	assert.Equal(t, []int{1, 2}, yields)
}
