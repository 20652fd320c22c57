package opkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsInSubmissionOrder(t *testing.T) {
	q := NewQueue(8)
	defer q.Stop()

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.Submit(context.Background(), func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueueSubmitAndWaitBlocksUntilDone(t *testing.T) {
	q := NewQueue(0)
	defer q.Stop()

	var ran bool
	err := q.SubmitAndWait(context.Background(), func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestQueueStopDropsUnstartedWork(t *testing.T) {
	q := NewQueue(4)

	var ran bool
	hold := make(chan struct{})
	require.NoError(t, q.Submit(context.Background(), func() {
		<-hold
	}))
	require.NoError(t, q.Submit(context.Background(), func() {
		ran = true
	}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(hold)
	}()
	q.Stop()

	err := q.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, ran)
}

func TestQueueSubmitRespectsContextCancellation(t *testing.T) {
	q := NewQueue(0)
	defer q.Stop()

	require.NoError(t, q.Submit(context.Background(), func() {
		time.Sleep(50 * time.Millisecond)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)
}
