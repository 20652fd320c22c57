package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/opkit/pkg/opkit"
)

func TestMonitorHealthyWhenNoFailures(t *testing.T) {
	client := opkit.NewClient()
	defer client.Close()

	op := opkit.NewOperation[int](opkit.NewPath("weather", "sf"), func(context.Context, *opkit.OpContext, *opkit.Continuation[int]) (int, error) {
		return 1, nil
	})
	store, err := opkit.ClientStore(client, op)
	require.NoError(t, err)
	_, err = store.Run(context.Background())
	require.NoError(t, err)

	mon := NewMonitor(client, DefaultConfig())
	assert.True(t, mon.Healthy(context.Background(), opkit.NewPath("weather")))
}

func TestMonitorUnhealthyAfterConsecutiveFailures(t *testing.T) {
	client := opkit.NewClient()
	defer client.Close()

	op := opkit.NewOperation[int](opkit.NewPath("weather", "failcity"), func(context.Context, *opkit.OpContext, *opkit.Continuation[int]) (int, error) {
		return 0, errors.New("boom")
	})
	store, err := opkit.ClientStore(client, op)
	require.NoError(t, err)

	mon := NewMonitor(client, Config{Retries: 2})

	_, _ = store.Run(context.Background())
	assert.True(t, mon.Healthy(context.Background(), opkit.NewPath("weather")))

	_, _ = store.Run(context.Background())
	assert.False(t, mon.Healthy(context.Background(), opkit.NewPath("weather")))
}

func TestMonitorRecoversAfterSuccess(t *testing.T) {
	client := opkit.NewClient()
	defer client.Close()

	shouldFail := true
	op := opkit.NewOperation[int](opkit.NewPath("weather", "flaky"), func(context.Context, *opkit.OpContext, *opkit.Continuation[int]) (int, error) {
		if shouldFail {
			return 0, errors.New("boom")
		}
		return 5, nil
	})
	store, err := opkit.ClientStore(client, op)
	require.NoError(t, err)

	mon := NewMonitor(client, Config{Retries: 1})
	_, _ = store.Run(context.Background())
	assert.False(t, mon.Healthy(context.Background(), opkit.NewPath("weather")))

	shouldFail = false
	_, _ = store.Run(context.Background())
	assert.True(t, mon.Healthy(context.Background(), opkit.NewPath("weather")))
}
