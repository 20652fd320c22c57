package opkit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlwaysNormalNeverFires(t *testing.T) {
	source := AlwaysNormal()
	sub := source.Subscribe(func(PressureLevel) { t.Fatal("handler should never be called") })
	sub.Cancel()
}

func TestBrokerPublishFansOutInOrder(t *testing.T) {
	broker := NewBroker()

	var received []PressureLevel
	var mu sync.Mutex
	sub := broker.Subscribe(func(level PressureLevel) {
		mu.Lock()
		received = append(received, level)
		mu.Unlock()
	})
	defer sub.Cancel()

	broker.Publish(PressureWarning)
	broker.Publish(PressureCritical)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []PressureLevel{PressureWarning, PressureCritical}, received)
}

func TestBrokerPublishSkipsCancelledSubscribers(t *testing.T) {
	broker := NewBroker()

	var calls int
	sub := broker.Subscribe(func(PressureLevel) { calls++ })
	sub.Cancel()

	broker.Publish(PressureCritical)
	assert.Equal(t, 0, calls)
}

func TestPressureLevelString(t *testing.T) {
	assert.Equal(t, "normal", PressureNormal.String())
	assert.Equal(t, "warning", PressureWarning.String())
	assert.Equal(t, "critical", PressureCritical.String())
}
