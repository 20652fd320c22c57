// Package opkittest collects the test doubles package-level _test.go
// files in this module use in place of real time, real network signals,
// real memory pressure, and real durable storage: a FakeClock advanced by
// hand, a FakeNetworkObserver a test flips directly, a
// FakeMemoryPressureSource a test can publish on and block until observed,
// and a MapSecureStorage standing in for tokens.SecureStorage. Grounded on
// the teacher's own _test.go fixtures (pkg/reconciler, pkg/scheduler) that
// build minimal in-memory stand-ins for the same collaborators rather than
// reaching for a mocking framework.
package opkittest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/opkit/pkg/opkit"
)

// FakeClock is a manually-advanced opkit.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements opkit.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ opkit.Clock = (*FakeClock)(nil)

// FakeNetworkObserver is a NetworkObserver a test can flip directly,
// synchronously notifying subscribers on Set.
type FakeNetworkObserver struct {
	mu     sync.Mutex
	status opkit.ConnStatus
	subs   *opkit.SubscriptionList[func(opkit.ConnStatus)]
}

// NewFakeNetworkObserver returns a FakeNetworkObserver starting at initial.
func NewFakeNetworkObserver(initial opkit.ConnStatus) *FakeNetworkObserver {
	return &FakeNetworkObserver{status: initial, subs: opkit.NewSubscriptionList[func(opkit.ConnStatus)]()}
}

// Status implements opkit.NetworkObserver.
func (f *FakeNetworkObserver) Status() opkit.ConnStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Subscribe implements opkit.NetworkObserver.
func (f *FakeNetworkObserver) Subscribe(handler func(opkit.ConnStatus)) *opkit.Subscription {
	sub, _ := f.subs.Add(handler, false)
	return sub
}

// Set updates the status and synchronously notifies every subscriber.
func (f *FakeNetworkObserver) Set(status opkit.ConnStatus) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
	f.subs.ForEach(func(h func(opkit.ConnStatus)) { h(status) })
}

var _ opkit.NetworkObserver = (*FakeNetworkObserver)(nil)

// FakeMemoryPressureSource is a MemoryPressureSource a test can publish on
// directly, with a Published channel tests can select on to synchronize
// with eviction having actually been observed by a subscriber.
type FakeMemoryPressureSource struct {
	broker    *opkit.Broker
	Published chan opkit.PressureLevel
}

// NewFakeMemoryPressureSource returns a ready-to-use fake.
func NewFakeMemoryPressureSource() *FakeMemoryPressureSource {
	return &FakeMemoryPressureSource{
		broker:    opkit.NewBroker(),
		Published: make(chan opkit.PressureLevel, 16),
	}
}

// Subscribe implements opkit.MemoryPressureSource.
func (f *FakeMemoryPressureSource) Subscribe(handler func(opkit.PressureLevel)) *opkit.Subscription {
	return f.broker.Subscribe(handler)
}

// Publish fans level out to subscribers and records it on Published.
func (f *FakeMemoryPressureSource) Publish(level opkit.PressureLevel) {
	f.broker.Publish(level)
	select {
	case f.Published <- level:
	default:
	}
}

var _ opkit.MemoryPressureSource = (*FakeMemoryPressureSource)(nil)

// MapSecureStorage is an in-memory tokens.SecureStorage.
type MapSecureStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMapSecureStorage returns an empty MapSecureStorage.
func NewMapSecureStorage() *MapSecureStorage {
	return &MapSecureStorage{values: make(map[string][]byte)}
}

func (m *MapSecureStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("opkittest: key %q not found", key)
	}
	return v, nil
}

func (m *MapSecureStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MapSecureStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// RecordingSink is an opkit.DiagnosticSink that appends every warning it
// receives, for tests asserting on diagnostics instead of log output.
type RecordingSink struct {
	mu      sync.Mutex
	Entries []RecordedWarning
}

// RecordedWarning is one call captured by RecordingSink.
type RecordedWarning struct {
	Event  string
	Fields map[string]any
}

// NewRecordingSink returns an empty RecordingSink.
func NewRecordingSink() *RecordingSink { return &RecordingSink{} }

func (s *RecordingSink) Warn(event string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Entries = append(s.Entries, RecordedWarning{Event: event, Fields: fields})
}

// Len returns the number of warnings recorded so far.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Entries)
}

var _ opkit.DiagnosticSink = (*RecordingSink)(nil)
