// Package health turns a Client's registered stores into a liveness report:
// cmd/opkitdemo's serve subcommand polls this instead of a container
// runtime's exec/TCP/HTTP probes, reporting a store unhealthy once several
// consecutive checks have each found it in a failed status. Grounded on the teacher's own
// pkg/health (Result/Config/Status shape, consecutive-failure accounting),
// repurposed from "is this container process still answering" to "are this
// module's background operations still succeeding."
package health

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/cuemby/opkit/pkg/opkit"
)

// Result is the outcome of checking one store.
type Result struct {
	Path      string
	Healthy   bool
	Message   string
	CheckedAt time.Time
}

// Config controls how many consecutive failures mark a store unhealthy.
type Config struct {
	Retries int
}

// DefaultConfig returns a Config requiring 3 consecutive failures.
func DefaultConfig() Config {
	return Config{Retries: 3}
}

// storeStatus tracks one store's consecutive failure/success streak.
type storeStatus struct {
	consecutiveFailures int
	healthy             bool
}

// Monitor polls every store registered on a Client and reports aggregate
// liveness, the way the teacher's Status tracked one container's
// consecutive check outcomes.
type Monitor struct {
	client *opkit.Client
	config Config

	mu     sync.Mutex
	status map[string]*storeStatus
}

// NewMonitor returns a Monitor watching every store client currently has or
// will register, under the given Config.
func NewMonitor(client *opkit.Client, config Config) *Monitor {
	return &Monitor{client: client, config: config, status: make(map[string]*storeStatus)}
}

// Check polls every store under prefix once, updating each store's
// consecutive-failure streak and returning one Result per store.
func (m *Monitor) Check(_ context.Context, prefix opkit.Path) []Result {
	stores := m.client.Stores(prefix)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	results := make([]Result, 0, len(stores))
	for key, store := range stores {
		failed := statusIsFailure(store.Status())

		s, ok := m.status[key]
		if !ok {
			s = &storeStatus{healthy: true}
			m.status[key] = s
		}
		if failed {
			s.consecutiveFailures++
			if s.consecutiveFailures >= m.config.Retries {
				s.healthy = false
			}
		} else {
			s.consecutiveFailures = 0
			s.healthy = true
		}

		message := "ok"
		if !s.healthy {
			message = "exceeded retry threshold"
		}
		results = append(results, Result{
			Path:      key,
			Healthy:   s.healthy,
			Message:   message,
			CheckedAt: now,
		})
	}
	return results
}

// Healthy reports whether every store under prefix is currently healthy.
func (m *Monitor) Healthy(ctx context.Context, prefix opkit.Path) bool {
	for _, r := range m.Check(ctx, prefix) {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// statusIsFailure reports whether an opaque Status[V]'s Kind field equals
// StatusFailure, using reflection since the concrete Status[V] type varies
// by store and OpaqueStore.Status only promises an `any`.
func statusIsFailure(status any) bool {
	v := reflect.ValueOf(status)
	if v.Kind() != reflect.Struct {
		return false
	}
	kind := v.FieldByName("Kind")
	if !kind.IsValid() {
		return false
	}
	return kind.Int() == int64(opkit.StatusFailure)
}
