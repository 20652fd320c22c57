package opkit

import "sync"

// MutationShaped is implemented by operations that mutate external state
// rather than query it. The default StoreCreator disables automatic
// running for these (§4.8: "mutation-shaped operations default to
// automatic-running disabled"), since a mutation should never fire just
// because a view subscribed to it.
type MutationShaped interface {
	IsMutation() bool
}

// ClientDefaults configures the modifiers every store the Client creates
// is wrapped with.
type ClientDefaults struct {
	MaxRetries int
	Backoff    BackoffFunc
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithMemoryPressureSource attaches the source the Client subscribes to
// for eviction decisions. The default is AlwaysNormal, under which
// eviction never triggers.
func WithMemoryPressureSource(source MemoryPressureSource) ClientOption {
	return func(c *Client) { c.pressure = source }
}

// WithClientDiagnosticSink overrides the default (no-op) sink used for
// duplicate-path and other client-level diagnostics, and seeded into every
// store the client creates.
func WithClientDiagnosticSink(sink DiagnosticSink) ClientOption {
	return func(c *Client) { c.sink = sink }
}

// WithClientMetrics attaches a MetricsRecorder seeded into every store the
// client creates.
func WithClientMetrics(m MetricsRecorder) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithClientDefaults overrides the retry/backoff defaults StoreCreator
// applies to every registered operation.
func WithClientDefaults(d ClientDefaults) ClientOption {
	return func(c *Client) { c.defaults = d }
}

// Client is the path-addressed directory of live stores (§4.8). Grounded
// on pkg/client/client.go's wrapper-struct shape and pkg/manager's
// registration-with-duplicate-detection pattern, rebuilt around an
// in-process map instead of a gRPC stub.
type Client struct {
	mu       sync.Mutex
	stores   map[string]OpaqueStore
	pressure MemoryPressureSource
	sink     DiagnosticSink
	metrics  MetricsRecorder
	defaults ClientDefaults

	pressureSub *Subscription
}

// NewClient builds an empty registry.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		stores:   make(map[string]OpaqueStore),
		pressure: AlwaysNormal(),
		sink:     defaultSink,
		metrics:  noopMetrics{},
		defaults: ClientDefaults{Backoff: NoBackoff},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pressureSub = c.pressure.Subscribe(c.onPressure)
	return c
}

// Close tears down the client's memory-pressure subscription and closes
// every registered store.
func (c *Client) Close() {
	c.pressureSub.Cancel()
	c.mu.Lock()
	stores := c.stores
	c.stores = make(map[string]OpaqueStore)
	c.mu.Unlock()
	for _, s := range stores {
		s.Close()
	}
}

func (c *Client) onPressure(level PressureLevel) {
	if level == PressureNormal {
		return
	}
	c.mu.Lock()
	var victimKeys []string
	for key, s := range c.stores {
		if s.SubscriberCount() != 0 {
			continue
		}
		for _, evictable := range s.EvictableLevels() {
			if evictable == level {
				victimKeys = append(victimKeys, key)
				break
			}
		}
	}
	var victims []OpaqueStore
	for _, key := range victimKeys {
		victims = append(victims, c.stores[key])
		delete(c.stores, key)
	}
	c.mu.Unlock()

	for _, s := range victims {
		s.Close()
	}
}

// Store looks up the exact path, returning the boxed store if registered.
func (c *Client) Store(path Path) (OpaqueStore, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stores[path.key()]
	return s, ok
}

// Stores snapshots every registered store whose path has prefix.
func (c *Client) Stores(prefix Path) map[string]OpaqueStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]OpaqueStore)
	for key, s := range c.stores {
		if prefix.IsPrefix(s.Path()) {
			out[key] = s
		}
	}
	return out
}

// ClearStore removes and closes the store registered at path, if any.
func (c *Client) ClearStore(path Path) {
	key := path.key()
	c.mu.Lock()
	s, ok := c.stores[key]
	if ok {
		delete(c.stores, key)
	}
	c.mu.Unlock()
	if ok {
		s.Close()
	}
}

// ClearStores removes and closes every store whose path has prefix.
func (c *Client) ClearStores(prefix Path) {
	c.mu.Lock()
	var victims []OpaqueStore
	for key, s := range c.stores {
		if prefix.IsPrefix(s.Path()) {
			victims = append(victims, s)
			delete(c.stores, key)
		}
	}
	c.mu.Unlock()
	for _, s := range victims {
		s.Close()
	}
}

// WithStores gives fn exclusive mutable access to every entry whose path
// has prefix: fn may mutate the map in place to add, replace, or remove
// entries (a deleted key is removed from the registry; new keys are
// inserted). fn runs with the registry lock held and must not call back
// into the Client.
func (c *Client) WithStores(prefix Path, fn func(entries map[string]OpaqueStore)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]OpaqueStore)
	for key, s := range c.stores {
		if prefix.IsPrefix(s.Path()) {
			snapshot[key] = s
		}
	}
	before := make(map[string]struct{}, len(snapshot))
	for k := range snapshot {
		before[k] = struct{}{}
	}

	fn(snapshot)

	for k := range before {
		if _, still := snapshot[k]; !still {
			delete(c.stores, k)
		}
	}
	for k, s := range snapshot {
		c.stores[k] = s
	}
}

// composeDefaults applies the Client's StoreCreator defaults around op:
// deduplication, retry with the client's configured backoff, and
// automatic-running enabled unless op self-reports as mutation-shaped
// (§4.8).
func composeDefaults[V any](c *Client, op Operation[V]) Operation[V] {
	mods := []Modifier[V]{
		Deduplicated[V](),
		Retry[V](c.defaults.MaxRetries, c.defaults.Backoff),
	}
	if tag, ok := op.(MutationShaped); ok && tag.IsMutation() {
		mods = append(mods, DisableAutomaticRunning[V]())
	} else {
		mods = append(mods, EnableAutomaticRunning[V]())
	}
	return Compose(mods...)(op)
}

// ClientStore returns the Store for op, creating and registering one
// composed with the Client's default modifiers if this is the first
// lookup for op.Path(). If a store is already registered at that path
// with a different value type, it emits a DuplicatePath diagnostic and
// returns a fresh, unregistered store together with ErrDuplicatePath, so
// the caller never silently receives a store of the wrong type.
func ClientStore[V any](c *Client, op Operation[V]) (*Store[V], error) {
	key := op.Path().key()

	c.mu.Lock()
	existing, found := c.stores[key]
	c.mu.Unlock()

	if found {
		if typed, ok := Unwrap[V](existing); ok {
			return typed, nil
		}
		c.sink.Warn("duplicate_path", map[string]any{"path": op.Path().String()})
		store := NewStore[V](op.Path(), composeDefaults(c, op), WithDiagnosticSink[V](c.sink), WithMetrics[V](c.metrics))
		return store, ErrDuplicatePath
	}

	store := NewStore[V](op.Path(), composeDefaults(c, op), WithDiagnosticSink[V](c.sink), WithMetrics[V](c.metrics))

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, found := c.stores[key]; found {
		if typed, ok := Unwrap[V](existing); ok {
			return typed, nil
		}
		c.sink.Warn("duplicate_path", map[string]any{"path": op.Path().String()})
		return store, ErrDuplicatePath
	}
	c.stores[key] = Wrap(store)
	return store, nil
}

// ClientStoresOf snapshots every registered store whose path has prefix
// and whose boxed value type is V, already downcast.
func ClientStoresOf[V any](c *Client, prefix Path) map[string]*Store[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*Store[V])
	for key, s := range c.stores {
		if !prefix.IsPrefix(s.Path()) {
			continue
		}
		if typed, ok := Unwrap[V](s); ok {
			out[key] = typed
		}
	}
	return out
}
