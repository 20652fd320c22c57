package opkit

// Key is a typed, defaulted context key. Two keys are distinct even if they
// share a name; identity is the pointer, matching the spec's "keyed by type
// identity" requirement while staying type-safe under generics.
type Key[V any] struct {
	name    string
	initial V
}

// NewKey declares a new context key with the given default value. Store the
// result in a package-level var and reuse it; constructing a fresh Key
// defeats lookups against a Context populated via a different Key value.
func NewKey[V any](name string, initial V) *Key[V] {
	return &Key[V]{name: name, initial: initial}
}

// Name returns the key's diagnostic name.
func (k *Key[V]) Name() string { return k.name }

// OpContext is a heterogeneously typed, per-operation scratch map. Values
// are looked up by Key identity; a missing key yields that key's default.
// OpContext is copy-on-write: Set never mutates the receiver, so a Context
// snapshotted into a Task is stable even if the base Context changes later.
type OpContext struct {
	values map[any]any
}

// NewOpContext returns an empty context; every Get against it returns
// defaults until Set is called.
func NewOpContext() *OpContext {
	return &OpContext{}
}

// Get returns the value stored under key, or key's default if absent.
func Get[V any](ctx *OpContext, key *Key[V]) V {
	if ctx == nil || ctx.values == nil {
		return key.initial
	}
	if v, ok := ctx.values[key]; ok {
		return v.(V) //nolint:errcheck // key identity guarantees the dynamic type
	}
	return key.initial
}

// Set returns a new OpContext with key bound to value, leaving ctx
// unmodified. The underlying map is copied once per Set so a base context
// shared by many tasks is never raced on.
func Set[V any](ctx *OpContext, key *Key[V], value V) *OpContext {
	out := &OpContext{values: make(map[any]any, len(ctx.values)+1)}
	for k, v := range ctx.values {
		out.values[k] = v
	}
	out.values[key] = value
	return out
}

// clone performs the same copy-on-write duplication Set does, without
// changing any binding. Used when a Store snapshots its base context for a
// new Task.
func (c *OpContext) clone() *OpContext {
	if c == nil {
		return NewOpContext()
	}
	out := &OpContext{values: make(map[any]any, len(c.values))}
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}
