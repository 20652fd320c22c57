package opkit

import "context"

// Operation is the trait every user-supplied async computation implements.
// Modifiers (Retry, Deduplicated, StaleWhenRevalidate, ...) wrap an
// Operation and are themselves Operations, so composition is a zero-cost
// right-to-left wrapper chain (§4.5, §9).
type Operation[V any] interface {
	// Run executes one attempt of the operation. cont lets the body emit
	// intermediate results before its final return.
	Run(ctx context.Context, opCtx *OpContext, cont *Continuation[V]) (V, error)

	// Path identifies this operation in a Client registry.
	Path() Path

	// Setup seeds default context values. It is called once per store
	// creation, leaf (innermost operation) first, matching §4.5's "setup
	// order is leaf-first".
	Setup(opCtx *OpContext) *OpContext
}

// Modifier wraps an Operation to add cross-cutting behaviour (retry,
// dedup, staleness, ...). Composition is right-to-left: Compose(a, b, c)(op)
// == a(b(c(op))), so the outermost modifier listed runs outermost.
type Modifier[V any] func(Operation[V]) Operation[V]

// Compose chains modifiers right-to-left into a single Modifier.
func Compose[V any](modifiers ...Modifier[V]) Modifier[V] {
	return func(op Operation[V]) Operation[V] {
		for i := len(modifiers) - 1; i >= 0; i-- {
			op = modifiers[i](op)
		}
		return op
	}
}

// FuncOperation is the simplest concrete Operation: a path plus plain
// closures, with no modifier behaviour of its own. User code typically
// starts here and wraps the result in the standard modifiers below.
type FuncOperation[V any] struct {
	PathValue Path
	RunFunc   func(ctx context.Context, opCtx *OpContext, cont *Continuation[V]) (V, error)
	SetupFunc func(*OpContext) *OpContext
}

// Run implements Operation.
func (f *FuncOperation[V]) Run(ctx context.Context, opCtx *OpContext, cont *Continuation[V]) (V, error) {
	return f.RunFunc(ctx, opCtx, cont)
}

// Path implements Operation.
func (f *FuncOperation[V]) Path() Path { return f.PathValue }

// Setup implements Operation.
func (f *FuncOperation[V]) Setup(opCtx *OpContext) *OpContext {
	if f.SetupFunc == nil {
		return opCtx
	}
	return f.SetupFunc(opCtx)
}

// NewOperation builds a FuncOperation, the common case of "a path and a
// body, nothing else".
func NewOperation[V any](path Path, run func(context.Context, *OpContext, *Continuation[V]) (V, error)) *FuncOperation[V] {
	return &FuncOperation[V]{PathValue: path, RunFunc: run}
}

// EventHandler receives store-level lifecycle notifications. Every field is
// optional; HandleEvents lets user code observe some subset of
// them without implementing every method.
type EventHandler[V any] struct {
	OnRunStarted    func()
	OnRunEnded      func()
	OnResultReceived func(Result[V], UpdateReason)
	OnStateChanged  func(Status[V])
}
