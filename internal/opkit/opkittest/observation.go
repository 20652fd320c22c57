package opkittest

import "context"

// FakeObservation is a channel-driven syncengine.Observation double: a
// test calls Emit to push a new record set, simulating a database change
// notification without a real bbolt bucket.
type FakeObservation[T any] struct {
	ch chan []T
}

// NewFakeObservation returns a FakeObservation with a small emission
// buffer.
func NewFakeObservation[T any]() *FakeObservation[T] {
	return &FakeObservation[T]{ch: make(chan []T, 8)}
}

// Subscribe implements syncengine.Observation.
func (f *FakeObservation[T]) Subscribe(ctx context.Context) (<-chan []T, error) {
	out := make(chan []T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case records, ok := <-f.ch:
				if !ok {
					return
				}
				select {
				case out <- records:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Emit pushes a new record set to any active subscriber.
func (f *FakeObservation[T]) Emit(records []T) {
	f.ch <- records
}
