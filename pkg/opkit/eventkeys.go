package opkit

import (
	"reflect"
	"sync"
)

// eventHandlerKeys memoizes one *Key[[]EventHandler[V]] per value type V,
// mirroring stalePredicateKeys in stale.go.
var eventHandlerKeys sync.Map // reflect.Type -> any (*Key[[]EventHandler[V]])

// EventHandlersKey returns the context key HandleEvents appends to and the
// Store's run protocol drains when notifying observers.
func EventHandlersKey[V any]() *Key[[]EventHandler[V]] {
	var zero V
	t := reflect.TypeOf(&zero).Elem()
	if existing, ok := eventHandlerKeys.Load(t); ok {
		return existing.(*Key[[]EventHandler[V]])
	}
	key := NewKey[[]EventHandler[V]]("opkit.eventHandlers", nil)
	actual, _ := eventHandlerKeys.LoadOrStore(t, key)
	return actual.(*Key[[]EventHandler[V]])
}
