package opkit

import "sync"

// Subscription is a cancellable handle returned by every subscribe-style
// call in the package. Cancel is idempotent; a Subscription may wrap an
// empty no-op, a single cancel closure, or a fixed list of sub-subscriptions
// combined with NewCombinedSubscription.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a single cancel closure. A nil closure yields a
// Subscription whose Cancel is a no-op, used where there is nothing to tear
// down (e.g. a lookup that found no handler to remove).
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// NewCombinedSubscription cancels every subscription in subs together.
func NewCombinedSubscription(subs ...*Subscription) *Subscription {
	return NewSubscription(func() {
		for _, s := range subs {
			s.Cancel()
		}
	})
}

// Cancel tears the subscription down. Calling Cancel more than once has no
// additional effect.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// subEntry is one registration in a SubscriptionList.
type subEntry[H any] struct {
	id        uint64
	handler   H
	temporary bool
}

// SubscriptionList manages a set of handlers of type H under monotonically
// increasing ids, modeled on pkg/events.Broker's subscriber map but
// generic over the handler type and aware of "temporary" registrations
// (Store.run's one-shot handler) which do not count toward subscriberCount.
type SubscriptionList[H any] struct {
	mu      sync.Mutex
	entries []subEntry[H]
	nextID  uint64
}

// NewSubscriptionList returns an empty list.
func NewSubscriptionList[H any]() *SubscriptionList[H] {
	return &SubscriptionList[H]{}
}

// Add registers handler and returns a Subscription that removes it again,
// plus whether this registration is the first non-temporary one currently
// held (used by Store.subscribe to decide whether to kick off an automatic
// run).
func (l *SubscriptionList[H]) Add(handler H, temporary bool) (*Subscription, bool) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, subEntry[H]{id: id, handler: handler, temporary: temporary})
	isFirst := l.countLocked(false) == 1
	l.mu.Unlock()

	return NewSubscription(func() { l.remove(id) }), isFirst
}

func (l *SubscriptionList[H]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// Count returns the number of non-temporary subscribers currently
// registered.
func (l *SubscriptionList[H]) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countLocked(false)
}

func (l *SubscriptionList[H]) countLocked(includeTemporary bool) int {
	if includeTemporary {
		return len(l.entries)
	}
	n := 0
	for _, e := range l.entries {
		if !e.temporary {
			n++
		}
	}
	return n
}

// ForEach invokes fn once per currently registered handler, iterating over a
// snapshot taken under the lock so fn may itself call Add/remove without
// deadlocking.
func (l *SubscriptionList[H]) ForEach(fn func(H)) {
	l.mu.Lock()
	snapshot := make([]H, len(l.entries))
	for i, e := range l.entries {
		snapshot[i] = e.handler
	}
	l.mu.Unlock()

	for _, h := range snapshot {
		fn(h)
	}
}
