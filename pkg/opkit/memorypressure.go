package opkit

// PressureLevel mirrors the OS-level memory pressure notifications a real
// platform would deliver; the core never talks to the OS directly (§9
// design notes: "avoid coupling to any OS API inside the core").
type PressureLevel int

const (
	PressureNormal PressureLevel = iota
	PressureWarning
	PressureCritical
)

// String renders the level for diagnostics and logging.
func (p PressureLevel) String() string {
	switch p {
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MemoryPressureSource publishes pressure-level transitions. The Client
// registry subscribes to evict unsubscribed, evictable stores (§4.8).
type MemoryPressureSource interface {
	Subscribe(handler func(PressureLevel)) *Subscription
}

// alwaysNormalSource never publishes anything; it is the default source a
// Client uses when constructed without an explicit one, so eviction simply
// never triggers rather than requiring a nil check at every call site.
type alwaysNormalSource struct{}

// Subscribe implements MemoryPressureSource.
func (alwaysNormalSource) Subscribe(func(PressureLevel)) *Subscription {
	return NewSubscription(nil)
}

// AlwaysNormal returns a MemoryPressureSource that never fires.
func AlwaysNormal() MemoryPressureSource { return alwaysNormalSource{} }

// Broker is a concrete, mutable MemoryPressureSource a host application can
// drive directly (tests use the richer opkittest.FakeMemoryPressureSource,
// which additionally lets a test block until a publish is observed).
// Grounded on pkg/events.Broker's publish/subscribe shape, but without
// channels: each published level is handed to every subscriber in turn,
// synchronously, through a SubscriptionList.
type Broker struct {
	list *SubscriptionList[func(PressureLevel)]
}

// NewBroker returns a ready-to-use Broker.
func NewBroker() *Broker {
	return &Broker{list: NewSubscriptionList[func(PressureLevel)]()}
}

// Subscribe implements MemoryPressureSource.
func (b *Broker) Subscribe(handler func(PressureLevel)) *Subscription {
	sub, _ := b.list.Add(handler, false)
	return sub
}

// Publish fans out level to every current subscriber, synchronously, in
// registration order.
func (b *Broker) Publish(level PressureLevel) {
	b.list.ForEach(func(h func(PressureLevel)) { h(level) })
}
