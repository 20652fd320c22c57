package opkit

import "sync/atomic"

// ConnStatus describes how reachable the network is, ordered from least to
// most connected so callers can compare with < and >= directly.
type ConnStatus int

const (
	ConnDisconnected ConnStatus = iota
	ConnRequiresConnection
	ConnConnected
)

// String renders the status for logging.
func (c ConnStatus) String() string {
	switch c {
	case ConnDisconnected:
		return "disconnected"
	case ConnRequiresConnection:
		return "requiresConnection"
	case ConnConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// NetworkObserver reports the current connection status and notifies
// subscribers when it changes. Grounded on pkg/events.Broker's
// subscribe-and-replay shape, generalized from pressure levels to
// connectivity.
type NetworkObserver interface {
	Status() ConnStatus
	Subscribe(handler func(ConnStatus)) *Subscription
}

// StaticNetwork is a NetworkObserver that never changes status, useful in
// tests and for environments with no real connectivity signal.
type StaticNetwork struct {
	status ConnStatus
}

// AlwaysConnected returns a StaticNetwork reporting ConnConnected.
func AlwaysConnected() StaticNetwork { return StaticNetwork{status: ConnConnected} }

// Status implements NetworkObserver.
func (s StaticNetwork) Status() ConnStatus { return s.status }

// Subscribe implements NetworkObserver. The handler is never called since a
// StaticNetwork's status cannot change; the returned Subscription cancels a
// no-op.
func (s StaticNetwork) Subscribe(func(ConnStatus)) *Subscription {
	return NewSubscription(func() {})
}

// BrokerNetwork is a NetworkObserver backed by a SubscriptionList, letting production
// code push status changes from a real connectivity monitor.
type BrokerNetwork struct {
	subs   *SubscriptionList[func(ConnStatus)]
	status atomic.Int32
}

// NewBrokerNetwork creates a BrokerNetwork starting at initial.
func NewBrokerNetwork(initial ConnStatus) *BrokerNetwork {
	n := &BrokerNetwork{subs: NewSubscriptionList[func(ConnStatus)]()}
	n.status.Store(int32(initial))
	return n
}

// Status implements NetworkObserver.
func (n *BrokerNetwork) Status() ConnStatus { return ConnStatus(n.status.Load()) }

// Subscribe implements NetworkObserver.
func (n *BrokerNetwork) Subscribe(handler func(ConnStatus)) *Subscription {
	sub, _ := n.subs.Add(handler, false)
	return sub
}

// Update publishes a new status to all subscribers.
func (n *BrokerNetwork) Update(status ConnStatus) {
	n.status.Store(int32(status))
	n.subs.ForEach(func(handler func(ConnStatus)) { handler(status) })
}
