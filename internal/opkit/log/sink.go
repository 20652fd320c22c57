package log

import "github.com/cuemby/opkit/pkg/opkit"

// Sink adapts the global zerolog Logger to opkit.DiagnosticSink, so Store
// and Client diagnostics (dropped yields, duplicate registrations,
// controller access after close) flow through the same structured logging pipeline as
// everything else.
type Sink struct {
	component string
}

// NewSink returns a Sink whose entries carry component, via WithComponent.
func NewSink(component string) Sink {
	return Sink{component: component}
}

func (s Sink) Warn(event string, fields map[string]any) {
	evt := WithComponent(s.component).Warn().Str("event", event)
	for k, v := range fields {
		evt = evt.Interface(k, v)
	}
	evt.Msg(event)
}

var _ opkit.DiagnosticSink = Sink{}
