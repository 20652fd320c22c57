package opkit

// DiagnosticSink receives non-fatal warnings the runtime would otherwise
// have no way to surface: a dropped yield, a rejected circular dependency
// edge, a duplicate path registration. None of these throw; they are
// reported here and the caller's original action (a drop, a no-op) still
// happens.
//
// The default Sink used when a Client or Store is built without one
// discards every diagnostic (see SetDefaultDiagnosticSink);
// internal/opkit/log.Sink is the zerolog-backed implementation, and tests
// typically install a recording Sink instead so assertions don't depend on
// log output.
type DiagnosticSink interface {
	Warn(event string, fields map[string]any)
}

// noopSink discards every diagnostic. Used only as an ultimate fallback so
// the core never needs to nil-check a sink.
type noopSink struct{}

func (noopSink) Warn(string, map[string]any) {}

var defaultSink DiagnosticSink = noopSink{}

// NoopDiagnosticSink returns a DiagnosticSink that discards every warning,
// useful for tests that don't care about diagnostics and for packages
// (like syncengine) that want a safe non-nil default.
func NoopDiagnosticSink() DiagnosticSink { return noopSink{} }

// SetDefaultDiagnosticSink overrides the sink used by stores and
// continuations that were not explicitly given one. Call it once at
// process startup; changing it afterwards does not affect already-constructed Stores, which
// captured their sink at construction time.
func SetDefaultDiagnosticSink(sink DiagnosticSink) {
	if sink == nil {
		sink = noopSink{}
	}
	defaultSink = sink
}
