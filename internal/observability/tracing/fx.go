package tracing

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("tracing",
	fx.Provide(NewProvider),
	fx.Invoke(ensureProvider),
)

// fx constructors are lazy and nothing consumes the provider directly; the
// invoke forces construction so the global provider and its shutdown hook are
// registered at startup.
func ensureProvider(_ trace.TracerProvider) {}
