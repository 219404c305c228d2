package instrument

import (
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/trackinglog/pkg/options/logger"
)

const tracerName = "github.com/kart-io/trackinglog/pkg/instrument"

// Option configures an Engine.
type Option func(*Engine)

// WithVerbose logs a debug entry when a call starts and when it returns.
func WithVerbose(on bool) Option {
	return func(e *Engine) { e.verbose = on }
}

// WithProfiling selects what is measured around each call.
func WithProfiling(mode logger.ProfilingMode) Option {
	return func(e *Engine) { e.profiling = mode }
}

// WithCaptureStdout redirects standard output of each call into one info entry.
func WithCaptureStdout(on bool) Option {
	return func(e *Engine) { e.captureStdout = on }
}

// WithTracer sets the tracer used to open one span per call.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the logger for engine diagnostics.
func WithLogger(l core.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// FromSettings applies the instrumentation defaults of o.
func FromSettings(o *logger.Options) Option {
	return func(e *Engine) {
		if o == nil {
			return
		}
		e.verbose = o.Verbose
		e.captureStdout = o.CaptureStdout
		if o.Profiling != "" {
			e.profiling = o.Profiling
		}
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
