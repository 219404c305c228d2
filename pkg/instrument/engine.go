// Package instrument wraps functions and method sets so that every call is
// logged through a sink.
//
// For each call the engine, in order:
//
//  1. logs "Starting function <label>" at DEBUG when verbose
//  2. acquires the profiling scope (none, time and resources, or per line)
//  3. redirects standard output when capture is on
//  4. invokes the callable, with the sink reachable via SinkFromContext
//  5. on success logs captured output and the profiling report at INFO,
//     then "Function <label> ended" at DEBUG when verbose
//  6. on a returned error or a panic logs two ERROR entries, the message
//     and a stack trace without engine frames, then hands the same error
//     back or panics again with the same value
//
// Profiling and redirection are released on every path.
package instrument

import (
	"context"
	"fmt"

	kartlog "github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/logmanager"
	"github.com/kart-io/trackinglog/pkg/options/logger"
)

// Engine instruments callables against one sink. The sink is shared; the
// engine never closes it.
type Engine struct {
	sink          *logmanager.Sink
	verbose       bool
	profiling     logger.ProfilingMode
	captureStdout bool
	tracer        trace.Tracer
	log           core.Logger
}

// New creates an engine writing to sink. sink must not be nil.
func New(sink *logmanager.Sink, opts ...Option) *Engine {
	e := &Engine{
		sink:      sink,
		profiling: logger.ProfilingNone,
	}
	for _, o := range opts {
		o(e)
	}
	if e.tracer == nil {
		e.tracer = defaultTracer()
	}
	if e.log == nil {
		e.log = kartlog.Global().With("component", "instrument")
	}
	return e
}

// Sink returns the engine's sink.
func (e *Engine) Sink() *logmanager.Sink { return e.sink }

// Run executes fn as an instrumented call labeled label. The error returned
// by fn is returned unchanged, and a panic in fn is re-raised with the same
// value. When fn succeeds but an entry cannot be written, the write error is
// returned. Run fails with ErrSinkClosed without calling fn if the sink has
// been closed.
func (e *Engine) Run(ctx context.Context, label string, fn func(ctx context.Context) error) (err error) {
	if st := e.sink.State(); st != logmanager.StateOpen {
		return errors.ErrSinkClosed.WithMessagef("cannot instrument %q: sink %q is %s", label, e.sink.Name(), st)
	}

	callID := ulid.Make().String()
	ctx, span := e.tracer.Start(ctx, label, trace.WithAttributes(
		attribute.String("trackinglog.call_id", callID),
		attribute.String("trackinglog.sink", e.sink.Name()),
	))
	defer span.End()

	var logErr error
	if e.verbose {
		logErr = e.write(logmanager.DebugLevel, label, fmt.Sprintf("Starting function %s [%s]", label, callID))
	}

	scope := StartProfiling(e.profiling)
	defer scope.Release()

	var redirect *stdoutRedirect
	if e.captureStdout {
		redirect, err = startRedirect()
		if err != nil {
			return err
		}
		defer redirect.restore()
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		r := recover()
		redirect.restore()
		if r == nil {
			// runtime.Goexit
			return
		}
		msg := fmt.Sprint(r)
		if perr, ok := r.(error); ok {
			msg = perr.Error()
		}
		e.logFailure(label, msg, stackTrace(1))
		span.SetStatus(codes.Error, msg)
		span.SetAttributes(attribute.Bool("trackinglog.panic", true))
		scope.Release()
		panic(r)
	}()

	callErr := fn(WithSink(ctx, e.sink))
	completed = true

	if callErr != nil {
		redirect.restore()
		e.logFailure(label, callErr.Error(), stackTrace(0))
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		scope.Release()
		return callErr
	}

	if out := redirect.restore(); out != "" {
		logErr = firstErr(logErr, e.write(logmanager.InfoLevel, label, out))
	}
	if report := scope.Report(); report != "" {
		logErr = firstErr(logErr, e.write(logmanager.InfoLevel, label, fmt.Sprintf("%s [%s]", report, callID)))
	}
	if e.verbose {
		logErr = firstErr(logErr, e.write(logmanager.DebugLevel, label, fmt.Sprintf("Function %s ended [%s]", label, callID)))
	}
	if logErr != nil {
		span.RecordError(logErr)
	}
	return logErr
}

// logFailure writes the message and the stack trace as two ERROR entries.
// Write failures are reported through the diagnostics logger only, so the
// caller always sees the original failure.
func (e *Engine) logFailure(label, msg, stack string) {
	for _, m := range []string{msg, stack} {
		if err := e.write(logmanager.ErrorLevel, label, m); err != nil {
			e.log.Warnw("failed to log call failure", "label", label, "sink", e.sink.Name(), "error", err)
		}
	}
}

func (e *Engine) write(level logmanager.Level, label, msg string) error {
	return e.sink.Write(level, label, msg)
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
