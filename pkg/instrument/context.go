package instrument

import (
	"context"

	"github.com/kart-io/trackinglog/pkg/logmanager"
)

type sinkKey struct{}

// WithSink returns a copy of ctx carrying s.
func WithSink(ctx context.Context, s *logmanager.Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// SinkFromContext returns the sink of the instrumented call running with ctx.
func SinkFromContext(ctx context.Context) (*logmanager.Sink, bool) {
	s, ok := ctx.Value(sinkKey{}).(*logmanager.Sink)
	return s, ok && s != nil
}
