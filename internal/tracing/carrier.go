// Package tracing propagates a distributed trace across dispatch hops.
//
// The scheduler only talks to the Carrier interface: it starts spans for the
// work it runs, injects the active span into outgoing dispatch requests and
// extracts the caller's span from incoming ones. The OpenTracing backend
// below is the one the service ships with.
package tracing

import (
	"context"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Carrier is the trace propagation capability the scheduler depends on.
type Carrier interface {
	// StartSpan starts a span that is a child of whatever span ctx carries.
	// The returned function finishes it.
	StartSpan(ctx context.Context, operation string) (context.Context, func())
	// Inject writes the span carried by ctx into h.
	Inject(ctx context.Context, h http.Header) error
	// Extract returns ctx enriched with the span context found in h, so
	// spans started from it continue the caller's trace.
	Extract(ctx context.Context, h http.Header) context.Context
}

type remoteParentKey struct{}

// OpenTracing implements Carrier on top of an opentracing.Tracer.
type OpenTracing struct {
	tracer opentracing.Tracer
}

// NewOpenTracing wraps tracer. A nil tracer behaves like opentracing.NoopTracer.
func NewOpenTracing(tracer opentracing.Tracer) *OpenTracing {
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	return &OpenTracing{tracer: tracer}
}

// Tracer returns the wrapped tracer.
func (o *OpenTracing) Tracer() opentracing.Tracer {
	return o.tracer
}

func (o *OpenTracing) StartSpan(ctx context.Context, operation string) (context.Context, func()) {
	var parent opentracing.SpanContext
	if sp := opentracing.SpanFromContext(ctx); sp != nil {
		parent = sp.Context()
	} else if remote, ok := ctx.Value(remoteParentKey{}).(opentracing.SpanContext); ok {
		parent = remote
	}

	sp := o.tracer.StartSpan(operation, opentracing.ChildOf(parent))
	return opentracing.ContextWithSpan(ctx, sp), sp.Finish
}

func (o *OpenTracing) Inject(ctx context.Context, h http.Header) error {
	sp := opentracing.SpanFromContext(ctx)
	if sp == nil {
		return nil
	}
	ext.SpanKindRPCClient.Set(sp)
	return o.tracer.Inject(sp.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
}

func (o *OpenTracing) Extract(ctx context.Context, h http.Header) context.Context {
	if opentracing.SpanFromContext(ctx) != nil {
		return ctx
	}
	sc, err := o.tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, remoteParentKey{}, sc)
}
