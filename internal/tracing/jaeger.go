package tracing

import (
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewJaegerTracer returns a tracer reporting every span to the Jaeger agent
// at agentAddr ("host:port"). With an empty address it returns a no-op
// tracer.
func NewJaegerTracer(service, agentAddr string) (opentracing.Tracer, io.Closer, error) {
	if agentAddr == "" {
		return opentracing.NoopTracer{}, closerFunc(func() error { return nil }), nil
	}

	cfg := jaegercfg.Configuration{
		ServiceName: service,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LocalAgentHostPort: agentAddr,
		},
	}
	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize jaeger tracer for %s: %w", service, err)
	}
	return tracer, closer, nil
}
