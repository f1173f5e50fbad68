package tracing

import (
	"net/http"

	"github.com/opentracing-contrib/go-stdlib/nethttp"
	"github.com/opentracing/opentracing-go"
)

// Middleware records a server span for every request handled by h, named
// "<METHOD> <path>".
func Middleware(tracer opentracing.Tracer, h http.Handler) http.Handler {
	return nethttp.Middleware(tracer, h,
		nethttp.OperationNameFunc(func(r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
