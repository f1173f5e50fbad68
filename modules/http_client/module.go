// Package http_client provides a shareable HTTP client resource and a span
// method that makes a single request with it.
package http_client

import (
	"time"

	"github.com/vk/dlsgrid/internal/handlers"
)

// Module implements the handlers.Module interface.
type Module struct {
	// Timeout of the created client. Zero means 30 seconds.
	Timeout time.Duration
}

// RegisterHandlers registers the HttpClient factory and the HttpRequest
// method.
func (m *Module) RegisterHandlers(h *handlers.Handlers) {
	h.RegisterFactory("HttpClient", m.createHttpClient)
	h.RegisterMethod("HttpRequest", onRunHttpRequest)
}
