// Package socketio provides a socket.io client resource bound to the host a
// group runs on, and a span method that emits one event and waits for the
// reply.
package socketio

import (
	"time"

	"github.com/vk/dlsgrid/internal/handlers"
)

// Module implements the handlers.Module interface.
type Module struct {
	// Port of the socket.io endpoint on every host. Zero means 3000.
	Port int
	// Path of the endpoint. Empty means "/socket.io/".
	Path      string
	Namespace string
	// ConnectTimeout bounds the first connection. Zero means 15 seconds.
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// RegisterHandlers registers the SocketIOClient factory and the
// SocketIORequest method.
func (m *Module) RegisterHandlers(h *handlers.Handlers) {
	h.RegisterFactory("SocketIOClient", m.createSocketIOClient)
	h.RegisterMethod("SocketIORequest", onRunSocketIORequest)
}
