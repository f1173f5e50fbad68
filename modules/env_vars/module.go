package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/vk/dlsgrid/internal/handlers"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/registry"
)

// OutputKey is the output key EnvVars writes to.
const OutputKey = "env"

// Module implements the handlers.Module interface for this package.
type Module struct {
	// Prefix limits the copied variables to names starting with it. The
	// prefix is kept in the copied names.
	Prefix string
}

// EnvVars records the process environment of the
// host running it under OutputKey.
func (m *Module) EnvVars(_ context.Context, _ *registry.Resources, out *output.Output) error {
	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(k, m.Prefix) {
			continue
		}
		envMap[k] = v
	}
	return out.Set(OutputKey, envMap)
}

// RegisterHandlers registers the EnvVars method.
func (m *Module) RegisterHandlers(h *handlers.Handlers) {
	h.RegisterMethod("EnvVars", m.EnvVars)
}
