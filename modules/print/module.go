package print

import (
	"context"
	"encoding/json"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/handlers"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/registry"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Print logs the extra keys the run has collected so far, sorted by key.
func Print(ctx context.Context, _ *registry.Resources, out *output.Output) error {
	logger := ctxlog.FromContext(ctx)
	keys := out.Keys()
	logger.Info("Printing output.", "keys", len(keys), "diagram", len(out.Diagram()))

	for _, k := range keys {
		var v json.RawMessage
		if _, err := out.Get(k, &v); err != nil {
			return err
		}
		logger.Info("Output value.", "key", k, "value", string(v))
	}
	return nil
}

// RegisterHandlers registers the Print method.
func (m *Module) RegisterHandlers(h *handlers.Handlers) {
	h.RegisterMethod("Print", Print)
}
