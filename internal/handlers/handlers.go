// Package handlers is the catalog of compiled Go functions that manifests
// refer to by name. A manifest span says `method = "Print"` and a resource
// says `factory = "HttpClient"`; the catalog resolves those names to the
// functions built-in modules contributed.
package handlers

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/vk/dlsgrid/internal/registry"
)

// Handlers holds all the named span methods and resource factories.
type Handlers struct {
	methods   map[string]registry.SpanFunc
	factories map[string]registry.ResourceFactory
}

// New creates and initializes a new Handlers catalog.
func New() *Handlers {
	return &Handlers{
		methods:   make(map[string]registry.SpanFunc),
		factories: make(map[string]registry.ResourceFactory),
	}
}

// Module is implemented by built-in modules that contribute named handlers.
type Module interface {
	RegisterHandlers(h *Handlers)
}

// RegisterMethod registers a span method under name.
func (h *Handlers) RegisterMethod(name string, fn registry.SpanFunc) {
	if _, exists := h.methods[name]; exists {
		panic(fmt.Sprintf("span method with name '%s' already registered", name))
	}
	slog.Debug("Registering span method.", "name", name)
	h.methods[name] = fn
}

// RegisterFactory registers a resource factory under name.
func (h *Handlers) RegisterFactory(name string, fn registry.ResourceFactory) {
	if _, exists := h.factories[name]; exists {
		panic(fmt.Sprintf("resource factory with name '%s' already registered", name))
	}
	slog.Debug("Registering resource factory handler.", "name", name)
	h.factories[name] = fn
}

// Method resolves a span method by name.
func (h *Handlers) Method(name string) (registry.SpanFunc, error) {
	fn, ok := h.methods[name]
	if !ok {
		return nil, fmt.Errorf("unknown span method '%s' (known: %v)", name, h.MethodNames())
	}
	return fn, nil
}

// Factory resolves a resource factory by name.
func (h *Handlers) Factory(name string) (registry.ResourceFactory, error) {
	fn, ok := h.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown resource factory '%s' (known: %v)", name, h.FactoryNames())
	}
	return fn, nil
}

// MethodNames returns the registered method names, sorted.
func (h *Handlers) MethodNames() []string {
	return slices.Sorted(maps.Keys(h.methods))
}

// FactoryNames returns the registered factory names, sorted.
func (h *Handlers) FactoryNames() []string {
	return slices.Sorted(maps.Keys(h.factories))
}
