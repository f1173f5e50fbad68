package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/executor"
	"github.com/vk/dlsgrid/internal/handlers"
	"github.com/vk/dlsgrid/internal/interop"
	"github.com/vk/dlsgrid/internal/manifest"
	"github.com/vk/dlsgrid/internal/metrics"
	"github.com/vk/dlsgrid/internal/registry"
	"github.com/vk/dlsgrid/internal/tracing"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	logger *slog.Logger
	config *Config

	registry *registry.Registry

	tracer       opentracing.Tracer
	tracerCloser io.Closer
	carrier      tracing.Carrier

	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics

	interop    *interop.Server
	dispatcher *interop.Client

	mu       sync.Mutex
	contexts []*executor.GroupContext
}

// NewApp is the constructor for the main application. It loads the manifest,
// binds it to the handlers contributed by modules and freezes the resulting
// registry. Without modules the built-in ones are used.
func NewApp(outW io.Writer, cfg *Config, modules ...handlers.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	catalog := handlers.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.RegisterHandlers(catalog)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "methods", catalog.MethodNames(), "factories", catalog.FactoryNames())

	m, err := manifest.Load(ctx, cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	reg := registry.New()
	if err := m.Apply(reg, catalog); err != nil {
		return nil, fmt.Errorf("failed to apply manifest: %w", err)
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.", "hosts", len(reg.Hosts()), "groups", reg.Groups())

	tracer, closer, err := tracing.NewJaegerTracer(serviceName(cfg.HostName), cfg.JaegerAgent)
	if err != nil {
		return nil, err
	}
	carrier := tracing.NewOpenTracing(tracer)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(promRegistry)

	return &App{
		logger:       logger,
		config:       cfg,
		registry:     reg,
		tracer:       tracer,
		tracerCloser: closer,
		carrier:      carrier,
		promRegistry: promRegistry,
		metrics:      appMetrics,
		interop:      interop.NewServer(logger, appMetrics),
		dispatcher:   interop.NewClient(&http.Client{Timeout: cfg.DispatchTimeout}, carrier),
	}, nil
}

func serviceName(host string) string {
	if host == "" {
		return "dlsgrid"
	}
	return "dlsgrid-" + host
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Gatherer returns the registry the application's metrics are collected in.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.promRegistry
}

// initGroup binds group to the configured host and makes it reachable
// through the dispatch server.
func (a *App) initGroup(ctx context.Context, group string) (*executor.GroupContext, error) {
	if a.config.HostName == "" {
		return nil, errors.New("a host name is required to initialize groups")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if gc, ok := a.interop.Context(group); ok {
		return gc, nil
	}

	gc, err := executor.InitializeGroup(ctx, a.registry, group, a.config.HostName,
		executor.WithTracer(a.carrier),
		executor.WithDispatcher(a.dispatcher),
		executor.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize group '%s': %w", group, err)
	}
	a.interop.Serve(gc)
	a.contexts = append(a.contexts, gc)
	return gc, nil
}

// Close waits for every group's in-flight spans and flushes the tracer.
func (a *App) Close() error {
	a.mu.Lock()
	contexts := a.contexts
	a.contexts = nil
	a.mu.Unlock()

	for _, gc := range contexts {
		gc.Close()
	}
	if err := a.tracerCloser.Close(); err != nil {
		return fmt.Errorf("failed to close tracer: %w", err)
	}
	a.logger.Debug("App closed.")
	return nil
}
