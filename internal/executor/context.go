package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/metrics"
	"github.com/vk/dlsgrid/internal/planner"
	"github.com/vk/dlsgrid/internal/registry"
	"github.com/vk/dlsgrid/internal/tracing"
	"github.com/vk/dlsgrid/internal/workerpool"
)

// GroupContext is a group bound to one host. It is created once per
// (group, host) and serves any number of runs, concurrently if needed.
type GroupContext struct {
	group string
	host  *registry.Host

	reg        *registry.Registry
	plan       *planner.Plan
	pool       *workerpool.Pool
	resources  *registry.Resources
	tracer     tracing.Carrier
	dispatcher Dispatcher
	metrics    *metrics.Metrics
}

// Option configures a GroupContext.
type Option func(*GroupContext)

// WithTracer sets the trace carrier. The default records nothing.
func WithTracer(t tracing.Carrier) Option {
	return func(gc *GroupContext) { gc.tracer = t }
}

// WithDispatcher sets the dispatcher used to reach other hosts.
func WithDispatcher(d Dispatcher) Option {
	return func(gc *GroupContext) { gc.dispatcher = d }
}

// WithMetrics sets the collectors updated by runs.
func WithMetrics(m *metrics.Metrics) Option {
	return func(gc *GroupContext) { gc.metrics = m }
}

// InitializeGroup plans group for host, sizes the worker pool to the plan
// and builds the resource handle by calling every registered resource
// factory with the host's address. reg must be frozen.
func InitializeGroup(ctx context.Context, reg *registry.Registry, group, host string, opts ...Option) (*GroupContext, error) {
	logger := ctxlog.FromContext(ctx).With("group", group, "host", host)

	if !reg.Frozen() {
		return nil, errors.New("registry must be frozen before groups are initialized")
	}
	h, ok := reg.Host(host)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownHost, host)
	}

	plan, err := planner.Build(ctx, reg, group)
	if err != nil {
		return nil, err
	}

	gc := &GroupContext{
		group:     group,
		host:      h,
		reg:       reg,
		plan:      plan,
		pool:      workerpool.New(len(plan.Spans)),
		resources: registry.NewResources(),
		tracer:    tracing.NewOpenTracing(nil),
	}
	for _, opt := range opts {
		opt(gc)
	}

	names, factories := reg.ResourceFactories()
	for i, factory := range factories {
		logger.Debug("Initializing resource.", "resource", names[i], "address", h.Address)
		if err := factory(ctx, gc.resources, h.Address); err != nil {
			return nil, fmt.Errorf("resource '%s' failed to initialize on host '%s': %w", names[i], host, err)
		}
	}

	logger.Info("✅ Group initialized.", "spans", len(plan.Spans), "batches", len(plan.Batches), "resources", len(names))
	return gc, nil
}

// Group returns the group name.
func (gc *GroupContext) Group() string { return gc.group }

// Host returns the host this context is bound to.
func (gc *GroupContext) Host() *registry.Host { return gc.host }

// Plan returns the host-assigned plan.
func (gc *GroupContext) Plan() *planner.Plan { return gc.plan }

// Resources returns the resource handle shared by the spans of this host.
func (gc *GroupContext) Resources() *registry.Resources { return gc.resources }

// Close waits for every task the context ever submitted.
func (gc *GroupContext) Close() {
	gc.pool.Wait()
}
