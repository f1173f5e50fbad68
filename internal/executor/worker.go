package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/metrics"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/planner"
	"github.com/vk/dlsgrid/internal/workerpool"
)

// workerTask runs the method of s inside a trace span named after it. Local
// ancestors have already been awaited by the pool when it starts.
func (gc *GroupContext) workerTask(s *planner.PlannedSpan, out *output.Output) workerpool.Task {
	return func(ctx context.Context) error {
		ctx = ctxlog.With(ctx, "span", s.Name)
		logger := ctxlog.FromContext(ctx)

		method, ok := gc.reg.Method(gc.group, s.Name)
		if !ok {
			gc.metrics.ObserveSpan(gc.group, gc.host.Name, s.Name, metrics.ResultError, 0)
			return fmt.Errorf("%w: '%s'", ErrNoMethod, s.Name)
		}

		ctx, finish := gc.tracer.StartSpan(ctx, s.Name)
		defer finish()

		logger.Debug("Starting span.")
		start := time.Now()
		err := method(ctx, gc.resources, out)
		took := time.Since(start)

		if err != nil {
			gc.metrics.ObserveSpan(gc.group, gc.host.Name, s.Name, metrics.ResultError, took)
			logger.Error("Span failed.", "error", err, "duration", took)
			return fmt.Errorf("span '%s' failed: %w", s.Name, err)
		}

		gc.metrics.ObserveSpan(gc.group, gc.host.Name, s.Name, metrics.ResultSuccess, took)
		logger.Debug("Span finished.", "duration", took)
		return nil
	}
}
