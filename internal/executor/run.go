package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"
	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/metrics"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/planner"
	"github.com/vk/dlsgrid/internal/workerpool"
)

// RunOptions controls one RunGroup call.
type RunOptions struct {
	Propagate Propagate
	// StartTask skips every span planned before it.
	StartTask string
	// SkipList names spans that already ran earlier in this logical run.
	SkipList []string
	// TraceHeader carries the caller's trace context, if any.
	TraceHeader http.Header
	// Originator is the host that handed this run over, if any. The walk
	// stops at the first span it owns.
	Originator string
}

// Result is the outcome of a RunGroup call.
type Result struct {
	Output *output.Output
	// Executed lists every span known to have run in this logical run: the
	// incoming skip list, spans run here and spans reported by remote hops.
	Executed []string
}

// runState is the per-call bookkeeping of RunGroup.
type runState struct {
	executed *orderedmap.OrderedMap[string, struct{}]
	futures  map[string]*workerpool.Future
	pending  []*workerpool.Future
	peak     int
}

func (st *runState) markExecuted(names ...string) {
	for _, name := range names {
		st.executed.Set(name, struct{}{})
	}
}

// RunGroup walks the plan once, running local spans on the pool and handing
// the run to the owning host at every remote span.
//
// Every submitted span is awaited exactly once: before each hand-over and
// before returning. The first span error stops the walk and is returned once
// the spans in flight have settled.
func (gc *GroupContext) RunGroup(ctx context.Context, out *output.Output, opts RunOptions) (*Result, error) {
	if out == nil {
		out = output.New()
	}
	if out.RunID() == "" {
		out.SetRunID(uuid.NewString())
	}
	ctx = ctxlog.With(ctx, "group", gc.group, "host", gc.host.Name, "run_id", out.RunID())
	logger := ctxlog.FromContext(ctx)

	if opts.TraceHeader != nil {
		ctx = gc.tracer.Extract(ctx, opts.TraceHeader)
	}
	ctx, finish := gc.tracer.StartSpan(ctx, fmt.Sprintf("%s@%s", gc.group, gc.host.Name))
	defer finish()

	st := &runState{
		executed: orderedmap.NewOrderedMap[string, struct{}](),
		futures:  make(map[string]*workerpool.Future),
	}
	st.markExecuted(opts.SkipList...)

	logger.Info("▶️ Running group.", "start_task", opts.StartTask, "originator", opts.Originator, "propagate", string(opts.Propagate), "skip", len(opts.SkipList))

	running := opts.StartTask == ""
walk:
	for _, s := range gc.plan.Spans {
		if _, done := st.executed.Get(s.Name); done {
			logger.Debug("Skipping span that already ran.", "span", s.Name)
			continue
		}
		if !running {
			if s.Name != opts.StartTask {
				continue
			}
			running = true
		}

		switch {
		case s.Host == gc.host.Name:
			if err := gc.submit(ctx, st, s, out); err != nil {
				return nil, errors.Join(err, gc.drain(ctx, st))
			}

		case opts.Originator != "" && s.Host == opts.Originator:
			logger.Debug("Reached span owned by the originator; stopping local walk.", "span", s.Name)
			running = false

		default:
			if opts.Propagate == PropagateEndlessStop {
				logger.Info("Reached remote span with propagation stopped.", "span", s.Name, "target", s.Host)
				break walk
			}
			if err := gc.drain(ctx, st); err != nil {
				return nil, err
			}
			if err := gc.handOver(ctx, st, s, out, opts); err != nil {
				return nil, err
			}
		}
	}

	if err := gc.drain(ctx, st); err != nil {
		return nil, err
	}
	out.MaxStat(output.StatMaxParallelism, float64(st.peak))
	gc.metrics.ObservePoolPeak(gc.group, gc.host.Name, gc.pool.Peak())

	logger.Info("🏁 Group run finished.", "executed", st.executed.Len(), "round_trips", out.Stat(output.StatRoundTrips))
	return &Result{Output: out, Executed: st.executed.Keys()}, nil
}

// submit puts a local span on the pool. Ancestors that are still in flight
// are awaited by the pool; every other ancestor must already have run.
func (gc *GroupContext) submit(ctx context.Context, st *runState, s *planner.PlannedSpan, out *output.Output) error {
	var after []*workerpool.Future
	for _, a := range s.Ancestors {
		if f, ok := st.futures[a]; ok {
			after = append(after, f)
			continue
		}
		if _, done := st.executed.Get(a); !done {
			return fmt.Errorf("%w: span '%s' needs '%s' (host '%s')", ErrUnsatisfiedAncestor, s.Name, a, gc.hostOf(a))
		}
	}

	f := gc.pool.Submit(ctx, s.Name, after, gc.workerTask(s, out))
	st.futures[s.Name] = f
	st.pending = append(st.pending, f)
	out.AppendDiagram(fmt.Sprintf("%s->%s: %s", gc.host.Name, gc.host.Name, s.Name))
	return nil
}

// drain awaits every pending future, records the spans that succeeded and
// returns the first failure.
func (gc *GroupContext) drain(ctx context.Context, st *runState) error {
	if len(st.pending) == 0 {
		return nil
	}
	st.peak = max(st.peak, len(st.pending))

	err := workerpool.Drain(ctx, st.pending)
	for _, f := range st.pending {
		switch ferr := f.Wait(ctx); {
		case ferr == nil:
			st.markExecuted(f.Name())
		case errors.Is(ferr, workerpool.ErrUpstreamFailed):
			gc.metrics.ObserveSpan(gc.group, gc.host.Name, f.Name(), metrics.ResultSkipped, 0)
		}
	}
	st.pending = st.pending[:0]
	return err
}

// handOver dispatches the run to the host owning s and folds the answer back.
func (gc *GroupContext) handOver(ctx context.Context, st *runState, s *planner.PlannedSpan, out *output.Output, opts RunOptions) error {
	logger := ctxlog.FromContext(ctx).With("span", s.Name, "target", s.Host)

	if gc.dispatcher == nil {
		return fmt.Errorf("%w: span '%s' belongs to host '%s'", ErrNoDispatcher, s.Name, s.Host)
	}
	target, ok := gc.reg.Host(s.Host)
	if !ok {
		return fmt.Errorf("%w: span '%s' is assigned to '%s'", ErrUnknownHost, s.Name, s.Host)
	}

	out.AppendDiagram(fmt.Sprintf("%s->%s: %s", gc.host.Name, s.Host, s.Name))

	ctx, finish := gc.tracer.StartSpan(ctx, "dispatch "+s.Name)
	defer finish()

	logger.Info("🚀 Handing run over to remote host.", "executed", st.executed.Len())
	resp, err := gc.dispatcher.Dispatch(ctx, &DispatchRequest{
		Target:     target,
		Group:      gc.group,
		StartTask:  s.Name,
		Originator: gc.host.Name,
		Segment:    opts.Propagate.Segment(),
		Executed:   st.executed.Keys(),
		Output:     out,
	})
	if err != nil {
		return fmt.Errorf("dispatch of span '%s' to host '%s' failed: %w", s.Name, s.Host, err)
	}

	out.Merge(resp.Output)
	if len(resp.Executed) > 0 {
		out.AppendDiagram(fmt.Sprintf("%s executed: %s", s.Host, strings.Join(resp.Executed, ",")))
	}
	st.markExecuted(resp.Executed...)
	out.AddStat(output.StatRoundTrips, 1)
	gc.metrics.ObserveRoundTrip(gc.group, gc.host.Name, s.Host)

	logger.Info("✅ Remote host answered.", "remote_executed", len(resp.Executed))
	return nil
}

func (gc *GroupContext) hostOf(span string) string {
	if s, ok := gc.plan.Span(span); ok {
		return s.Host
	}
	return ""
}
