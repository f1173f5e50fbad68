package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dlsgrid/internal/metrics"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/registry"
	"github.com/vk/dlsgrid/internal/tracing"
)

// fakeDispatcher answers every hand-over as if the target host ran
// StartTask and nothing else.
type fakeDispatcher struct {
	mu       sync.Mutex
	requests []*DispatchRequest
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if d.err != nil {
		return nil, d.err
	}

	remote := req.Output.Clone()
	remote.AppendDiagram(fmt.Sprintf("%s->%s: %s", req.Target.Name, req.Target.Name, req.StartTask))
	return &DispatchResponse{
		Output:   remote,
		Executed: append(append([]string{}, req.Executed...), req.StartTask),
	}, nil
}

// recorder is a span method that records its invocation.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) method(name string) registry.SpanFunc {
	return func(context.Context, *registry.Resources, *output.Output) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		return nil
	}
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

// twoHostRegistry registers hostA (serving X) and hostB (serving Y) and
// the group "g": s1 on hostA, s2 after s1 on hostB.
func twoHostRegistry(t *testing.T, rec *recorder) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.RegisterHost("hostA", "10.0.0.1", 7001, "X")
	reg.RegisterHost("hostB", "10.0.0.2", 7002, "Y")
	reg.RegisterSpan("g", "s1", []string{"@X"}, rec.method("s1"))
	reg.RegisterSpan("g", "s2", []string{"s1", "@Y"}, rec.method("s2"))
	require.NoError(t, reg.Freeze())
	return reg
}

func TestRunGroup_LocalSpanRunsHereRemoteSpanIsDispatchedOnce(t *testing.T) {
	// --- Arrange ---
	rec := &recorder{}
	reg := twoHostRegistry(t, rec)
	d := &fakeDispatcher{}
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA", WithDispatcher(d))
	require.NoError(t, err)

	// --- Act ---
	res, err := gc.RunGroup(context.Background(), output.New(), RunOptions{})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, rec.names(), "only s1 runs on hostA")

	require.Len(t, d.requests, 1)
	req := d.requests[0]
	assert.Equal(t, "hostB", req.Target.Name)
	assert.Equal(t, "s2", req.StartTask)
	assert.Equal(t, "hostA", req.Originator)
	assert.Equal(t, SegmentPropagate, req.Segment)
	assert.Equal(t, []string{"s1"}, req.Executed, "s1 must be drained before the hand-over")

	diagram := res.Output.Diagram()
	assert.Contains(t, diagram, "hostA->hostA: s1")
	assert.Contains(t, diagram, "hostA->hostB: s2")
	assert.Equal(t, []string{"hostB->hostB: s2", "hostB executed: s1,s2"}, diagram[len(diagram)-2:],
		"the remote entries are followed by what the remote host reported as executed")
	assert.Equal(t, float64(1), res.Output.Stat(output.StatRoundTrips))
	assert.Equal(t, []string{"s1", "s2"}, res.Executed)
	assert.NotEmpty(t, res.Output.RunID())
}

func TestRunGroup_IndependentLocalSpansRunInParallel(t *testing.T) {
	// --- Arrange ---
	reg := registry.New()
	reg.RegisterHost("hostA", "10.0.0.1", 7001, "X")
	var started sync.WaitGroup
	started.Add(3)
	barrier := func(context.Context, *registry.Resources, *output.Output) error {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("spans did not run concurrently")
		}
	}
	reg.RegisterSpan("g", "a", []string{"@X"}, barrier)
	reg.RegisterSpan("g", "b", nil, barrier)
	reg.RegisterSpan("g", "c", nil, barrier)
	require.NoError(t, reg.Freeze())

	m := metrics.New(prometheus.NewRegistry())
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA", WithMetrics(m))
	require.NoError(t, err)

	// --- Act ---
	res, err := gc.RunGroup(context.Background(), nil, RunOptions{})

	// --- Assert ---
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Output.Stat(output.StatMaxParallelism), float64(3))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PoolPeakActive.WithLabelValues("g", "hostA")), "all three spans held a slot at once")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, res.Executed)
}

func TestRunGroup_MaxParallelismKeepsPreviousPeak(t *testing.T) {
	rec := &recorder{}
	reg := registry.New()
	reg.RegisterHost("hostA", "a", 1, "X")
	reg.RegisterSpan("g", "only", []string{"@X"}, rec.method("only"))
	require.NoError(t, reg.Freeze())
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA")
	require.NoError(t, err)

	out := output.New()
	out.SetStat(output.StatMaxParallelism, 7)
	res, err := gc.RunGroup(context.Background(), out, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, float64(7), res.Output.Stat(output.StatMaxParallelism))
}

func TestRunGroup_LocalAncestorsFinishFirst(t *testing.T) {
	reg := registry.New()
	reg.RegisterHost("hostA", "a", 1, "X")
	var firstDone atomic.Bool
	reg.RegisterSpan("g", "first", []string{"@X"}, func(context.Context, *registry.Resources, *output.Output) error {
		time.Sleep(20 * time.Millisecond)
		firstDone.Store(true)
		return nil
	})
	reg.RegisterSpan("g", "second", []string{"first"}, func(context.Context, *registry.Resources, *output.Output) error {
		if !firstDone.Load() {
			return errors.New("second started before first finished")
		}
		return nil
	})
	require.NoError(t, reg.Freeze())
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA")
	require.NoError(t, err)

	_, err = gc.RunGroup(context.Background(), nil, RunOptions{})
	require.NoError(t, err)
}

func TestRunGroup_FailureIsSurfacedAndDependentsAreSkipped(t *testing.T) {
	// --- Arrange ---
	reg := registry.New()
	reg.RegisterHost("hostA", "a", 1, "X")
	boom := errors.New("boom")
	var dependentCalled, siblingCalled atomic.Bool
	reg.RegisterSpan("g", "bad", []string{"@X"}, func(context.Context, *registry.Resources, *output.Output) error {
		return boom
	})
	reg.RegisterSpan("g", "sibling", nil, func(context.Context, *registry.Resources, *output.Output) error {
		siblingCalled.Store(true)
		return nil
	})
	reg.RegisterSpan("g", "dependent", []string{"bad"}, func(context.Context, *registry.Resources, *output.Output) error {
		dependentCalled.Store(true)
		return nil
	})
	require.NoError(t, reg.Freeze())

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA", WithMetrics(m))
	require.NoError(t, err)

	// --- Act ---
	res, err := gc.RunGroup(context.Background(), nil, RunOptions{})
	gc.Close()

	// --- Assert ---
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.False(t, dependentCalled.Load())
	assert.True(t, siblingCalled.Load(), "independent spans still settle")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SpansTotal.WithLabelValues("g", "hostA", metrics.ResultError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SpansTotal.WithLabelValues("g", "hostA", metrics.ResultSkipped)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SpansTotal.WithLabelValues("g", "hostA", metrics.ResultSuccess)))
}

func TestRunGroup_SkipListAndStartTask(t *testing.T) {
	rec := &recorder{}
	reg := registry.New()
	reg.RegisterHost("hostA", "a", 1, "X")
	reg.RegisterSpan("g", "a", []string{"@X"}, rec.method("a"))
	reg.RegisterSpan("g", "b", []string{"a"}, rec.method("b"))
	reg.RegisterSpan("g", "c", []string{"b"}, rec.method("c"))
	reg.RegisterSpan("g", "d", []string{"c"}, rec.method("d"))
	require.NoError(t, reg.Freeze())
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA")
	require.NoError(t, err)

	res, err := gc.RunGroup(context.Background(), nil, RunOptions{StartTask: "c", SkipList: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, rec.names())
	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Executed)

	// A second call with everything already executed runs nothing.
	res, err = gc.RunGroup(context.Background(), nil, RunOptions{SkipList: res.Executed})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, rec.names())
	assert.Empty(t, res.Output.Diagram())
}

func TestRunGroup_StopsAtOriginatorSpans(t *testing.T) {
	// --- Arrange ---
	rec := &recorder{}
	reg := registry.New()
	reg.RegisterHost("hostA", "a", 1)
	reg.RegisterHost("hostB", "b", 2)
	reg.RegisterSpan("g", "hostA.one", nil, rec.method("one"))
	reg.RegisterSpan("g", "hostB.two", []string{"hostA.one"}, rec.method("two"))
	reg.RegisterSpan("g", "hostA.three", []string{"hostB.two"}, rec.method("three"))
	reg.RegisterSpan("g", "hostB.four", []string{"hostA.three"}, rec.method("four"))
	require.NoError(t, reg.Freeze())

	d := &fakeDispatcher{}
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostB", WithDispatcher(d))
	require.NoError(t, err)

	// --- Act ---
	res, err := gc.RunGroup(context.Background(), nil, RunOptions{
		StartTask:  "hostB.two",
		SkipList:   []string{"hostA.one"},
		Originator: "hostA",
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, rec.names(), "the walk ends at the originator's next span")
	assert.Empty(t, d.requests)
	assert.Equal(t, []string{"hostA.one", "hostB.two"}, res.Executed)
}

func TestRunGroup_EndlessStopDoesNotForward(t *testing.T) {
	rec := &recorder{}
	reg := twoHostRegistry(t, rec)
	d := &fakeDispatcher{}
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA", WithDispatcher(d))
	require.NoError(t, err)

	res, err := gc.RunGroup(context.Background(), nil, RunOptions{Propagate: PropagateEndlessStop})
	require.NoError(t, err)
	assert.Empty(t, d.requests)
	assert.Equal(t, []string{"s1"}, res.Executed)
	assert.Zero(t, res.Output.Stat(output.StatRoundTrips))
}

func TestRunGroup_EndlessSendsStopSegment(t *testing.T) {
	reg := twoHostRegistry(t, &recorder{})
	d := &fakeDispatcher{}
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA", WithDispatcher(d))
	require.NoError(t, err)

	_, err = gc.RunGroup(context.Background(), nil, RunOptions{Propagate: PropagateEndless})
	require.NoError(t, err)
	require.Len(t, d.requests, 1)
	assert.Equal(t, SegmentStop, d.requests[0].Segment)
}

func TestRunGroup_UnsatisfiedRemoteAncestor(t *testing.T) {
	// s2 runs on hostB but nobody reports that s1 (on hostA) has run.
	rec := &recorder{}
	reg := twoHostRegistry(t, rec)
	gc, err := InitializeGroup(context.Background(), reg, "g", "hostB")
	require.NoError(t, err)

	_, err = gc.RunGroup(context.Background(), nil, RunOptions{StartTask: "s2", Originator: "hostA"})
	require.ErrorIs(t, err, ErrUnsatisfiedAncestor)
	assert.ErrorContains(t, err, "span 's2' needs 's1' (host 'hostA')")
	assert.Empty(t, rec.names())
}

func TestRunGroup_DispatchErrors(t *testing.T) {
	reg := twoHostRegistry(t, &recorder{})

	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA")
	require.NoError(t, err)
	_, err = gc.RunGroup(context.Background(), nil, RunOptions{})
	assert.ErrorIs(t, err, ErrNoDispatcher)

	transport := errors.New("connection refused")
	gc, err = InitializeGroup(context.Background(), reg, "g", "hostA", WithDispatcher(&fakeDispatcher{err: transport}))
	require.NoError(t, err)
	_, err = gc.RunGroup(context.Background(), nil, RunOptions{})
	assert.ErrorIs(t, err, transport)
	assert.ErrorContains(t, err, "dispatch of span 's2' to host 'hostB' failed")
}

func TestRunGroup_UnplacedSpanCannotBeDispatched(t *testing.T) {
	reg := registry.New()
	reg.RegisterHost("hostA", "a", 1)
	reg.RegisterSpan("g", "nowhere", nil, (&recorder{}).method("nowhere"))
	require.NoError(t, reg.Freeze())

	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA", WithDispatcher(&fakeDispatcher{}))
	require.NoError(t, err)
	_, err = gc.RunGroup(context.Background(), nil, RunOptions{})
	assert.ErrorIs(t, err, ErrUnknownHost)
}

func TestRunGroup_WorkSpansAreTraced(t *testing.T) {
	tracer := mocktracer.New()
	reg := registry.New()
	reg.RegisterHost("hostA", "a", 1, "X")
	reg.RegisterSpan("g", "work", []string{"@X"}, (&recorder{}).method("work"))
	require.NoError(t, reg.Freeze())

	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA", WithTracer(tracing.NewOpenTracing(tracer)))
	require.NoError(t, err)
	_, err = gc.RunGroup(context.Background(), nil, RunOptions{})
	require.NoError(t, err)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)
	work, run := spans[0], spans[1]
	assert.Equal(t, "work", work.OperationName)
	assert.Equal(t, "g@hostA", run.OperationName)
	assert.Equal(t, run.SpanContext.SpanID, work.ParentID)
}

func TestInitializeGroup_BuildsResourcesWithHostAddress(t *testing.T) {
	reg := registry.New()
	reg.RegisterHost("hostA", "10.0.0.1", 7001)
	reg.RegisterSpan("g", "s", nil, (&recorder{}).method("s"))
	reg.RegisterResource("client", func(_ context.Context, res *registry.Resources, address string) error {
		res.Set("client", "client@"+address)
		return nil
	})
	require.NoError(t, reg.Freeze())

	gc, err := InitializeGroup(context.Background(), reg, "g", "hostA")
	require.NoError(t, err)

	v, err := registry.Lookup[string](gc.Resources(), "client")
	require.NoError(t, err)
	assert.Equal(t, "client@10.0.0.1", v)
	assert.Equal(t, 1, gc.pool.Size(), "pool is sized to the plan")
	assert.Equal(t, "g", gc.Group())
	assert.Equal(t, "hostA", gc.Host().Name)
	assert.Len(t, gc.Plan().Spans, 1)
}

func TestInitializeGroup_Errors(t *testing.T) {
	t.Run("registry not frozen", func(t *testing.T) {
		_, err := InitializeGroup(context.Background(), registry.New(), "g", "hostA")
		assert.ErrorContains(t, err, "must be frozen")
	})

	t.Run("unknown host", func(t *testing.T) {
		reg := registry.New()
		require.NoError(t, reg.Freeze())
		_, err := InitializeGroup(context.Background(), reg, "g", "hostZ")
		assert.ErrorIs(t, err, ErrUnknownHost)
	})

	t.Run("unknown group", func(t *testing.T) {
		reg := registry.New()
		reg.RegisterHost("hostA", "a", 1)
		require.NoError(t, reg.Freeze())
		_, err := InitializeGroup(context.Background(), reg, "g", "hostA")
		assert.ErrorContains(t, err, "group 'g' is not registered")
	})

	t.Run("factory failure", func(t *testing.T) {
		reg := registry.New()
		reg.RegisterHost("hostA", "a", 1)
		reg.RegisterSpan("g", "s", nil, (&recorder{}).method("s"))
		reg.RegisterResource("db", func(context.Context, *registry.Resources, string) error {
			return errors.New("unreachable")
		})
		require.NoError(t, reg.Freeze())
		_, err := InitializeGroup(context.Background(), reg, "g", "hostA")
		assert.ErrorContains(t, err, "resource 'db' failed to initialize on host 'hostA': unreachable")
	})
}

func TestPropagateSegments(t *testing.T) {
	assert.Equal(t, SegmentPropagate, PropagateDefault.Segment())
	assert.Equal(t, SegmentStop, PropagateEndless.Segment())
	assert.Equal(t, PropagateDefault, ParseSegment("propagate"))
	assert.Equal(t, PropagateEndlessStop, ParseSegment("stop"))
	assert.Equal(t, PropagateEndlessStop, ParseSegment("anything"))
}
