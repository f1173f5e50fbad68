package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsIndependentTasksConcurrently(t *testing.T) {
	// --- Arrange ---
	p := New(3)
	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})

	task := func(context.Context) error {
		started.Done()
		<-release
		return nil
	}

	// --- Act ---
	futures := []*Future{
		p.Submit(context.Background(), "a", nil, task),
		p.Submit(context.Background(), "b", nil, task),
		p.Submit(context.Background(), "c", nil, task),
	}
	started.Wait() // would hang if the pool serialized the tasks
	close(release)

	// --- Assert ---
	require.NoError(t, Drain(context.Background(), futures))
	assert.Equal(t, 3, p.Peak())
	p.Wait()
}

func TestPool_RespectsCapacity(t *testing.T) {
	p := New(2)
	var running, maxRunning atomic.Int64

	var futures []*Future
	for range 6 {
		futures = append(futures, p.Submit(context.Background(), "t", nil, func(context.Context) error {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}

	require.NoError(t, Drain(context.Background(), futures))
	assert.LessOrEqual(t, maxRunning.Load(), int64(2))
	assert.Equal(t, 2, p.Size())
}

func TestPool_WaitsForUpstream(t *testing.T) {
	p := New(1)
	var order []string
	var mu sync.Mutex
	record := func(name string) Task {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	gate := make(chan struct{})
	first := p.Submit(context.Background(), "first", nil, func(ctx context.Context) error {
		<-gate
		return record("first")(ctx)
	})
	// With a single slot the dependent must not grab it while waiting.
	second := p.Submit(context.Background(), "second", []*Future{first}, record("second"))
	close(gate)

	require.NoError(t, Drain(context.Background(), []*Future{first, second}))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPool_UpstreamFailureSkipsTask(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")
	var called atomic.Bool

	up := p.Submit(context.Background(), "up", nil, func(context.Context) error { return boom })
	down := p.Submit(context.Background(), "down", []*Future{up}, func(context.Context) error {
		called.Store(true)
		return nil
	})

	err := down.Wait(context.Background())
	require.ErrorIs(t, err, ErrUpstreamFailed)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "task 'down' skipped due to upstream failure: 'up'")
	assert.False(t, called.Load())
	assert.Equal(t, "down", down.Name())
}

func TestDrain_ReturnsFirstErrorAfterAllSettle(t *testing.T) {
	p := New(3)
	boom := errors.New("boom")
	var slowFinished atomic.Bool

	futures := []*Future{
		p.Submit(context.Background(), "fail", nil, func(context.Context) error { return boom }),
		p.Submit(context.Background(), "slow", nil, func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			slowFinished.Store(true)
			return nil
		}),
	}

	err := Drain(context.Background(), futures)
	require.ErrorIs(t, err, boom)
	assert.True(t, slowFinished.Load(), "drain must wait for every future")
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	f := p.Submit(context.Background(), "blocked", nil, func(context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.Canceled)

	close(block)
	<-f.Done()
	assert.NoError(t, f.Wait(context.Background()))
}

func TestNew_MinimumSize(t *testing.T) {
	assert.Equal(t, 1, New(0).Size())
}
