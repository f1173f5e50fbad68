// Package workerpool runs named tasks on a bounded number of goroutines and
// hands back a Future per task.
//
// A task may be submitted together with the futures it depends on. The pool
// waits for those before the task takes a slot, so a task blocked on its
// upstream never holds capacity another task needs.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrUpstreamFailed is returned by a future whose task was not run because
// one of the futures it depended on failed.
var ErrUpstreamFailed = errors.New("skipped due to upstream failure")

// Task is the unit of work executed by the pool.
type Task func(ctx context.Context) error

// Future is the eventual result of a submitted task.
type Future struct {
	name string
	done chan struct{}
	err  error
}

func newFuture(name string) *Future {
	return &Future{name: name, done: make(chan struct{})}
}

func (f *Future) settle(err error) {
	f.err = err
	close(f.done)
}

// Name returns the name the task was submitted under.
func (f *Future) Name() string { return f.name }

// Done is closed once the task has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task settles or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool is a bounded goroutine pool.
type Pool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	active atomic.Int64
	peak   atomic.Int64
}

// New creates a pool that runs at most size tasks at once. A size below one
// is treated as one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Size returns the capacity of the pool.
func (p *Pool) Size() int { return cap(p.slots) }

// Peak returns the highest number of tasks that ran at the same time.
func (p *Pool) Peak() int { return int(p.peak.Load()) }

// Submit schedules task under name. The task runs once every future in after
// has settled; if any of them failed the task is not run and its own future
// fails with ErrUpstreamFailed.
func (p *Pool) Submit(ctx context.Context, name string, after []*Future, task Task) *Future {
	f := newFuture(name)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		f.settle(p.run(ctx, name, after, task))
	}()
	return f
}

func (p *Pool) run(ctx context.Context, name string, after []*Future, task Task) error {
	for _, up := range after {
		if err := up.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("task '%s' %w: '%s': %w", name, ErrUpstreamFailed, up.Name(), err)
		}
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	return task(ctx)
}

// Wait blocks until every submitted task has settled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Drain waits for every future exactly once. It returns the first error any
// of them produced, after all of them have settled.
func Drain(ctx context.Context, futures []*Future) error {
	var g errgroup.Group
	for _, f := range futures {
		g.Go(func() error {
			return f.Wait(ctx)
		})
	}
	return g.Wait()
}
