// Package task_scheduler runs background work off the interactive goroutine.
//
// Work is partitioned by Category; each category may carry its own
// concurrency limit so that, for example, parses never starve build-tool
// subprocesses. Results are delivered through typed futures.
package task_scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/pterm/pterm"
	"golang.org/x/sync/semaphore"

	"github.com/meysamhadeli/unitcache/utils"
)

type Category string

const (
	CategoryCompiler    Category = "compiler"
	CategoryBuildSystem Category = "build-system"
	CategoryIO          Category = "io"
	// CategoryDefault is never limited; it is used for orchestration tasks
	// that only wait on other futures.
	CategoryDefault Category = "default"
)

// ErrTaskPanicked wraps a panic recovered from a task function.
var ErrTaskPanicked = errors.New("background task panicked")

// Scheduler executes tasks on goroutines bounded per category.
type Scheduler struct {
	limits map[Category]*semaphore.Weighted
	wg     sync.WaitGroup
	logger *pterm.Logger
}

// New creates a scheduler. Categories absent from limits, or with a limit
// below one, run unbounded.
func New(limits map[Category]int, logger *pterm.Logger) *Scheduler {
	s := &Scheduler{
		limits: make(map[Category]*semaphore.Weighted, len(limits)),
		logger: utils.LoggerOr(logger),
	}
	for cat, n := range limits {
		if n > 0 {
			s.limits[cat] = semaphore.NewWeighted(int64(n))
		}
	}
	return s
}

// Wait blocks until every submitted task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Future is the eventual result of a task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Resolved returns an already-completed future.
func Resolved[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(v, err)
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is ready or ctx ends. Abandoning a future
// does not cancel the task behind it.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the result without blocking; ok is false while pending.
func (f *Future[T]) Peek() (v T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Then invokes fn on its own goroutine once the future completes.
func (f *Future[T]) Then(fn func(T, error)) {
	go func() {
		<-f.done
		fn(f.value, f.err)
	}()
}

// Go submits fn under cat. The task waits for a free slot in its category;
// if ctx ends first the future fails with ctx.Err() and fn never runs.
func Go[T any](s *Scheduler, ctx context.Context, cat Category, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	sem := s.limits[cat]

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				var zero T
				f.resolve(zero, err)
				return
			}
			defer sem.Release(1)
		}

		v, err := run(s, ctx, cat, fn)
		f.resolve(v, err)
	}()
	return f
}

func run[T any](s *Scheduler, ctx context.Context, cat Category, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", s.logger.Args("category", string(cat), "panic", fmt.Sprint(r), "stack", string(debug.Stack())))
			var zero T
			v, err = zero, fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return fn(ctx)
}
