// Executor bindings: the four concrete answers to "where does a
// Task's exec phase run, and where does its post-exec phase run."
// Each binding is just a (OnExecute, OnPostExecute) pair plus an
// optional Close, composed into StackOption/SpawnerOption via
// WithStackBinding/WithSpawnerBinding.
package task

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/gogazub/taskloop/request"
)

// Binding is a capability pair: how to dispatch the exec phase, and
// how to dispatch the post-exec phase, plus how to release whatever
// resources the binding owns.
type Binding struct {
	OnExecute     func(func())
	OnPostExecute func(func())
	Close         func()
}

// DirectBinding spawns a dedicated goroutine per exec phase and
// inlines the post-exec phase, the simplest binding and the default
// a bare Task uses with no options.
func DirectBinding() *Binding {
	return &Binding{
		OnExecute:     func(fn func()) { go fn() },
		OnPostExecute: func(fn func()) { fn() },
		Close:         func() {},
	}
}

// HandlerBinding posts both phases to Handlers the caller already
// owns and drives with a Looper. If postHandler is nil, execHandler
// is reused for both phases. When owned is true, Close shuts down
// whichever Handlers this binding is responsible for.
func HandlerBinding(execHandler, postHandler *request.Handler, owned bool) *Binding {
	if postHandler == nil {
		postHandler = execHandler
	}
	post := func(fn func()) {
		_, _ = postHandler.Post(request.Runnable(fn))
	}
	return &Binding{
		OnExecute: func(fn func()) {
			_, _ = execHandler.Post(request.Runnable(fn))
		},
		OnPostExecute: post,
		Close: func() {
			if !owned {
				return
			}
			execHandler.Close()
			if postHandler != execHandler {
				postHandler.Close()
			}
		},
	}
}

// PoolBinding submits the exec phase to a bounded pool (a weighted
// semaphore gating goroutine fan-out, standing in for an external
// thread-pool executor) and inlines the post-exec phase.
func PoolBinding(ctx context.Context, workers int64) *Binding {
	sem := semaphore.NewWeighted(workers)
	return &Binding{
		OnExecute: func(fn func()) {
			go func() {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
				fn()
			}()
		},
		OnPostExecute: func(fn func()) { fn() },
		Close:         func() {},
	}
}

// AsyncBinding submits the exec phase to the same bounded pool as
// PoolBinding, but posts the post-exec phase to a Handler instead of
// inlining it — worker does the work, looper thread runs the
// callback.
func AsyncBinding(ctx context.Context, workers int64, postHandler *request.Handler) *Binding {
	sem := semaphore.NewWeighted(workers)
	return &Binding{
		OnExecute: func(fn func()) {
			go func() {
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
				fn()
			}()
		},
		OnPostExecute: func(fn func()) {
			_, _ = postHandler.Post(request.Runnable(fn))
		},
		Close: func() {},
	}
}

// WithBinding composes a Binding into Task construction options.
func WithBinding(b *Binding) Option {
	return func(t *Task) {
		if b.OnExecute != nil {
			t.onExecute = b.OnExecute
		}
		if b.OnPostExecute != nil {
			t.onPostExecute = b.OnPostExecute
		}
	}
}

// WithStackBinding composes a Binding into TaskStack construction
// options.
func WithStackBinding(b *Binding) StackOption {
	return func(s *TaskStack) {
		if b.OnExecute != nil {
			s.onExecute = b.OnExecute
		}
		if b.OnPostExecute != nil {
			s.onPostExecute = b.OnPostExecute
		}
	}
}

// WithSpawnerBinding composes a Binding into TaskSpawner construction
// options.
func WithSpawnerBinding(b *Binding) SpawnerOption {
	return func(s *TaskSpawner) {
		if b.OnExecute != nil {
			s.onExecute = b.OnExecute
		}
		if b.OnPostExecute != nil {
			s.onPostExecute = b.OnPostExecute
		}
	}
}
