package task

import (
	"sync"

	"github.com/gogazub/taskloop/internal/corelib"
)

// TaskSpawner is an unbounded factory of independent Tasks sharing one
// dispatch policy. Unlike TaskStack it keeps no list: every Spawn
// returns a Task owned entirely by the caller, and Close does nothing
// but flip a flag, letting already-spawned Tasks run to completion.
type TaskSpawner struct {
	mu sync.Mutex

	closed bool

	onExecute     func(func())
	onPostExecute func(func())
}

// SpawnerOption configures a TaskSpawner at construction time.
type SpawnerOption func(*TaskSpawner)

// WithSpawnerOnExecute overrides how every Task the spawner creates
// dispatches its exec phase.
func WithSpawnerOnExecute(fn func(func())) SpawnerOption {
	return func(s *TaskSpawner) { s.onExecute = fn }
}

// WithSpawnerOnPostExecute overrides how every Task the spawner
// creates dispatches its post-exec phase.
func WithSpawnerOnPostExecute(fn func(func())) SpawnerOption {
	return func(s *TaskSpawner) { s.onPostExecute = fn }
}

// NewTaskSpawner returns an open TaskSpawner.
func NewTaskSpawner(opts ...SpawnerOption) *TaskSpawner {
	s := &TaskSpawner{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn returns a fresh, unstarted Task bound to the spawner's hooks.
func (s *TaskSpawner) Spawn(exec ExecFunc, post PostExecFunc, opts ...Option) (*Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, corelib.ErrClosed
	}
	onExecute, onPostExecute := s.onExecute, s.onPostExecute
	s.mu.Unlock()

	taskOpts := make([]Option, 0, len(opts)+2)
	if onExecute != nil {
		taskOpts = append(taskOpts, WithOnExecute(onExecute))
	}
	if onPostExecute != nil {
		taskOpts = append(taskOpts, WithOnPostExecute(onPostExecute))
	}
	taskOpts = append(taskOpts, opts...)
	return New(exec, post, taskOpts...), nil
}

// Close flips the spawner's closed flag. Tasks already spawned are
// unaffected and continue running.
func (s *TaskSpawner) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *TaskSpawner) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
