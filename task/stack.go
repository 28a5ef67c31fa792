package task

import (
	"sync"

	"github.com/gogazub/taskloop/internal/corelib"
)

// TaskStack is an ordered collection of Tasks sharing one dispatch
// policy. The primary task is the most recently appended one that is
// still live; Update lazily prunes entries that are DONE or were never
// started.
type TaskStack struct {
	mu sync.Mutex

	tasks  []*Task
	closed bool

	onExecute     func(func())
	onPostExecute func(func())
}

// StackOption configures a TaskStack at construction time.
type StackOption func(*TaskStack)

// WithStackOnExecute overrides how every Task the stack creates
// dispatches its exec phase.
func WithStackOnExecute(fn func(func())) StackOption {
	return func(s *TaskStack) { s.onExecute = fn }
}

// WithStackOnPostExecute overrides how every Task the stack creates
// dispatches its post-exec phase.
func WithStackOnPostExecute(fn func(func())) StackOption {
	return func(s *TaskStack) { s.onPostExecute = fn }
}

// NewTaskStack returns an empty, open TaskStack.
func NewTaskStack(opts ...StackOption) *TaskStack {
	s := &TaskStack{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// taskOpts returns the Task options that delegate hooks to the stack,
// composed with any caller-supplied opts (caller opts win, matching
// functional-options last-wins convention).
func (s *TaskStack) taskOpts(opts []Option) []Option {
	out := make([]Option, 0, len(opts)+2)
	if s.onExecute != nil {
		out = append(out, WithOnExecute(s.onExecute))
	}
	if s.onPostExecute != nil {
		out = append(out, WithOnPostExecute(s.onPostExecute))
	}
	return append(out, opts...)
}

// update removes entries that are DONE or were never started. Caller
// holds s.mu.
func (s *TaskStack) update() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		st := t.State()
		if st.IsDone() || !st.IsStarted() {
			continue
		}
		live = append(live, t)
	}
	s.tasks = live
}

// Next creates a Task bound to this stack's hooks, appends it, and
// returns it unstarted.
func (s *TaskStack) Next(exec ExecFunc, post PostExecFunc, opts ...Option) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, corelib.ErrClosed
	}
	t := New(exec, post, s.taskOpts(opts)...)
	s.tasks = append(s.tasks, t)
	return t, nil
}

// Execute is Next followed by Execute on the returned Task.
func (s *TaskStack) Execute(exec ExecFunc, post PostExecFunc, opts ...Option) (*Task, error) {
	t, err := s.Next(exec, post, opts...)
	if err != nil {
		return nil, err
	}
	t.Execute()
	return t, nil
}

// GetPrimaryTask returns the most recently added live Task, or nil if
// the stack is empty.
func (s *TaskStack) GetPrimaryTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update()
	if len(s.tasks) == 0 {
		return nil
	}
	return s.tasks[len(s.tasks)-1]
}

// Cancel cancels and removes the primary task.
func (s *TaskStack) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update()
	if len(s.tasks) == 0 {
		return false
	}
	last := len(s.tasks) - 1
	primary := s.tasks[last]
	s.tasks = s.tasks[:last]
	return primary.Cancel()
}

// CancelAll cancels every task in the stack and clears it.
func (s *TaskStack) CancelAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
}

// CancelPrevious keeps only the primary task, canceling the rest.
func (s *TaskStack) CancelPrevious() {
	s.mu.Lock()
	s.update()
	if len(s.tasks) <= 1 {
		s.mu.Unlock()
		return
	}
	last := len(s.tasks) - 1
	previous := make([]*Task, last)
	copy(previous, s.tasks[:last])
	s.tasks = s.tasks[last:]
	s.mu.Unlock()

	for _, t := range previous {
		t.Cancel()
	}
}

// Close cancels every task and marks the stack absorbingly closed.
func (s *TaskStack) Close() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.closed = true
	s.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
}

// Closed reports whether Close has been called.
func (s *TaskStack) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
