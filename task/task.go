// Package task implements the two-phase work unit layered on top of
// package request's state bitfield: a primary exec body that may
// return a deferred post body, run on one executor while the post
// body and post handler run on another.
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gogazub/taskloop/internal/corelib"
	"github.com/gogazub/taskloop/request"
)

// PostBody is the deferred closure a primary body may return, to be
// invoked (if the primary succeeded) before the post handler.
type PostBody func()

// ExecFunc is the primary body of a Task. It returns a PostBody, or
// nil if there is nothing to defer.
type ExecFunc func(t *Task) PostBody

// PostExecFunc observes the terminal state and accumulated errors.
type PostExecFunc func(state request.State, errs []error)

// DefaultExecAttachTimeout mirrors request.DefaultExecAttachTimeout:
// how long the running phase waits for a nil exec closure to be
// attached before giving up.
const DefaultExecAttachTimeout = 20 * time.Millisecond

// Task is a two-phase work unit: an exec phase followed by an
// optional post-exec phase, each dispatched through its own hook so a
// caller can run exec on a worker and the post-exec callback on, say,
// a UI-thread Handler.
type Task struct {
	mu   sync.Mutex
	cond *sync.Cond

	state request.State
	exec  ExecFunc
	post  PostExecFunc
	errs  []error

	id    uuid.UUID
	hasID bool

	onExecute     func(func())
	onPostExecute func(func())

	attachTimeout time.Duration
}

// Option configures a Task at construction time.
type Option func(*Task)

// WithOnExecute overrides how the exec-phase closure is dispatched
// (default: a fresh goroutine, the idiomatic analogue of "spawn a
// dedicated thread").
func WithOnExecute(fn func(func())) Option {
	return func(t *Task) { t.onExecute = fn }
}

// WithOnPostExecute overrides how the post-exec closure is dispatched
// (default: invoked inline).
func WithOnPostExecute(fn func(func())) Option {
	return func(t *Task) { t.onPostExecute = fn }
}

// WithExecAttachTimeout overrides DefaultExecAttachTimeout for one Task.
func WithExecAttachTimeout(d time.Duration) Option {
	return func(t *Task) { t.attachTimeout = d }
}

// New returns a fresh, unstarted Task.
func New(exec ExecFunc, post PostExecFunc, opts ...Option) *Task {
	t := &Task{
		exec:          exec,
		post:          post,
		attachTimeout: DefaultExecAttachTimeout,
		onExecute:     func(closure func()) { go closure() },
		onPostExecute: func(closure func()) { closure() },
	}
	t.cond = sync.NewCond(&t.mu)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the Task's identity, assigned by the first Start (which
// Execute calls). Before that, ID returns the zero UUID; a Task
// canceled before Start never gets one, since Cancel already sets the
// STARTED bit.
func (t *Task) ID() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// State returns a snapshot of the current state.
func (t *Task) State() request.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Errors returns a snapshot of the accumulated errors.
func (t *Task) Errors() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]error, len(t.errs))
	copy(out, t.errs)
	return out
}

// Preset forces SUCCESS or FAILED onto the state before DONE, so the
// running phase skips the user body and goes straight to post-exec
// dispatch.
func (t *Task) Preset(bit request.State) error {
	if bit != request.StateSuccess && bit != request.StateFailed {
		return corelib.ErrInvalidRunnable
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsDone() {
		return corelib.ErrNotReady
	}
	t.state |= bit &^ request.StateDone
	return nil
}

// Start idempotently transitions NONE -> STARTED, assigning an
// identity and clearing errors on the first call. Same semantics as
// request.Request.Start; Execute calls this itself, so most callers
// never need to call it directly, but TaskStack/TaskSpawner pruning
// (and tests that exercise Cancel before Execute) need a STARTED Task
// to treat as live rather than never-started.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsStarted() {
		return
	}
	if !t.hasID {
		t.id = uuid.New()
		t.hasID = true
	}
	t.errs = nil
	t.state |= request.StateStarted
}

// Cancel sets CANCELED (and DONE) and wakes any waiters. Same
// semantics as request.Request.Cancel.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsDone() && !t.state.IsCanceled() {
		return false
	}
	t.state |= request.StateCanceled
	t.cond.Broadcast()
	return true
}

// Execute is the entry point: it starts the Task if needed, then
// dispatches the composed two-phase closure through OnExecute. It
// returns true unless the Task ends up CANCELED.
func (t *Task) Execute() bool {
	t.Start()

	t.mu.Lock()
	onExecute := t.onExecute
	t.mu.Unlock()

	closure := func() { t.runPhase() }

	if err := dispatch(onExecute, closure); err != nil {
		// Set the raw FAILED marker, deliberately withholding DONE: the
		// fallback below re-runs the same closure, and runPhase's own
		// skip-bit check (not an IsDone check) is what should make it
		// bypass exec and go straight to post-exec dispatch.
		t.mu.Lock()
		t.state |= request.FailedMarker
		t.errs = append(t.errs, err)
		onPostExecute := t.onPostExecute
		t.mu.Unlock()

		if fbErr := dispatch(onPostExecute, closure); fbErr != nil {
			t.mu.Lock()
			t.state |= request.StateDone | request.StateFailed | request.StatePostFailed
			t.errs = append(t.errs, fbErr)
			t.mu.Unlock()
		}
	}

	return !t.State().IsCanceled()
}

// dispatch invokes fn(closure), recovering a panic from fn itself
// (not from closure, which is independently guarded) into an error.
func dispatch(fn func(func()), closure func()) (err error) {
	if fn == nil {
		return corelib.ErrMissingAttachment
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = corelib.PanicToError(rec)
		}
	}()
	fn(closure)
	return nil
}

type phaseOutcome int

const (
	phaseSuccess phaseOutcome = iota
	phaseFailed
	phaseCanceledPanic
)

// runPhase is the taskClosure of the design: the two-phase body run
// on whatever goroutine OnExecute dispatched to.
func (t *Task) runPhase() {
	t.mu.Lock()
	// A cancellation observed before this phase even starts already
	// carries the DONE pattern (CANCELED = DONE | ...); treat that the
	// same as a preset skip bit instead of setting RUNNING, which would
	// otherwise overlap DONE for the entire exec attempt.
	alreadyDone := t.state.IsDone()
	if !alreadyDone {
		t.state |= request.StateRunning
	}
	skip := t.state.HasSkipBit() || alreadyDone

	exec := t.exec
	if exec == nil && !skip {
		deadline := time.Now().Add(t.attachTimeout)
		for exec == nil && time.Now().Before(deadline) {
			remain := time.Until(deadline)
			if remain <= 0 {
				break
			}
			corelib.WaitWithTimeout(t.cond, remain)
			exec = t.exec
		}
	}
	t.mu.Unlock()

	var postBody PostBody
	outcome := phaseSuccess
	if !skip {
		if exec == nil {
			outcome = phaseFailed
			t.mu.Lock()
			t.errs = append(t.errs, corelib.ErrMissingAttachment)
			t.mu.Unlock()
		} else {
			postBody, outcome = t.runExec(exec)
		}
	}

	t.mu.Lock()
	end := t.state.IsDone()
	if !end {
		t.state &^= request.StateRunning
		switch {
		case skip:
			// The marker bit (FailedMarker or SuccessMarker) was
			// already OR'd in by Preset or the OnExecute-dispatch
			// fallback; just complete the pattern with DONE.
			t.state |= request.StateDone
		case outcome == phaseFailed:
			t.state |= request.StateDone | request.StateFailed
		case outcome == phaseCanceledPanic:
			t.state |= request.StateDone
		default:
			t.state |= request.StateDone | request.StateSuccess
		}
	}
	succeededPrimary := outcome == phaseSuccess
	if skip {
		succeededPrimary = t.state.IsSuccess() && !t.state.IsFailed()
	}
	hasPostHandle := t.post != nil
	onPostExecute := t.onPostExecute
	state := t.state
	errsCopy := make([]error, len(t.errs))
	copy(errsCopy, t.errs)
	t.cond.Broadcast()
	t.mu.Unlock()

	if end || (postBody == nil && !hasPostHandle) {
		return
	}

	postClosure := func() {
		t.runPostClosure(postBody, succeededPrimary, state, errsCopy)
	}
	if skip {
		postClosure()
		return
	}
	if err := dispatch(onPostExecute, postClosure); err != nil {
		t.mu.Lock()
		t.state |= request.StatePostFailed
		t.errs = append(t.errs, err)
		t.mu.Unlock()
	}
}

// runExec invokes exec, recovering panics and classifying them the
// same way request.Request does.
func (t *Task) runExec(exec ExecFunc) (postBody PostBody, outcome phaseOutcome) {
	outcome = phaseSuccess
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		t.mu.Lock()
		if corelib.IsCancellation(rec) {
			outcome = phaseCanceledPanic
			t.state |= request.CanceledMarker
		} else {
			outcome = phaseFailed
			t.errs = append(t.errs, corelib.PanicToError(rec))
		}
		t.mu.Unlock()
	}()
	postBody = exec(t)
	return
}

// runPostClosure invokes postBody (if the primary succeeded) then the
// post handler, each independently guarded against panics.
func (t *Task) runPostClosure(postBody PostBody, primarySucceeded bool, state request.State, errs []error) {
	if primarySucceeded && postBody != nil {
		if err := guard(func() { postBody() }); err != nil {
			t.mu.Lock()
			t.state |= request.StatePostFailed
			t.errs = append(t.errs, err)
			state = t.state
			errs = append(errs, err)
			t.mu.Unlock()
		}
	}
	if t.post != nil {
		if err := guard(func() { t.post(state, errs) }); err != nil {
			t.mu.Lock()
			t.state |= request.StatePostFailed
			t.errs = append(t.errs, err)
			t.mu.Unlock()
		}
	}
}

func guard(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = corelib.PanicToError(rec)
		}
	}()
	fn()
	return nil
}
