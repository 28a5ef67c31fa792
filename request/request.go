package request

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gogazub/taskloop/internal/corelib"
)

// ExecFunc is the primary body of a Request.
type ExecFunc func(r *Request)

// PostExecFunc observes the terminal state and accumulated errors of a
// Request after Execute returns. It is never called with a nil state.
type PostExecFunc func(state State, errs []error)

// DefaultExecAttachTimeout is how long Execute waits for a nil exec
// closure to be attached before giving up, tolerating the brief
// post-construction race where a caller posts a Request before wiring
// its body. It is instance-scoped (see Option WithExecAttachTimeout)
// rather than a single package-global, per the design note that global
// mutable tunables should become configuration.
const DefaultExecAttachTimeout = 20 * time.Millisecond

// Request is a single-phase work unit with explicit bitfield state and
// advisory cancellation. The zero value is not usable; construct one
// with New.
type Request struct {
	mu   sync.Mutex
	cond *sync.Cond

	state State
	exec  ExecFunc
	post  PostExecFunc
	errs  []error

	id    uuid.UUID
	hasID bool

	onPrepare     func() bool
	onPostExecute func(func())

	attachTimeout time.Duration
}

// Option configures a Request at construction time.
type Option func(*Request)

// WithOnPrepare overrides the OnPrepare hook (default: always ready).
func WithOnPrepare(fn func() bool) Option {
	return func(r *Request) { r.onPrepare = fn }
}

// WithOnPostExecute overrides how the post-exec closure is dispatched
// (default: invoked inline, on the calling goroutine).
func WithOnPostExecute(fn func(func())) Option {
	return func(r *Request) { r.onPostExecute = fn }
}

// WithExecAttachTimeout overrides DefaultExecAttachTimeout for one
// Request.
func WithExecAttachTimeout(d time.Duration) Option {
	return func(r *Request) { r.attachTimeout = d }
}

// New returns a fresh, unstarted Request wrapping exec and, optionally,
// a post-exec observer.
func New(exec ExecFunc, post PostExecFunc, opts ...Option) *Request {
	r := &Request{
		exec:          exec,
		post:          post,
		attachTimeout: DefaultExecAttachTimeout,
	}
	r.cond = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the Request's identity, which the first Start assigns.
// Before Start, ID returns the zero UUID.
func (r *Request) ID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// State returns a snapshot of the current state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Errors returns a snapshot of the accumulated errors. The slice is a
// copy; the Request's own errors list is copy-on-append.
func (r *Request) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

// Preset forces SUCCESS or FAILED onto the state before DONE, so a
// subsequent Execute skips the user body and goes straight to post-exec
// dispatch. Legal any time before the Request reaches DONE.
func (r *Request) Preset(bit State) error {
	if bit != StateSuccess && bit != StateFailed {
		return corelib.ErrInvalidRunnable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsDone() {
		return corelib.ErrNotReady
	}
	r.state |= bit &^ StateDone
	return nil
}

// Start idempotently transitions NONE -> STARTED, assigning an identity
// and clearing errors on the first call. A second call on an
// already-started Request is a no-op.
func (r *Request) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsStarted() {
		return
	}
	if !r.hasID {
		r.id = uuid.New()
		r.hasID = true
	}
	r.errs = nil
	r.state |= StateStarted
}

// Ready transitions STARTED -> READY by invoking the OnPrepare hook. If
// OnPrepare returns false, the Request stays STARTED and Ready returns
// false. A panic inside OnPrepare is caught and promotes the Request to
// READY|FAILED, so a scheduler can still observe and drop it.
func (r *Request) Ready() bool {
	r.mu.Lock()
	prepare := r.onPrepare
	canceled := r.state.IsCanceled()
	r.mu.Unlock()

	if canceled {
		return false
	}
	if prepare == nil {
		r.mu.Lock()
		r.state |= StateReady
		r.mu.Unlock()
		return true
	}

	ok, panicVal := runPrepare(prepare)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsCanceled() {
		return false
	}
	if panicVal != nil {
		r.state |= StateReady | StateFailed
		r.errs = append(r.errs, corelib.PanicToError(panicVal))
		return true
	}
	if !ok {
		return false
	}
	r.state |= StateReady
	return true
}

func runPrepare(prepare func() bool) (ok bool, panicVal any) {
	defer func() {
		panicVal = recover()
	}()
	return prepare(), nil
}

// Cancel sets CANCELED (and DONE) and wakes any waiters. It returns
// false only if the Request is already DONE and was not already
// CANCELED; repeat calls after cancellation return true.
func (r *Request) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsDone() && !r.state.IsCanceled() {
		return false
	}
	r.state |= StateCanceled
	r.cond.Broadcast()
	return true
}

// runningOnlyBit is the bit unique to RUNNING once READY is already
// set (StateRunning = StateReady | runningOnlyBit).
const runningOnlyBit = StateRunning &^ StateReady

// execOutcome is the local (un-raced) result of actually invoking the
// exec body, kept separate from r.state so a concurrent Cancel() call
// that lands after exec already ran to completion doesn't retroactively
// erase the success it observed.
type execOutcome int

const (
	outcomeSuccess execOutcome = iota
	outcomeFailed
	outcomeCanceledPanic
)

// Execute is the scheduling entry point. Precondition: State() is
// READY. It returns true iff the primary body ran and succeeded.
func (r *Request) Execute() bool {
	r.mu.Lock()
	if !r.state.IsReady() || r.state.IsRunning() || r.state.IsDone() {
		r.mu.Unlock()
		return false
	}
	r.state |= StateRunning

	exec := r.exec
	if exec == nil {
		deadline := time.Now().Add(r.attachTimeout)
		for exec == nil && time.Now().Before(deadline) {
			remain := time.Until(deadline)
			if remain <= 0 {
				break
			}
			waitWithTimeout(r.cond, remain)
			exec = r.exec
		}
	}
	skip := r.state.HasSkipBit()
	r.mu.Unlock()

	outcome := outcomeSuccess
	if !skip {
		if exec != nil {
			outcome = r.runExec(exec)
		} else {
			outcome = outcomeFailed
			r.mu.Lock()
			r.state |= FailedMarker
			r.errs = append(r.errs, corelib.ErrMissingAttachment)
			r.mu.Unlock()
		}
	}

	// Finalize: clear the RUNNING-only bit and OR in the terminal
	// outcome. A concurrent Cancel() call may already have set the
	// CANCELED pattern (which implies DONE); that bit is left as-is
	// and, if exec genuinely succeeded, SUCCESS is still recorded
	// alongside it (the "race lost" law in the design: exec ran once,
	// cancellation registered after).
	r.mu.Lock()
	r.state &^= runningOnlyBit
	switch {
	case skip, outcome == outcomeFailed, outcome == outcomeCanceledPanic:
		r.state |= StateDone
	default:
		r.state |= StateReady | StateSuccess
	}
	var succeeded bool
	if skip {
		succeeded = r.state.IsSuccess() && !r.state.IsFailed()
	} else {
		succeeded = outcome == outcomeSuccess
	}
	post := r.post
	onPostExecute := r.onPostExecute
	state := r.state
	errsCopy := make([]error, len(r.errs))
	copy(errsCopy, r.errs)
	r.cond.Broadcast()
	r.mu.Unlock()

	if post != nil {
		dispatchPost(r, post, onPostExecute, state, errsCopy)
	}
	return succeeded
}

// runExec invokes exec, recovering panics and classifying them as
// cancellation or failure per the corelib.IsCancellation predicate.
func (r *Request) runExec(exec ExecFunc) (outcome execOutcome) {
	outcome = outcomeSuccess
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.mu.Lock()
		if corelib.IsCancellation(rec) {
			outcome = outcomeCanceledPanic
			r.state |= CanceledMarker
		} else {
			outcome = outcomeFailed
			r.state |= FailedMarker
			r.errs = append(r.errs, toError(rec))
		}
		r.mu.Unlock()
	}()
	exec(r)
	return
}

func dispatchPost(r *Request, post PostExecFunc, dispatch func(func()), state State, errs []error) {
	closure := func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.mu.Lock()
				r.state |= StatePostFailed
				r.errs = append(r.errs, toError(rec))
				r.mu.Unlock()
			}
		}()
		post(state, errs)
	}
	if dispatch != nil {
		dispatch(closure)
	} else {
		closure()
	}
}

func toError(rec any) error { return corelib.PanicToError(rec) }

func waitWithTimeout(cond *sync.Cond, d time.Duration) {
	corelib.WaitWithTimeout(cond, d)
}
