package request

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// looperState is the Looper's own three-value enum mirroring the
// NONE, STARTED, and READY positions of the shared State bitfield; its
// values are not State bit patterns.
type looperState int32

const (
	looperNone    looperState = 0
	looperStarted looperState = 1
	looperReady   looperState = 2
)

// FailFunc observes a Handle failure: either a panic recovered while
// running a Request, or a stop-while-waiting with a nil error.
type FailFunc func(err error)

// LooperStats is a point-in-time snapshot of a Looper's run counters,
// the Looper-side analogue of HandlerStats.
type LooperStats struct {
	Ran     int64
	Failed  int64
	Stopped int64
	Ready   bool
}

// Looper repeatedly pulls one ready Request from a Handler and
// executes it, on whatever goroutine calls Run or is started by
// StartOnThread.
type Looper struct {
	mu    sync.Mutex
	state looperState
	// stopRequested is a one-shot flag, armed by Stop and consumed by
	// Handle, distinguishing "Stop() fired while I was inside
	// Handler.Next" from Handle's own READY -> STARTED self-transition
	// (which lands on the same state value).
	stopRequested bool

	ran     int64
	failed  int64
	stopped int64

	handler *Handler
	onFail  FailFunc
	timeout time.Duration
	log     zerolog.Logger
}

// LooperOption configures a Looper at construction time.
type LooperOption func(*Looper)

// WithFailFunc attaches the fail-callback invoked from Handle on a
// stop-while-waiting or a recovered panic.
func WithFailFunc(fn FailFunc) LooperOption {
	return func(l *Looper) { l.onFail = fn }
}

// WithLooperTimeout overrides DefaultHandlerTimeout for Run's polling
// loop.
func WithLooperTimeout(d time.Duration) LooperOption {
	return func(l *Looper) { l.timeout = d }
}

// WithLooperLogger attaches structured diagnostic logging.
func WithLooperLogger(log zerolog.Logger) LooperOption {
	return func(l *Looper) { l.log = log }
}

// NewLooper returns a Looper driving handler, initially NONE (call
// Start before Run/Handle).
func NewLooper(handler *Handler, opts ...LooperOption) *Looper {
	l := &Looper{
		handler: handler,
		timeout: DefaultHandlerTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start transitions NONE -> READY.
func (l *Looper) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = looperReady
}

// Stop transitions READY -> STARTED (not ready) and wakes any
// goroutine parked inside Handle's call into Handler.Next.
func (l *Looper) Stop() {
	l.mu.Lock()
	l.state = looperStarted
	l.stopRequested = true
	l.mu.Unlock()

	if l.handler != nil {
		l.handler.mu.Lock()
		l.handler.cond.Broadcast()
		l.handler.mu.Unlock()
	}
}

// Handle pulls and executes exactly one Request, or returns false if
// the Looper was not READY, the pull timed out, or the Looper was
// stopped while waiting.
func (l *Looper) Handle(timeout time.Duration) bool {
	l.mu.Lock()
	if l.state != looperReady {
		l.mu.Unlock()
		return false
	}
	l.state = looperStarted
	l.stopRequested = false
	l.mu.Unlock()

	req := l.handler.Next(timeout.Milliseconds())
	if req == nil {
		return false
	}

	l.mu.Lock()
	stopped := l.stopRequested
	if stopped {
		l.stopped++
	}
	l.mu.Unlock()
	if stopped {
		l.fail(nil)
		return false
	}

	failed := l.execute(req)

	l.mu.Lock()
	if failed != nil {
		l.failed++
	} else {
		l.ran++
	}
	if l.state == looperStarted && l.handler != nil && !l.handler.Closed() {
		l.state = looperReady
	}
	l.mu.Unlock()

	if failed != nil {
		l.fail(failed)
	}
	return true
}

// Stats returns a snapshot of run counters: Ran counts successfully
// executed Requests, Failed counts recovered-panic Handles, Stopped
// counts stop-while-waiting Handles, and Ready mirrors whether the
// Looper is currently in its READY state.
func (l *Looper) Stats() LooperStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LooperStats{
		Ran:     l.ran,
		Failed:  l.failed,
		Stopped: l.stopped,
		Ready:   l.state == looperReady,
	}
}

// execute runs req.Execute, converting a recovered panic into an
// error instead of letting it unwind out of Handle.
func (l *Looper) execute(req *Request) (failErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			failErr = toError(rec)
			l.log.Error().Err(failErr).Msg("recovered panic driving Request.Execute")
		}
	}()
	req.Execute()
	return nil
}

func (l *Looper) fail(err error) {
	l.mu.Lock()
	onFail := l.onFail
	l.mu.Unlock()
	if onFail != nil {
		onFail(err)
	}
}

// Run calls Handle(timeout) in a loop while the Looper stays READY.
func (l *Looper) Run() {
	for {
		l.mu.Lock()
		ready := l.state == looperReady
		l.mu.Unlock()
		if !ready {
			return
		}
		l.Handle(l.timeout)
	}
}

// StartOnThread starts l, launches Run on a new goroutine supervised
// by an errgroup, and returns the group's Wait so the caller can
// observe the first fail-callback error (if onFail forwards it) and
// block for completion after Stop.
func StartOnThread(ctx context.Context, l *Looper) (stop func(), wait func() error) {
	l.Start()
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var firstErr error
		var once sync.Once

		l.mu.Lock()
		prior := l.onFail
		l.onFail = func(err error) {
			if err != nil {
				once.Do(func() { firstErr = err })
			}
			if prior != nil {
				prior(err)
			}
		}
		l.mu.Unlock()

		l.Run()
		return firstErr
	})
	return l.Stop, g.Wait
}
