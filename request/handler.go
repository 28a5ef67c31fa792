package request

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gogazub/taskloop/deque"
	"github.com/gogazub/taskloop/internal/corelib"
)

// DefaultRetryTimeout is the heuristic wait when Next finds retryable
// work (a Request that refused readiness) but nothing to return yet.
// Instance-scoped (WithRetryTimeout) rather than a package-global per
// the design note on tunables.
const DefaultRetryTimeout = 20 * time.Millisecond

// DefaultHandlerTimeout is the Looper's default poll timeout.
const DefaultHandlerTimeout = 700 * time.Millisecond

const immediateInitialCapacity = 16

// Wait/Next timeout sentinels, per the interface contract: -1 blocks
// indefinitely, -2 never blocks.
const (
	TimeoutInfinite int64 = -1
	TimeoutNone     int64 = -2
)

type timedEntry struct {
	req    *Request
	atTime int64
	seq    int64
}

// HandlerStats is a point-in-time snapshot of queue depths, useful for
// diagnostics and tests.
type HandlerStats struct {
	Immediate int
	Timed     int
	Closed    bool
}

// Handler is a dual-queue scheduler: an immediate LIFO stack plus a
// time-sorted delayed queue, drained by one goroutine at a time inside
// Next.
type Handler struct {
	mu   sync.Mutex
	cond *sync.Cond

	immediate *deque.DStack[*Request]
	timed     []timedEntry
	seq       int64

	busy   bool
	closed bool

	clock        Clock
	retryTimeout time.Duration
	log          zerolog.Logger
}

// HandlerOption configures a Handler at construction time.
type HandlerOption func(*Handler)

// WithClock overrides the Handler's time source (default SystemClock).
func WithClock(c Clock) HandlerOption {
	return func(h *Handler) { h.clock = c }
}

// WithHandlerLogger attaches structured diagnostic logging.
func WithHandlerLogger(log zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// WithRetryTimeout overrides DefaultRetryTimeout for one Handler.
func WithRetryTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.retryTimeout = d }
}

// NewHandler returns an open Handler with empty queues.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		immediate:    deque.NewDStack[*Request](immediateInitialCapacity),
		clock:        SystemClock{},
		retryTimeout: DefaultRetryTimeout,
		log:          zerolog.Nop(),
	}
	h.cond = sync.NewCond(&h.mu)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Post enqueues v onto the immediate LIFO stack.
func (h *Handler) Post(v any, opts ...Option) (*Request, error) {
	return h.postAt(v, h.now(), false, opts...)
}

// PostDelayed enqueues v onto the timed queue, due delayMs from now.
func (h *Handler) PostDelayed(v any, delayMs int64, opts ...Option) (*Request, error) {
	return h.postAt(v, h.now()+delayMs, true, opts...)
}

// PostAtTime enqueues v onto the timed queue, due at the given
// absolute time (milliseconds since the Unix epoch).
func (h *Handler) PostAtTime(v any, atTimeMs int64, opts ...Option) (*Request, error) {
	return h.postAt(v, atTimeMs, true, opts...)
}

func (h *Handler) now() int64 { return h.clock.Now() }

func (h *Handler) postAt(v any, atTimeMs int64, timed bool, opts ...Option) (*Request, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, corelib.ErrClosed
	}
	h.mu.Unlock()

	req, err := toRequest(v, opts...)
	if err != nil {
		h.log.Debug().Err(err).Msg("rejected post: invalid runnable shape")
		return nil, err
	}
	req.Start()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, corelib.ErrClosed
	}
	if timed {
		h.seq++
		h.insertTimedLocked(timedEntry{req: req, atTime: atTimeMs, seq: h.seq})
	} else {
		if err := h.immediate.Push(req); err != nil {
			return nil, err
		}
	}
	h.cond.Broadcast()
	return req, nil
}

// insertTimedLocked inserts entry keeping h.timed sorted so the tail
// is always the next-due entry: descending by atTime, ties broken so
// the most recently inserted of equal due time sits at the tail (LIFO
// among ties).
func (h *Handler) insertTimedLocked(entry timedEntry) {
	idx := sort.Search(len(h.timed), func(i int) bool {
		return !timedBefore(h.timed[i], entry)
	})
	h.timed = append(h.timed, timedEntry{})
	copy(h.timed[idx+1:], h.timed[idx:])
	h.timed[idx] = entry
}

// timedBefore reports whether a belongs strictly ahead of (closer to
// the head than) b in the descending-by-due-time ordering.
func timedBefore(a, b timedEntry) bool {
	if a.atTime != b.atTime {
		return a.atTime > b.atTime
	}
	return a.seq < b.seq
}

// GetAll snapshots pending Requests, order-preserving where possible
// (immediate entries oldest-first, followed by timed entries in
// due-time order) unless excludeTimed is set.
func (h *Handler) GetAll(excludeTimed bool) []*Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Request, 0, h.immediate.Len()+len(h.timed))
	h.immediate.ForEachOldestFirst(func(r *Request) bool {
		out = append(out, r)
		return true
	})
	if !excludeTimed {
		for i := len(h.timed) - 1; i >= 0; i-- {
			out = append(out, h.timed[i].req)
		}
	}
	return out
}

// CancelAll clears the queues, then cancels every Request that was in
// them. Clearing first avoids a concurrent Next re-observing an entry
// this call is in the middle of canceling.
func (h *Handler) CancelAll(excludeTimed bool) {
	snapshot := h.clearLocked(excludeTimed)
	for _, r := range snapshot {
		r.Cancel()
	}
}

// RemoveAll clears the queues without canceling the Requests inside.
func (h *Handler) RemoveAll(excludeTimed bool) []*Request {
	return h.clearLocked(excludeTimed)
}

func (h *Handler) clearLocked(excludeTimed bool) []*Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	snapshot := h.immediate.Clear()
	if !excludeTimed {
		for _, e := range h.timed {
			snapshot = append(snapshot, e.req)
		}
		h.timed = nil
	}
	h.cond.Broadcast()
	return snapshot
}

// Close marks the Handler absorbingly closed: every subsequent Post*
// fails with corelib.ErrClosed and Next returns nil immediately.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Closed reports whether Close has been called.
func (h *Handler) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Stats returns a snapshot of queue depths.
func (h *Handler) Stats() HandlerStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HandlerStats{Immediate: h.immediate.Len(), Timed: len(h.timed), Closed: h.closed}
}

// Next returns a Request that has transitioned to READY and been
// removed from its queue, or nil after timeoutMs elapses (or
// immediately, for TimeoutNone). With TimeoutInfinite it waits until
// woken, then makes one more non-blocking pass and may return nil.
// A closed Handler returns nil immediately.
func (h *Handler) Next(timeoutMs int64) *Request {
	req, eff := h.attempt(timeoutMs)
	if req != nil {
		return req
	}
	if eff == TimeoutNone {
		return nil
	}
	h.wait(eff)
	req, _ = h.attempt(TimeoutNone)
	return req
}

// attempt is one non-recursive pass of the algorithm: try to claim
// busy and drain one Request, or report how long the caller should
// wait before trying again.
func (h *Handler) attempt(timeoutMs int64) (*Request, int64) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, TimeoutNone
	}
	if h.busy {
		h.mu.Unlock()
		return nil, timeoutMs
	}
	h.busy = true
	req, retry, eff := h.drainLocked(timeoutMs)
	h.busy = false
	h.cond.Broadcast()
	h.mu.Unlock()

	if req != nil {
		return req, 0
	}
	if retry {
		eff = minTimeout(eff, int64(h.retryTimeout/time.Millisecond))
	}
	return nil, eff
}

// drainLocked runs the timed branch then the immediate branch. Caller
// holds h.mu and has already set h.busy.
func (h *Handler) drainLocked(timeoutMs int64) (req *Request, retry bool, eff int64) {
	eff = timeoutMs

	for len(h.timed) > 0 {
		top := h.timed[len(h.timed)-1]
		if !top.req.State().IsWaiting() {
			h.timed = h.timed[:len(h.timed)-1]
			continue
		}
		remaining := top.atTime - h.now()
		if remaining > 0 {
			eff = minTimeout(eff, remaining)
			break
		}
		h.timed = h.timed[:len(h.timed)-1]
		if top.req.Ready() {
			return top.req, false, eff
		}
		h.log.Debug().Msg("timed entry refused readiness, trying immediate branch")
		retry = true
		break
	}

	for {
		popped, ok := h.immediate.Pop()
		if !ok {
			break
		}
		if !popped.State().IsWaiting() {
			continue
		}
		if popped.Ready() {
			return popped, retry, eff
		}
		_ = h.immediate.Push(popped)
		retry = true
		break
	}

	return nil, retry, eff
}

func (h *Handler) wait(timeoutMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	switch {
	case timeoutMs == TimeoutInfinite:
		h.cond.Wait()
	case timeoutMs <= 0:
		// TimeoutNone, or a deadline that has already passed.
	default:
		waitWithTimeout(h.cond, time.Duration(timeoutMs)*time.Millisecond)
	}
}

// minTimeout applies the sentinel-aware "effective timeout" reduction
// used throughout Next: TimeoutNone always wins, TimeoutInfinite loses
// to any concrete deadline, and otherwise the smaller wins.
func minTimeout(current, candidate int64) int64 {
	if current == TimeoutNone {
		return TimeoutNone
	}
	if current == TimeoutInfinite {
		return candidate
	}
	if candidate < current {
		return candidate
	}
	return current
}
