package request

import "fmt"

// State is a bitfield tracking the lifecycle of a Request or Task
// (the Looper keeps its own three-value looperState). Bits are composed by OR; semantics come from the bit
// patterns below, not from individual bit positions in isolation, so
// the patterns themselves are part of the contract and must not be
// renumbered independently of one another.
type State int32

const (
	// StateNone is the fresh, never-started state.
	StateNone State = 0
	// StateStarted is set once a Request/Task has been posted or
	// claimed; required for any subsequent state.
	StateStarted State = 0x02000000
	// StateReady means the preparation hook has run and the Request is
	// eligible to be picked up by a Looper.
	StateReady = StateStarted | 0x01000000
	// StateRunning means user code is currently executing.
	StateRunning = StateReady | 0x04000000
	// StateDone is terminal; some outcome bit below always accompanies it.
	StateDone = StateStarted | -0x80000000
	// StateCanceled means a cancellation was observed.
	StateCanceled = StateDone | 0x08000000
	// StateSuccess means the primary body completed without error.
	//
	// The bit test for this is (state & SuccessMarker != 0), which is
	// true whenever the underlying bit is set regardless of
	// StateDone. This lets a caller preset StateSuccess before a run
	// to short-circuit it (see Request.Preset), but it also means
	// IsSuccess may report true transiently before completion. Test
	// IsDone() && IsSuccess() together when the outcome, not the
	// preset, is what matters.
	StateSuccess = StateDone | 0x10000000
	// StateFailed means the primary body returned/threw an error.
	StateFailed = StateDone | 0x20000000
	// StatePostFailed means the post-exec body or handler failed,
	// independent of StateSuccess/StateFailed on the primary.
	StatePostFailed = StateDone | 0x40000000
)

// hasAll reports whether every bit in mask is present in s.
func (s State) hasAll(mask State) bool { return s&mask == mask }

// CanceledMarker, SuccessMarker, FailedMarker, and PostFailedMarker
// are the four outcome bits in isolation, without the DONE pattern.
// Preset ORs one of these in alone, so a Request/Task can carry
// "will succeed/fail" before it is actually DONE: HasSkipBit sees the
// marker and bypasses the user body. Is{Canceled,Success,Failed,
// PostFailed} below test only the marker bit (per the design note on
// IsSuccess), so they too may read true before IsDone(); callers that
// need the settled outcome, not a preset, should test IsDone() as
// well.
const (
	CanceledMarker   = StateCanceled &^ StateDone
	SuccessMarker    = StateSuccess &^ StateDone
	FailedMarker     = StateFailed &^ StateDone
	PostFailedMarker = StatePostFailed &^ StateDone
)

// IsStarted reports whether the STARTED bit is set.
func (s State) IsStarted() bool { return s.hasAll(StateStarted) }

// IsReady reports whether the READY pattern is set.
func (s State) IsReady() bool { return s.hasAll(StateReady) }

// IsRunning reports whether the RUNNING pattern is set.
func (s State) IsRunning() bool { return s.hasAll(StateRunning) }

// IsDone reports whether the DONE pattern is set.
func (s State) IsDone() bool { return s.hasAll(StateDone) }

// IsCanceled reports whether the CANCELED marker bit is set, even
// before DONE (see CanceledMarker).
func (s State) IsCanceled() bool { return s&CanceledMarker != 0 }

// IsSuccess reports whether the SUCCESS marker bit is set. See the
// StateSuccess doc comment: this may be true before IsDone().
func (s State) IsSuccess() bool { return s&SuccessMarker != 0 }

// IsFailed reports whether the FAILED marker bit is set, even before
// DONE.
func (s State) IsFailed() bool { return s&FailedMarker != 0 }

// IsPostFailed reports whether the POST_FAILED marker bit is set,
// even before DONE.
func (s State) IsPostFailed() bool { return s&PostFailedMarker != 0 }

// IsWaiting reports whether the state is started but neither running
// nor done — the shape a Handler's queues require of every pending
// entry (invariant 4 in the design: started ∧ waiting).
func (s State) IsWaiting() bool {
	return s.IsStarted() && !s.IsRunning() && !s.IsDone()
}

// HasSkipBit reports whether SUCCESS or FAILED was preset before DONE,
// the signal that Execute should bypass the user body.
func (s State) HasSkipBit() bool {
	return s&(SuccessMarker|FailedMarker) != 0
}

func (s State) String() string {
	if s == StateNone {
		return "none"
	}
	var parts []string
	add := func(name string, has bool) {
		if has {
			parts = append(parts, name)
		}
	}
	add("started", s.IsStarted())
	add("ready", s.IsReady())
	add("running", s.IsRunning())
	add("done", s.IsDone())
	add("canceled", s.IsCanceled())
	add("success", s.IsSuccess())
	add("failed", s.IsFailed())
	add("post_failed", s.IsPostFailed())
	if len(parts) == 0 {
		return fmt.Sprintf("State(%#x)", int32(s))
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}
