package request

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gogazub/taskloop/internal/corelib"
)

func waitState(t *testing.T, r *Request, pred func(State) bool, timeout time.Duration) State {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		s := r.State()
		if pred(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state predicate, last state %v", s)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRequestStartIsIdempotent(t *testing.T) {
	r := New(func(*Request) {}, nil)
	r.Start()
	first := r.State()
	r.Start()
	require.Equal(t, first, r.State())
	require.True(t, first.IsStarted())
}

func TestRequestHappyPath(t *testing.T) {
	var ran bool
	r := New(func(*Request) { ran = true }, nil)
	r.Start()
	require.True(t, r.Ready())
	require.True(t, r.Execute())
	require.True(t, ran)
	s := r.State()
	require.True(t, s.IsDone())
	require.True(t, s.IsSuccess())
	require.False(t, s.IsFailed())
}

func TestRequestOnPrepareFalseStaysNotReady(t *testing.T) {
	r := New(func(*Request) {}, nil, WithOnPrepare(func() bool { return false }))
	r.Start()
	require.False(t, r.Ready())
	require.True(t, r.State().IsStarted())
	require.False(t, r.State().IsReady())
}

func TestRequestOnPreparePanicPromotesReadyFailed(t *testing.T) {
	r := New(func(*Request) {}, nil, WithOnPrepare(func() bool { panic("boom") }))
	r.Start()
	require.True(t, r.Ready())
	s := r.State()
	require.True(t, s.IsReady())
	require.True(t, s.IsFailed())
	require.Len(t, r.Errors(), 1)
}

func TestRequestExecPanicSetsFailedAndRecordsError(t *testing.T) {
	r := New(func(*Request) { panic(errors.New("kaboom")) }, nil)
	r.Start()
	require.True(t, r.Ready())
	require.False(t, r.Execute())
	s := r.State()
	require.True(t, s.IsDone())
	require.True(t, s.IsFailed())
	require.Len(t, r.Errors(), 1)
}

func TestRequestExecCancellationPanicSetsCanceled(t *testing.T) {
	r := New(func(*Request) { panic(corelib.ErrCanceled) }, nil)
	r.Start()
	require.True(t, r.Ready())
	require.False(t, r.Execute())
	s := r.State()
	require.True(t, s.IsDone())
	require.True(t, s.IsCanceled())
	require.False(t, s.IsFailed())
}

func TestRequestCancelBeforeReadyBlocksExecute(t *testing.T) {
	r := New(func(*Request) { t.Fatal("exec body must not run") }, nil)
	r.Start()
	require.True(t, r.Cancel())
	require.False(t, r.Ready())
	require.False(t, r.Execute())
}

func TestRequestCancelAfterDoneReturnsFalseUnlessAlreadyCanceled(t *testing.T) {
	r := New(func(*Request) {}, nil)
	r.Start()
	r.Ready()
	r.Execute()
	require.True(t, r.State().IsSuccess())
	require.False(t, r.Cancel())
}

func TestRequestRaceLostStillRecordsSuccess(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := New(func(*Request) {
		close(started)
		<-release
	}, nil)
	r.Start()
	require.True(t, r.Ready())

	done := make(chan bool, 1)
	go func() { done <- r.Execute() }()

	<-started
	r.Cancel()
	close(release)

	succeeded := <-done
	require.True(t, succeeded)
	s := r.State()
	require.True(t, s.IsDone())
	require.True(t, s.IsCanceled())
	require.True(t, s.IsSuccess())
}

func TestRequestPresetSuccessSkipsExecBody(t *testing.T) {
	r := New(func(*Request) { t.Fatal("exec body must not run when preset") }, nil)
	require.NoError(t, r.Preset(StateSuccess))
	r.Start()
	require.True(t, r.Ready())
	require.True(t, r.Execute())
	require.True(t, r.State().IsSuccess())
}

func TestRequestPresetRejectsInvalidBit(t *testing.T) {
	r := New(func(*Request) {}, nil)
	require.Error(t, r.Preset(StateRunning))
}

func TestRequestPresetRejectsAfterDone(t *testing.T) {
	r := New(func(*Request) {}, nil)
	r.Start()
	r.Ready()
	r.Execute()
	require.ErrorIs(t, r.Preset(StateFailed), corelib.ErrNotReady)
}

func TestRequestPostExecObservesStateAndErrors(t *testing.T) {
	var gotState State
	var gotErrs []error
	r := New(func(*Request) { panic("nope") }, func(s State, errs []error) {
		gotState = s
		gotErrs = errs
	})
	r.Start()
	r.Ready()
	r.Execute()
	require.True(t, gotState.IsFailed())
	require.Len(t, gotErrs, 1)
}

func TestRequestPostExecPanicSetsPostFailed(t *testing.T) {
	r := New(func(*Request) {}, func(State, []error) { panic("post boom") })
	r.Start()
	r.Ready()
	r.Execute()
	waitState(t, r, func(s State) bool { return s.IsPostFailed() }, time.Second)
}

func TestRequestExecAttachTimeoutWaitsForLateBinding(t *testing.T) {
	r := New(nil, nil, WithExecAttachTimeout(100*time.Millisecond))
	r.Start()
	r.Ready()

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.mu.Lock()
		r.exec = func(*Request) {}
		r.cond.Broadcast()
		r.mu.Unlock()
	}()

	require.True(t, r.Execute())
}

func TestRequestExecWithoutAttachmentFails(t *testing.T) {
	r := New(nil, nil, WithExecAttachTimeout(5*time.Millisecond))
	r.Start()
	r.Ready()
	require.False(t, r.Execute())
	require.True(t, r.State().IsFailed())
}
