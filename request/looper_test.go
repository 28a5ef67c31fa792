package request

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLooperHandleRunsOneRequest(t *testing.T) {
	h := NewHandler()
	l := NewLooper(h)
	l.Start()

	var ran bool
	_, err := h.Post(Runnable(func() { ran = true }))
	require.NoError(t, err)

	require.True(t, l.Handle(100*time.Millisecond))
	require.True(t, ran)
}

func TestLooperHandleFalseWhenNotReady(t *testing.T) {
	h := NewHandler()
	l := NewLooper(h)
	require.False(t, l.Handle(10*time.Millisecond))
}

func TestLooperHandleFalseOnTimeout(t *testing.T) {
	h := NewHandler()
	l := NewLooper(h)
	l.Start()
	require.False(t, l.Handle(5*time.Millisecond))
}

func TestLooperRunDrainsQueueThenStops(t *testing.T) {
	h := NewHandler()
	l := NewLooper(h, WithLooperTimeout(10*time.Millisecond))

	var n int
	for i := 0; i < 3; i++ {
		_, err := h.Post(Runnable(func() { n++ }))
		require.NoError(t, err)
	}

	l.Start()
	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	deadline := time.After(time.Second)
	for n < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for requests to drain")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	l.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
	require.Equal(t, 3, n)
}

func TestLooperStatsCountsRanFailedAndStopped(t *testing.T) {
	h := NewHandler()
	l := NewLooper(h, WithFailFunc(func(error) {}))
	l.Start()

	_, err := h.Post(Runnable(func() {}))
	require.NoError(t, err)
	require.True(t, l.Handle(100*time.Millisecond))
	require.Equal(t, LooperStats{Ran: 1, Ready: true}, l.Stats())

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.Post(Runnable(func() {}))
		l.Stop()
	}()
	l.Handle(500 * time.Millisecond)
	require.Equal(t, int64(1), l.Stats().Stopped)
}

func TestLooperExecPanicIsContainedByRequestNotByLooper(t *testing.T) {
	// Request.Execute already recovers user-body panics and turns them
	// into FAILED state; the Looper never sees them propagate, so the
	// fail-callback fires only for stop-while-waiting or a bug inside
	// Execute itself, not for ordinary exec panics.
	h := NewHandler()
	l := NewLooper(h, WithFailFunc(func(error) { t.Fatal("fail callback should not fire here") }))
	l.Start()

	_, err := h.Post(Runnable(func() { panic("boom") }))
	require.NoError(t, err)

	require.True(t, l.Handle(100*time.Millisecond))
}

func TestLooperStopWhileWaitingInvokesFailCallbackWithNilError(t *testing.T) {
	h := NewHandler()
	failed := make(chan error, 1)
	l := NewLooper(h, WithFailFunc(func(err error) { failed <- err }))
	l.Start()

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.Post(Runnable(func() {}))
		l.Stop()
	}()

	l.Handle(500 * time.Millisecond)

	select {
	case err := <-failed:
		require.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("fail callback was not invoked")
	}
}

func TestStartOnThreadDrivesLooperUntilStopped(t *testing.T) {
	h := NewHandler()
	l := NewLooper(h, WithLooperTimeout(10*time.Millisecond))

	var n int
	for i := 0; i < 5; i++ {
		_, err := h.Post(Runnable(func() { n++ }))
		require.NoError(t, err)
	}

	stop, wait := StartOnThread(context.Background(), l)

	deadline := time.After(time.Second)
	for n < 5 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for requests to drain")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	stop()
	require.NoError(t, wait())
	require.Equal(t, 5, n)
}
