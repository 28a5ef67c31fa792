package corelib

import (
	"sync"
	"time"
)

// WaitWithTimeout calls cond.Wait, waking it after d if no other
// Broadcast/Signal arrives first. The caller must already hold
// cond.L; Wait releases it while parked and reacquires it before
// returning, same as any other use of sync.Cond.
func WaitWithTimeout(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	timer.Stop()
}
