package bt

import "time"

// lockWait bounds how long a caller waits for shared BT state. A caller
// that cannot get the lock in time skips its update.
const lockWait = 20 * time.Millisecond

// tryMutex is a mutex whose acquisition can time out.
type tryMutex chan struct{}

func newTryMutex() tryMutex {
	return make(tryMutex, 1)
}

// tryLock waits up to d for the lock and reports whether it was taken.
func (m tryMutex) tryLock(d time.Duration) bool {
	select {
	case m <- struct{}{}:
		return true
	default:
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case m <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (m tryMutex) unlock() {
	<-m
}
