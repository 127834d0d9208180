package bt

import (
	"sync/atomic"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// ConnState is the A2DP connection and playback state of the module.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	ConnectedIdle
	Playing
	Paused
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case ConnectedIdle:
		return "CONNECTED_IDLE"
	case Playing:
		return "PLAYING"
	case Paused:
		return "PAUSED"
	default:
		return "DISCONNECTED"
	}
}

// Connected reports whether a phone is connected.
func (s ConnState) Connected() bool {
	return s >= ConnectedIdle
}

// StateObserver is called with the previous and the new state.
type StateObserver func(old, new ConnState)

// StateMachine holds the connection state and notifies one observer on
// every actual change.
type StateMachine struct {
	lock     tryMutex
	state    ConnState
	observer StateObserver
	last     atomic.Int32 // mirrors state for lock-free reads
	log      *log.Logger
}

func NewStateMachine(logger *log.Logger) *StateMachine {
	if logger == nil {
		logger = log.Nop()
	}
	return &StateMachine{lock: newTryMutex(), log: logger}
}

// OnChange registers the observer, replacing any previous one. Unlike the
// other methods it waits for the lock.
func (m *StateMachine) OnChange(fn StateObserver) {
	m.lock <- struct{}{}
	m.observer = fn
	m.lock.unlock()
}

// Set moves to s. Setting the current state does nothing. The observer runs
// synchronously after the lock is released.
func (m *StateMachine) Set(s ConnState) {
	if !m.lock.tryLock(lockWait) {
		m.log.Debugf("state busy, skip %s", s)
		return
	}
	old := m.state
	if old == s {
		m.lock.unlock()
		return
	}
	m.state = s
	m.last.Store(int32(s))
	fn := m.observer
	m.lock.unlock()

	m.log.Infof("State: %s", s)
	if fn != nil {
		fn(old, s)
	}
}

// State returns the last state set. It never blocks.
func (m *StateMachine) State() ConnState {
	return ConnState(m.last.Load())
}

// Current returns the state under the lock. ok is false when the lock could
// not be taken in time; callers should skip their update then.
func (m *StateMachine) Current() (s ConnState, ok bool) {
	if !m.lock.tryLock(lockWait) {
		return 0, false
	}
	defer m.lock.unlock()
	return m.state, true
}
