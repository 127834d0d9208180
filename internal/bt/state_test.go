package bt

import (
	"testing"
	"time"
)

type transition struct{ old, new ConnState }

func TestStateMachine_NotifiesOnChangeOnly(t *testing.T) {
	sm := NewStateMachine(nil)
	var got []transition
	sm.OnChange(func(old, new ConnState) { got = append(got, transition{old, new}) })

	sm.Set(Disconnected)
	sm.Set(Connecting)
	sm.Set(Connecting)
	sm.Set(Playing)
	sm.Set(Playing)

	want := []transition{{Disconnected, Connecting}, {Connecting, Playing}}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
	if s := sm.State(); s != Playing {
		t.Errorf("State() = %v, want PLAYING", s)
	}
}

func TestStateMachine_ObserverMayReadState(t *testing.T) {
	sm := NewStateMachine(nil)
	var seen ConnState
	sm.OnChange(func(_, _ ConnState) { seen = sm.State() })

	sm.Set(Paused)
	if seen != Paused {
		t.Errorf("state seen from observer = %v, want PAUSED", seen)
	}
}

func TestStateMachine_BusyLock(t *testing.T) {
	sm := NewStateMachine(nil)
	sm.Set(Playing)

	sm.lock.tryLock(lockWait)
	if _, ok := sm.Current(); ok {
		t.Error("Current() ok while lock held")
	}
	if s := sm.State(); s != Playing {
		t.Errorf("State() while lock held = %v, want last known PLAYING", s)
	}

	registered := make(chan struct{})
	var got []transition
	go func() {
		sm.OnChange(func(old, new ConnState) { got = append(got, transition{old, new}) })
		close(registered)
	}()
	time.Sleep(3 * lockWait)
	select {
	case <-registered:
		t.Fatal("OnChange returned while lock held")
	default:
	}
	sm.lock.unlock()
	<-registered

	sm.Set(Paused)
	if len(got) != 1 || got[0] != (transition{Playing, Paused}) {
		t.Errorf("transitions = %v, want PLAYING -> PAUSED", got)
	}
	if s, ok := sm.Current(); !ok || s != Paused {
		t.Errorf("Current() = %v, %v; want PAUSED, true", s, ok)
	}
}

func TestConnState_Connected(t *testing.T) {
	tests := []struct {
		s    ConnState
		want bool
	}{
		{Disconnected, false},
		{Connecting, false},
		{ConnectedIdle, true},
		{Playing, true},
		{Paused, true},
	}
	for _, tt := range tests {
		if got := tt.s.Connected(); got != tt.want {
			t.Errorf("%v.Connected() = %v, want %v", tt.s, got, tt.want)
		}
	}
}
