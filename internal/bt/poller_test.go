package bt

import (
	"testing"
	"time"
)

func TestPoller_EnqueuesWhenIdleAndDue(t *testing.T) {
	q := NewQueue(0, nil)
	p := NewPoller(q, 0, nil)

	if p.Poll(t0) {
		t.Fatal("first Poll() enqueued")
	}
	if p.Poll(t0.Add(DefaultPollInterval)) {
		t.Fatal("Poll() enqueued at exactly one interval")
	}
	if !p.Poll(t0.Add(DefaultPollInterval + time.Millisecond)) {
		t.Fatal("Poll() did not enqueue after the interval")
	}

	got := q.Pending()
	if len(got) != 2 || got[0] != CmdA2DPStat || got[1] != CmdDevStat {
		t.Errorf("queued = %v, want [%s %s]", got, CmdA2DPStat, CmdDevStat)
	}
}

func TestPoller_SkipsWhileBusy(t *testing.T) {
	q := NewQueue(time.Hour, nil)
	p := NewPoller(q, time.Second, nil)
	p.Poll(t0)

	q.Enqueue("AT")
	q.Next(t0)
	if p.Poll(t0.Add(5 * time.Second)) {
		t.Fatal("Poll() enqueued while a command was in flight")
	}

	q.Complete(true)
	if !p.Poll(t0.Add(6 * time.Second)) {
		t.Error("Poll() did not enqueue once idle")
	}
}

func TestPoller_Pause(t *testing.T) {
	q := NewQueue(0, nil)
	p := NewPoller(q, time.Second, nil)
	p.Poll(t0)

	p.Pause()
	if !p.Paused() {
		t.Fatal("Paused() = false")
	}
	if p.Poll(t0.Add(10 * time.Second)) {
		t.Fatal("paused Poll() enqueued")
	}

	p.Resume()
	if !p.Poll(t0.Add(11 * time.Second)) {
		t.Error("resumed Poll() did not enqueue")
	}
}
