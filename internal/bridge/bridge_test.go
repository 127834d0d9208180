package bridge

import (
	"testing"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/bt"
	"github.com/shaunagostinho/cdc-bridge/internal/cdc"
	"github.com/shaunagostinho/cdc-bridge/internal/events"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeDisplay struct {
	disc, track uint8
	state       cdc.PlayState
	scan        bool
	random      bool
	cleared     int
}

func (d *fakeDisplay) SetDiscTrack(disc, track uint8) { d.disc, d.track = disc, track }
func (d *fakeDisplay) SetPlayState(s cdc.PlayState)   { d.state = s }
func (d *fakeDisplay) SetScan(on bool)                { d.scan = on }
func (d *fakeDisplay) SetRandom(on bool)              { d.random = on }
func (d *fakeDisplay) ClearModes()                    { d.scan, d.random = false, false; d.cleared++ }

type fakePhone struct {
	sent    []string
	state   bt.ConnState
	busy    bool
	volume  int
	paired  int
	cleared int
	dropped int
	reboots int
}

func (p *fakePhone) Send(cmd string)                 { p.sent = append(p.sent, cmd) }
func (p *fakePhone) Pair()                           { p.paired++ }
func (p *fakePhone) ClearPaired()                    { p.cleared++ }
func (p *fakePhone) Disconnect()                     { p.dropped++ }
func (p *fakePhone) SetVolume(v int)                 { p.volume = v }
func (p *fakePhone) Reboot()                         { p.reboots++ }
func (p *fakePhone) ConnState() (bt.ConnState, bool) { return p.state, !p.busy }

func (p *fakePhone) count(cmd string) int {
	n := 0
	for _, c := range p.sent {
		if c == cmd {
			n++
		}
	}
	return n
}

type fakeSink struct {
	events []events.Event
}

func (s *fakeSink) Publish(ev events.Event) { s.events = append(s.events, ev) }

type harness struct {
	b     *Bridge
	disp  *fakeDisplay
	phone *fakePhone
	sink  *fakeSink
	now   time.Time
}

func newHarness() *harness {
	h := &harness{disp: &fakeDisplay{}, phone: &fakePhone{}, sink: &fakeSink{}, now: t0}
	h.b = New(h.disp, h.phone, h.sink, Config{}, nil)
	h.b.now = func() time.Time { return h.now }
	return h
}

// press advances the clock past the debounce window and presses btn.
func (h *harness) press(btn cdc.Button) {
	h.now = h.now.Add(time.Second)
	h.b.HandleButton(btn)
}

func (h *harness) tick(d time.Duration) {
	h.now = h.now.Add(d)
	h.b.Tick(h.now)
}

func TestInitialDisplay(t *testing.T) {
	h := newHarness()
	if h.disp.disc != 1 || h.disp.track != TrackWaiting {
		t.Errorf("display = CD%d T%d, want CD1 T%d", h.disp.disc, h.disp.track, TrackWaiting)
	}
	if h.disp.state != cdc.Playing {
		t.Errorf("state = %s, want PLAYING", h.disp.state)
	}
	if snap := h.b.Snapshot(); snap.Mode != "WAITING_FOR_BT" {
		t.Errorf("mode = %s", snap.Mode)
	}
}

func TestNextPrevFromWaiting(t *testing.T) {
	h := newHarness()
	h.press(cdc.NextTrack)
	if h.disp.track != 2 {
		t.Errorf("after next from waiting track = %d, want 2", h.disp.track)
	}
	if h.phone.count(bt.CmdForward) != 1 {
		t.Errorf("forward sent %d times", h.phone.count(bt.CmdForward))
	}

	h = newHarness()
	h.press(cdc.PrevTrack)
	if h.disp.track != 1 {
		t.Errorf("after prev from waiting track = %d, want 1", h.disp.track)
	}
	if h.phone.count(bt.CmdBackward) != 1 {
		t.Errorf("backward sent %d times", h.phone.count(bt.CmdBackward))
	}
}

func TestTrackWraps(t *testing.T) {
	h := newHarness()
	h.press(cdc.PrevTrack) // track 1, normal playback
	h.press(cdc.PrevTrack)
	if h.disp.track != maxTrack {
		t.Errorf("prev from 1 = %d, want %d", h.disp.track, maxTrack)
	}
	h.press(cdc.NextTrack)
	if h.disp.track != 1 {
		t.Errorf("next from 99 = %d, want 1", h.disp.track)
	}
}

func TestDebounce(t *testing.T) {
	h := newHarness()
	h.press(cdc.NextTrack)
	h.now = h.now.Add(100 * time.Millisecond)
	h.b.HandleButton(cdc.NextTrack)
	if n := h.phone.count(bt.CmdForward); n != 1 {
		t.Errorf("repeat within debounce sent %d forwards, want 1", n)
	}
	// A different button is not debounced.
	h.now = h.now.Add(10 * time.Millisecond)
	h.b.HandleButton(cdc.PrevTrack)
	if n := h.phone.count(bt.CmdBackward); n != 1 {
		t.Errorf("backward sent %d times, want 1", n)
	}
	h.now = h.now.Add(300 * time.Millisecond)
	h.b.HandleButton(cdc.PrevTrack)
	if n := h.phone.count(bt.CmdBackward); n != 2 {
		t.Errorf("after debounce backward sent %d times, want 2", n)
	}
}

func TestPlayPauseStop(t *testing.T) {
	h := newHarness()
	h.press(cdc.Disc1)
	if h.phone.count(bt.CmdPlay) != 1 || h.disp.state != cdc.Playing {
		t.Errorf("first CD1: sent %v state %s", h.phone.sent, h.disp.state)
	}
	h.press(cdc.Disc1)
	if h.phone.count(bt.CmdPause) != 1 || h.disp.state != cdc.Paused {
		t.Errorf("second CD1: sent %v state %s", h.phone.sent, h.disp.state)
	}
	h.press(cdc.Disc2)
	if h.phone.count(bt.CmdStop) != 1 || h.disp.state != cdc.Stopped {
		t.Errorf("CD2: sent %v state %s", h.phone.sent, h.disp.state)
	}
}

func TestStopKeepsPlayToggle(t *testing.T) {
	h := newHarness()
	h.press(cdc.Disc1)
	h.press(cdc.Disc2)
	if !h.b.Snapshot().Playing {
		t.Fatal("CD2 cleared the play toggle")
	}
	h.press(cdc.Disc1)
	if h.phone.count(bt.CmdPause) != 1 || h.disp.state != cdc.Paused {
		t.Errorf("CD1 after stop: sent %v state %s, want pause", h.phone.sent, h.disp.state)
	}
}

func TestTickSkipsWhenStateBusy(t *testing.T) {
	h := newHarness()
	h.phone.state = bt.ConnectedIdle
	h.phone.busy = true
	h.tick(50 * time.Millisecond)
	if h.phone.volume != 0 || h.phone.count(bt.CmdPlay) != 0 {
		t.Fatalf("busy tick acted: volume=%d sent=%v", h.phone.volume, h.phone.sent)
	}
	if h.disp.track != TrackWaiting {
		t.Errorf("busy tick changed track to %d", h.disp.track)
	}

	h.phone.busy = false
	h.tick(50 * time.Millisecond)
	if h.phone.volume != 15 || h.phone.count(bt.CmdPlay) != 1 {
		t.Errorf("after busy clears: volume=%d sent=%v", h.phone.volume, h.phone.sent)
	}
}

func TestMicMuteToggle(t *testing.T) {
	h := newHarness()
	h.press(cdc.Disc3)
	h.press(cdc.Disc3)
	if h.phone.count(bt.MicMuteCmd(true)) != 1 || h.phone.count(bt.MicMuteCmd(false)) != 1 {
		t.Errorf("sent %v", h.phone.sent)
	}
}

func TestPairingAndDisconnectButtons(t *testing.T) {
	h := newHarness()
	h.press(cdc.NextTrack)
	h.press(cdc.Disc4)
	if h.phone.paired != 1 || h.disp.track != TrackWaiting || !h.b.Snapshot().Pairing {
		t.Errorf("CD4: paired=%d track=%d snap=%+v", h.phone.paired, h.disp.track, h.b.Snapshot())
	}
	h.press(cdc.NextTrack)
	h.press(cdc.Disc5)
	if h.phone.dropped != 1 || h.disp.track != TrackWaiting {
		t.Errorf("CD5: dropped=%d track=%d", h.phone.dropped, h.disp.track)
	}
}

func TestDisc6SinglePressClearsPaired(t *testing.T) {
	h := newHarness()
	h.press(cdc.Disc6)
	h.tick(200 * time.Millisecond)
	if h.phone.cleared != 0 {
		t.Fatal("cleared before the double press window closed")
	}
	h.tick(400 * time.Millisecond)
	if h.phone.cleared != 1 {
		t.Fatalf("cleared = %d, want 1", h.phone.cleared)
	}
	if h.phone.reboots != 0 {
		t.Error("single press rebooted")
	}
	if h.disp.track != TrackWaiting || !h.b.Snapshot().Pairing {
		t.Errorf("track=%d snap=%+v", h.disp.track, h.b.Snapshot())
	}
	h.tick(time.Second)
	if h.phone.cleared != 1 {
		t.Error("single press fired twice")
	}
}

func TestDisc6DoublePressReboots(t *testing.T) {
	h := newHarness()
	h.press(cdc.Disc6)
	h.now = h.now.Add(400 * time.Millisecond)
	h.b.HandleButton(cdc.Disc6)
	if h.phone.reboots != 1 {
		t.Fatalf("reboots = %d, want 1", h.phone.reboots)
	}
	h.tick(time.Second)
	if h.phone.cleared != 0 {
		t.Error("double press also cleared paired devices")
	}
}

func TestScanAndMixIndicators(t *testing.T) {
	h := newHarness()
	h.press(cdc.ScanToggle)
	if h.phone.count(bt.CmdHangup) != 1 || !h.disp.scan {
		t.Errorf("scan: sent %v scan=%v", h.phone.sent, h.disp.scan)
	}
	h.tick(600 * time.Millisecond)
	if h.disp.scan {
		t.Error("scan indicator not reset")
	}

	h.press(cdc.RandomToggle)
	if h.phone.count(bt.CmdAnswer) != 1 || !h.disp.random {
		t.Errorf("mix: sent %v random=%v", h.phone.sent, h.disp.random)
	}
	h.tick(100 * time.Millisecond)
	if !h.disp.random {
		t.Error("random indicator reset early")
	}
	h.tick(500 * time.Millisecond)
	if h.disp.random || h.disp.cleared != 1 {
		t.Errorf("random=%v cleared=%d", h.disp.random, h.disp.cleared)
	}
}

func TestDiscButtonsIgnored(t *testing.T) {
	h := newHarness()
	h.press(cdc.NextDisc)
	h.press(cdc.PrevDisc)
	if len(h.phone.sent) != 0 || len(h.sink.events) != 0 {
		t.Errorf("sent %v events %v", h.phone.sent, h.sink.events)
	}
}

func TestAutoReconnectPlays(t *testing.T) {
	h := newHarness()
	h.tick(50 * time.Millisecond)
	h.phone.state = bt.ConnectedIdle
	h.tick(50 * time.Millisecond)
	if h.phone.volume != 15 {
		t.Errorf("volume = %d, want 15", h.phone.volume)
	}
	if h.disp.track != TrackFirst || h.disp.state != cdc.Playing {
		t.Errorf("display T%d %s", h.disp.track, h.disp.state)
	}
	if n := h.phone.count(bt.CmdPlay); n != 1 {
		t.Errorf("play sent %d times, want 1", n)
	}
	h.phone.state = bt.Playing
	h.tick(50 * time.Millisecond)
	h.tick(10 * time.Second)
	if n := h.phone.count(bt.CmdPlay); n != 1 {
		t.Errorf("play sent %d times after more ticks, want 1", n)
	}
}

func TestNewDeviceHold(t *testing.T) {
	h := newHarness()
	h.press(cdc.Disc4)
	h.phone.state = bt.ConnectedIdle
	h.tick(50 * time.Millisecond)
	if h.disp.track != TrackConnected || h.b.Snapshot().Mode != "JUST_CONNECTED" {
		t.Fatalf("track=%d mode=%s", h.disp.track, h.b.Snapshot().Mode)
	}
	if h.phone.count(bt.CmdPlay) != 0 {
		t.Error("auto-play sent during hold")
	}
	h.tick(4 * time.Second)
	if h.disp.track != TrackConnected {
		t.Error("left hold early")
	}
	h.tick(2 * time.Second)
	if h.disp.track != TrackFirst || h.b.Snapshot().Mode != "NORMAL_PLAYBACK" {
		t.Errorf("track=%d mode=%s", h.disp.track, h.b.Snapshot().Mode)
	}
	if h.phone.count(bt.CmdPlay) != 1 {
		t.Errorf("play sent %d times, want 1", h.phone.count(bt.CmdPlay))
	}
	if h.b.Snapshot().Pairing {
		t.Error("pairing flag not cleared")
	}
}

func TestDisconnectShowsWaiting(t *testing.T) {
	h := newHarness()
	h.phone.state = bt.Playing
	h.tick(50 * time.Millisecond)
	h.phone.state = bt.Disconnected
	h.tick(50 * time.Millisecond)
	if h.disp.track != TrackWaiting || h.b.Snapshot().Mode != "WAITING_FOR_BT" {
		t.Errorf("track=%d mode=%s", h.disp.track, h.b.Snapshot().Mode)
	}
	// Reconnecting auto-plays again.
	h.phone.state = bt.ConnectedIdle
	h.tick(50 * time.Millisecond)
	if n := h.phone.count(bt.CmdPlay); n != 2 {
		t.Errorf("play sent %d times, want 2", n)
	}
}

func TestEventsPublished(t *testing.T) {
	h := newHarness()
	h.press(cdc.NextTrack)
	h.b.OnStateChange(bt.Disconnected, bt.Connecting)
	h.b.OnTrackInfo(bt.TrackInfo{Title: "Song", Artist: "Band"})

	var types []string
	for _, ev := range h.sink.events {
		types = append(types, ev.Type)
	}
	want := []string{events.TypeDisplay, events.TypeButton, events.TypeState, events.TypeTrack}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
	if got := h.sink.events[1].Fields["button"]; got != "NEXT_TRACK" {
		t.Errorf("button field = %q", got)
	}
	if got := h.sink.events[3].Fields["title"]; got != "Song" {
		t.Errorf("title field = %q", got)
	}
}
