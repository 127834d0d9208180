// Package bridge maps head unit buttons to Bluetooth commands and keeps the
// changer display in step with the phone connection.
//
// Track numbers double as status codes on the head unit:
//
//	80  waiting for a phone
//	10  a newly paired phone just connected
//	1+  normal playback
package bridge

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/bt"
	"github.com/shaunagostinho/cdc-bridge/internal/cdc"
	"github.com/shaunagostinho/cdc-bridge/internal/events"
	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// Status tracks shown on the head unit.
const (
	TrackWaiting   = 80
	TrackConnected = 10
	TrackFirst     = 1
	maxTrack       = 99
	disc           = 1
)

// DisplayMode is what the changer display is used for.
type DisplayMode int

const (
	WaitingForBT DisplayMode = iota
	JustConnected
	NormalPlayback
)

func (m DisplayMode) String() string {
	switch m {
	case JustConnected:
		return "JUST_CONNECTED"
	case NormalPlayback:
		return "NORMAL_PLAYBACK"
	default:
		return "WAITING_FOR_BT"
	}
}

// Display is the changer emulator as seen by the bridge.
type Display interface {
	SetDiscTrack(disc, track uint8)
	SetPlayState(s cdc.PlayState)
	SetScan(on bool)
	SetRandom(on bool)
	ClearModes()
}

// Phone is the Bluetooth module as seen by the bridge.
type Phone interface {
	Send(cmd string)
	Pair()
	ClearPaired()
	Disconnect()
	SetVolume(v int)
	Reboot()
	// ConnState reports the connection state; ok is false if it is busy.
	ConnState() (state bt.ConnState, ok bool)
}

// EventSink receives bridge events. events.Publisher implements it.
type EventSink interface {
	Publish(ev events.Event)
}

// Config holds the bridge timing.
type Config struct {
	Debounce      time.Duration
	DoublePress   time.Duration
	Indicator     time.Duration
	ConnectedHold time.Duration
	StartupVolume int
}

// DefaultConfig returns the timings used in the car.
func DefaultConfig() Config {
	return Config{
		Debounce:      300 * time.Millisecond,
		DoublePress:   500 * time.Millisecond,
		Indicator:     500 * time.Millisecond,
		ConnectedHold: 5 * time.Second,
		StartupVolume: 15,
	}
}

// Bridge is the glue between the head unit and the phone. HandleButton runs
// on the scanner goroutine and Tick on the bridge loop; both take mu.
type Bridge struct {
	mu sync.Mutex

	cfg     Config
	display Display
	phone   Phone
	sink    EventSink
	log     *log.Logger
	now     func() time.Time

	track    uint8
	mode     DisplayMode
	playing  bool
	micMuted bool
	pairing  bool
	autoPlay bool

	lastButton   cdc.Button
	lastButtonAt time.Time
	cd6At        time.Time
	scanResetAt  time.Time
	mixResetAt   time.Time
	connectedAt  time.Time
	lastState    bt.ConnState
}

// New creates the bridge and puts the display into the waiting state.
// sink may be nil.
func New(display Display, phone Phone, sink EventSink, cfg Config, logger *log.Logger) *Bridge {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.DoublePress <= 0 {
		cfg.DoublePress = def.DoublePress
	}
	if cfg.Indicator <= 0 {
		cfg.Indicator = def.Indicator
	}
	if cfg.ConnectedHold <= 0 {
		cfg.ConnectedHold = def.ConnectedHold
	}
	if cfg.StartupVolume <= 0 {
		cfg.StartupVolume = def.StartupVolume
	}
	if logger == nil {
		logger = log.Nop()
	}
	b := &Bridge{
		cfg:     cfg,
		display: display,
		phone:   phone,
		sink:    sink,
		log:     logger,
		now:     time.Now,
		track:   TrackWaiting,
		mode:    WaitingForBT,
	}
	display.SetDiscTrack(disc, TrackWaiting)
	display.SetPlayState(cdc.Playing)
	display.SetRandom(false)
	display.SetScan(false)
	return b
}

// Run ticks every period until ctx is done.
func (b *Bridge) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.Tick(now)
		}
	}
}

// HandleButton applies one head unit button. It has the cdc.ButtonHandler
// signature.
func (b *Bridge) HandleButton(btn cdc.Button) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()

	if btn == b.lastButton && now.Sub(b.lastButtonAt) < b.cfg.Debounce {
		return
	}
	b.lastButton = btn
	b.lastButtonAt = now

	action := ""
	switch btn {
	case cdc.NextTrack:
		if b.mode != NormalPlayback {
			b.setMode(NormalPlayback)
			b.track = TrackFirst
		}
		b.bumpTrack(1)
		b.phone.Send(bt.CmdForward)
		action = "next, track " + strconv.Itoa(int(b.track))

	case cdc.PrevTrack:
		if b.mode != NormalPlayback {
			b.setMode(NormalPlayback)
			b.track = TrackFirst + 1
		}
		b.bumpTrack(-1)
		b.phone.Send(bt.CmdBackward)
		action = "prev, track " + strconv.Itoa(int(b.track))

	case cdc.PlayPause, cdc.Disc1:
		b.playing = !b.playing
		if b.playing {
			b.phone.Send(bt.CmdPlay)
			b.display.SetPlayState(cdc.Playing)
			action = "play"
		} else {
			b.phone.Send(bt.CmdPause)
			b.display.SetPlayState(cdc.Paused)
			action = "pause"
		}

	// Stop leaves the play/pause toggle where it was.
	case cdc.Stop, cdc.Disc2:
		b.phone.Send(bt.CmdStop)
		b.display.SetPlayState(cdc.Stopped)
		action = "stop"

	case cdc.Disc3:
		b.micMuted = !b.micMuted
		b.phone.Send(bt.MicMuteCmd(b.micMuted))
		action = "mic mute " + onOff(b.micMuted)

	case cdc.Disc4:
		b.phone.Pair()
		b.pairing = true
		b.waitForPhone()
		action = "pairing mode"

	case cdc.Disc5:
		b.phone.Disconnect()
		b.waitForPhone()
		action = "disconnect"

	case cdc.Disc6:
		if !b.cd6At.IsZero() && now.Sub(b.cd6At) < b.cfg.DoublePress {
			b.cd6At = time.Time{}
			b.phone.Reboot()
			action = "reboot module"
		} else {
			// Single press fires from Tick once the window has passed.
			b.cd6At = now
			return
		}

	case cdc.ScanToggle:
		b.phone.Send(bt.CmdHangup)
		b.display.SetScan(true)
		b.scanResetAt = now.Add(b.cfg.Indicator)
		action = "hangup"

	case cdc.RandomToggle:
		b.phone.Send(bt.CmdAnswer)
		b.display.SetRandom(true)
		b.mixResetAt = now.Add(b.cfg.Indicator)
		action = "answer call"

	default:
		b.log.Infof("%s -> (ignored)", btn)
		return
	}

	b.log.Infof("%s -> %s", btn, action)
	b.publish(events.TypeButton, map[string]string{"button": btn.String(), "action": action})
}

// Tick runs the time driven part of the policy: the delayed CD6 single
// press, indicator pulses, connection transitions and the post-pairing
// hold. A tick whose state read times out is skipped.
func (b *Bridge) Tick(now time.Time) {
	state, ok := b.phone.ConnState()
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cd6At.IsZero() && now.Sub(b.cd6At) >= b.cfg.DoublePress {
		b.cd6At = time.Time{}
		b.phone.ClearPaired()
		b.pairing = true
		b.waitForPhone()
		b.log.Infof("CD6 -> clear paired devices")
		b.publish(events.TypeButton, map[string]string{"button": cdc.Disc6.String(), "action": "clear paired"})
	}

	if !b.scanResetAt.IsZero() && now.After(b.scanResetAt) {
		b.scanResetAt = time.Time{}
		b.display.SetScan(false)
	}
	if !b.mixResetAt.IsZero() && now.After(b.mixResetAt) {
		b.mixResetAt = time.Time{}
		b.display.SetRandom(false)
		b.display.ClearModes()
	}

	if b.lastState == bt.Disconnected && state.Connected() {
		b.onConnect(now)
	}
	if state == bt.Disconnected && b.lastState != bt.Disconnected {
		b.waitForPhone()
		b.autoPlay = false
		b.log.Infof("BT disconnected, showing track %d", TrackWaiting)
	}
	b.lastState = state

	if b.mode == JustConnected && now.Sub(b.connectedAt) > b.cfg.ConnectedHold {
		b.pairing = false
		b.startPlayback()
		b.log.Infof("switching to normal playback (track %d)", TrackFirst)
	}
}

// onConnect handles the first connected state after a disconnect.
// Caller holds mu.
func (b *Bridge) onConnect(now time.Time) {
	b.phone.SetVolume(b.cfg.StartupVolume)
	b.log.Infof("set BT volume to %d", b.cfg.StartupVolume)

	if b.pairing {
		b.setMode(JustConnected)
		b.connectedAt = now
		b.track = TrackConnected
		b.display.SetDiscTrack(disc, b.track)
		b.autoPlay = false
		b.log.Infof("new device connected, showing track %d", TrackConnected)
		return
	}
	b.startPlayback()
	b.log.Infof("auto-reconnect")
}

// startPlayback switches to normal playback and sends play once.
// Caller holds mu.
func (b *Bridge) startPlayback() {
	b.setMode(NormalPlayback)
	b.track = TrackFirst
	b.playing = true
	b.display.SetDiscTrack(disc, b.track)
	b.display.SetPlayState(cdc.Playing)
	if !b.autoPlay {
		b.autoPlay = true
		b.phone.Send(bt.CmdPlay)
		b.log.Infof("auto-play sent")
	}
}

// waitForPhone shows the waiting track. Caller holds mu.
func (b *Bridge) waitForPhone() {
	b.setMode(WaitingForBT)
	b.track = TrackWaiting
	b.display.SetDiscTrack(disc, b.track)
}

func (b *Bridge) setMode(m DisplayMode) {
	if b.mode == m {
		return
	}
	b.mode = m
	b.publish(events.TypeDisplay, map[string]string{"mode": m.String()})
}

// bumpTrack moves the displayed track within 1..99 with wrap around.
// Caller holds mu.
func (b *Bridge) bumpTrack(step int) {
	t := int(b.track) + step
	switch {
	case t > maxTrack:
		t = 1
	case t < 1:
		t = maxTrack
	}
	b.track = uint8(t)
	b.display.SetDiscTrack(disc, b.track)
}

// OnStateChange forwards connection changes to the event sink. It has the
// bt.StateObserver signature.
func (b *Bridge) OnStateChange(old, new bt.ConnState) {
	b.publish(events.TypeState, map[string]string{"old": old.String(), "new": new.String()})
}

// OnTrackInfo forwards track metadata to the event sink.
func (b *Bridge) OnTrackInfo(ti bt.TrackInfo) {
	b.publish(events.TypeTrack, map[string]string{"title": ti.Title, "artist": ti.Artist, "album": ti.Album})
}

func (b *Bridge) publish(typ string, fields map[string]string) {
	if b.sink == nil {
		return
	}
	b.sink.Publish(events.Event{Type: typ, Time: b.now(), Fields: fields})
}

// Snapshot is the bridge state for the status API.
type Snapshot struct {
	Mode     string `json:"mode"`
	Track    uint8  `json:"track"`
	Playing  bool   `json:"playing"`
	MicMuted bool   `json:"micMuted"`
	Pairing  bool   `json:"pairing"`
}

func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Mode:     b.mode.String(),
		Track:    b.track,
		Playing:  b.playing,
		MicMuted: b.micMuted,
		Pairing:  b.pairing,
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
