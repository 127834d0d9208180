package cdc

import (
	"context"
	"sync"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// PlayState is the transport state shown on the head unit.
type PlayState int

const (
	Stopped PlayState = iota
	Playing
	Paused
)

func (s PlayState) String() string {
	switch s {
	case Playing:
		return "PLAYING"
	case Paused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

// Phase is the start-up sequence position of the emulated changer.
type Phase int

const (
	PhaseIdleThenPlay Phase = iota
	PhaseInitPlay
	PhasePlayLeadIn
	PhasePlay
)

func (p Phase) String() string {
	switch p {
	case PhaseInitPlay:
		return "InitPlay"
	case PhasePlayLeadIn:
		return "PlayLeadIn"
	case PhasePlay:
		return "Play"
	default:
		return "IdleThenPlay"
	}
}

// Phase lengths in ticks.
const (
	idleTicks   = 20
	initTicks   = 24
	leadInTicks = 10

	// TickPeriod is the frame rate the head unit expects.
	TickPeriod = 50 * time.Millisecond

	// ExternalTimeGrace is how long an externally supplied play time
	// suppresses the local one-second counter.
	ExternalTimeGrace = 3 * time.Second
)

// Status is what the head unit currently displays.
type Status struct {
	Disc     uint8     `json:"disc"`
	Track    uint8     `json:"track"`
	State    PlayState `json:"-"`
	RandomOn bool      `json:"randomOn"`
	ScanOn   bool      `json:"scanOn"`
	Minutes  uint8     `json:"minutes"`
	Seconds  uint8     `json:"seconds"`
	Phase    Phase     `json:"-"`
	ModeByte byte      `json:"modeByte"`
}

// Emulator emulates a CD changer towards the head unit. Tick builds and
// sends exactly one frame; Run ticks at TickPeriod. The setters may be
// called from any goroutine.
type Emulator struct {
	mu     sync.Mutex
	status Status

	neutralMode  bool
	lastExternal time.Time
	lastSecond   time.Time

	phase    Phase
	counter  int
	discLoad byte

	bus Bus
	log *log.Logger
	now func() time.Time
}

// NewEmulator creates an emulator in the first start-up phase showing CD1
// track 1, playing.
func NewEmulator(bus Bus, logger *log.Logger) *Emulator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Emulator{
		status: Status{Disc: 1, Track: 1, State: Playing},
		bus:    bus,
		log:    logger,
		now:    time.Now,
	}
}

// Run ticks every period until ctx is done.
func (e *Emulator) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = TickPeriod
	}
	e.log.Infof("start-up sequence: IdleThenPlay (%d packets)", idleTicks)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// Tick advances the play clock, builds the frame for the current phase and
// sends it on the bus. The returned frame is what was sent.
func (e *Emulator) Tick(now time.Time) Frame {
	e.mu.Lock()
	e.advanceClock(now)
	f := e.nextFrame()
	e.mu.Unlock()

	if e.log.VerboseEnabled() {
		e.log.Verbosef("TX %s -> %s", f, f.Describe())
	}
	if e.bus != nil {
		if err := e.bus.Send(f); err != nil {
			e.log.Debugf("bus send failed: %v", err)
		}
	}
	return f
}

// advanceClock counts play time locally when nobody else supplies it.
// Caller holds mu.
func (e *Emulator) advanceClock(now time.Time) {
	if e.phase != PhasePlay || e.status.State != Playing {
		return
	}
	if !e.lastExternal.IsZero() && now.Sub(e.lastExternal) < ExternalTimeGrace {
		return
	}
	if e.lastSecond.IsZero() {
		e.lastSecond = now
		return
	}
	if now.Sub(e.lastSecond) < time.Second {
		return
	}
	e.lastSecond = now
	e.status.Seconds++
	if e.status.Seconds >= 60 {
		e.status.Seconds = 0
		e.status.Minutes++
		if e.status.Minutes >= 100 {
			e.status.Minutes = 0
		}
	}
}

// nextFrame runs the phase machine one step. Caller holds mu.
func (e *Emulator) nextFrame() Frame {
	disc := clamp(e.status.Disc, 1, 6)
	track := clamp(e.status.Track, 1, 99)

	var f Frame
	switch e.phase {
	case PhaseIdleThenPlay:
		f = IdleFrame(disc, track)
		e.counter++
		if e.counter >= idleTicks {
			e.enter(PhaseInitPlay)
			e.discLoad = discLoadFirst
		}

	case PhaseInitPlay:
		if e.counter%2 == 0 {
			f = AnnounceFrame(e.discLoad)
			if e.discLoad == discLoadLast {
				e.discLoad = discLoadFirst
			} else {
				e.discLoad--
			}
		} else {
			f = InitFrame(disc, track)
		}
		e.counter++
		if e.counter >= initTicks {
			e.enter(PhasePlayLeadIn)
		}

	case PhasePlayLeadIn:
		if e.counter%2 == 0 {
			f = LeadInAnnounceFrame(disc)
		} else {
			f = LeadInFrame(disc, track)
		}
		e.counter++
		if e.counter >= leadInTicks {
			e.enter(PhasePlay)
		}

	default:
		f = PlayFrame(disc, track, e.status.Minutes, e.status.Seconds, e.modeByte())
	}
	return f
}

func (e *Emulator) enter(p Phase) {
	e.log.Infof("transition: %s -> %s", e.phase, p)
	e.phase = p
	e.counter = 0
}

func (e *Emulator) modeByte() byte {
	if e.neutralMode {
		return neutralMode
	}
	return ModeOf(e.status.ScanOn, e.status.RandomOn).Byte()
}

// SetDiscTrack changes the displayed disc and track and restarts the play
// time at 00:00. The start-up phase is not affected.
func (e *Emulator) SetDiscTrack(disc, track uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Disc = disc
	e.status.Track = track
	e.status.Minutes = 0
	e.status.Seconds = 0
}

// SetPlayState changes the transport state.
func (e *Emulator) SetPlayState(s PlayState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = s
}

// SetRandom switches the shuffle indicator.
func (e *Emulator) SetRandom(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setModes(e.status.ScanOn, on)
}

// SetScan switches the scan indicator.
func (e *Emulator) SetScan(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setModes(on, e.status.RandomOn)
}

func (e *Emulator) setModes(scan, random bool) {
	old := e.modeByte()
	e.status.ScanOn = scan
	e.status.RandomOn = random
	e.neutralMode = false
	if m := e.modeByte(); m != old {
		e.log.Infof("mode byte: 0x%02X -> 0x%02X", old, m)
	}
}

// ClearModes turns scan and random off and sends the neutral mode byte
// until the next SetScan or SetRandom.
func (e *Emulator) ClearModes() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.ScanOn = false
	e.status.RandomOn = false
	e.neutralMode = true
	e.log.Infof("mode byte reset to 0x%02X", neutralMode)
}

// SetPlayTime sets the displayed play time. For the next ExternalTimeGrace
// the local counter stays off, so the latest external writer wins.
func (e *Emulator) SetPlayTime(minutes, seconds uint8) {
	if minutes > 99 {
		minutes = 99
	}
	if seconds > 59 {
		seconds = 59
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Minutes = minutes
	e.status.Seconds = seconds
	e.lastExternal = e.now()
}

// Status returns a snapshot of the displayed state.
func (e *Emulator) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.status
	st.Phase = e.phase
	st.ModeByte = e.modeByte()
	return st
}

func clamp(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
