package cdc

import (
	"sync/atomic"
	"time"
)

// DataOut line timing. Bits are encoded in the length of the low pulse.
const (
	StartThreshold = 3200 * time.Microsecond // start marker
	OneThreshold   = 1248 * time.Microsecond // logical one
	NoiseThreshold = 256 * time.Microsecond  // anything shorter is noise

	// RingSize holds six 4-byte command frames.
	RingSize = 24

	packetBits = 32
)

// PulseClass is the meaning of one low pulse.
type PulseClass int

const (
	PulseNoise PulseClass = iota
	PulseZero
	PulseOne
	PulseStart
)

func (c PulseClass) String() string {
	switch c {
	case PulseZero:
		return "zero"
	case PulseOne:
		return "one"
	case PulseStart:
		return "start"
	default:
		return "noise"
	}
}

// Classify maps a low-pulse duration to its meaning.
func Classify(d time.Duration) PulseClass {
	switch {
	case d < NoiseThreshold:
		return PulseNoise
	case d >= StartThreshold:
		return PulseStart
	case d >= OneThreshold:
		return PulseOne
	default:
		return PulseZero
	}
}

// Decoder turns DataOut edges into bytes.
//
// HandleEdge is the only producer and is meant to run in the edge-watching
// goroutine; it never blocks, allocates or formats. The byte ring is read by
// a single Scanner through Written and ByteAt. The write counter only grows,
// so a slow reader can detect that it was lapped and skip the overwritten
// bytes.
type Decoder struct {
	ring    [RingSize]byte
	written atomic.Uint32

	// Producer-owned.
	measuring bool
	lastFall  time.Duration
	capturing bool
	byteBits  uint8
	pktBits   uint8
	current   byte

	paused atomic.Bool
	resync atomic.Bool

	edges   atomic.Uint32
	falling atomic.Uint32
	rising  atomic.Uint32

	trace Trace
}

// NewDecoder returns an idle decoder waiting for a start marker.
func NewDecoder() *Decoder {
	return &Decoder{byteBits: 8}
}

// HandleEdge records one edge of the DataOut line. high is the line level
// after the edge; at is a monotonic timestamp.
func (d *Decoder) HandleEdge(high bool, at time.Duration) {
	d.edges.Add(1)
	if d.paused.Load() {
		return
	}
	if d.resync.Swap(false) {
		d.reset()
	}

	if !high {
		d.falling.Add(1)
		d.lastFall = at
		d.measuring = true
		return
	}

	d.rising.Add(1)
	if !d.measuring {
		return
	}
	d.measuring = false
	d.handlePulse(at - d.lastFall)
}

func (d *Decoder) handlePulse(low time.Duration) {
	d.trace.record(low)

	switch Classify(low) {
	case PulseNoise:
		return
	case PulseStart:
		d.capturing = true
		d.pktBits = packetBits
		d.byteBits = 8
		d.current = 0
		return
	case PulseOne:
		d.shift(1)
	case PulseZero:
		d.shift(0)
	}
}

func (d *Decoder) shift(bit byte) {
	if !d.capturing || d.pktBits == 0 {
		return
	}
	d.current = d.current<<1 | bit
	d.byteBits--
	d.pktBits--

	if d.byteBits == 0 {
		w := d.written.Load()
		d.ring[w%RingSize] = d.current
		d.written.Store(w + 1)
		d.byteBits = 8
		d.current = 0
	}
	if d.pktBits == 0 {
		d.capturing = false
	}
}

func (d *Decoder) reset() {
	d.measuring = false
	d.capturing = false
	d.byteBits = 8
	d.pktBits = 0
	d.current = 0
}

// Pause stops decoding. Edges are still counted but otherwise ignored.
func (d *Decoder) Pause() {
	d.paused.Store(true)
}

// Resume re-enables decoding. Partial state from before the pause is
// discarded, so decoding restarts at the next start marker.
func (d *Decoder) Resume() {
	d.resync.Store(true)
	d.paused.Store(false)
}

// Paused reports whether decoding is paused.
func (d *Decoder) Paused() bool {
	return d.paused.Load()
}

// Written is the total number of bytes ever pushed into the ring.
func (d *Decoder) Written() uint32 {
	return d.written.Load()
}

// ByteAt returns the ring byte for an absolute position.
func (d *Decoder) ByteAt(pos uint32) byte {
	return d.ring[pos%RingSize]
}

// Trace returns the raw pulse trace.
func (d *Decoder) Trace() *Trace {
	return &d.trace
}

// DecoderStats are diagnostic counters.
type DecoderStats struct {
	Edges   uint32 `json:"edges"`
	Falling uint32 `json:"falling"`
	Rising  uint32 `json:"rising"`
	Written uint32 `json:"written"`
	Paused  bool   `json:"paused"`
}

// Stats returns a snapshot of the diagnostic counters.
func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		Edges:   d.edges.Load(),
		Falling: d.falling.Load(),
		Rising:  d.rising.Load(),
		Written: d.written.Load(),
		Paused:  d.paused.Load(),
	}
}
