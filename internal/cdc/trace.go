package cdc

import (
	"sync/atomic"
	"time"
)

const (
	traceSize     = 64
	traceMaxMicro = 60000
)

// Trace keeps the most recent raw low-pulse widths in microseconds, noise
// included. It is independent of decoding and only used for diagnostics.
// One producer (the decoder) and one consumer (Drain).
type Trace struct {
	buf     [traceSize]uint16
	written atomic.Uint32
	read    uint32
}

func (t *Trace) record(d time.Duration) {
	us := d.Microseconds()
	if us > traceMaxMicro {
		us = traceMaxMicro
	}
	if us < 0 {
		us = 0
	}
	w := t.written.Load()
	t.buf[w%traceSize] = uint16(us)
	t.written.Store(w + 1)
}

// Drain copies pending pulse widths into dst and returns how many were
// copied. Pulses overwritten before they were drained are skipped.
func (t *Trace) Drain(dst []uint16) int {
	w := t.written.Load()
	if w-t.read > traceSize {
		t.read = w - traceSize
	}
	n := 0
	for t.read != w && n < len(dst) {
		dst[n] = t.buf[t.read%traceSize]
		t.read++
		n++
	}
	return n
}
