package cdc

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// Command frame layout: 53 2C code ^code.
const (
	preamble1 = 0x53
	preamble2 = 0x2C
	frameLen  = 4

	rawPerLine    = 20
	statsInterval = 5 * time.Second
)

// Scanner finds command frames in the decoder ring and dispatches buttons.
//
// Validation failures advance by exactly one byte and retry. Noise that
// happens to look like the preamble can therefore be taken for a frame
// start; the checksum and multiple-of-4 checks are the only guard.
type Scanner struct {
	dec      *Decoder
	read     atomic.Uint32
	overruns atomic.Uint32
	handler  ButtonHandler

	log       *log.Logger
	raw       *log.Logger
	rawBuf    [traceSize]uint16
	lastStats time.Time
}

// NewScanner creates a scanner reading from dec. handler may be nil and set
// later with OnButton.
func NewScanner(dec *Decoder, handler ButtonHandler, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Nop()
	}
	return &Scanner{
		dec:     dec,
		handler: handler,
		log:     logger,
		raw:     logger.Named("raw"),
	}
}

// OnButton registers the button handler, replacing any previous one. Call it
// before the scanner starts polling.
func (s *Scanner) OnButton(h ButtonHandler) {
	s.handler = h
}

// Scan consumes all complete frames currently in the ring and returns the
// number of buttons dispatched.
func (s *Scanner) Scan() int {
	dispatched := 0
	r := s.read.Load()

	for {
		w := s.dec.Written()
		if r == w {
			break
		}
		if w-r > RingSize {
			s.overruns.Add(1)
			s.log.Debugf("capture ring overrun, dropped %d bytes", w-r-RingSize)
			r = w - RingSize
		}

		if s.dec.ByteAt(r) != preamble1 {
			r++
			continue
		}
		if w-r < frameLen {
			break // wait for the rest of the frame
		}

		b2 := s.dec.ByteAt(r + 1)
		code := s.dec.ByteAt(r + 2)
		check := s.dec.ByteAt(r + 3)

		if b2 != preamble2 {
			r++
			continue
		}
		if code+check != 0xFF {
			s.log.Debugf("invalid checksum: %02X + %02X", code, check)
			r++
			continue
		}
		if code&0x03 != 0 {
			s.log.Debugf("cmdcode not multiple of 4: %02X", code)
			r++
			continue
		}

		r += frameLen
		btn := ButtonForCode(code)
		s.log.Debugf("cmd 0x%02X (53 2C %02X %02X) -> %s", code, code, check, btn)
		if btn == Unknown {
			if what, ok := inertCodes[code]; ok {
				s.log.Debugf("ignoring %s code 0x%02X", what, code)
			}
			continue
		}

		dispatched++
		s.read.Store(r)
		if s.handler != nil {
			s.handler(btn)
		}
	}

	s.read.Store(r)
	return dispatched
}

// Poll runs one cooperative cycle: drain the raw pulse trace, scan for
// frames and periodically log decoder counters.
func (s *Scanner) Poll(now time.Time) {
	s.drainTrace()
	s.Scan()

	if now.Sub(s.lastStats) >= statsInterval {
		s.lastStats = now
		if s.log.DebugEnabled() {
			st := s.Stats()
			s.log.Debugf("edges total=%d fall=%d rise=%d | written=%d read=%d overruns=%d",
				st.Edges, st.Falling, st.Rising, st.Written, st.Read, st.Overruns)
		}
	}
}

// Run polls every period until ctx is done.
func (s *Scanner) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Poll(now)
		}
	}
}

func (s *Scanner) drainTrace() {
	n := s.dec.Trace().Drain(s.rawBuf[:])
	if n == 0 || !s.raw.DebugEnabled() {
		return
	}
	for start := 0; start < n; start += rawPerLine {
		end := start + rawPerLine
		if end > n {
			end = n
		}
		var sb strings.Builder
		sb.WriteString("RAW:")
		for _, us := range s.rawBuf[start:end] {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(int(us)))
		}
		s.raw.Debugf("%s", sb.String())
	}
}

// ScannerStats extends the decoder counters with the reader side.
type ScannerStats struct {
	DecoderStats
	Read     uint32 `json:"read"`
	Overruns uint32 `json:"overruns"`
}

// Stats returns decoder and scanner counters.
func (s *Scanner) Stats() ScannerStats {
	return ScannerStats{
		DecoderStats: s.dec.Stats(),
		Read:         s.read.Load(),
		Overruns:     s.overruns.Load(),
	}
}
