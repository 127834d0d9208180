package cdc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// Nominal pulse widths of a head unit command frame.
const (
	startPulse = 4570 * time.Microsecond
	onePulse   = 1770 * time.Microsecond
	zeroPulse  = 650 * time.Microsecond
	highGap    = 550 * time.Microsecond
)

// ErrUnsupportedButton is returned for buttons without a command code.
var ErrUnsupportedButton = errors.New("cdc: button has no command code")

// PulseTrain returns the low-pulse widths of a full command frame for code:
// a start marker followed by 53 2C code ^code, MSB first.
func PulseTrain(code byte) []time.Duration {
	widths := make([]time.Duration, 0, 1+packetBits)
	widths = append(widths, startPulse)
	for _, b := range [frameLen]byte{preamble1, preamble2, code, ^code} {
		for i := 7; i >= 0; i-- {
			if b&(1<<uint(i)) != 0 {
				widths = append(widths, onePulse)
			} else {
				widths = append(widths, zeroPulse)
			}
		}
	}
	return widths
}

// FeedPulses plays low pulses into dec as falling/rising edge pairs starting
// at at. It returns the timestamp after the last pulse.
func FeedPulses(dec *Decoder, widths []time.Duration, at time.Duration) time.Duration {
	for _, w := range widths {
		dec.HandleEdge(false, at)
		at += w
		dec.HandleEdge(true, at)
		at += highGap
	}
	return at
}

// LogBus is a Bus without hardware. It logs every frame at verbose level and
// remembers the last one.
type LogBus struct {
	mu   sync.Mutex
	last Frame
	sent int
	log  *log.Logger
}

func NewLogBus(logger *log.Logger) *LogBus {
	if logger == nil {
		logger = log.Nop()
	}
	return &LogBus{log: logger}
}

func (b *LogBus) Name() string { return "Demo (log)" }

func (b *LogBus) Send(f Frame) error {
	b.mu.Lock()
	b.last = f
	b.sent++
	b.mu.Unlock()
	b.log.Verbosef("bus %s", f)
	return nil
}

// Last returns the most recent frame and the number of frames sent.
func (b *LogBus) Last() (Frame, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.sent
}

func (b *LogBus) Close() error { return nil }

// DemoLine simulates the DataOut line. Buttons passed to Press are played
// into the decoder as real pulse trains.
type DemoLine struct {
	presses chan byte
}

func NewDemoLine() *DemoLine {
	return &DemoLine{presses: make(chan byte, 16)}
}

func (l *DemoLine) Name() string { return "Demo (simulated)" }

// Press queues a button press. Presses beyond the queue depth are dropped,
// like a head unit repeating faster than the decoder drains.
func (l *DemoLine) Press(b Button) error {
	code, ok := CodeForButton(b)
	if !ok {
		return ErrUnsupportedButton
	}
	select {
	case l.presses <- code:
	default:
	}
	return nil
}

func (l *DemoLine) Run(ctx context.Context, dec *Decoder) {
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case code := <-l.presses:
			FeedPulses(dec, PulseTrain(code), time.Since(start))
		}
	}
}

func (l *DemoLine) Close() error { return nil }
