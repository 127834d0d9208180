package bt

import (
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// DefaultPollInterval is the status poll period.
const DefaultPollInterval = 3 * time.Second

// Poller asks the module for its link and device status whenever the
// command channel is idle for a full interval.
type Poller struct {
	queue    *Queue
	interval time.Duration
	last     time.Time
	paused   atomic.Bool
	log      *log.Logger
}

func NewPoller(q *Queue, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Poller{queue: q, interval: interval, log: logger}
}

// Poll enqueues the status requests when due. It reports whether it did.
// The first call only starts the interval.
func (p *Poller) Poll(now time.Time) bool {
	if p.paused.Load() {
		return false
	}
	if p.last.IsZero() {
		p.last = now
		return false
	}
	if p.queue.Busy() || now.Sub(p.last) <= p.interval {
		return false
	}
	p.queue.Enqueue(CmdA2DPStat)
	p.queue.Enqueue(CmdDevStat)
	p.last = now
	return true
}

// Pause stops background polling, e.g. while commands are sent by hand.
func (p *Poller) Pause() {
	if !p.paused.Swap(true) {
		p.log.Infof("status polling paused")
	}
}

func (p *Poller) Resume() {
	if p.paused.Swap(false) {
		p.log.Infof("status polling resumed")
	}
}

func (p *Poller) Paused() bool {
	return p.paused.Load()
}
