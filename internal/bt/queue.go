package bt

import (
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

const (
	// QueueCapacity is the number of commands that can wait, the in-flight
	// one included.
	QueueCapacity = 10

	// DefaultCommandTimeout is how long a command may wait for OK/ERROR.
	DefaultCommandTimeout = 2000 * time.Millisecond
)

// Queue is a bounded FIFO of AT commands with at most one command in
// flight. The in-flight command stays at the head until it is completed or
// times out.
//
// Overflowing enqueues are dropped with a log line. There are no retries.
type Queue struct {
	lock tryMutex

	entries [QueueCapacity]string
	head    int
	n       int

	inFlight bool
	sentAt   time.Time
	timeout  time.Duration

	dropped  uint32
	timeouts uint32
	errors   uint32

	log *log.Logger
}

// NewQueue creates an empty queue. A zero timeout uses DefaultCommandTimeout.
func NewQueue(timeout time.Duration, logger *log.Logger) *Queue {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Queue{lock: newTryMutex(), timeout: timeout, log: logger}
}

// Enqueue appends cmd. It is a no-op when the queue is full or busy.
func (q *Queue) Enqueue(cmd string) {
	if !q.lock.tryLock(lockWait) {
		q.log.Debugf("queue busy, drop: %s", cmd)
		return
	}
	defer q.lock.unlock()

	if q.n == QueueCapacity {
		q.dropped++
		q.log.Infof("queue FULL, drop: %s", cmd)
		return
	}
	q.entries[(q.head+q.n)%QueueCapacity] = cmd
	q.n++
}

// TryEnqueue appends cmd if there is room and reports whether it did. A
// refused command is not counted as dropped.
func (q *Queue) TryEnqueue(cmd string) bool {
	if !q.lock.tryLock(lockWait) {
		return false
	}
	defer q.lock.unlock()

	if q.n == QueueCapacity {
		return false
	}
	q.entries[(q.head+q.n)%QueueCapacity] = cmd
	q.n++
	return true
}

// Next expires a timed out in-flight command and then, if nothing is in
// flight, marks the head as sent at now and returns it.
func (q *Queue) Next(now time.Time) (string, bool) {
	if !q.lock.tryLock(lockWait) {
		return "", false
	}
	defer q.lock.unlock()

	if q.inFlight && now.Sub(q.sentAt) > q.timeout {
		q.timeouts++
		q.log.Infof("CMD TIMEOUT for: %s", q.entries[q.head])
		q.pop()
	}
	if q.inFlight || q.n == 0 {
		return "", false
	}
	q.inFlight = true
	q.sentAt = now
	return q.entries[q.head], true
}

// Complete closes the in-flight command. ok is false for ERROR responses.
// Without a command in flight it does nothing.
func (q *Queue) Complete(ok bool) {
	if !q.lock.tryLock(lockWait) {
		return
	}
	defer q.lock.unlock()

	if !q.inFlight {
		return
	}
	if !ok {
		q.errors++
		q.log.Infof("CMD ERROR for: %s", q.entries[q.head])
	}
	q.pop()
}

// pop removes the head and clears the in-flight flag. Caller holds lock.
func (q *Queue) pop() {
	q.inFlight = false
	if q.n == 0 {
		return
	}
	q.entries[q.head] = ""
	q.head = (q.head + 1) % QueueCapacity
	q.n--
}

// Busy reports whether a command is waiting for its response.
func (q *Queue) Busy() bool {
	if !q.lock.tryLock(lockWait) {
		return true
	}
	defer q.lock.unlock()
	return q.inFlight
}

// Len returns the number of queued commands, the in-flight one included.
func (q *Queue) Len() int {
	if !q.lock.tryLock(lockWait) {
		return QueueCapacity
	}
	defer q.lock.unlock()
	return q.n
}

// Pending returns a copy of the queued commands in order.
func (q *Queue) Pending() []string {
	if !q.lock.tryLock(lockWait) {
		return nil
	}
	defer q.lock.unlock()
	out := make([]string, q.n)
	for i := range out {
		out[i] = q.entries[(q.head+i)%QueueCapacity]
	}
	return out
}

// QueueStats are queue counters for the status API.
type QueueStats struct {
	Length   int    `json:"length"`
	InFlight string `json:"inFlight,omitempty"`
	Dropped  uint32 `json:"dropped"`
	Timeouts uint32 `json:"timeouts"`
	Errors   uint32 `json:"errors"`
}

func (q *Queue) Stats() QueueStats {
	if !q.lock.tryLock(lockWait) {
		return QueueStats{}
	}
	defer q.lock.unlock()
	st := QueueStats{Length: q.n, Dropped: q.dropped, Timeouts: q.timeouts, Errors: q.errors}
	if q.inFlight {
		st.InFlight = q.entries[q.head]
	}
	return st
}
