package bt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/cdc-bridge/internal/log"
)

// ErrNotConnected is returned when a command is sent while the module port
// is closed.
var ErrNotConnected = errors.New("bt: module not connected")

// Port is the byte channel to the module.
type Port interface {
	io.ReadWriter
	// Name returns a human-readable name for logs.
	Name() string
	// Connect opens the underlying device.
	Connect() error
	// Close releases the device.
	Close() error
	// IsConnected reports whether Connect succeeded and Close was not called.
	IsConnected() bool
}

// Config tunes the module driver. Zero values use the defaults.
type Config struct {
	PollInterval   time.Duration
	CommandTimeout time.Duration
}

// Module drives a BT1036 over a Port: one command in flight, responses
// parsed by a reader goroutine, status polled in the background.
type Module struct {
	port   Port
	queue  *Queue
	parser *Parser
	state  *StateMachine
	poller *Poller

	// Commands waiting for queue space.
	backlogMu sync.Mutex
	backlog   []string

	writeMu sync.Mutex
	log     *log.Logger
}

// NewModule wires a module driver on port and queues the start-up commands
// (AT, AT+VER, AT+ADDR). Track progress is forwarded to clock, which may be
// nil.
func NewModule(port Port, clock PlayTimeSink, cfg Config, logger *log.Logger) *Module {
	if logger == nil {
		logger = log.Nop()
	}
	q := NewQueue(cfg.CommandTimeout, logger)
	sm := NewStateMachine(logger)
	m := &Module{
		port:   port,
		queue:  q,
		state:  sm,
		parser: NewParser(q, sm, clock, logger),
		poller: NewPoller(q, cfg.PollInterval, logger),
		log:    logger,
	}
	q.Enqueue(CmdAT)
	q.Enqueue(CmdVersion)
	q.Enqueue(CmdAddress)
	return m
}

func (m *Module) Queue() *Queue             { return m.queue }
func (m *Module) State() *StateMachine      { return m.state }
func (m *Module) Parser() *Parser           { return m.parser }
func (m *Module) Poller() *Poller           { return m.poller }
func (m *Module) Port() Port                { return m.port }
func (m *Module) Report() Report            { return m.parser.Report() }
func (m *Module) OnChange(fn StateObserver) { m.state.OnChange(fn) }

// ConnState reads the connection state. ok is false if the state is busy.
func (m *Module) ConnState() (ConnState, bool) { return m.state.Current() }

// Run reads the port in a separate goroutine and polls every period until
// ctx is done.
func (m *Module) Run(ctx context.Context, period time.Duration) {
	m.log.Infof("BT1036 on %s", m.port.Name())
	go m.readLoop(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Poll(now)
		}
	}
}

func (m *Module) readLoop(ctx context.Context) {
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		n, err := m.port.Read(buf)
		if n > 0 {
			m.parser.Write(buf[:n])
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		// A closed port is reopened by the connect loop; keep waiting.
		if m.port.IsConnected() {
			m.log.Warnf("read %s: %v", m.port.Name(), err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Poll runs one command cycle: move backlog into the queue, expire or send
// the head command and let the background poller add status requests.
func (m *Module) Poll(now time.Time) {
	m.feedBacklog()
	if cmd, ok := m.queue.Next(now); ok {
		m.write(cmd)
	}
	m.poller.Poll(now)
}

func (m *Module) write(cmd string) {
	m.log.Verbosef(">> %s", cmd)
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := io.WriteString(m.port, cmd+"\r\n"); err != nil {
		// The command stays in flight and times out.
		m.log.Warnf("write %q: %v", cmd, err)
	}
}

// Send queues a command, fire and forget.
func (m *Module) Send(cmd string) {
	m.queue.Enqueue(cmd)
}

// SendRaw validates and queues a command typed by a user.
func (m *Module) SendRaw(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || strings.ContainsAny(cmd, "\r\n") {
		return fmt.Errorf("bt: invalid command %q", cmd)
	}
	if !m.port.IsConnected() {
		return ErrNotConnected
	}
	m.log.Infof("raw command: %s", cmd)
	m.queue.Enqueue(cmd)
	return nil
}

// SendBatch queues cmds in order, holding back what does not fit until the
// queue drains.
func (m *Module) SendBatch(cmds []string) {
	m.backlogMu.Lock()
	m.backlog = append(m.backlog, cmds...)
	m.backlogMu.Unlock()
	m.feedBacklog()
}

func (m *Module) feedBacklog() {
	m.backlogMu.Lock()
	defer m.backlogMu.Unlock()
	for len(m.backlog) > 0 && m.queue.TryEnqueue(m.backlog[0]) {
		m.backlog = m.backlog[1:]
	}
}

func (m *Module) backlogLen() int {
	m.backlogMu.Lock()
	defer m.backlogMu.Unlock()
	return len(m.backlog)
}

// Pair drops current links and starts discovery.
func (m *Module) Pair() {
	m.log.Infof("pairing mode")
	m.SendBatch(PairingCmds())
}

// ClearPaired forgets all paired phones.
func (m *Module) ClearPaired() {
	m.log.Infof("clearing paired devices")
	m.Send(CmdDeletePD)
}

// Disconnect drops A2DP and HFP links.
func (m *Module) Disconnect() {
	m.SendBatch([]string{CmdA2DPDisc, CmdHFPDisc})
}

func (m *Module) SetVolume(v int) {
	m.Send(SpeakerVolumeCmd(v, v))
}

// FactorySetup queues the one-shot configuration sequence. The module must
// be rebooted to apply it.
func (m *Module) FactorySetup() {
	m.log.Infof("Running factory setup...")
	m.SendBatch(FactorySetup())
	m.log.Infof("Factory setup queued (check OKs, then reboot module).")
}

func (m *Module) Reboot() {
	m.log.Infof("soft reboot")
	m.Send(CmdReboot)
}

// Status is a snapshot for the status API.
type Status struct {
	Port          string     `json:"port"`
	PortOpen      bool       `json:"portOpen"`
	State         string     `json:"state"`
	Connected     bool       `json:"connected"`
	Report        Report     `json:"report"`
	Queue         QueueStats `json:"queue"`
	Backlog       int        `json:"backlog"`
	PollingPaused bool       `json:"pollingPaused"`
}

func (m *Module) Status() Status {
	st := m.state.State()
	return Status{
		Port:          m.port.Name(),
		PortOpen:      m.port.IsConnected(),
		State:         st.String(),
		Connected:     st.Connected(),
		Report:        m.parser.Report(),
		Queue:         m.queue.Stats(),
		Backlog:       m.backlogLen(),
		PollingPaused: m.poller.Paused(),
	}
}

// Close closes the port.
func (m *Module) Close() error {
	return m.port.Close()
}
