package bt

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const serialReadTimeout = 100 * time.Millisecond

// SerialConfig holds the UART settings of the module.
type SerialConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// SerialPort is a Port on a local UART, 8N1.
type SerialPort struct {
	cfg SerialConfig

	mu        sync.Mutex
	port      serial.Port
	connected bool
}

func NewSerialPort(cfg SerialConfig) *SerialPort {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &SerialPort{cfg: cfg}
}

func (s *SerialPort) Name() string {
	return fmt.Sprintf("BT1036 (%s @%d)", s.cfg.PortPath, s.cfg.BaudRate)
}

// Connect opens the UART. Reads time out after 100ms and return no data so
// the reader can notice shutdown.
func (s *SerialPort) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.cfg.PortPath, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.PortPath, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}
	port.ResetInputBuffer()
	s.port = port
	s.connected = true
	return nil
}

func (s *SerialPort) current() (serial.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrNotConnected
	}
	return s.port, nil
}

func (s *SerialPort) Read(p []byte) (int, error) {
	port, err := s.current()
	if err != nil {
		return 0, err
	}
	return port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	port, err := s.current()
	if err != nil {
		return 0, err
	}
	return port.Write(p)
}

func (s *SerialPort) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *SerialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}
