package cdc

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// Head unit DataIn timing.
const (
	spiFrequency = 62500 * physic.Hertz
	byteGap      = 874 * time.Microsecond
)

// SPIBus drives the head unit DataIn line from an SPI port in mode 1,
// one byte per transfer.
type SPIBus struct {
	mu   sync.Mutex
	name string
	port spi.PortCloser
	conn spi.Conn
	rx   [1]byte
}

// OpenSPI opens the named SPI port ("" picks the first one).
func OpenSPI(name string) (*SPIBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", name, err)
	}
	conn, err := port.Connect(spiFrequency, spi.Mode1, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi %q: %w", name, err)
	}
	if name == "" {
		name = "spi"
	}
	return &SPIBus{name: name, port: port, conn: conn}, nil
}

func (b *SPIBus) Name() string { return b.name }

// Send clocks out the frame byte by byte. It blocks for roughly 8 gaps.
func (b *SPIBus) Send(f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range f {
		if err := b.conn.Tx(f[i:i+1], b.rx[:]); err != nil {
			return fmt.Errorf("spi tx byte %d: %w", i, err)
		}
		time.Sleep(byteGap)
	}
	return nil
}

func (b *SPIBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port.Close()
}
