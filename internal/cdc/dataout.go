package cdc

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

const edgeWait = 100 * time.Millisecond

// DataOutLine watches the head unit DataOut pin for edges.
type DataOutLine struct {
	pin gpio.PinIn
}

// OpenDataOut configures the named GPIO as a floating input with edge
// detection on both edges.
func OpenDataOut(name string) (*DataOutLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoDataOutPin, name)
	}
	if err := pin.In(gpio.Float, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure %s: %w", name, err)
	}
	return &DataOutLine{pin: pin}, nil
}

func (l *DataOutLine) Name() string { return l.pin.Name() }

// Run feeds edges to dec until ctx is done. Timestamps are monotonic
// offsets from the start of Run.
func (l *DataOutLine) Run(ctx context.Context, dec *Decoder) {
	start := time.Now()
	for ctx.Err() == nil {
		if !l.pin.WaitForEdge(edgeWait) {
			continue
		}
		dec.HandleEdge(l.pin.Read() == gpio.High, time.Since(start))
	}
}

func (l *DataOutLine) Close() error {
	return l.pin.In(gpio.Float, gpio.NoEdge)
}
