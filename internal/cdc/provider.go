package cdc

import (
	"context"
	"errors"
)

// ErrNoDataOutPin is returned when the configured DataOut pin does not exist.
var ErrNoDataOutPin = errors.New("cdc: dataout pin not found")

// Bus carries status frames to the head unit.
//
// Send is intentionally blocking: it returns only after all eight bytes have
// been clocked out with the inter-byte gap the head unit expects. The head
// unit never acknowledges, so an error only reports a local failure.
type Bus interface {
	// Name returns a human-readable name for logs.
	Name() string
	// Send transfers one frame.
	Send(f Frame) error
	// Close releases the bus.
	Close() error
}

// Line delivers DataOut edges to a decoder until ctx is done.
type Line interface {
	Name() string
	Run(ctx context.Context, dec *Decoder)
	Close() error
}
