// Package hardware abstracts the two physical primitives the dimming engine
// needs: an active-high output pin per channel, and a source of zero-cross
// edge timestamps. A periph.io-backed implementation drives real GPIO; a
// simulated implementation lets the rest of the system run and be tested
// without mains hardware attached.
package hardware

import (
	"context"
	"time"
)

// OutputPin is a single active-high digital output, one per TRIAC gate.
type OutputPin interface {
	// SetHigh drives the pin high (gate trigger).
	SetHigh() error
	// SetLow drives the pin low.
	SetLow() error
}

// ZeroCrossSource emits a timestamp each time the mains zero-cross input
// transitions (falling edge, per the reference hardware). The channel is
// closed when ctx is cancelled. Implementations must never block a send for
// longer than a few microseconds — callers rely on this to keep the
// "ISR" goroutine's scheduling latency bounded.
type ZeroCrossSource interface {
	Watch(ctx context.Context) <-chan time.Time
}

// Board bundles the channel output pins and the zero-cross source that the
// dimming engine needs to operate.
type Board interface {
	ChannelPin(channel int) OutputPin
	ZeroCross() ZeroCrossSource
	// Close releases any underlying OS/hardware resources.
	Close() error
}
