package hardware

import (
	"context"
	"sync"
	"time"
)

// SimulatedBoard runs the engine without real hardware: it emits zero-cross
// edges on a ticker at the configured mains frequency and records output
// pin state in memory. Used for host-side development and CI.
type SimulatedBoard struct {
	pins []*simulatedPin
	freq float64
	zc   ZeroCrossSource
}

// NewSimulatedBoard creates a board with the given channel count and mains
// frequency (Hz; a "half-cycle" edge fires at 2x this rate).
func NewSimulatedBoard(channels int, freqHz float64) *SimulatedBoard {
	if freqHz <= 0 {
		freqHz = 50
	}
	pins := make([]*simulatedPin, channels)
	for i := range pins {
		pins[i] = &simulatedPin{}
	}
	b := &SimulatedBoard{pins: pins, freq: freqHz}
	b.zc = &simulatedZeroCross{period: time.Duration(float64(time.Second) / (2 * freqHz))}
	return b
}

// WithZeroCross replaces the board's zero-cross source, e.g. with a
// ManualZeroCross for deterministic tests.
func (b *SimulatedBoard) WithZeroCross(zc ZeroCrossSource) *SimulatedBoard {
	b.zc = zc
	return b
}

func (b *SimulatedBoard) ChannelPin(channel int) OutputPin {
	return b.pins[channel]
}

func (b *SimulatedBoard) ZeroCross() ZeroCrossSource {
	return b.zc
}

func (b *SimulatedBoard) Close() error { return nil }

// PinState reports whether channel's output is currently driven high.
func (b *SimulatedBoard) PinState(channel int) bool {
	return b.pins[channel].isHigh()
}

type simulatedPin struct {
	mu   sync.RWMutex
	high bool
}

func (p *simulatedPin) SetHigh() error {
	p.mu.Lock()
	p.high = true
	p.mu.Unlock()
	return nil
}

func (p *simulatedPin) SetLow() error {
	p.mu.Lock()
	p.high = false
	p.mu.Unlock()
	return nil
}

func (p *simulatedPin) isHigh() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.high
}

// simulatedZeroCross emits one edge per half-cycle at a fixed period.
type simulatedZeroCross struct {
	period time.Duration
}

func (z *simulatedZeroCross) Watch(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time, 4)
	go func() {
		defer close(out)
		ticker := time.NewTicker(z.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ManualZeroCross is a test double that only emits edges when Fire is
// called, for deterministic property tests that need exact control over
// half-cycle timing (used by internal/engine's tests).
type ManualZeroCross struct {
	ch chan time.Time
}

// NewManualZeroCross creates a zero-cross source under full test control.
func NewManualZeroCross() *ManualZeroCross {
	return &ManualZeroCross{ch: make(chan time.Time, 16)}
}

// Watch returns the channel Fire writes to. ctx is ignored and the channel
// is never closed.
func (m *ManualZeroCross) Watch(ctx context.Context) <-chan time.Time {
	return m.ch
}

// Fire injects a zero-cross edge at the given time.
func (m *ManualZeroCross) Fire(t time.Time) {
	m.ch <- t
}
