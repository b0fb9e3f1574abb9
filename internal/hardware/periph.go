package hardware

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphBoard drives real GPIO pins via periph.io. It is the production
// Board implementation, selected whenever config.EngineConfig.Simulate is
// false.
type periphBoard struct {
	pins    []gpio.PinIO
	zc      gpio.PinIO
	zeroXsrc *periphZeroCross
}

// NewPeriphBoard initializes the periph.io host drivers and resolves the
// configured channel and zero-cross pins by name (e.g. "GPIO17").
func NewPeriphBoard(channelPinNames []string, zeroCrossPinName string) (Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	pins := make([]gpio.PinIO, len(channelPinNames))
	for i, name := range channelPinNames {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("channel pin %q not found", name)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("init channel pin %q: %w", name, err)
		}
		pins[i] = p
	}

	zc := gpioreg.ByName(zeroCrossPinName)
	if zc == nil {
		return nil, fmt.Errorf("zero-cross pin %q not found", zeroCrossPinName)
	}
	if err := zc.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("init zero-cross pin %q: %w", zeroCrossPinName, err)
	}

	return &periphBoard{
		pins:     pins,
		zc:       zc,
		zeroXsrc: &periphZeroCross{pin: zc},
	}, nil
}

func (b *periphBoard) ChannelPin(channel int) OutputPin {
	return &periphOutputPin{pin: b.pins[channel]}
}

func (b *periphBoard) ZeroCross() ZeroCrossSource {
	return b.zeroXsrc
}

func (b *periphBoard) Close() error {
	for _, p := range b.pins {
		_ = p.Out(gpio.Low)
	}
	return nil
}

type periphOutputPin struct {
	pin gpio.PinIO
}

func (p *periphOutputPin) SetHigh() error { return p.pin.Out(gpio.High) }
func (p *periphOutputPin) SetLow() error  { return p.pin.Out(gpio.Low) }

// periphZeroCross polls WaitForEdge on a dedicated goroutine and forwards
// edge timestamps. periph.io's WaitForEdge blocks until an edge or timeout,
// so a short timeout is used purely to make the watch loop responsive to
// context cancellation.
type periphZeroCross struct {
	pin gpio.PinIO
}

func (z *periphZeroCross) Watch(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time, 4)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if z.pin.WaitForEdge(50 * time.Millisecond) {
				select {
				case out <- time.Now():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
