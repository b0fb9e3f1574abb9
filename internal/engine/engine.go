// Package engine implements the zero-cross-synchronized, multi-channel
// TRIAC phase-control engine (spec component C1). Go has no interrupt
// service routines, so the debounce/scheduling/fire logic that would run
// in the zero-cross and timer ISRs on the reference firmware instead runs
// serially on one dedicated goroutine that never blocks except for the
// single deliberate T_PULSE sleep — the same discipline spec.md §5
// requires of the real ISRs. All state that other goroutines (the arbiter,
// the cooperative watchdog tick) touch is atomic-backed so no locks are
// needed anywhere on this hot path.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lumenforge/dimmerd/internal/hardware"
)

// Config carries the phase-control timing constants. Zero fields are not
// valid; internal/config.Validate fills in the documented defaults before
// an Engine is constructed.
type Config struct {
	HalfCycleUs     uint32
	MinDelayUs      uint32
	PulseUs         uint32
	ZCDebounceUs    uint32
	ZCLostTimeoutUs uint32
}

// Engine is the phase-control core for NumChannels output channels.
type Engine struct {
	cfg      Config
	board    hardware.Board
	channels int

	brightness []atomic.Uint32 // 0..9
	delayUs    []atomic.Uint32
	fired      []atomic.Bool

	lastZeroCrossUnixUs atomic.Int64
	zcHealthy           atomic.Bool
	emergencyShutoff    atomic.Bool
	lastFireDelayUs     atomic.Uint32
	timerArmed          atomic.Bool

	emergencyReq chan struct{}
}

// New constructs an Engine bound to board. Call Run to start the phase
// control loop before feeding it zero-cross edges.
func New(cfg Config, board hardware.Board, channels int) *Engine {
	e := &Engine{
		cfg:          cfg,
		board:        board,
		channels:     channels,
		brightness:   make([]atomic.Uint32, channels),
		delayUs:      make([]atomic.Uint32, channels),
		fired:        make([]atomic.Bool, channels),
		emergencyReq: make(chan struct{}, 1),
	}
	for i := 0; i < channels; i++ {
		e.delayUs[i].Store(cfg.HalfCycleUs + 2000)
	}
	e.zcHealthy.Store(true)
	return e
}

// Run starts the phase-control loop. It blocks until ctx is cancelled, so
// callers run it in its own goroutine (mirroring the reference firmware's
// interrupt entry points being "always on" once attached).
func (e *Engine) Run(ctx context.Context) {
	zcCh := e.board.ZeroCross().Watch(ctx)
	timerFireCh := make(chan uint64, 4)
	var armGen uint64
	var lastEdge time.Time

	arm := func() {
		e.scheduleNextFire(timerFireCh, &armGen)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-e.emergencyReq:
			e.allOff()
			armGen++ // invalidate any in-flight timer callback
			e.timerArmed.Store(false)

		case t, ok := <-zcCh:
			if !ok {
				return
			}
			e.handleZeroCross(t, &lastEdge, arm)

		case gen := <-timerFireCh:
			if gen != armGen {
				continue // stale callback from a superseded arm
			}
			e.handleTimerFire(timerFireCh, &armGen)
		}
	}
}

// handleZeroCross implements spec.md §4.1's zero-cross ISR.
func (e *Engine) handleZeroCross(now time.Time, lastEdge *time.Time, arm func()) {
	if !lastEdge.IsZero() {
		elapsed := now.Sub(*lastEdge)
		if elapsed < time.Duration(e.cfg.ZCDebounceUs)*time.Microsecond {
			return
		}
	}
	*lastEdge = now
	e.lastZeroCrossUnixUs.Store(now.UnixMicro())
	e.zcHealthy.Store(true)

	for i := range e.fired {
		e.fired[i].Store(false)
	}
	e.lastFireDelayUs.Store(0)

	if !e.emergencyShutoff.Load() {
		arm()
	}
}

// scheduleNextFire implements the scheduler shared by the zero-cross and
// timer-fire paths: find the minimum delay among unfired channels and arm a
// one-shot timer for the gap since the last fire event.
func (e *Engine) scheduleNextFire(timerFireCh chan uint64, armGen *uint64) {
	minDelay, found := e.minUnfiredDelay()
	if !found {
		*armGen++
		e.timerArmed.Store(false)
		return
	}

	last := e.lastFireDelayUs.Load()
	var deltaUs uint32
	if minDelay > last {
		deltaUs = minDelay - last
	} else {
		deltaUs = 1
	}
	if deltaUs < 10 {
		deltaUs = 10
	}

	*armGen++
	gen := *armGen
	time.AfterFunc(time.Duration(deltaUs)*time.Microsecond, func() {
		select {
		case timerFireCh <- gen:
		default:
		}
	})
	e.timerArmed.Store(true)
}

// handleTimerFire implements spec.md §4.1's timer-fire ISR.
func (e *Engine) handleTimerFire(timerFireCh chan uint64, armGen *uint64) {
	target, found := e.minUnfiredDelay()
	if !found {
		e.timerArmed.Store(false)
		return
	}

	for i := 0; i < e.channels; i++ {
		if e.fired[i].Load() {
			continue
		}
		if e.delayUs[i].Load() <= target+10 {
			_ = e.board.ChannelPin(i).SetHigh()
			e.fired[i].Store(true)
		}
	}

	time.Sleep(time.Duration(e.cfg.PulseUs) * time.Microsecond)
	e.allLow()

	e.lastFireDelayUs.Store(target)
	e.scheduleNextFire(timerFireCh, armGen)
}

// minUnfiredDelay returns the smallest delay among channels that have not
// fired this half-cycle and whose delay is within the half-cycle window.
func (e *Engine) minUnfiredDelay() (uint32, bool) {
	min := e.cfg.HalfCycleUs + 5000
	found := false
	for i := 0; i < e.channels; i++ {
		if e.fired[i].Load() {
			continue
		}
		d := e.delayUs[i].Load()
		if d < e.cfg.HalfCycleUs && d < min {
			min = d
			found = true
		}
	}
	return min, found
}

func (e *Engine) allLow() {
	for i := 0; i < e.channels; i++ {
		_ = e.board.ChannelPin(i).SetLow()
	}
}

func (e *Engine) allOff() {
	e.allLow()
}

// SetBrightness sets all channels to the same level (0..9), clamped.
func (e *Engine) SetBrightness(level uint8) {
	for i := 0; i < e.channels; i++ {
		e.SetChannelBrightness(i, level)
	}
}

// SetChannelBrightness sets one channel's brightness level (0..9), clamped.
// Safe to call from any goroutine; never blocks.
func (e *Engine) SetChannelBrightness(channel int, level uint8) {
	if channel < 0 || channel >= e.channels {
		return
	}
	if level > 9 {
		level = 9
	}
	delay := e.brightnessToDelayUs(level)
	e.brightness[channel].Store(uint32(level))
	e.delayUs[channel].Store(delay)
}

// brightnessToDelayUs is spec.md §4.1's brightness->delay mapping.
func (e *Engine) brightnessToDelayUs(level uint8) uint32 {
	if level == 0 {
		return e.cfg.HalfCycleUs + 2000
	}
	if level >= 9 {
		return e.cfg.MinDelayUs
	}
	maxDelay := e.cfg.HalfCycleUs - 1500
	x := uint32(9 - level)
	return e.cfg.MinDelayUs + x*(maxDelay-e.cfg.MinDelayUs)/9
}

// Update is the cooperative safety watchdog: call it roughly every main
// loop tick. It never touches hardware directly — it only flips the
// emergencyShutoff flag and, on loss, wakes the phase-control loop to turn
// outputs off, preserving single-writer ownership of the GPIO pins.
func (e *Engine) Update() {
	now := time.Now().UnixMicro()
	lastEdge := e.lastZeroCrossUnixUs.Load()
	elapsed := now - lastEdge

	if elapsed > int64(e.cfg.ZCLostTimeoutUs) {
		if e.zcHealthy.Load() {
			e.zcHealthy.Store(false)
			e.emergencyShutoff.Store(true)
			select {
			case e.emergencyReq <- struct{}{}:
			default:
			}
		}
	} else {
		if !e.zcHealthy.Load() || e.emergencyShutoff.Load() {
			e.zcHealthy.Store(true)
			e.emergencyShutoff.Store(false)
		}
	}
}

// IsZeroCrossHealthy reports whether a zero-cross edge has been seen within
// ZCLostTimeoutUs.
func (e *Engine) IsZeroCrossHealthy() bool { return e.zcHealthy.Load() }

// LastZeroCrossUnixUs returns the last accepted zero-cross timestamp in
// microseconds since the Unix epoch, or 0 if none has ever been seen.
func (e *Engine) LastZeroCrossUnixUs() int64 { return e.lastZeroCrossUnixUs.Load() }

// LastFireDelayUs returns the delay, in microseconds past the last
// zero-cross, at which the most recent pulse group fired.
func (e *Engine) LastFireDelayUs() uint32 { return e.lastFireDelayUs.Load() }

// ChannelDelayUs returns the currently armed delay for a channel.
func (e *Engine) ChannelDelayUs(channel int) uint32 {
	if channel < 0 || channel >= e.channels {
		return 0
	}
	return e.delayUs[channel].Load()
}

// ChannelBrightness returns a channel's current brightness level (0..9).
func (e *Engine) ChannelBrightness(channel int) uint8 {
	if channel < 0 || channel >= e.channels {
		return 0
	}
	return uint8(e.brightness[channel].Load())
}
