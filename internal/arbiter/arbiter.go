// Package arbiter implements the mode arbiter (spec component C3): it owns
// the STATIC/PLANNED/FAST state machine and decides, on every producer
// event, whether the engine's brightness targets need to change.
package arbiter

import (
	"sync"

	"github.com/lumenforge/dimmerd/internal/types"
)

// BrightnessSink is the engine's write surface, injected so this package
// never imports internal/engine directly.
type BrightnessSink interface {
	SetChannelBrightness(channel int, level uint8)
}

// DefaultUDPTimeoutMs is the fast-mode inactivity window before falling
// back to static or planned.
const DefaultUDPTimeoutMs = 3000

// Arbiter chooses which producer's cache feeds the engine.
type Arbiter struct {
	mu sync.Mutex

	sink         BrightnessSink
	numChannels  int
	udpTimeoutMs uint64

	mode types.Mode

	staticFrame  types.ChannelVector
	plannedFrame types.ChannelVector
	fastFrame    types.ChannelVector
	hasStatic    bool
	hasPlanned   bool

	currentFrame types.ChannelVector
	lastApplied  []uint8

	lastFastMs uint64
}

// New creates an Arbiter driving sink for a device with numChannels
// channels. udpTimeoutMs is the fast-mode inactivity fallback window; 0
// selects DefaultUDPTimeoutMs.
func New(sink BrightnessSink, numChannels int, udpTimeoutMs uint64) *Arbiter {
	if udpTimeoutMs == 0 {
		udpTimeoutMs = DefaultUDPTimeoutMs
	}
	return &Arbiter{
		sink:         sink,
		numChannels:  numChannels,
		udpTimeoutMs: udpTimeoutMs,
		mode:         types.ModeStatic,
		staticFrame:  types.NewChannelVector(numChannels),
		plannedFrame: types.NewChannelVector(numChannels),
		fastFrame:    types.NewChannelVector(numChannels),
		currentFrame: types.NewChannelVector(numChannels),
	}
}

// Mode returns the currently active producer.
func (a *Arbiter) Mode() types.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// CurrentFrame returns the vector last pushed to the engine.
func (a *Arbiter) CurrentFrame() types.ChannelVector {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentFrame.Clone()
}

// SetStatic handles a static-ingress update. It always updates the static
// cache. Per the state table, this forces STATIC from STATIC or PLANNED,
// but while FAST is active a stray static message only updates the cache
// without preempting the live fast stream.
func (a *Arbiter) SetStatic(values types.ChannelVector) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.staticFrame = values.Clone()
	a.hasStatic = true

	switch a.mode {
	case types.ModeStatic:
		a.applyLocked(a.staticFrame)
	case types.ModePlanned:
		a.mode = types.ModeStatic
		a.applyLocked(a.staticFrame)
	case types.ModeFast:
		// cache updated above, no apply, no mode change
	}
}

// SetPlanned handles a plan-driver dequeue result. It always updates the
// planned cache; it only applies (and it never changes mode) when PLANNED
// is already active.
func (a *Arbiter) SetPlanned(values types.ChannelVector) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.plannedFrame = values.Clone()
	a.hasPlanned = true

	if a.mode == types.ModePlanned {
		a.applyLocked(a.plannedFrame)
	}
}

// SetFast handles a fast-ingress packet. It always updates the fast cache,
// switches to FAST from any prior mode, applies, and records the arrival
// time for the timeout watchdog.
func (a *Arbiter) SetFast(values types.ChannelVector, nowMs uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fastFrame = values.Clone()
	a.mode = types.ModeFast
	a.lastFastMs = nowMs
	a.applyLocked(a.fastFrame)
}

// ForceMode switches to m unconditionally and applies m's cache.
func (a *Arbiter) ForceMode(m types.Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = m
	a.applyLocked(a.cacheForLocked(m))
}

// CheckFastTimeout is the cooperative-tick half of the FAST state: if FAST
// is active and no fast packet has arrived within udpTimeoutMs, fall back
// to STATIC if a static frame has ever been set, else PLANNED if a planned
// frame has ever been set, else STATIC with an all-zero cache.
func (a *Arbiter) CheckFastTimeout(nowMs uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != types.ModeFast {
		return
	}
	if nowMs-a.lastFastMs < a.udpTimeoutMs {
		return
	}

	switch {
	case a.hasStatic:
		a.mode = types.ModeStatic
		a.applyLocked(a.staticFrame)
	case a.hasPlanned:
		a.mode = types.ModePlanned
		a.applyLocked(a.plannedFrame)
	default:
		a.mode = types.ModeStatic
		a.staticFrame = types.NewChannelVector(a.numChannels)
		a.applyLocked(a.staticFrame)
	}
}

func (a *Arbiter) cacheForLocked(m types.Mode) types.ChannelVector {
	switch m {
	case types.ModeStatic:
		return a.staticFrame
	case types.ModePlanned:
		return a.plannedFrame
	case types.ModeFast:
		return a.fastFrame
	default:
		return types.NewChannelVector(a.numChannels)
	}
}

// applyLocked pushes cache into the engine, quantized to 0..9, skipping the
// write entirely if the mapped vector is unchanged from the last apply.
func (a *Arbiter) applyLocked(cache types.ChannelVector) {
	levels := make([]uint8, a.numChannels)
	fitted := types.FitTo(cache, a.numChannels)
	for i, v := range fitted {
		levels[i] = quantize(v)
	}

	if levelsEqual(levels, a.lastApplied) {
		a.currentFrame = fitted
		return
	}

	for i, level := range levels {
		a.sink.SetChannelBrightness(i, level)
	}
	a.lastApplied = levels
	a.currentFrame = fitted
}

// quantize maps an 8-bit brightness value to the engine's 0..9 levels,
// truncating like Arduino's map(v, 0, 255, 0, 9) does.
func quantize(v byte) uint8 {
	return uint8(uint32(v) * 9 / 255)
}

func levelsEqual(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
