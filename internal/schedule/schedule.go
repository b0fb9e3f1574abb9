// Package schedule implements the schedule player (spec component C2): a
// bounded, time-ordered queue of future frames that is dequeued by the plan
// ingress driver and forwarded to the mode arbiter.
package schedule

import (
	"sync"

	"github.com/lumenforge/dimmerd/internal/types"
)

// DefaultCapacity is used when config does not override it.
const DefaultCapacity = 1000

// Player holds pending TimedFrames in non-decreasing ts_ms order.
type Player struct {
	mu       sync.Mutex
	capacity int
	queue    []types.TimedFrame

	lastFrame    types.TimedFrame
	everExecuted bool
}

// New creates a Player bounded to capacity frames.
func New(capacity int) *Player {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Player{capacity: capacity}
}

// AddCommand inserts a frame in sorted position. Returns false if the
// schedule is already at capacity. Duplicate or past timestamps are
// accepted; insertion is a linear scan, acceptable for the ~1000-entry
// bound this player is sized for.
func (p *Player) AddCommand(tsMs uint64, values types.ChannelVector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) >= p.capacity {
		return false
	}

	frame := types.TimedFrame{TsMs: tsMs, Values: values.Clone()}
	i := 0
	for ; i < len(p.queue); i++ {
		if p.queue[i].TsMs > tsMs {
			break
		}
	}
	p.queue = append(p.queue, types.TimedFrame{})
	copy(p.queue[i+1:], p.queue[i:])
	p.queue[i] = frame
	return true
}

// ClearSchedule discards all pending frames and the executed memory.
func (p *Player) ClearSchedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	p.lastFrame = types.TimedFrame{}
	p.everExecuted = false
}

// GetCurrentFrame pops every frame with ts_ms <= nowMs, in order, and
// retains the last one's values into out (a sticky lastFrame). Returns true
// if at least one frame was popped, or if none was due but a frame has ever
// executed (out receives the sticky lastFrame then); returns false only
// when nothing has ever executed.
func (p *Player) GetCurrentFrame(nowMs uint64) (out types.TimedFrame, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	popped := false
	i := 0
	for ; i < len(p.queue); i++ {
		if p.queue[i].TsMs > nowMs {
			break
		}
		p.lastFrame = p.queue[i]
		p.everExecuted = true
		popped = true
	}
	if i > 0 {
		p.queue = p.queue[i:]
	}

	if popped {
		return p.lastFrame, true
	}
	if p.everExecuted {
		return p.lastFrame, true
	}
	return types.TimedFrame{}, false
}

// HasValidSchedule reports whether any frame is queued or has ever executed.
func (p *Player) HasValidSchedule() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) > 0 || p.everExecuted
}

// CleanupOldCommands drops frames with ts_ms < ts without emitting them.
func (p *Player) CleanupOldCommands(ts uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := 0
	for ; i < len(p.queue); i++ {
		if p.queue[i].TsMs >= ts {
			break
		}
	}
	p.queue = p.queue[i:]
}

// Len returns the number of currently queued (not yet executed) frames.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
