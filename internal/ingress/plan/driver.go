package plan

import "github.com/lumenforge/dimmerd/internal/types"

// Player is the subset of the schedule player the cooperative drive loop
// needs: dequeue the current frame and know whether anything is worth
// dequeuing at all.
type Player interface {
	GetCurrentFrame(nowMs uint64) (types.TimedFrame, bool)
	HasValidSchedule() bool
}

// ModeReader lets the drive loop check the arbiter is still in PLANNED
// mode before forwarding a dequeued frame.
type ModeReader interface {
	Mode() types.Mode
}

// PlannedSink receives the frame the drive loop dequeues.
type PlannedSink interface {
	SetPlanned(values types.ChannelVector)
}

// DriveOnce implements the cooperative drive loop's single tick: if the
// clock is valid and the arbiter is in PLANNED mode and the player has
// anything pending or previously executed, dequeue the current frame and
// forward it to the arbiter.
func DriveOnce(player Player, mode ModeReader, sink PlannedSink, clockValid bool, nowMs uint64) {
	if !clockValid {
		return
	}
	if mode.Mode() != types.ModePlanned {
		return
	}
	if !player.HasValidSchedule() {
		return
	}

	frame, ok := player.GetCurrentFrame(nowMs)
	if !ok {
		return
	}
	sink.SetPlanned(frame.Values)
}
