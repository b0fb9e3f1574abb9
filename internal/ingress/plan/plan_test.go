package plan

import (
	"io"
	"log/slog"
	"testing"

	"github.com/lumenforge/dimmerd/internal/types"
)

type fakeSchedule struct {
	commands []struct {
		ts     uint64
		values types.ChannelVector
	}
	capacity int
	cleared  int
}

func (f *fakeSchedule) AddCommand(tsMs uint64, values types.ChannelVector) bool {
	if f.capacity > 0 && len(f.commands) >= f.capacity {
		return false
	}
	f.commands = append(f.commands, struct {
		ts     uint64
		values types.ChannelVector
	}{tsMs, values.Clone()})
	return true
}

func (f *fakeSchedule) ClearSchedule() {
	f.cleared++
	f.commands = nil
}

type fakeForcer struct {
	mode    types.Mode
	forced  int
}

func (f *fakeForcer) ForceMode(m types.Mode) {
	f.mode = m
	f.forced++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(ms uint64) Clock { return func() uint64 { return ms } }

func TestHandleV2QueuesStepsAndForcesPlanned(t *testing.T) {
	sched := &fakeSchedule{}
	forcer := &fakeForcer{}

	payload := []byte(`{"format_version":2,"steps":[
		{"ts_ms":1000,"values":[10,20,30,40]},
		{"ts_ms":2000,"values":[50,60,70,80]}
	]}`)

	Handle(sched, forcer, 4, true, fixedClock(0), payload, discardLogger())

	if len(sched.commands) != 2 {
		t.Fatalf("queued %d commands, want 2", len(sched.commands))
	}
	if forcer.mode != types.ModePlanned || forcer.forced != 1 {
		t.Fatalf("forcer = %+v, want PLANNED forced once", forcer)
	}
}

func TestHandleV2RejectsShortStepButKeepsOthers(t *testing.T) {
	sched := &fakeSchedule{}
	forcer := &fakeForcer{}

	payload := []byte(`{"format_version":2,"steps":[
		{"ts_ms":1000,"values":[10,20]},
		{"ts_ms":2000,"values":[50,60,70,80]}
	]}`)

	Handle(sched, forcer, 4, true, fixedClock(0), payload, discardLogger())

	if len(sched.commands) != 1 {
		t.Fatalf("queued %d commands, want 1 (short step rejected)", len(sched.commands))
	}
	if sched.commands[0].ts != 2000 {
		t.Fatalf("queued ts = %d, want 2000", sched.commands[0].ts)
	}
}

func TestHandleUnknownFormatVersionRejected(t *testing.T) {
	sched := &fakeSchedule{}
	forcer := &fakeForcer{}

	Handle(sched, forcer, 4, true, fixedClock(0), []byte(`{"format_version":99,"steps":[]}`), discardLogger())

	if len(sched.commands) != 0 || forcer.forced != 0 {
		t.Fatal("unknown format_version must be rejected entirely")
	}
}

func TestHandleCommandsAbsoluteTimestamp(t *testing.T) {
	sched := &fakeSchedule{}
	forcer := &fakeForcer{}

	payload := []byte(`{"commands":[
		{"timestamp":10.5,"values":[1,2,3,4]}
	]}`)

	Handle(sched, forcer, 4, true, fixedClock(0), payload, discardLogger())

	if len(sched.commands) != 1 {
		t.Fatalf("queued %d commands, want 1", len(sched.commands))
	}
	if sched.commands[0].ts != 10500 {
		t.Fatalf("ts = %d, want 10500 (10.5s * 1000)", sched.commands[0].ts)
	}
}

func TestHandleCommandsRelativeChaining(t *testing.T) {
	sched := &fakeSchedule{}
	forcer := &fakeForcer{}

	payload := []byte(`{"base_timestamp":5,"commands":[
		{"duration_ms":500,"values":[1,2,3,4]},
		{"duration_ms":500,"values":[5,6,7,8]}
	]}`)

	Handle(sched, forcer, 4, true, fixedClock(0), payload, discardLogger())

	if len(sched.commands) != 2 {
		t.Fatalf("queued %d commands, want 2", len(sched.commands))
	}
	if sched.commands[0].ts != 5500 {
		t.Fatalf("first ts = %d, want 5500", sched.commands[0].ts)
	}
	if sched.commands[1].ts != 6000 {
		t.Fatalf("second ts = %d, want 6000 (chained)", sched.commands[1].ts)
	}
}

func TestHandleLegacySequenceClearsScheduleFirst(t *testing.T) {
	sched := &fakeSchedule{}
	sched.AddCommand(999, types.ChannelVector{1, 1, 1, 1})
	forcer := &fakeForcer{}

	payload := []byte(`{"sequence":[[1,2,3,4],[5,6,7,8]],"timestamp":100,"interval_ms":1000}`)

	Handle(sched, forcer, 4, true, fixedClock(0), payload, discardLogger())

	if sched.cleared != 1 {
		t.Fatal("legacy sequence must clear the schedule before queueing")
	}
	if len(sched.commands) != 2 {
		t.Fatalf("queued %d commands, want 2", len(sched.commands))
	}
	if sched.commands[0].ts != 100000 || sched.commands[1].ts != 101000 {
		t.Fatalf("timestamps = %d, %d; want 100000, 101000", sched.commands[0].ts, sched.commands[1].ts)
	}
}

func TestHandleLegacyRejectedWhenNotAccepted(t *testing.T) {
	sched := &fakeSchedule{}
	forcer := &fakeForcer{}

	payload := []byte(`{"sequence":[[1,2,3,4]],"timestamp":100,"interval_ms":1000}`)
	Handle(sched, forcer, 4, false, fixedClock(0), payload, discardLogger())

	if sched.cleared != 0 || len(sched.commands) != 0 {
		t.Fatal("legacy variant must be rejected when acceptLegacy is false")
	}
}

func TestHandleMalformedJSONDropped(t *testing.T) {
	sched := &fakeSchedule{}
	forcer := &fakeForcer{}

	Handle(sched, forcer, 4, true, fixedClock(0), []byte(`not json`), discardLogger())

	if len(sched.commands) != 0 || forcer.forced != 0 {
		t.Fatal("malformed JSON must not queue anything or force a mode")
	}
}

func TestDriveOnceGatesOnClockValidAndMode(t *testing.T) {
	sched := &fakeSchedule{}
	sink := &recordingPlannedSink{}

	sched.AddCommand(0, types.ChannelVector{9, 9, 9, 9})

	DriveOnce(&playerAdapter{sched}, &modeAdapter{types.ModeStatic}, sink, true, 1000)
	if sink.n != 0 {
		t.Fatal("must not drive while mode is not PLANNED")
	}

	DriveOnce(&playerAdapter{sched}, &modeAdapter{types.ModePlanned}, sink, false, 1000)
	if sink.n != 0 {
		t.Fatal("must not drive while the clock is invalid")
	}

	DriveOnce(&playerAdapter{sched}, &modeAdapter{types.ModePlanned}, sink, true, 1000)
	if sink.n != 1 {
		t.Fatal("should drive once clock is valid and mode is PLANNED")
	}
}

type recordingPlannedSink struct {
	n int
}

func (s *recordingPlannedSink) SetPlanned(values types.ChannelVector) { s.n++ }

type playerAdapter struct{ sched *fakeSchedule }

func (p *playerAdapter) HasValidSchedule() bool { return len(p.sched.commands) > 0 }
func (p *playerAdapter) GetCurrentFrame(nowMs uint64) (types.TimedFrame, bool) {
	if len(p.sched.commands) == 0 {
		return types.TimedFrame{}, false
	}
	c := p.sched.commands[0]
	return types.TimedFrame{TsMs: c.ts, Values: c.values}, true
}

type modeAdapter struct{ mode types.Mode }

func (m *modeAdapter) Mode() types.Mode { return m.mode }
