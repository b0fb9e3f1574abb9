package timehealth

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lumenforge/dimmerd/internal/eventbus"
	"github.com/lumenforge/dimmerd/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEngineHealth struct{ healthy bool }

func (f fakeEngineHealth) IsZeroCrossHealthy() bool { return f.healthy }

type fakeModeReader struct{ mode types.Mode }

func (f fakeModeReader) Mode() types.Mode { return f.mode }

func TestStatusHealthyWhenEverythingUp(t *testing.T) {
	latch := &ClockLatch{}
	latch.Check(TimeValidEpoch.Add(time.Hour))

	s := NewServer(":0", time.Now(), latch, fakeEngineHealth{healthy: true}, fakeModeReader{mode: types.ModeStatic}, func() bool { return true }, discardLogger())

	st := s.status()
	if st.Status != "healthy" {
		t.Fatalf("status = %q, want healthy", st.Status)
	}
}

func TestStatusUnhealthyWhenZeroCrossLost(t *testing.T) {
	latch := &ClockLatch{}
	s := NewServer(":0", time.Now(), latch, fakeEngineHealth{healthy: false}, fakeModeReader{mode: types.ModeStatic}, func() bool { return true }, discardLogger())

	st := s.status()
	if st.Status != "unhealthy" {
		t.Fatalf("status = %q, want unhealthy", st.Status)
	}
}

func TestStatusDegradedWhenClockInvalidOrSessionDown(t *testing.T) {
	latch := &ClockLatch{}
	s := NewServer(":0", time.Now(), latch, fakeEngineHealth{healthy: true}, fakeModeReader{mode: types.ModeStatic}, func() bool { return false }, discardLogger())

	st := s.status()
	if st.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", st.Status)
	}
}

func TestStatusSurfacesLastEventFromBus(t *testing.T) {
	latch := &ClockLatch{}
	latch.Check(TimeValidEpoch.Add(time.Hour))

	bus := eventbus.New()
	defer bus.Close()

	s := NewServer(":0", time.Now(), latch, fakeEngineHealth{healthy: true}, fakeModeReader{mode: types.ModeStatic}, func() bool { return true }, discardLogger()).WithEvents(bus)

	bus.Publish(eventbus.Event{Kind: eventbus.ModeChanged, ToMode: "FAST"})

	st := s.status()
	if st.LastEvent != "mode_change" {
		t.Fatalf("last_event = %q, want mode_change", st.LastEvent)
	}
}

func TestStatusLastEventEmptyWithoutSubscription(t *testing.T) {
	latch := &ClockLatch{}
	latch.Check(TimeValidEpoch.Add(time.Hour))

	s := NewServer(":0", time.Now(), latch, fakeEngineHealth{healthy: true}, fakeModeReader{mode: types.ModeStatic}, func() bool { return true }, discardLogger())

	st := s.status()
	if st.LastEvent != "" {
		t.Fatalf("last_event = %q, want empty when no bus was wired", st.LastEvent)
	}
}
