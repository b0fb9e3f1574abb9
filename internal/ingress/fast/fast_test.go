package fast

import (
	"io"
	"log/slog"
	"testing"

	"github.com/lumenforge/dimmerd/internal/types"
	"github.com/lumenforge/dimmerd/internal/wire"
)

type recordingSink struct {
	got  types.ChannelVector
	nowMs uint64
	n    int
}

func (s *recordingSink) SetFast(values types.ChannelVector, nowMs uint64) {
	s.got = values.Clone()
	s.nowMs = nowMs
	s.n++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(ms uint64) Clock {
	return func() uint64 { return ms }
}

func TestHandleDatagramAcceptsValidV1(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, 4, false, fixedClock(1234), discardLogger())

	packet := wire.EncodeLEDv1([]byte{1, 2, 3, 4})
	l.handleDatagram(packet)

	if sink.n != 1 {
		t.Fatalf("sink invoked %d times, want 1", sink.n)
	}
	if sink.nowMs != 1234 {
		t.Fatalf("nowMs = %d, want 1234", sink.nowMs)
	}
	want := types.ChannelVector{1, 2, 3, 4}
	if !sink.got.Equal(want) {
		t.Fatalf("got %v, want %v", sink.got, want)
	}
}

func TestHandleDatagramPadsShortV1(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, 4, false, fixedClock(1), discardLogger())

	packet := wire.EncodeLEDv1([]byte{9, 9})
	l.handleDatagram(packet)

	want := types.ChannelVector{9, 9, 0, 0}
	if !sink.got.Equal(want) {
		t.Fatalf("got %v, want %v", sink.got, want)
	}
}

func TestHandleDatagramDropsMalformedWithoutFallback(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, 4, false, fixedClock(1), discardLogger())

	l.handleDatagram([]byte{'X', 'X', 'X', 1, 2, 3, 4})
	if sink.n != 0 {
		t.Fatal("malformed datagram without fallback must not invoke the sink")
	}
}

func TestHandleDatagramUsesRawFallbackWhenEnabled(t *testing.T) {
	sink := &recordingSink{}
	l := New(sink, 3, true, fixedClock(1), discardLogger())

	l.handleDatagram([]byte{5, 6})
	want := types.ChannelVector{5, 6, 0}
	if !sink.got.Equal(want) {
		t.Fatalf("got %v, want %v", sink.got, want)
	}
}
