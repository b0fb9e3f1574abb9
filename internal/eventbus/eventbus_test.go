package eventbus

import "testing"

func TestSubscribeDropsOnFullChannel(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan Event, 1)
	b.Subscribe("sink", ch)

	b.Publish(Event{Kind: ModeChanged, ToMode: "FAST"})
	b.Publish(Event{Kind: ModeChanged, ToMode: "STATIC"}) // buffer full, must drop

	select {
	case ev := <-ch:
		if ev.ToMode != "FAST" {
			t.Fatalf("got %q, want the first published event to survive", ev.ToMode)
		}
	default:
		t.Fatal("expected the first event to have been delivered")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %v, buffer should have dropped it", ev)
	default:
	}
}

func TestLatestKeepsOnlyNewestEvent(t *testing.T) {
	b := New()
	defer b.Close()

	latest := b.Latest()

	b.Publish(Event{Kind: ZeroCrossLost})
	b.Publish(Event{Kind: ZeroCrossRecovered})

	got, ok := latest.Get()
	if !ok {
		t.Fatal("expected an event to be available")
	}
	if got.Kind != ZeroCrossRecovered {
		t.Fatalf("got %v, want the latest event ZeroCrossRecovered", got.Kind)
	}
}

func TestLatestEmptyBeforeAnyPublish(t *testing.T) {
	b := New()
	defer b.Close()

	latest := b.Latest()
	if _, ok := latest.Get(); ok {
		t.Fatal("expected no event before the first Publish")
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	b := New()
	ch := make(chan Event, 1)
	b.Subscribe("sink", ch)
	b.Close()

	b.Publish(Event{Kind: ModeChanged})

	select {
	case <-ch:
		t.Fatal("closed bus must not deliver events")
	default:
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		ModeChanged:        "mode_change",
		ZeroCrossLost:      "zero_cross_lost",
		ZeroCrossRecovered: "zero_cross_recovered",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
