package node

import (
	"io"
	"log/slog"
	"testing"

	"github.com/lumenforge/dimmerd/internal/config"
	"github.com/lumenforge/dimmerd/internal/eventbus"
	"github.com/lumenforge/dimmerd/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		DeviceID: "dimmer-test",
		Engine:   config.EngineConfig{Simulate: true},
		MQTT:     config.MQTTConfig{Broker: "tcp://localhost:1883"},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

// TestNewWiresAllComponents exercises the constructor only: it must build
// every component (simulated hardware, engine, arbiter, schedule player,
// syncer, ingress, session, event bus) without starting any goroutines or
// touching the network, and leave the health server unbuilt by default.
func TestNewWiresAllComponents(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if n.engine == nil || n.arbiter == nil || n.player == nil || n.sessionSup == nil {
		t.Fatal("New must fully populate the node's components")
	}
	if n.events == nil {
		t.Fatal("New must construct the event bus even when nothing has subscribed yet")
	}
	if n.healthSrv != nil {
		t.Fatal("health server should be nil when health.enabled is unset (default false)")
	}
}

// TestPublishTransitionsEmitsOnModeChange verifies the cooperative loop's
// event hook fires exactly once per mode transition, not once per tick.
func TestPublishTransitionsEmitsOnModeChange(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ch := make(chan eventbus.Event, 4)
	n.events.Subscribe("test", ch)

	n.arbiter.SetFast(types.ChannelVector{1: 200}, 0)
	n.publishTransitions(1000)
	n.publishTransitions(1010) // no change, must not emit again

	select {
	case ev := <-ch:
		if ev.Kind != eventbus.ModeChanged {
			t.Fatalf("kind = %v, want ModeChanged", ev.Kind)
		}
		if ev.ToMode != "FAST" {
			t.Fatalf("to_mode = %q, want FAST", ev.ToMode)
		}
	default:
		t.Fatal("expected a mode_change event")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %v on unchanged mode", ev)
	default:
	}
}

func TestNewEnablesHealthServerWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Health.Enabled = true
	n, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if n.healthSrv == nil {
		t.Fatal("expected a health server when health.enabled is true")
	}
}
