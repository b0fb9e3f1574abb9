// Package node wires the dimmer node's components together: the phase
// engine, schedule player, mode arbiter, the three ingress paths, time and
// health, and the session supervisor. It owns the process lifecycle.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lumenforge/dimmerd/internal/arbiter"
	"github.com/lumenforge/dimmerd/internal/config"
	"github.com/lumenforge/dimmerd/internal/engine"
	"github.com/lumenforge/dimmerd/internal/eventbus"
	"github.com/lumenforge/dimmerd/internal/hardware"
	"github.com/lumenforge/dimmerd/internal/ingress/fast"
	"github.com/lumenforge/dimmerd/internal/ingress/plan"
	"github.com/lumenforge/dimmerd/internal/ingress/static"
	"github.com/lumenforge/dimmerd/internal/schedule"
	"github.com/lumenforge/dimmerd/internal/session"
	"github.com/lumenforge/dimmerd/internal/timehealth"
	"github.com/lumenforge/dimmerd/internal/types"
)

// tickInterval is the cooperative main-loop period: watchdog, arbiter
// timeout check, and plan dequeue all ride this tick.
const tickInterval = 10 * time.Millisecond

// Node owns every long-lived component and the process lifecycle.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	board      hardware.Board
	engine     *engine.Engine
	player     *schedule.Player
	arbiter    *arbiter.Arbiter
	latch      *timehealth.ClockLatch
	syncer     *timehealth.Syncer
	fastIn     *fast.Listener
	sessionSup *session.Supervisor
	healthSrv  *timehealth.Server
	events     *eventbus.Bus

	started time.Time

	mu        sync.Mutex
	isRunning bool
	lastMode  types.Mode
	lastZCOK  bool
}

// New constructs every component from cfg but does not start any
// goroutines; call Run to do that.
func New(cfg *config.Config, logger *slog.Logger) (*Node, error) {
	board, err := newBoard(cfg)
	if err != nil {
		return nil, fmt.Errorf("build hardware board: %w", err)
	}

	eng := engine.New(engine.Config{
		HalfCycleUs:     cfg.Engine.HalfCycleUs,
		MinDelayUs:      cfg.Engine.MinDelayUs,
		PulseUs:         cfg.Engine.PulseUs,
		ZCDebounceUs:    cfg.Engine.ZCDebounceUs,
		ZCLostTimeoutUs: cfg.Engine.ZCLostTimeoutUs,
	}, board, cfg.Channels)

	arb := arbiter.New(eng, cfg.Channels, cfg.Arbiter.UDPTimeoutMs)
	player := schedule.New(cfg.Schedule.Capacity)
	latch := &timehealth.ClockLatch{}
	syncer := timehealth.NewSyncer(cfg.Time.NTPServers, time.Duration(cfg.Time.SyncIntervalS)*time.Second, latch, logger)

	n := &Node{
		cfg:     cfg,
		logger:  logger,
		board:   board,
		engine:  eng,
		player:  player,
		arbiter: arb,
		latch:   latch,
		syncer:  syncer,
	}

	n.fastIn = fast.New(arb, cfg.Channels, cfg.Fast.RawFallback, func() uint64 {
		return uint64(syncer.Now().UnixMilli())
	}, logger)

	n.sessionSup = session.New(session.Config{
		Broker:            cfg.MQTT.Broker,
		ClientID:          cfg.MQTT.ClientID,
		ReconnectInterval: time.Duration(cfg.MQTT.ReconnectIntervalMs) * time.Millisecond,
		ConnectTimeout:    cfg.MQTT.ConnectTimeout,
		TopicSetStatic:    cfg.MQTT.TopicSetStatic,
		TopicSetPlan:      cfg.MQTT.TopicSetPlan,
		TopicHeartbeat:    cfg.MQTT.TopicHeartbeat,
	}, n.handleStatic, n.handlePlan, logger)

	n.events = eventbus.New()
	n.lastMode = arb.Mode()
	n.lastZCOK = eng.IsZeroCrossHealthy()

	if cfg.Health.Enabled {
		n.healthSrv = timehealth.NewServer(cfg.Health.Addr, time.Now(), latch, eng, arb, n.sessionSup.IsConnected, logger).WithEvents(n.events)
	}

	return n, nil
}

func newBoard(cfg *config.Config) (hardware.Board, error) {
	if cfg.Engine.Simulate {
		return hardware.NewSimulatedBoard(cfg.Channels, cfg.Engine.SimulateHz), nil
	}
	return hardware.NewPeriphBoard(cfg.Engine.ChannelPins, cfg.Engine.ZeroCrossPin)
}

func (n *Node) handleStatic(payload []byte) {
	static.Handle(n.arbiter, n.cfg.Channels, payload, n.logger)
}

func (n *Node) handlePlan(payload []byte) {
	plan.Handle(n.player, n.arbiter, n.cfg.Channels, n.cfg.Plan.AcceptLegacyFormats, func() uint64 {
		return uint64(n.syncer.Now().UnixMilli())
	}, payload, n.logger)
}

// Run starts every component and blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.isRunning {
		n.mu.Unlock()
		return fmt.Errorf("node already running")
	}
	n.isRunning = true
	n.started = time.Now()
	n.mu.Unlock()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		n.engine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		n.syncer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := n.fastIn.Run(ctx, fmt.Sprintf(":%d", n.cfg.Fast.Port)); err != nil {
			n.logger.Error("fast ingress stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		n.sessionSup.Run(ctx, n.publishImmediateHeartbeat)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		timehealth.HeartbeatLoop(ctx, time.Duration(n.cfg.Time.HeartbeatPeriodMs)*time.Millisecond,
			n.cfg.DeviceID, n.cfg.Firmware, n.localIP(), n.arbiter, n.sessionSup.IsConnected, n.sessionSup, n.started, n.logger)
	}()

	if n.healthSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.healthSrv.Run(ctx); err != nil {
				n.logger.Error("health server stopped", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		n.cooperativeLoop(ctx)
	}()

	auditCh := make(chan eventbus.Event, 16)
	n.events.Subscribe("audit-log", auditCh)
	wg.Add(1)
	go func() {
		defer wg.Done()
		n.runAuditLog(ctx, auditCh)
	}()

	<-ctx.Done()
	wg.Wait()

	n.events.Close()
	n.mu.Lock()
	n.isRunning = false
	n.mu.Unlock()
	return n.board.Close()
}

// runAuditLog logs node events until ctx is cancelled or the bus is closed.
func (n *Node) runAuditLog(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			n.logger.Info("node event", "kind", ev.Kind, "from_mode", ev.FromMode, "to_mode", ev.ToMode)
		}
	}
}

func (n *Node) publishImmediateHeartbeat() {
	timehealth.PublishOnce(n.cfg.DeviceID, n.cfg.Firmware, n.localIP(), n.arbiter, n.sessionSup, n.started, n.logger)
}

// cooperativeLoop runs the engine watchdog, arbiter fast-timeout check, and
// the plan drive loop on a fixed tick, mirroring the single-threaded
// cooperative main loop the reference firmware runs.
func (n *Node) cooperativeLoop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := n.syncer.Now()
			n.latch.Check(now)
			nowMs := uint64(now.UnixMilli())

			n.engine.Update()
			n.arbiter.CheckFastTimeout(nowMs)
			plan.DriveOnce(n.player, n.arbiter, n.arbiter, n.latch.Valid(), nowMs)
			n.publishTransitions(nowMs)
		}
	}
}

// publishTransitions emits an event whenever mode or zero-cross health
// changes since the previous tick. Runs only from the cooperative loop
// goroutine, so lastMode/lastZCOK need no locking.
func (n *Node) publishTransitions(nowMs uint64) {
	if mode := n.arbiter.Mode(); mode != n.lastMode {
		n.events.Publish(eventbus.Event{
			Kind:     eventbus.ModeChanged,
			AtUnixMs: nowMs,
			FromMode: n.lastMode.String(),
			ToMode:   mode.String(),
		})
		n.lastMode = mode
	}

	if zcOK := n.engine.IsZeroCrossHealthy(); zcOK != n.lastZCOK {
		kind := eventbus.ZeroCrossLost
		if zcOK {
			kind = eventbus.ZeroCrossRecovered
		}
		n.events.Publish(eventbus.Event{Kind: kind, AtUnixMs: nowMs})
		n.lastZCOK = zcOK
	}
}

func (n *Node) localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
