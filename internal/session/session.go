// Package session implements the session supervisor (spec component C8):
// a fixed-interval-reconnect MQTT client maintaining subscriptions to the
// device's static and plan topics, and the heartbeat publish path.
//
// Reconnection uses a fixed retry interval, not exponential backoff, so the
// supervisor manages its own reconnect loop instead of
// paho's built-in auto-reconnect (which backs off up to a configured max).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// PayloadHandler processes one received message payload.
type PayloadHandler func(payload []byte)

// Config carries the broker connection and topic settings the supervisor
// needs; internal/config.MQTTConfig is adapted into this at wiring time.
type Config struct {
	Broker              string
	ClientID            string
	ReconnectInterval   time.Duration
	ConnectTimeout      time.Duration
	TopicSetStatic      string
	TopicSetPlan        string
	TopicHeartbeat      string
}

// Supervisor maintains one MQTT session with fixed-interval reconnect.
type Supervisor struct {
	cfg    Config
	client mqtt.Client
	logger *slog.Logger

	onStatic PayloadHandler
	onPlan   PayloadHandler

	connected atomic.Bool
	lostCh    chan struct{}
}

// New builds a Supervisor. onStatic and onPlan are invoked (on the paho
// callback goroutine) for messages on the static/plan topics.
func New(cfg Config, onStatic, onPlan PayloadHandler, logger *slog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, onStatic: onStatic, onPlan: onPlan, logger: logger}
}

// IsConnected reports whether the broker session is currently up.
func (s *Supervisor) IsConnected() bool { return s.connected.Load() }

// PublishHeartbeat publishes payload to the heartbeat topic. Implements
// internal/timehealth.Publisher.
func (s *Supervisor) PublishHeartbeat(payload []byte) error {
	if !s.IsConnected() {
		return fmt.Errorf("mqtt session not connected")
	}
	token := s.client.Publish(s.cfg.TopicHeartbeat, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("heartbeat publish timeout")
	}
	return token.Error()
}

// Run maintains the session until ctx is cancelled: connect, subscribe,
// publish an immediate heartbeat, then block until the connection drops or
// ctx ends, waiting ReconnectInterval before each retry. Auto-reconnect is
// disabled on the client itself — this loop owns the fixed-interval retry
// policy directly.
func (s *Supervisor) Run(ctx context.Context, immediateHeartbeat func()) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connectAndSubscribe(immediateHeartbeat); err != nil {
			s.logger.Warn("session: connect failed, will retry", "error", err, "retry_in", s.cfg.ReconnectInterval)
			s.connected.Store(false)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ReconnectInterval):
				continue
			}
		}

		s.waitForDisconnect(ctx)
		if s.client != nil {
			s.client.Disconnect(250)
		}
		s.connected.Store(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectInterval):
		}
	}
}

func (s *Supervisor) connectAndSubscribe(immediateHeartbeat func()) error {
	lost := make(chan struct{}, 1)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.logger.Warn("session: connection lost", "error", err)
		select {
		case lost <- struct{}{}:
		default:
		}
	}

	s.client = mqtt.NewClient(opts)
	s.lostCh = lost

	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("connect timeout after %s", s.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}

	if err := s.subscribe(s.cfg.TopicSetStatic, s.onStatic); err != nil {
		s.client.Disconnect(250)
		return fmt.Errorf("subscribe %s: %w", s.cfg.TopicSetStatic, err)
	}
	if err := s.subscribe(s.cfg.TopicSetPlan, s.onPlan); err != nil {
		s.client.Disconnect(250)
		return fmt.Errorf("subscribe %s: %w", s.cfg.TopicSetPlan, err)
	}

	s.connected.Store(true)
	s.logger.Info("session: connected", "broker", s.cfg.Broker, "client_id", s.cfg.ClientID)

	immediateHeartbeat()
	return nil
}

func (s *Supervisor) subscribe(topic string, handler PayloadHandler) error {
	token := s.client.Subscribe(topic, 1, func(c mqtt.Client, m mqtt.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

func (s *Supervisor) waitForDisconnect(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-s.lostCh:
	}
}
