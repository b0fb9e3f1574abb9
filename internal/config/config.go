// Package config loads and validates the dimmer node's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete dimmer node configuration.
type Config struct {
	DeviceID string       `yaml:"device_id"`
	Firmware string       `yaml:"firmware"`
	Channels int          `yaml:"channels"`
	Engine   EngineConfig `yaml:"engine"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Arbiter  ArbiterConfig  `yaml:"arbiter"`
	Plan     PlanConfig     `yaml:"plan"`
	Fast     FastConfig     `yaml:"fast"`
	Time     TimeConfig     `yaml:"time"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Health   HealthConfig   `yaml:"health"`
}

// EngineConfig carries the phase-control timing constants. Defaults match a
// 50 Hz mains half-cycle; overridable for bench testing or 60 Hz mains.
type EngineConfig struct {
	HalfCycleUs     uint32 `yaml:"half_cycle_us"`
	MinDelayUs      uint32 `yaml:"min_delay_us"`
	PulseUs         uint32 `yaml:"pulse_us"`
	ZCDebounceUs    uint32 `yaml:"zc_debounce_us"`
	ZCLostTimeoutUs uint32 `yaml:"zc_lost_timeout_us"`
	// GPIO pin names/numbers, in channel order. Interpreted by internal/hardware.
	ChannelPins   []string `yaml:"channel_pins"`
	ZeroCrossPin  string   `yaml:"zero_cross_pin"`
	Simulate      bool     `yaml:"simulate"`
	SimulateHz    float64  `yaml:"simulate_hz"`
}

// ScheduleConfig bounds the plan queue.
type ScheduleConfig struct {
	Capacity int `yaml:"capacity"`
}

// ArbiterConfig carries the fast-mode fallback timeout.
type ArbiterConfig struct {
	UDPTimeoutMs uint64 `yaml:"udp_timeout_ms"`
}

// PlanConfig controls which plan payload variants are accepted.
type PlanConfig struct {
	AcceptLegacyFormats bool `yaml:"accept_legacy_formats"`
}

// FastConfig controls the UDP fast-mode listener.
type FastConfig struct {
	Port        int  `yaml:"port"`
	RawFallback bool `yaml:"raw_fallback"`
}

// TimeConfig carries NTP server candidates, the resync interval and the
// heartbeat period.
type TimeConfig struct {
	NTPServers        []string `yaml:"ntp_servers"`
	SyncIntervalS     int      `yaml:"sync_interval_s"`
	HeartbeatPeriodMs uint64   `yaml:"heartbeat_period_ms"`
}

// MQTTConfig carries broker connection and topic settings.
type MQTTConfig struct {
	Broker                string        `yaml:"broker"`
	ClientID              string        `yaml:"client_id"`
	ReconnectIntervalMs   uint64        `yaml:"reconnect_interval_ms"`
	TopicSetStatic        string        `yaml:"topic_set_static"`
	TopicSetPlan          string        `yaml:"topic_set_plan"`
	TopicHeartbeat        string        `yaml:"topic_heartbeat"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
}

// HealthConfig controls the optional HTTP health server.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses a YAML configuration file, then validates and
// defaults it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
