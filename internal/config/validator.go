package config

import (
	"fmt"
	"regexp"
	"time"
)

var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// Validate checks the configuration for correctness and fills in defaults
// for anything left zero-valued.
func Validate(cfg *Config) error {
	if cfg.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if !deviceIDPattern.MatchString(cfg.DeviceID) {
		return fmt.Errorf("device_id must match [a-zA-Z0-9_-]+")
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "dev"
	}

	if cfg.Channels <= 0 {
		cfg.Channels = 4
	}

	if err := validateEngine(&cfg.Engine, cfg.Channels); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if cfg.Schedule.Capacity <= 0 {
		cfg.Schedule.Capacity = 1000
	}

	if cfg.Arbiter.UDPTimeoutMs == 0 {
		cfg.Arbiter.UDPTimeoutMs = 3000
	}

	if cfg.Fast.Port == 0 {
		cfg.Fast.Port = 5000
	}

	if len(cfg.Time.NTPServers) == 0 {
		cfg.Time.NTPServers = []string{"pool.ntp.org", "time.nist.gov"}
	}
	if cfg.Time.SyncIntervalS <= 0 {
		cfg.Time.SyncIntervalS = 3600
	}
	if cfg.Time.HeartbeatPeriodMs == 0 {
		cfg.Time.HeartbeatPeriodMs = 5000
	}

	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = cfg.DeviceID
	}
	if cfg.MQTT.ReconnectIntervalMs == 0 {
		cfg.MQTT.ReconnectIntervalMs = 5000
	}
	if cfg.MQTT.TopicSetStatic == "" {
		cfg.MQTT.TopicSetStatic = fmt.Sprintf("dimmer/%s/set_static", cfg.DeviceID)
	}
	if cfg.MQTT.TopicSetPlan == "" {
		cfg.MQTT.TopicSetPlan = fmt.Sprintf("dimmer/%s/set_plan", cfg.DeviceID)
	}
	if cfg.MQTT.TopicHeartbeat == "" {
		cfg.MQTT.TopicHeartbeat = fmt.Sprintf("dimmer/%s/heartbeat", cfg.DeviceID)
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = 5 * time.Second
	}

	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":8080"
	}

	return nil
}

func validateEngine(e *EngineConfig, channels int) error {
	if e.HalfCycleUs == 0 {
		e.HalfCycleUs = 10000
	}
	if e.MinDelayUs == 0 {
		e.MinDelayUs = 100
	}
	if e.PulseUs == 0 {
		e.PulseUs = 500
	}
	if e.ZCDebounceUs == 0 {
		e.ZCDebounceUs = 3000
	}
	if e.ZCDebounceUs < 3000 {
		return fmt.Errorf("zc_debounce_us must be >= 3000 to reject the zero-cross pulse-width double-trigger")
	}
	if e.ZCLostTimeoutUs == 0 {
		e.ZCLostTimeoutUs = 100000
	}
	if !e.Simulate {
		if len(e.ChannelPins) != channels {
			return fmt.Errorf("channel_pins must list exactly %d pin names", channels)
		}
		if e.ZeroCrossPin == "" {
			return fmt.Errorf("zero_cross_pin is required unless simulate is set")
		}
	}
	if e.SimulateHz == 0 {
		e.SimulateHz = 50
	}
	return nil
}
