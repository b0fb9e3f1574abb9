package timehealth

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lumenforge/dimmerd/internal/types"
)

// Heartbeat is the §6 heartbeat payload.
type Heartbeat struct {
	DeviceID string `json:"device_id"`
	Uptime   int64  `json:"uptime"`
	Firmware string `json:"firmware"`
	IP       string `json:"ip"`
	Mode     string `json:"mode"`
}

// Publisher sends a heartbeat payload, e.g. over MQTT.
type Publisher interface {
	PublishHeartbeat(payload []byte) error
}

// ModeReader reads the arbiter's current mode for the heartbeat payload.
type ModeReader interface {
	Mode() types.Mode
}

// PublishOnce builds and publishes a single heartbeat payload. Used both by
// HeartbeatLoop's steady cadence and by the session supervisor's
// immediate-heartbeat-on-connect contract.
func PublishOnce(deviceID, firmware, ip string, mode ModeReader, pub Publisher, started time.Time, logger *slog.Logger) {
	hb := Heartbeat{
		DeviceID: deviceID,
		Uptime:   int64(time.Since(started).Seconds()),
		Firmware: firmware,
		IP:       ip,
		Mode:     mode.Mode().String(),
	}
	payload, err := json.Marshal(hb)
	if err != nil {
		logger.Error("heartbeat: marshal failed", "error", err)
		return
	}
	if err := pub.PublishHeartbeat(payload); err != nil {
		logger.Warn("heartbeat: publish failed", "error", err)
	}
}

// HeartbeatLoop publishes a heartbeat every period while ctx is live.
// sessionUp reports whether the broker session is currently connected;
// heartbeats are only published while it is true, per the session
// supervisor's "immediately publish a heartbeat on connect" contract and
// the steady cadence thereafter.
func HeartbeatLoop(ctx context.Context, period time.Duration, deviceID, firmware, ip string, mode ModeReader, sessionUp func() bool, pub Publisher, started time.Time, logger *slog.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sessionUp() {
				continue
			}
			PublishOnce(deviceID, firmware, ip, mode, pub, started, logger)
		}
	}
}
