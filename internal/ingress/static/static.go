// Package static implements static ingress (spec component C5): parsing
// the operator-override "set_static" payload and handing it to the
// arbiter.
package static

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lumenforge/dimmerd/internal/types"
)

// Sink receives an accepted static frame.
type Sink interface {
	SetStatic(values types.ChannelVector)
}

type payload struct {
	Values []int `json:"values"`
}

// Handle parses a set_static payload and, if valid, forwards the channel
// vector to sink, padded or truncated to numChannels. Malformed payloads
// (bad JSON, missing or empty values) are dropped and logged; they never
// change state.
func Handle(sink Sink, numChannels int, raw []byte, logger *slog.Logger) {
	var msg payload
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warn("static ingress: malformed JSON", "error", err)
		return
	}
	if len(msg.Values) == 0 {
		logger.Warn("static ingress: empty or missing values array")
		return
	}

	bytes, err := toByteVector(msg.Values)
	if err != nil {
		logger.Warn("static ingress: value out of range", "error", err)
		return
	}

	sink.SetStatic(types.FitTo(bytes, numChannels))
}

func toByteVector(values []int) ([]byte, error) {
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("channel %d value %d out of 0..255 range", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
