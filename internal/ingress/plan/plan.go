// Package plan implements plan ingress (spec component C4): parsing the
// "set_plan" payload's three accepted JSON variants and queueing the
// resulting frames on the schedule player.
package plan

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lumenforge/dimmerd/internal/types"
)

// Schedule is the subset of the schedule player that plan ingress drives.
type Schedule interface {
	AddCommand(tsMs uint64, values types.ChannelVector) bool
	ClearSchedule()
}

// ModeForcer lets plan ingress assert PLANNED mode on acceptance.
type ModeForcer interface {
	ForceMode(mode types.Mode)
}

// Clock returns the current wall-clock time in epoch milliseconds, used as
// the chaining base for relative "commands" entries that supply no
// base_timestamp.
type Clock func() uint64

type probe struct {
	FormatVersion *int            `json:"format_version"`
	Commands      json.RawMessage `json:"commands"`
	Sequence      json.RawMessage `json:"sequence"`
}

type v2Payload struct {
	Steps []v2Step `json:"steps"`
}

type v2Step struct {
	TsMs   uint64 `json:"ts_ms"`
	Values []int  `json:"values"`
}

type commandsPayload struct {
	BaseTimestamp *float64  `json:"base_timestamp"`
	Commands      []command `json:"commands"`
}

type command struct {
	Timestamp  *float64 `json:"timestamp"`
	DurationMs *uint64  `json:"duration_ms"`
	Values     []int    `json:"values"`
}

type legacyPayload struct {
	Sequence   [][]int `json:"sequence"`
	Timestamp  float64 `json:"timestamp"`
	IntervalMs uint64  `json:"interval_ms"`
}

// Handle parses a set_plan payload and queues every valid step onto sched.
// numChannels-short steps are rejected individually; the rest of a batch
// is still processed. On at least one acceptance, it force-switches the
// arbiter to PLANNED. acceptLegacy gates the "commands" and legacy
// "sequence" variants; a conformant device accepts V2 unconditionally.
func Handle(sched Schedule, forcer ModeForcer, numChannels int, acceptLegacy bool, clock Clock, raw []byte, logger *slog.Logger) {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Warn("plan ingress: malformed JSON", "error", err)
		return
	}

	switch {
	case p.FormatVersion != nil:
		if *p.FormatVersion != 2 {
			logger.Warn("plan ingress: unknown format_version", "format_version", *p.FormatVersion)
			return
		}
		handleV2(sched, forcer, numChannels, raw, logger)

	case p.Commands != nil:
		if !acceptLegacy {
			logger.Warn("plan ingress: commands variant not accepted by this build")
			return
		}
		handleCommands(sched, forcer, numChannels, clock, raw, logger)

	case p.Sequence != nil:
		if !acceptLegacy {
			logger.Warn("plan ingress: legacy sequence variant not accepted by this build")
			return
		}
		handleLegacy(sched, forcer, numChannels, raw, logger)

	default:
		logger.Warn("plan ingress: unrecognized payload, no format_version/commands/sequence key")
	}
}

func handleV2(sched Schedule, forcer ModeForcer, numChannels int, raw []byte, logger *slog.Logger) {
	var msg v2Payload
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warn("plan ingress: malformed V2 payload", "error", err)
		return
	}

	accepted := 0
	for _, step := range msg.Steps {
		values, err := toByteVectorAtLeast(step.Values, numChannels)
		if err != nil {
			logger.Warn("plan ingress: rejected V2 step", "error", err)
			continue
		}
		if sched.AddCommand(step.TsMs, values) {
			accepted++
		} else {
			logger.Warn("plan ingress: schedule at capacity, dropping step")
		}
	}
	if accepted > 0 {
		forcer.ForceMode(types.ModePlanned)
	}
}

func handleCommands(sched Schedule, forcer ModeForcer, numChannels int, clock Clock, raw []byte, logger *slog.Logger) {
	var msg commandsPayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warn("plan ingress: malformed commands payload", "error", err)
		return
	}

	runningMs := clock()
	if msg.BaseTimestamp != nil {
		runningMs = uint64(*msg.BaseTimestamp * 1000)
	}

	accepted := 0
	for _, cmd := range msg.Commands {
		var tsMs uint64
		switch {
		case cmd.Timestamp != nil:
			tsMs = uint64(*cmd.Timestamp * 1000)
			runningMs = tsMs
		case cmd.DurationMs != nil:
			runningMs += *cmd.DurationMs
			tsMs = runningMs
		default:
			logger.Warn("plan ingress: command missing timestamp and duration_ms, skipped")
			continue
		}

		values, err := toByteVectorAtLeast(cmd.Values, numChannels)
		if err != nil {
			logger.Warn("plan ingress: rejected command step", "error", err)
			continue
		}
		if sched.AddCommand(tsMs, values) {
			accepted++
		} else {
			logger.Warn("plan ingress: schedule at capacity, dropping step")
		}
	}
	if accepted > 0 {
		forcer.ForceMode(types.ModePlanned)
	}
}

func handleLegacy(sched Schedule, forcer ModeForcer, numChannels int, raw []byte, logger *slog.Logger) {
	var msg legacyPayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warn("plan ingress: malformed legacy payload", "error", err)
		return
	}

	sched.ClearSchedule()

	baseMs := uint64(msg.Timestamp * 1000)
	accepted := 0
	for i, step := range msg.Sequence {
		values, err := toByteVectorAtLeast(step, numChannels)
		if err != nil {
			logger.Warn("plan ingress: rejected legacy step", "index", i, "error", err)
			continue
		}
		tsMs := baseMs + uint64(i)*msg.IntervalMs
		if sched.AddCommand(tsMs, values) {
			accepted++
		} else {
			logger.Warn("plan ingress: schedule at capacity, dropping step")
		}
	}
	if accepted > 0 {
		forcer.ForceMode(types.ModePlanned)
	}
}

// toByteVectorAtLeast implements "accept arrays with at least N entries;
// use the first N; reject shorter ones".
func toByteVectorAtLeast(values []int, numChannels int) (types.ChannelVector, error) {
	if len(values) < numChannels {
		return nil, fmt.Errorf("step has %d values, need at least %d", len(values), numChannels)
	}
	out := make(types.ChannelVector, numChannels)
	for i := 0; i < numChannels; i++ {
		v := values[i]
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("channel %d value %d out of 0..255 range", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
