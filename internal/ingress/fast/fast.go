// Package fast implements fast ingress (spec component C6): a UDP listener
// decoding LED v1 binary frames and forwarding them to the arbiter with
// essentially no added latency.
package fast

import (
	"context"
	"log/slog"
	"net"

	"github.com/lumenforge/dimmerd/internal/types"
	"github.com/lumenforge/dimmerd/internal/wire"
)

// Sink receives an accepted fast frame. nowMs is the wall-clock arrival
// time in epoch milliseconds, recorded for the arbiter's timeout watchdog.
type Sink interface {
	SetFast(values types.ChannelVector, nowMs uint64)
}

// Clock returns the current wall-clock time in epoch milliseconds.
type Clock func() uint64

// Listener owns the UDP socket for the fast ingress path.
type Listener struct {
	sink        Sink
	numChannels int
	rawFallback bool
	clock       Clock
	logger      *slog.Logger
}

// New creates a fast-ingress Listener. rawFallback enables the
// raw-channel-vector fallback for datagrams that do not start with the
// "LED" magic; datagrams that carry the magic but fail another LED v1 check
// are dropped either way.
func New(sink Sink, numChannels int, rawFallback bool, clock Clock, logger *slog.Logger) *Listener {
	return &Listener{
		sink:        sink,
		numChannels: numChannels,
		rawFallback: rawFallback,
		clock:       clock,
		logger:      logger,
	}
}

// Run listens on addr (e.g. ":5000") until ctx is cancelled.
func (l *Listener) Run(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			l.logger.Warn("fast ingress: read error", "error", err)
			continue
		}
		l.handleDatagram(buf[:n])
	}
}

func (l *Listener) handleDatagram(payload []byte) {
	values, err := wire.DecodeLEDv1(payload)
	if err != nil {
		badMagic := len(payload) < 3 || string(payload[:3]) != "LED"
		if l.rawFallback && len(payload) >= 1 && badMagic {
			vec := wire.RawFallback(payload, l.numChannels)
			l.sink.SetFast(vec, l.clock())
			return
		}
		l.logger.Warn("fast ingress: dropped malformed datagram", "error", err)
		return
	}

	l.sink.SetFast(types.FitTo(values, l.numChannels), l.clock())
}
