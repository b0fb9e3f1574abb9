// Package wire implements the binary LED packet codecs used at the fast
// ingress boundary: v1, which devices decode directly off the UDP socket,
// and v2, the server-side relay's multi-stream format, decoded here only so
// the relay tests in relay_test.go can exercise it end to end. Devices
// never decode v2 themselves.
package wire

import (
	"errors"
	"fmt"
)

const (
	ledMagic     = "LED"
	ledV1Version = 0x01
	ledV2Version = 0x02
)

// ErrMalformed is returned by Decode functions for any payload that fails
// the format's acceptance rule. Callers on the drop path only need to know
// "reject", not which specific check failed, so the wrapped error's text is
// for logs only.
var ErrMalformed = errors.New("wire: malformed packet")

// DecodeLEDv1 parses a v1 fast-ingress datagram: "LED" magic, version 0x01,
// a channel count byte, then that many value bytes. Returns ErrMalformed
// for any payload failing the acceptance rule in the fast ingress spec.
func DecodeLEDv1(payload []byte) ([]byte, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("%w: payload too short (%d bytes)", ErrMalformed, len(payload))
	}
	if string(payload[0:3]) != ledMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	if payload[3] != ledV1Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, payload[3])
	}
	k := int(payload[4])
	if k == 0 {
		return nil, fmt.Errorf("%w: zero channel count", ErrMalformed)
	}
	if len(payload) < 5+k {
		return nil, fmt.Errorf("%w: payload shorter than declared channel count", ErrMalformed)
	}
	values := make([]byte, k)
	copy(values, payload[5:5+k])
	return values, nil
}

// EncodeLEDv1 builds a v1 datagram carrying values. Used by cmd/ledsend and
// by tests exercising the ingress/fast decode path round-trip.
func EncodeLEDv1(values []byte) []byte {
	if len(values) > 255 {
		values = values[:255]
	}
	out := make([]byte, 0, 5+len(values))
	out = append(out, ledMagic...)
	out = append(out, ledV1Version)
	out = append(out, byte(len(values)))
	out = append(out, values...)
	return out
}

// RawFallback treats payload as a raw ChannelVector for datagrams that fail
// the "LED" magic check, matching the configurable fallback described for
// fast ingress. Only called by the caller when that config knob is on.
func RawFallback(payload []byte, numChannels int) []byte {
	n := numChannels
	if len(payload) < n {
		n = len(payload)
	}
	out := make([]byte, numChannels)
	copy(out, payload[:n])
	return out
}

// LEDv2Stream is one stream entry from a v2 relay packet.
type LEDv2Stream struct {
	StreamID uint8
	Values   []byte
}

// DecodeLEDv2 parses the server-side relay's multi-stream format. Devices
// never call this in production; it exists for the relay tests in
// relay_test.go, kept here so the format has one authoritative
// implementation.
func DecodeLEDv2(payload []byte) ([]LEDv2Stream, error) {
	if len(payload) < 5 {
		return nil, fmt.Errorf("%w: payload too short (%d bytes)", ErrMalformed, len(payload))
	}
	if string(payload[0:3]) != ledMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	if payload[3] != ledV2Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, payload[3])
	}
	streamCount := int(payload[4])
	streams := make([]LEDv2Stream, 0, streamCount)

	offset := 5
	for i := 0; i < streamCount; i++ {
		if offset+2 > len(payload) {
			return nil, fmt.Errorf("%w: truncated stream header", ErrMalformed)
		}
		streamID := payload[offset]
		k := int(payload[offset+1])
		offset += 2
		if offset+k > len(payload) {
			return nil, fmt.Errorf("%w: truncated stream values", ErrMalformed)
		}
		values := make([]byte, k)
		copy(values, payload[offset:offset+k])
		offset += k
		streams = append(streams, LEDv2Stream{StreamID: streamID, Values: values})
	}
	return streams, nil
}

// AdaptV2ToDeviceMode picks the stream matching wantStreamID; if absent, it
// falls back to stream 1 (4-channel) with channel adaptation to 2-channel
// (out0 = max(R,Y), out1 = max(G,B)) when the device only has 2 channels.
// Stream layout for id 1 is [G, Y, B, R].
func AdaptV2ToDeviceMode(streams []LEDv2Stream, wantStreamID uint8) ([]byte, error) {
	for _, s := range streams {
		if s.StreamID == wantStreamID {
			return s.Values, nil
		}
	}

	for _, s := range streams {
		if s.StreamID == 1 {
			if len(s.Values) < 4 {
				return nil, fmt.Errorf("%w: stream 1 has fewer than 4 channels", ErrMalformed)
			}
			g, y, b, r := s.Values[0], s.Values[1], s.Values[2], s.Values[3]
			if wantStreamID == 2 {
				return []byte{maxByte(r, y), maxByte(g, b)}, nil
			}
			return s.Values, nil
		}
	}
	return nil, fmt.Errorf("%w: no matching stream and no stream 1 to fall back to", ErrMalformed)
}

func maxByte(a, b byte) byte {
	if a > b {
		return a
	}
	return b
}
