package timehealth

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// QueryNTP sends a single SNTP v4 client request to addr (host:port, e.g.
// "pool.ntp.org:123") and returns the server's transmit timestamp. No
// library in this stack's dependency graph offers an SNTP client, so this
// talks the (tiny, stable) wire format directly over a UDP socket.
func QueryNTP(addr string, timeout time.Duration) (time.Time, error) {
	conn, err := net.DialTimeout("udp", addr, timeout)
	if err != nil {
		return time.Time{}, fmt.Errorf("dial ntp server: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return time.Time{}, fmt.Errorf("set deadline: %w", err)
	}

	req := make([]byte, 48)
	req[0] = 0x23 // LI=0, VN=4, Mode=3 (client)

	if _, err := conn.Write(req); err != nil {
		return time.Time{}, fmt.Errorf("send ntp request: %w", err)
	}

	resp := make([]byte, 48)
	n, err := conn.Read(resp)
	if err != nil {
		return time.Time{}, fmt.Errorf("read ntp response: %w", err)
	}
	if n < 48 {
		return time.Time{}, fmt.Errorf("short ntp response: %d bytes", n)
	}

	// Transmit timestamp occupies bytes 40..47: seconds since 1900, then a
	// 32-bit fraction.
	seconds := binary.BigEndian.Uint32(resp[40:44])
	fraction := binary.BigEndian.Uint32(resp[44:48])

	secsSinceUnixEpoch := int64(seconds) - ntpEpochOffset
	nanos := int64(float64(fraction) / (1 << 32) * 1e9)

	return time.Unix(secsSinceUnixEpoch, nanos).UTC(), nil
}

// SyncOnce queries each server in servers in order and returns the first
// successful result. Used both for the boot-time sync and each periodic
// resync tick.
func SyncOnce(servers []string, timeout time.Duration) (time.Time, error) {
	var lastErr error
	for _, addr := range servers {
		t, err := QueryNTP(addr, timeout)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no ntp servers configured")
	}
	return time.Time{}, lastErr
}
