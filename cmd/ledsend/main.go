// ledsend is a developer utility that sends LED v1 fast-ingress packets to
// a dimmer node over UDP, for bench testing the fast ingress path without
// standing up a full relay.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenforge/dimmerd/internal/wire"
)

var (
	target string
	values string
	rateHz float64
	count  int
)

var rootCmd = &cobra.Command{
	Use:   "ledsend",
	Short: "Send LED v1 fast-ingress packets over UDP",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&target, "target", "t", "127.0.0.1:5000", "device host:port")
	rootCmd.Flags().StringVarP(&values, "values", "v", "255,0,0,0", "comma-separated channel values, 0-255")
	rootCmd.Flags().Float64VarP(&rateHz, "rate", "r", 1, "packets per second")
	rootCmd.Flags().IntVarP(&count, "count", "n", 1, "number of packets to send (0 = until interrupted)")
}

func run(cmd *cobra.Command, args []string) error {
	frame, err := parseValues(values)
	if err != nil {
		return fmt.Errorf("parse values: %w", err)
	}

	conn, err := net.Dial("udp", target)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	packet := wire.EncodeLEDv1(frame)
	interval := time.Duration(float64(time.Second) / rateHz)

	sent := 0
	for count == 0 || sent < count {
		if _, err := conn.Write(packet); err != nil {
			return fmt.Errorf("send packet: %w", err)
		}
		sent++
		if count == 0 || sent < count {
			time.Sleep(interval)
		}
	}

	fmt.Fprintf(os.Stdout, "sent %d packet(s) to %s\n", sent, target)
	return nil
}

func parseValues(s string) ([]byte, error) {
	parts := strings.Split(s, ",")
	out := make([]byte, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", p, err)
		}
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("value %d out of 0..255 range", n)
		}
		out[i] = byte(n)
	}
	return out, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
