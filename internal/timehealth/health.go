package timehealth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumenforge/dimmerd/internal/eventbus"
)

// Status is the JSON body served on /readiness.
type Status struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Mode             string `json:"mode"`
	ClockValid       bool   `json:"clock_valid"`
	ZeroCrossHealthy bool   `json:"zero_cross_healthy"`
	SessionUp        bool   `json:"session_up"`
	LastEvent        string `json:"last_event,omitempty"`
}

// EngineHealth reads the engine's zero-cross health flag.
type EngineHealth interface {
	IsZeroCrossHealthy() bool
}

// Server serves the device's liveness/readiness/metrics endpoints,
// grounded on the same three-endpoint convention used elsewhere in this
// stack's health checks.
type Server struct {
	addr      string
	started   time.Time
	latch     *ClockLatch
	engine    EngineHealth
	mode      ModeReader
	sessionUp func() bool
	logger    *slog.Logger

	events     *eventbus.Latest
	httpServer *http.Server
}

// WithEvents attaches a Latest cell from bus so /readiness can report the
// most recent node event without risking backpressure on the publisher.
func (s *Server) WithEvents(bus *eventbus.Bus) *Server {
	s.events = bus.Latest()
	return s
}

// NewServer builds a health Server bound to addr (e.g. ":8080").
func NewServer(addr string, started time.Time, latch *ClockLatch, engine EngineHealth, mode ModeReader, sessionUp func() bool, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		started:   started,
		latch:     latch,
		engine:    engine,
		mode:      mode,
		sessionUp: sessionUp,
		logger:    logger,
	}
}

func (s *Server) status() Status {
	clockValid := s.latch.Valid()
	zcHealthy := s.engine.IsZeroCrossHealthy()
	sessionUp := s.sessionUp()

	status := "healthy"
	if !zcHealthy {
		status = "unhealthy"
	} else if !clockValid || !sessionUp {
		status = "degraded"
	}

	st := Status{
		Status:           status,
		UptimeSeconds:    int64(time.Since(s.started).Seconds()),
		Mode:             s.mode.Mode().String(),
		ClockValid:       clockValid,
		ZeroCrossHealthy: zcHealthy,
		SessionUp:        sessionUp,
	}

	if s.events != nil {
		if ev, ok := s.events.Get(); ok {
			st.LastEvent = ev.Kind.String()
		}
	}

	return st
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if st.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(st)
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "dimmerd_uptime_seconds %d\n", st.UptimeSeconds)
	fmt.Fprintf(w, "dimmerd_clock_valid %d\n", boolToInt(st.ClockValid))
	fmt.Fprintf(w, "dimmerd_zero_cross_healthy %d\n", boolToInt(st.ZeroCrossHealthy))
	fmt.Fprintf(w, "dimmerd_session_up %d\n", boolToInt(st.SessionUp))
	fmt.Fprintf(w, "dimmerd_mode{mode=%q} 1\n", st.Mode)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.liveness)
	mux.HandleFunc("/readiness", s.readiness)
	mux.HandleFunc("/metrics", s.metrics)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("health server starting", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
