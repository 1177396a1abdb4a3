// Package mock runs a local sandbox target for trying out routines end to
// end: a work endpoint with configurable latency and failure injection, a
// health endpoint, and an overload switch that degrades the server until a
// recovery trigger clears it.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config shapes the sandbox behavior
type Config struct {
	Host          string  // default localhost
	Port          int     // default 8080
	BaseLatencyMs int     // steady-state latency of the work endpoint
	JitterMs      int     // uniform jitter added on top of the base latency
	FailureRate   float64 // 0..1 share of work requests answered with 500
	// DegradedLatencyMs replaces the base latency while overloaded
	DegradedLatencyMs int
	Logging           bool
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.BaseLatencyMs == 0 {
		c.BaseLatencyMs = 20
	}
	if c.DegradedLatencyMs == 0 {
		c.DegradedLatencyMs = 1500
	}
}

// Server is the sandbox HTTP server. Overload state is shared between the
// work handler and the health handler.
type Server struct {
	cfg        Config
	log        logrus.FieldLogger
	httpServer *http.Server

	mu         sync.Mutex
	overloaded bool
}

// NewServer creates a sandbox server for the given configuration
func NewServer(cfg Config, log logrus.FieldLogger) *Server {
	cfg.applyDefaults()
	return &Server{cfg: cfg, log: log}
}

// Handler returns the sandbox routes. Exposed separately from Start so
// tests can mount it on an ephemeral listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWork)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/overload", s.handleOverload)
	mux.HandleFunc("/recover", s.handleRecover)
	return mux
}

// Start serves until the context is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.log.WithField("addr", addr).Info("sandbox target listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Overloaded reports the current overload state
func (s *Server) Overloaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overloaded
}

func (s *Server) setOverloaded(v bool) {
	s.mu.Lock()
	s.overloaded = v
	s.mu.Unlock()
}

// handleWork serves the load target. Latency and failures follow the
// configuration; while overloaded the degraded latency applies and every
// request fails.
func (s *Server) handleWork(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	overloaded := s.Overloaded()

	delay := time.Duration(s.cfg.BaseLatencyMs) * time.Millisecond
	if overloaded {
		delay = time.Duration(s.cfg.DegradedLatencyMs) * time.Millisecond
	}
	if s.cfg.JitterMs > 0 {
		delay += time.Duration(rand.Intn(s.cfg.JitterMs)) * time.Millisecond
	}

	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}

	status := http.StatusOK
	if overloaded || (s.cfg.FailureRate > 0 && rand.Float64() < s.cfg.FailureRate) {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"ok":      status == http.StatusOK,
		"latency": delay.Milliseconds(),
	})

	if s.cfg.Logging {
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   status,
			"duration": time.Since(start),
		}).Debug("sandbox request")
	}
}

// handleHealth reports {"status":"ok"} when healthy, 503 while overloaded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.Overloaded() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleOverload switches the server into its degraded state
func (s *Server) handleOverload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.setOverloaded(true)
	s.log.Warn("sandbox overload induced")
	w.WriteHeader(http.StatusAccepted)
}

// handleRecover clears the degraded state; this is the remediation trigger
// a routine's recovery descriptor points at
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.setOverloaded(false)
	s.log.Info("sandbox recovered")
	w.WriteHeader(http.StatusOK)
}
