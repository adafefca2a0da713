// Package health runs the diagnostics sidecar: an HTTP listener with
// liveness, readiness and Prometheus metrics endpoints.
//
//   - /healthz: liveness; a process that answers is alive.
//   - /readyz: readiness; 200 only when every registered [Check] passes.
//   - /metrics: Prometheus scrape endpoint.
//
// The assistant itself talks over audio, so this listener is the only way an
// operator can observe it without watching logs.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 3 * time.Second

// Check probes one dependency, for example a speech API or the state file
// directory. It returns nil when healthy and must respect ctx cancellation.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

type report struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Server owns the sidecar listener. Construct with [NewServer], start with
// [Server.Start] and stop with [Server.Shutdown].
type Server struct {
	addr   string
	checks []Check
	logger *slog.Logger
	srv    *http.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger for listener lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithChecks registers readiness probes, evaluated in order on each /readyz
// request.
func WithChecks(checks ...Check) Option {
	return func(s *Server) {
		s.checks = append(s.checks, checks...)
	}
}

// NewServer creates the sidecar bound to addr, e.g. "127.0.0.1:8791".
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine. Listener errors other than
// a clean shutdown are logged, not returned; the sidecar is not worth killing
// a conversation over.
func (s *Server) Start() {
	go func() {
		s.logger.Info("diagnostics listener started", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("diagnostics listener failed", "error", err)
		}
	}()
}

// Shutdown stops the listener, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]checkResult, len(s.checks))
	ready := true

	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		start := time.Now()
		err := c.Probe(ctx)
		cancel()

		res := checkResult{Status: "ok", Elapsed: time.Since(start).Round(time.Millisecond).String()}
		if err != nil {
			res.Status = "fail"
			res.Error = err.Error()
			ready = false
		}
		results[c.Name] = res
	}

	rep := report{Status: "ok", Checks: results}
	status := http.StatusOK
	if !ready {
		rep.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
