// Package server exposes the daemon's health, readiness, metrics and status
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	readHeaderTimeout   = 5 * time.Second
	historyTimeout      = 5 * time.Second
)

// ReadinessChecker reports whether the daemon is accepting work.
type ReadinessChecker interface {
	Ready() bool
}

// StatusSource provides the per-cluster evaluation state.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// HistoryReader serves the audit trail.
type HistoryReader interface {
	Recent(ctx context.Context, clusterID string, limit int) ([]scaling.ScalingEvent, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHistory enables /history/{cluster}.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// Server is the HTTP surface of the daemon.
type Server struct {
	addr    string
	ready   ReadinessChecker
	status  StatusSource
	metrics http.Handler
	history HistoryReader
	logger  *logging.Logger

	srv      *http.Server
	listener net.Listener
}

// New creates a Server listening on addr once started.
func New(addr string, ready ReadinessChecker, statusSrc StatusSource, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		ready:  ready,
		status: statusSrc,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.history != nil {
		mux.HandleFunc("GET /history/{cluster}", s.handleHistory)
	}
	return mux
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err.Error())
		}
	}()
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.status.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("cluster")
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()
	events, err := s.history.Recent(ctx, id, limit)
	if err != nil {
		s.logger.Warn("history read failed", "cluster_id", id, "error", err.Error())
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}
	if events == nil {
		events = []scaling.ScalingEvent{}
	}
	s.writeJSON(w, events)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Warn("encode response failed", "error", err.Error())
	}
}
