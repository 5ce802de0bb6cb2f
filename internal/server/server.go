// Package server exposes run results over HTTP: Prometheus metrics, the
// latest or a stored summary as JSON, its timing chart and a trigger for a
// new run.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/metrics"
	"github.com/fxnlabs/perfsuite/internal/report"
	"github.com/fxnlabs/perfsuite/internal/store"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

// Runner executes a run. *suite.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context) (*suite.Summary, error)
}

// Server serves the results of runs. Only one run executes at a time.
type Server struct {
	addr   string
	runner Runner
	store  *store.Store
	logger *zap.Logger

	running sync.Mutex
	srv     *http.Server
	ln      net.Listener
}

// New returns a server for addr that serves the runs in st and saves the
// runs it triggers there.
func New(addr string, runner Runner, st *store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{addr: addr, runner: runner, store: st, logger: logger.Named("server")}
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Handler routes every endpoint through the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /results", metrics.Middleware(http.HandlerFunc(s.handleResults), "/results"))
	mux.Handle("GET /runs", metrics.Middleware(http.HandlerFunc(s.handleRuns), "/runs"))
	mux.Handle("GET /chart", metrics.Middleware(http.HandlerFunc(s.handleChart), "/chart"))
	mux.Handle("POST /run", metrics.Middleware(http.HandlerFunc(s.handleRun), "/run"))
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("report server listening", zap.String("address", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("report server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the address the server listens on once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// summary returns the run named by the id query parameter, or the latest.
func (s *Server) summary(r *http.Request) (*suite.Summary, int, error) {
	var sum *suite.Summary
	var err error
	if id := r.URL.Query().Get("id"); id != "" {
		sum, err = s.store.Get(id)
	} else {
		sum, err = s.store.Latest()
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, http.StatusNotFound, err
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return sum, http.StatusOK, nil
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", code), zap.Error(err))
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	sum, code, err := s.summary(r)
	if err != nil {
		s.writeError(w, code, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sum, code, err := s.summary(r)
	if err != nil {
		s.writeError(w, code, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderChart(w, sum); err != nil {
		s.logger.Warn("failed to render chart", zap.Error(err))
	}
}

// handleRun executes a run synchronously and stores it.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.running.TryLock() {
		s.writeError(w, http.StatusConflict, errors.New("a run is already in progress"))
		return
	}
	defer s.running.Unlock()

	sum, err := s.runner.Run(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.store.Save(sum); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}
