package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/telemetry"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("admin")

// ISessions gives the admin endpoint access to the session server
type ISessions interface {
	ActiveSessions() int
	DisconnectAll()
}

// InfoResponse is returned by GET /info
type InfoResponse struct {
	store.Info
	ActiveSessions int `json:"active_sessions"`
}

// Server is the admin HTTP endpoint of a kvs process.
//
// Routes:
//
//	GET  /healthz              liveness probe
//	GET  /metrics              metrics in the Prometheus text format
//	GET  /show                 all pairs, one "(key,value)" line each
//	GET  /info                 store and session state as JSON
//	POST /sessions/disconnect  ends all sessions
type Server struct {
	store    store.IStore
	metrics  *telemetry.Metrics
	sessions ISessions
	debug    bool
}

// NewServer creates the admin endpoint. sessions may be nil if no session server runs.
// With debug set every request is logged.
func NewServer(st store.IStore, metrics *telemetry.Metrics, sessions ISessions, debug bool) *Server {
	return &Server{store: st, metrics: metrics, sessions: sessions, debug: debug}
}

// Handler returns the routes of the admin endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		if s.debug {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}

	handle("GET /healthz", s.handleHealth)
	handle("GET /metrics", s.handleMetrics)
	handle("GET /show", s.handleShow)
	handle("GET /info", s.handleInfo)
	handle("POST /sessions/disconnect", s.handleDisconnect)
	return mux
}

// ListenAndServe serves the admin endpoint on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	Logger.Infof("Starting admin endpoint on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.metrics.WritePrometheus(w)
}

func (s *Server) handleShow(w http.ResponseWriter, _ *http.Request) {
	pairs, err := s.store.Show()
	if err != nil {
		storeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := store.WritePairs(w, pairs); err != nil {
		Logger.Warningf("Failed to write pairs: %v", err)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	info, err := s.store.Info()
	if err != nil {
		storeError(w, err)
		return
	}

	resp := InfoResponse{Info: info}
	if s.sessions != nil {
		resp.ActiveSessions = s.sessions.ActiveSessions()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		Logger.Warningf("Failed to encode info: %v", err)
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil {
		http.Error(w, "no session server", http.StatusNotFound)
		return
	}
	s.sessions.DisconnectAll()
	w.WriteHeader(http.StatusNoContent)
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrClosed) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
