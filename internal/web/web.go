package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"icsanon/internal/model"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Listen string
	// CalendarPath is the anonymized output file served at /calendar.ics.
	CalendarPath string
	// Username and Password enable HTTP Basic Auth when both are set.
	Username string
	Password string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server publishes the latest anonymized calendar over HTTP in watch mode,
// so subscribers can point a calendar client at it directly.
//
// Routes:
//   - /health        always unauthenticated
//   - /calendar.ics  the last successfully written output
//   - /api/status    JSON summary of the last run
//   - /metrics       Prometheus exposition, if a Gatherer is set
type Server struct {
	opts Options
	mux  *mux.Router
	log  zerolog.Logger

	statusMu sync.RWMutex
	status   statusResponse
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	EventsIn    int       `json:"events_in"`
	EventsOut   int       `json:"events_out"`
	Pruned      int       `json:"pruned"`
}

func NewServer(opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		opts: opts,
		mux:  mux.NewRouter(),
		log:  logger,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		s.log.Info().Str("listen", s.opts.Listen).Msg("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

// RecordRun updates what /api/status reports. err is the run's result.
func (s *Server) RecordRun(rep model.Report, err error, at time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	s.status.LastRun = at
	if err != nil {
		s.status.LastError = err.Error()
		return
	}
	s.status.LastError = ""
	s.status.LastSuccess = at
	s.status.Mode = rep.Mode
	s.status.EventsIn = rep.EventsIn
	s.status.EventsOut = rep.EventsOut
	s.status.Pruned = rep.Pruned
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.opts.Listen).Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
	return s.opts.Username != "" && s.opts.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.opts.Username
	password := s.opts.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health 는 항상 무인증으로 노출한다.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icsanon", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar).Methods("GET", "HEAD")
	s.mux.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	if s.opts.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves the output file. Before the first successful run
// there is nothing to serve yet.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.opts.CalendarPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusServiceUnavailable, "calendar not generated yet")
			return
		}
		s.log.Error().Err(err).Str("path", s.opts.CalendarPath).Msg("failed to open calendar")
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	// ServeContent handles Range, HEAD and If-Modified-Since.
	http.ServeContent(w, r, "calendar.ics", info.ModTime(), f)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.statusMu.RLock()
	resp := s.status
	s.statusMu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
