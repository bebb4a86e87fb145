package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"homewidget/internal/config"
	"homewidget/internal/dailylog"
	appLog "homewidget/internal/log"
	"homewidget/internal/model"
	"homewidget/internal/widget"
)

// Server serves the widget snapshot as JSON plus a minimal agenda page used
// for PNG captures.
type Server struct {
	cfg *config.Config
	svc *widget.Service
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *widget.Service) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// HTTPServer wraps Handler in an http.Server bound to cfg.Listen.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials disable it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="homewidget", charset="UTF-8"`)
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
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("/api/agenda", s.handleAgenda)
	s.mux.HandleFunc("/api/days", s.handleDays)
	s.mux.HandleFunc("/api/weather", s.handleWeather)
	s.mux.HandleFunc("/api/device", s.handleDevice)
	s.mux.HandleFunc("/api/dailylog", s.handleDailyLog)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/agenda", s.handleAgendaPage)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// snapshot returns the latest snapshot, refreshing once if there is none.
func (s *Server) snapshot(ctx context.Context) *widget.Snapshot {
	if snap := s.svc.Last(); snap != nil {
		return snap
	}
	return s.svc.Refresh(ctx)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(r.Context()))
}

// agendaResponse is the JSON response shape for /api/agenda.
type agendaResponse struct {
	Hours       []string      `json:"hours"`
	Buckets     model.Buckets `json:"buckets"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Error       string        `json:"error,omitempty"`
}

func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	snap := s.snapshot(r.Context())
	writeJSON(w, http.StatusOK, agendaResponse{
		Hours:       snap.Hours,
		Buckets:     snap.Agenda,
		GeneratedAt: snap.GeneratedAt,
		Error:       snap.CalendarError,
	})
}

func (s *Server) handleDays(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(r.Context()).Days)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(r.Context()).Weather)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(r.Context()).Device)
}

// dailyLogRequest updates one field (Label/Value) or several (Values).
type dailyLogRequest struct {
	Label  string            `json:"label"`
	Value  string            `json:"value"`
	Values map[string]string `json:"values"`
}

// handleDailyLog returns the log history on GET and updates today's entry on
// POST. A successful update triggers a refresh so the snapshot reflects it.
func (s *Server) handleDailyLog(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	ctx := r.Context()

	dl := s.svc.DailyLog()
	if dl == nil {
		writeError(w, http.StatusNotFound, "daily log not configured")
		return
	}

	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.snapshot(ctx).DailyLog)
		return
	}

	var req dailyLogRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	values := req.Values
	if values == nil {
		values = map[string]string{}
	}
	if req.Label != "" {
		values[req.Label] = req.Value
	}
	if len(values) == 0 {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	entry, err := dl.Submit(ctx, s.svc.Now(), values)
	switch {
	case errors.Is(err, dailylog.ErrUnknownField):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		appLog.Error("api dailylog: update failed", err)
		writeError(w, http.StatusInternalServerError, "failed to update daily log")
		return
	}

	s.svc.Refresh(ctx)
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Refresh(r.Context()))
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	http.ServeFile(w, r, s.cfg.Capture.Output)
}

// allowMethods writes 405 and returns false unless r uses one of methods.
func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
