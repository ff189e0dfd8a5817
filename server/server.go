// Package server exposes the HTTP API: event CRUD, subscriptions, calendar
// integration, and gallery uploads.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"clubsite/discord"
	"clubsite/email"
	"clubsite/gcal"
	"clubsite/media"
	"clubsite/store"
	"clubsite/tasks"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Config collects the server's dependencies. Optional integrations may be
// nil-safe disabled values but never nil pointers.
type Config struct {
	Store      *store.Store
	Sender     *email.Sender
	Dispatcher *email.Dispatcher
	Discord    *discord.Notifier
	Calendar   *gcal.Integrator
	Gallery    *media.Gallery
	Tasks      *tasks.Runner
	Logger     *slog.Logger

	AdminKey string
	BaseURL  string
	AppURL   string
}

// Server routes API requests to the storage and integration layers.
type Server struct {
	cfg     Config
	domain  string // ICS UID scope, taken from BaseURL's host
	limiter *rateLimiter
}

// New creates the API server.
func New(cfg Config) *Server {
	domain := "club.local"
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		domain = u.Hostname()
	}
	return &Server{
		cfg:     cfg,
		domain:  domain,
		limiter: newRateLimiter(5, time.Hour),
	}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/events/", s.handleEventSubtree)
	mux.HandleFunc("/api/subscribe", s.handleSubscribe)
	mux.HandleFunc("/api/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("/api/download-ics", s.handleDownloadICS)
	mux.HandleFunc("/api/calendar.ics", s.handleCalendarFeed)
	mux.HandleFunc("/api/event-invites", s.handleEventInvites)
	mux.HandleFunc("/api/calendar/add-event", s.handleCalendarAddEvent)
	mux.HandleFunc("/api/sync-calendar", s.handleSyncCalendar)
	mux.HandleFunc("/api/auth/google", s.handleGoogleAuth)

	// Locally stored gallery images are served straight from disk; bucket
	// images carry public storage.googleapis.com URLs instead.
	if dir := s.cfg.Gallery.LocalDir(); dir != "" {
		mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(dir))))
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireStore answers 503 when no document store backend is configured.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.cfg.Store.Enabled() {
		return true
	}
	writeError(w, http.StatusServiceUnavailable, "storage not configured")
	return false
}

// requireAdmin checks the admin key header. When no key is configured the
// check is skipped, which keeps local development frictionless.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.AdminKey == "" {
		return true
	}
	got := r.Header.Get("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminKey)) == 1 {
		return true
	}
	s.cfg.Logger.Warn("Rejected admin request", "path", r.URL.Path, "ip", clientIP(r))
	writeError(w, http.StatusUnauthorized, "invalid admin key")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// rateLimiter caps requests per IP inside a sliding window.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	max     int
	window  time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		clients: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	var recent []time.Time
	for _, ts := range rl.clients[ip] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= rl.max {
		rl.clients[ip] = recent
		return false
	}
	rl.clients[ip] = append(recent, now)
	return true
}
