package server

import (
	"net/http"
)

// handleGoogleAuth runs both legs of the OAuth flow on one route: a request
// without a code redirects to the Google consent page, and the callback with
// a code links the account and bounces back to the site.
func (s *Server) handleGoogleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.cfg.Calendar.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Google Calendar integration not configured")
		return
	}
	if !s.requireStore(w) {
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, s.cfg.Calendar.AuthURL("calendar-link"), http.StatusFound)
		return
	}

	user, err := s.cfg.Calendar.ExchangeCode(r.Context(), code)
	if err != nil {
		s.cfg.Logger.Error("OAuth code exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not link Google account")
		return
	}

	if err := s.cfg.Store.SaveCalendarUser(r.Context(), user); err != nil {
		s.cfg.Logger.Error("Failed to save calendar user", "email", user.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "could not save linked account")
		return
	}

	s.cfg.Logger.Info("Google account linked", "email", user.Email)
	http.Redirect(w, r, s.cfg.AppURL+"/?calendar=linked", http.StatusFound)
}
