package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"clubsite/pkg/club"
	"clubsite/store"
)

type subscribeRequest struct {
	Email string `json:"email"`
}

// handleSubscribe registers an email for event notifications. Repeat
// subscribes are acknowledged rather than rejected, and reactivating a
// previously unsubscribed address is transparent.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireStore(w) {
		return
	}

	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.cfg.Logger.Warn("Subscribe rate limit hit", "ip", ip)
		writeError(w, http.StatusTooManyRequests, "too many subscription attempts, try again later")
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	addr := strings.ToLower(strings.TrimSpace(req.Email))
	if !isValidEmail(addr) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	existing, err := s.cfg.Store.GetSubscriberByEmail(r.Context(), addr)
	switch {
	case err == nil && existing.IsActive:
		s.sendConfirmation(existing, s.cfg.Sender.SendAlreadySubscribed)
		writeJSON(w, http.StatusOK, map[string]string{"status": "already subscribed"})
		return

	case err == nil:
		existing.IsActive = true
		existing.SubscribedAt = time.Now().UTC()
		if err := s.cfg.Store.SaveSubscriber(r.Context(), existing); err != nil {
			s.cfg.Logger.Error("Failed to reactivate subscriber", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save subscription")
			return
		}
		s.cfg.Logger.Info("Subscriber reactivated", "ip", ip)
		s.sendConfirmation(existing, s.cfg.Sender.SendReactivated)
		writeJSON(w, http.StatusOK, map[string]string{"status": "resubscribed"})
		return

	case !store.IsNotFound(err):
		s.cfg.Logger.Error("Failed to look up subscriber", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	sub := &club.Subscriber{
		ID:               uuid.NewString(),
		Email:            addr,
		SubscribedAt:     time.Now().UTC(),
		IsActive:         true,
		UnsubscribeToken: s.cfg.Store.TokenFromEmail(addr),
	}
	if err := s.cfg.Store.SaveSubscriber(r.Context(), sub); err != nil {
		s.cfg.Logger.Error("Failed to save subscriber", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	s.cfg.Logger.Info("New subscriber", "ip", ip)
	s.sendConfirmation(sub, s.cfg.Sender.SendWelcome)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

// sendConfirmation delivers a subscription email off the request path.
// Confirmation mail is best-effort: the subscription itself already stuck.
func (s *Server) sendConfirmation(sub *club.Subscriber, send func(context.Context, *club.Subscriber) error) {
	s.cfg.Tasks.Go("subscription-email", func(ctx context.Context) {
		if err := send(ctx, sub); err != nil {
			s.cfg.Logger.Warn("Failed to send subscription email", "error", err)
		}
	})
}

// handleUnsubscribe deactivates the subscriber owning the token. Unknown and
// malformed tokens are indistinguishable, and unsubscribing twice succeeds.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireStore(w) {
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token parameter")
		return
	}

	sub, err := s.cfg.Store.GetSubscriberByToken(r.Context(), token)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "unknown token")
			return
		}
		s.cfg.Logger.Error("Failed to look up token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}

	if sub.IsActive {
		sub.IsActive = false
		if err := s.cfg.Store.SaveSubscriber(r.Context(), sub); err != nil {
			s.cfg.Logger.Error("Failed to deactivate subscriber", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
			return
		}
		s.cfg.Logger.Info("Subscriber unsubscribed")
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}
