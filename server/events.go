package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"clubsite/ics"
	"clubsite/pkg/club"
	"clubsite/store"
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listEvents(w, r)
	case http.MethodPost:
		s.createEvent(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listEvents returns every event with its status recomputed against the
// current clock. Stored status values are never trusted.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	events, err := s.cfg.Store.ListEvents(r.Context())
	if err != nil {
		s.cfg.Logger.Error("Failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	now := time.Now()
	for _, ev := range events {
		ev.Status = club.ResolveStatus(ev.Date, ev.EndDate, now)
	}
	sortEventsByDate(events)

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// sortEventsByDate orders events by start time ascending, with unparseable
// dates last.
func sortEventsByDate(events []*club.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, erri := club.ParseEventTime(events[i].Date)
		tj, errj := club.ParseEventTime(events[j].Date)
		if erri != nil {
			return false
		}
		if errj != nil {
			return true
		}
		return ti.Before(tj)
	})
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) || !s.requireStore(w) {
		return
	}

	var ev club.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if ev.Slug == "" {
		ev.Slug = club.Slugify(ev.Title)
	}
	if ev.Slug == "" {
		writeError(w, http.StatusBadRequest, "title produces an empty slug")
		return
	}

	if _, err := s.cfg.Store.GetEventBySlug(r.Context(), ev.Slug); err == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("an event with slug %q already exists", ev.Slug))
		return
	} else if !store.IsNotFound(err) {
		s.cfg.Logger.Error("Failed to check slug", "slug", ev.Slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check slug")
		return
	}

	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UTC()
	ev.Status = club.ResolveStatus(ev.Date, ev.EndDate, time.Now())

	if err := s.cfg.Store.SaveEvent(r.Context(), &ev); err != nil {
		s.cfg.Logger.Error("Failed to save event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save event")
		return
	}

	s.cfg.Logger.Info("Event created", "event_id", ev.ID, "slug", ev.Slug, "ip", clientIP(r))

	// The announcement fan-out runs detached so a slow email batch never
	// delays the admin's response.
	s.fanOut(&ev)

	writeJSON(w, http.StatusCreated, &ev)
}

// fanOut announces a new event on every configured channel.
func (s *Server) fanOut(ev *club.Event) {
	jobID := s.startEmailJob(context.Background(), ev)
	if jobID != "" {
		s.cfg.Tasks.Go("email-notify", func(ctx context.Context) {
			if err := s.cfg.Dispatcher.NotifySubscribers(ctx, ev, jobID); err != nil {
				s.cfg.Logger.Error("Email fan-out failed", "event_id", ev.ID, "job_id", jobID, "error", err)
			}
		})
	}

	s.cfg.Tasks.Go("discord-announce", func(ctx context.Context) {
		if err := s.cfg.Discord.Announce(ctx, ev); err != nil {
			s.cfg.Logger.Error("Discord announcement failed", "event_id", ev.ID, "error", err)
		}
	})

	s.cfg.Tasks.Go("calendar-fanout", func(ctx context.Context) {
		s.addEventToCalendars(ctx, ev)
	})
}

// startEmailJob records a pending notification batch and returns its id, or
// "" when the record could not be created.
func (s *Server) startEmailJob(ctx context.Context, ev *club.Event) string {
	job := &club.EmailJob{
		ID:         uuid.NewString(),
		EventID:    ev.ID,
		EventTitle: ev.Title,
		Status:     club.JobPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.cfg.Store.CreateEmailJob(ctx, job); err != nil {
		s.cfg.Logger.Error("Failed to create email job", "event_id", ev.ID, "error", err)
		return ""
	}
	return job.ID
}

func (s *Server) addEventToCalendars(ctx context.Context, ev *club.Event) {
	if !s.cfg.Calendar.Enabled() {
		return
	}
	users, err := s.cfg.Store.ListCalendarUsers(ctx)
	if err != nil {
		s.cfg.Logger.Error("Failed to list calendar users", "error", err)
		return
	}
	if _, err := s.cfg.Calendar.AddEventToAll(ctx, ev, users); err != nil {
		s.cfg.Logger.Error("Calendar fan-out failed", "event_id", ev.ID, "error", err)
	}
}

// handleEventSubtree serves /api/events/{slug} and /api/events/{id}/gallery.
func (s *Server) handleEventSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/gallery"); ok {
		s.handleGallery(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireStore(w) {
		return
	}

	ev, err := s.cfg.Store.GetEventBySlug(r.Context(), rest)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.cfg.Logger.Error("Failed to load event", "slug", rest, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}

	ev.Status = club.ResolveStatus(ev.Date, ev.EndDate, time.Now())
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDownloadICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireStore(w) {
		return
	}

	id := r.URL.Query().Get("eventId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing eventId parameter")
		return
	}

	ev, err := s.cfg.Store.GetEvent(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.cfg.Logger.Error("Failed to load event", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}

	cal, err := ics.Generate(ev, s.domain)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "event date cannot be rendered as a calendar entry")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ev.Slug+".ics"))
	_, _ = w.Write([]byte(cal))
}

// handleCalendarFeed serves a subscribable calendar of upcoming and ongoing
// events.
func (s *Server) handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireStore(w) {
		return
	}

	events, err := s.cfg.Store.ListEvents(r.Context())
	if err != nil {
		s.cfg.Logger.Error("Failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	now := time.Now()
	var current []*club.Event
	for _, ev := range events {
		if st := club.ResolveStatus(ev.Date, ev.EndDate, now); st != club.StatusPast {
			ev.Status = st
			current = append(current, ev)
		}
	}
	sortEventsByDate(current)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write([]byte(ics.Feed(current, s.domain)))
}

type eventIDRequest struct {
	EventID string `json:"eventId"`
}

// handleEventInvites re-runs the email announcement batch for an event.
func (s *Server) handleEventInvites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAdmin(w, r) || !s.requireStore(w) {
		return
	}

	var req eventIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		writeError(w, http.StatusBadRequest, "missing eventId")
		return
	}

	ev, err := s.cfg.Store.GetEvent(r.Context(), req.EventID)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.cfg.Logger.Error("Failed to load event", "event_id", req.EventID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}

	jobID := s.startEmailJob(r.Context(), ev)
	if jobID == "" {
		writeError(w, http.StatusInternalServerError, "failed to create notification job")
		return
	}
	s.cfg.Tasks.Go("email-notify", func(ctx context.Context) {
		if err := s.cfg.Dispatcher.NotifySubscribers(ctx, ev, jobID); err != nil {
			s.cfg.Logger.Error("Email fan-out failed", "event_id", ev.ID, "job_id", jobID, "error", err)
		}
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// handleCalendarAddEvent pushes one event into every linked Google calendar.
func (s *Server) handleCalendarAddEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAdmin(w, r) || !s.requireStore(w) {
		return
	}
	if !s.cfg.Calendar.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Google Calendar integration not configured")
		return
	}

	var req eventIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		writeError(w, http.StatusBadRequest, "missing eventId")
		return
	}

	ev, err := s.cfg.Store.GetEvent(r.Context(), req.EventID)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.cfg.Logger.Error("Failed to load event", "event_id", req.EventID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}

	s.cfg.Tasks.Go("calendar-fanout", func(ctx context.Context) {
		s.addEventToCalendars(ctx, ev)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleSyncCalendar pushes every non-past event into every linked calendar.
func (s *Server) handleSyncCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.requireAdmin(w, r) || !s.requireStore(w) {
		return
	}
	if !s.cfg.Calendar.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "Google Calendar integration not configured")
		return
	}

	events, err := s.cfg.Store.ListEvents(r.Context())
	if err != nil {
		s.cfg.Logger.Error("Failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	now := time.Now()
	var current []*club.Event
	for _, ev := range events {
		if club.ResolveStatus(ev.Date, ev.EndDate, now) != club.StatusPast {
			current = append(current, ev)
		}
	}

	s.cfg.Tasks.Go("calendar-sync", func(ctx context.Context) {
		for _, ev := range current {
			s.addEventToCalendars(ctx, ev)
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "events": len(current)})
}
