// Package store provides typed persistence for the service's domain records
// on top of the document store adapter.
package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clubsite/docstore"
	"clubsite/pkg/club"
)

// Collection names shared by every backend.
const (
	colEvents        = "events"
	colSubscribers   = "subscribers"
	colCalendarUsers = "calendar_users"
	colEmailJobs     = "email_notifications"
)

// ErrUnavailable is returned when no document store backend is configured.
var ErrUnavailable = errors.New("store: no document store configured")

// Store handles persistence of events, subscribers, linked calendar
// accounts, and notification job records.
type Store struct {
	db     docstore.Store
	logger *slog.Logger
	salt   []byte
}

// New creates a store. db may be nil when no backend is configured; every
// method then returns ErrUnavailable so routes can degrade to 503.
func New(db docstore.Store, salt []byte, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, salt: salt}
}

// Enabled reports whether a document store backend is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

func (s *Store) ready() error {
	if !s.Enabled() {
		return ErrUnavailable
	}
	return nil
}

// TokenFromEmail derives a deterministic, unguessable unsubscribe token from
// an email address. HMAC-SHA256 with a secret salt: the same subscriber
// always maps to the same token, and no two subscribers can share one.
func (s *Store) TokenFromEmail(email string) string {
	h := hmac.New(sha256.New, s.salt)
	h.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidToken reports whether a token has the expected 64-hex-char shape.
// Constant-time over the whole string to avoid leaking prefix length.
func ValidToken(token string) bool {
	if len(token) != 64 {
		return false
	}
	valid := 1
	for _, c := range token {
		isHexDigit := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHexDigit {
			valid = 0
		}
	}
	return valid == 1
}

// IsNotFound reports whether an error means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}

func decode[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &v, nil
}

func decodeAll[T any](rows []json.RawMessage, logger *slog.Logger, what string) []*T {
	out := make([]*T, 0, len(rows))
	for _, raw := range rows {
		v, err := decode[T](raw)
		if err != nil {
			logger.Warn("Skipping undecodable record", "collection", what, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// --- Events ---

// SaveEvent persists an event record.
func (s *Store) SaveEvent(ctx context.Context, ev *club.Event) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.Set(ctx, colEvents, ev.ID, ev, false); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	s.logger.Info("Event saved", "id", ev.ID, "slug", ev.Slug)
	return nil
}

// GetEvent loads an event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*club.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	raw, err := s.db.Get(ctx, colEvents, id)
	if err != nil {
		return nil, err
	}
	return decode[club.Event](raw)
}

// GetEventBySlug loads an event by its slug.
func (s *Store) GetEventBySlug(ctx context.Context, slug string) (*club.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, colEvents, docstore.Eq("slug", slug))
	if err != nil {
		return nil, fmt.Errorf("query events by slug: %w", err)
	}
	if len(rows) == 0 {
		return nil, docstore.ErrNotFound
	}
	return decode[club.Event](rows[0])
}

// ListEvents returns all events.
func (s *Store) ListEvents(ctx context.Context) ([]*club.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, colEvents)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return decodeAll[club.Event](rows, s.logger, colEvents), nil
}

// --- Subscribers ---

// SaveSubscriber persists a subscriber, keyed by unsubscribe token.
func (s *Store) SaveSubscriber(ctx context.Context, sub *club.Subscriber) error {
	if err := s.ready(); err != nil {
		return err
	}
	if !ValidToken(sub.UnsubscribeToken) {
		return errors.New("invalid unsubscribe token format")
	}
	if err := s.db.Set(ctx, colSubscribers, sub.UnsubscribeToken, sub, false); err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}
	s.logger.Info("Subscriber saved", "email", sub.Email, "active", sub.IsActive)
	return nil
}

// GetSubscriberByEmail loads a subscriber via its HMAC-derived token,
// an O(1) lookup since the token is the document id.
func (s *Store) GetSubscriberByEmail(ctx context.Context, email string) (*club.Subscriber, error) {
	return s.GetSubscriberByToken(ctx, s.TokenFromEmail(email))
}

// GetSubscriberByToken loads a subscriber by unsubscribe token.
func (s *Store) GetSubscriberByToken(ctx context.Context, token string) (*club.Subscriber, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !ValidToken(token) {
		// Same error as a missing record so malformed tokens are
		// indistinguishable from unknown ones.
		return nil, docstore.ErrNotFound
	}
	raw, err := s.db.Get(ctx, colSubscribers, token)
	if err != nil {
		return nil, err
	}
	return decode[club.Subscriber](raw)
}

// ListActiveSubscribers returns all subscribers with is_active = true.
func (s *Store) ListActiveSubscribers(ctx context.Context) ([]*club.Subscriber, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, colSubscribers, docstore.Eq("is_active", true))
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	return decodeAll[club.Subscriber](rows, s.logger, colSubscribers), nil
}

// --- Calendar users ---

// SaveCalendarUser merge-writes a linked Google account keyed by email, so a
// token refresh can update access_token/expires_at without touching the rest.
func (s *Store) SaveCalendarUser(ctx context.Context, u *club.CalendarUser) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.Set(ctx, colCalendarUsers, strings.ToLower(u.Email), u, true); err != nil {
		return fmt.Errorf("save calendar user: %w", err)
	}
	s.logger.Info("Calendar user saved", "email", u.Email)
	return nil
}

// UpdateCalendarToken persists a refreshed access token for one account.
func (s *Store) UpdateCalendarToken(ctx context.Context, email, accessToken string, expiresAt time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	patch := map[string]any{
		"access_token": accessToken,
		"expires_at":   expiresAt.UTC().Format(time.RFC3339),
	}
	if err := s.db.Set(ctx, colCalendarUsers, strings.ToLower(email), patch, true); err != nil {
		return fmt.Errorf("update calendar token: %w", err)
	}
	return nil
}

// ListCalendarUsers returns every linked Google account.
func (s *Store) ListCalendarUsers(ctx context.Context) ([]*club.CalendarUser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, colCalendarUsers)
	if err != nil {
		return nil, fmt.Errorf("list calendar users: %w", err)
	}
	return decodeAll[club.CalendarUser](rows, s.logger, colCalendarUsers), nil
}

// --- Email notification jobs ---

// CreateEmailJob records a new pending notification batch for an event.
func (s *Store) CreateEmailJob(ctx context.Context, job *club.EmailJob) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.Set(ctx, colEmailJobs, job.ID, job, false); err != nil {
		return fmt.Errorf("create email job: %w", err)
	}
	s.logger.Info("Email job created", "job_id", job.ID, "event_id", job.EventID)
	return nil
}

// UpdateEmailJob merge-writes job progress fields.
func (s *Store) UpdateEmailJob(ctx context.Context, id string, fields map[string]any) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.Set(ctx, colEmailJobs, id, fields, true); err != nil {
		return fmt.Errorf("update email job: %w", err)
	}
	return nil
}

// GetEmailJob loads one notification job record.
func (s *Store) GetEmailJob(ctx context.Context, id string) (*club.EmailJob, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	raw, err := s.db.Get(ctx, colEmailJobs, id)
	if err != nil {
		return nil, err
	}
	return decode[club.EmailJob](raw)
}
