// Package club contains the core domain types for the club events service.
package club

import "time"

// Status is the lifecycle state of an event relative to wall-clock time.
// Stored status values are advisory only; the authoritative value is always
// recomputed from the event date on read.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusOngoing  Status = "ongoing"
	StatusPast     Status = "past"
)

// DefaultEventDuration is assumed when an event has no explicit end time.
const DefaultEventDuration = 2 * time.Hour

// Speaker is a person featured on an event page.
type Speaker struct {
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Event is a club event as persisted in the document store.
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Date             string    `json:"date"`              // ISO datetime, start of the event
	EndDate          string    `json:"endDate,omitempty"` // optional explicit end
	Type             string    `json:"type"`
	Status           Status    `json:"status"` // derived, never trusted from storage
	CoverImage       string    `json:"coverImage,omitempty"`
	Gallery          []string  `json:"gallery,omitempty"`
	Description      string    `json:"description"`
	Speakers         []Speaker `json:"speakers,omitempty"`
	RegistrationLink string    `json:"registrationLink,omitempty"`
	Slug             string    `json:"slug"`
	Location         string    `json:"location,omitempty"`
	Venue            string    `json:"venue,omitempty"`
	HighlightScene   string    `json:"highlightScene,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Subscriber is an email subscriber. Email is the natural key
// (case-insensitive); records are deactivated, never hard-deleted.
type Subscriber struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	SubscribedAt     time.Time `json:"subscribed_at"`
	IsActive         bool      `json:"is_active"`
	UnsubscribeToken string    `json:"unsubscribe_token"`
}

// CalendarUser is a Google account linked via the OAuth flow. AccessToken
// and ExpiresAt are rewritten whenever the calendar integrator refreshes
// the token.
type CalendarUser struct {
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// JobStatus tracks the lifecycle of a notification batch.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
)

// EmailJob records one notification batch for an event. Created alongside
// the event and updated by the dispatcher as the batch runs.
type EmailJob struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	EventTitle   string     `json:"event_title"`
	SentToCount  int        `json:"sent_to_count"`
	Status       JobStatus  `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
