package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"clubsite/pkg/club"
)

// Branding carries the shared template defaults injected into every email.
type Branding struct {
	ClubName     string
	LogoURL      string
	InstagramURL string
	DiscordURL   string
}

// Sender builds and sends the service's emails using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	baseURL  string // API origin, for ICS/unsubscribe links
	appURL   string // public site, for event page links
	brand    Branding
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, baseURL, appURL string, brand Branding) *Sender {
	if brand.ClubName == "" {
		brand.ClubName = "The Club"
	}
	return &Sender{
		provider: provider,
		logger:   logger,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		appURL:   strings.TrimSuffix(appURL, "/"),
		brand:    brand,
	}
}

// Provider exposes the configured provider, mainly for logging.
func (s *Sender) Provider() Provider { return s.provider }

// recipientName derives a display name from the local part of an email
// address: "jane.doe@x.edu" -> "jane doe".
func recipientName(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return email
	}
	name := strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	return strings.TrimSpace(name)
}

func (s *Sender) unsubscribeURL(token string) string {
	return fmt.Sprintf("%s/api/unsubscribe?token=%s", s.baseURL, url.QueryEscape(token))
}

func (s *Sender) icsURL(eventID string) string {
	return fmt.Sprintf("%s/api/download-ics?eventId=%s", s.baseURL, url.QueryEscape(eventID))
}

// eventParams builds the per-recipient template parameter set for an event
// notification: recipient identity, event fields, action links, and shared
// branding defaults.
func (s *Sender) eventParams(sub *club.Subscriber, ev *club.Event) map[string]string {
	date := "TBA"
	clock := "TBA"
	if start, err := club.ParseEventTime(ev.Date); err == nil {
		date = start.UTC().Format("Monday, January 2, 2006")
		clock = start.UTC().Format("3:04 PM") + " UTC"
	}

	params := map[string]string{
		"to_name":           recipientName(sub.Email),
		"event_title":       ev.Title,
		"event_type":        ev.Type,
		"event_date":        date,
		"event_time":        clock,
		"event_location":    ev.FullLocation(),
		"event_description": ev.Description,
		"event_url":         fmt.Sprintf("%s/events/%s", s.appURL, url.PathEscape(ev.Slug)),
		"ics_url":           s.icsURL(ev.ID),
		"unsubscribe_url":   s.unsubscribeURL(sub.UnsubscribeToken),
		"club_name":         s.brand.ClubName,
		"logo_url":          s.brand.LogoURL,
		"instagram_url":     s.brand.InstagramURL,
		"discord_url":       s.brand.DiscordURL,
		"year":              fmt.Sprintf("%d", time.Now().UTC().Year()),
	}
	if ev.RegistrationLink != "" {
		params["registration_url"] = ev.RegistrationLink
	}
	return params
}

// SendEventNotification sends the new-event announcement to one subscriber.
func (s *Sender) SendEventNotification(ctx context.Context, sub *club.Subscriber, ev *club.Event) error {
	params := s.eventParams(sub, ev)
	msg := &Message{
		To:      sub.Email,
		ToName:  params["to_name"],
		Subject: fmt.Sprintf("New Event: %s", ev.Title),
		HTML:    s.formatEventBody(params),
		Params:  params,
	}

	s.logger.Info("Sending event notification email",
		"to", sub.Email,
		"event_id", ev.ID,
		"provider", s.provider.Name())

	return s.provider.Send(ctx, msg)
}

// SendWelcome sends the confirmation for a brand-new subscription.
func (s *Sender) SendWelcome(ctx context.Context, sub *club.Subscriber) error {
	return s.sendSubscriptionEmail(ctx, sub,
		fmt.Sprintf("Welcome to %s", s.brand.ClubName),
		"You're on the list! We'll email you whenever a new event goes live.")
}

// SendReactivated confirms a re-subscription of a previously inactive email.
func (s *Sender) SendReactivated(ctx context.Context, sub *club.Subscriber) error {
	return s.sendSubscriptionEmail(ctx, sub,
		fmt.Sprintf("Welcome back to %s", s.brand.ClubName),
		"Your subscription has been reactivated. We'll email you about upcoming events again.")
}

// SendAlreadySubscribed acknowledges a repeat subscribe of an active email.
func (s *Sender) SendAlreadySubscribed(ctx context.Context, sub *club.Subscriber) error {
	return s.sendSubscriptionEmail(ctx, sub,
		fmt.Sprintf("You're already subscribed to %s", s.brand.ClubName),
		"Good news: this address is already on our list, so there's nothing to do.")
}

func (s *Sender) sendSubscriptionEmail(ctx context.Context, sub *club.Subscriber, subject, line string) error {
	name := recipientName(sub.Email)
	params := map[string]string{
		"to_name":         name,
		"message":         line,
		"unsubscribe_url": s.unsubscribeURL(sub.UnsubscribeToken),
		"club_name":       s.brand.ClubName,
		"logo_url":        s.brand.LogoURL,
		"instagram_url":   s.brand.InstagramURL,
		"discord_url":     s.brand.DiscordURL,
		"year":            fmt.Sprintf("%d", time.Now().UTC().Year()),
	}
	msg := &Message{
		To:      sub.Email,
		ToName:  name,
		Subject: subject,
		HTML:    s.formatSubscriptionBody(params),
		Params:  params,
	}

	s.logger.Info("Sending subscription email",
		"to", sub.Email,
		"subject", subject,
		"provider", s.provider.Name())

	return s.provider.Send(ctx, msg)
}
