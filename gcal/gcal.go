// Package gcal links Google accounts via OAuth and pushes club events into
// their primary calendars.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"clubsite/pkg/club"
)

// insertGap throttles calendar inserts across linked accounts so a popular
// event does not burst the Calendar API quota.
const insertGap = 100 * time.Millisecond

// expiryLeeway refreshes tokens a little early so an insert never races the
// exact expiry instant.
const expiryLeeway = time.Minute

// TokenStore persists refreshed access tokens between fan-outs.
type TokenStore interface {
	UpdateCalendarToken(ctx context.Context, email, accessToken string, expiresAt time.Time) error
}

// Integrator drives the OAuth linking flow and the per-event calendar
// fan-out. An Integrator with no client credentials is valid and disabled.
type Integrator struct {
	config *oauth2.Config
	store  TokenStore
	logger *slog.Logger
	gap    time.Duration

	// newService is swappable so tests can intercept the Calendar client.
	newService func(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error)
}

// New creates a calendar integrator. clientID and clientSecret may be empty
// when the integration is not configured.
func New(clientID, clientSecret, redirectURL string, store TokenStore, logger *slog.Logger) *Integrator {
	var cfg *oauth2.Config
	if clientID != "" && clientSecret != "" {
		cfg = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				calendar.CalendarEventsScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		}
	}
	it := &Integrator{
		config: cfg,
		store:  store,
		logger: logger,
		gap:    insertGap,
	}
	it.newService = func(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
		return calendar.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	}
	return it
}

// Enabled reports whether OAuth client credentials are configured.
func (it *Integrator) Enabled() bool { return it.config != nil }

// AuthURL returns the Google consent page URL. Offline access is requested
// so the service receives a refresh token it can use long after the user
// walks away.
func (it *Integrator) AuthURL(state string) string {
	if !it.Enabled() {
		return ""
	}
	return it.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode trades an authorization code for tokens and resolves the
// account's email, producing the user record to persist.
func (it *Integrator) ExchangeCode(ctx context.Context, code string) (*club.CalendarUser, error) {
	if !it.Enabled() {
		return nil, errors.New("Google Calendar integration not configured")
	}

	tok, err := it.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return nil, fmt.Errorf("create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("Google account has no email address")
	}

	return &club.CalendarUser{
		Email:        info.Email,
		Name:         info.Name,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
	}, nil
}

// token returns a live access token for the user, refreshing and persisting
// it when the stored one is expired or about to expire.
func (it *Integrator) token(ctx context.Context, u *club.CalendarUser) (*oauth2.Token, error) {
	stored := &oauth2.Token{
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		Expiry:       u.ExpiresAt,
	}
	if stored.Expiry.After(time.Now().Add(expiryLeeway)) {
		return stored, nil
	}
	if stored.RefreshToken == "" {
		return nil, errors.New("token expired and no refresh token on record")
	}

	fresh, err := it.config.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if err := it.store.UpdateCalendarToken(ctx, u.Email, fresh.AccessToken, fresh.Expiry); err != nil {
		// Insert can still proceed on the fresh token; the next fan-out will
		// just refresh again.
		it.logger.Warn("Failed to persist refreshed token", "email", u.Email, "error", err)
	}
	return fresh, nil
}

// buildCalendarEvent maps a club event onto the Calendar API shape.
func buildCalendarEvent(ev *club.Event) (*calendar.Event, error) {
	start, err := club.ParseEventTime(ev.Date)
	if err != nil {
		return nil, fmt.Errorf("event %s has unparseable date %q: %w", ev.ID, ev.Date, err)
	}
	end := ev.EndTime(start)

	description := ev.Description
	if ev.RegistrationLink != "" {
		description += "\n\nRegister: " + ev.RegistrationLink
	}

	return &calendar.Event{
		Summary:     ev.Title,
		Description: description,
		Location:    ev.FullLocation(),
		Start:       &calendar.EventDateTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
	}, nil
}

// AddEventToAll inserts the event into the primary calendar of every linked
// account. Per-user failures are logged and skipped so one revoked account
// cannot block the rest; the returned count is the number of successful
// inserts.
func (it *Integrator) AddEventToAll(ctx context.Context, ev *club.Event, users []*club.CalendarUser) (int, error) {
	if !it.Enabled() {
		it.logger.Info("Google Calendar integration not configured, skipping", "event_id", ev.ID)
		return 0, nil
	}

	body, err := buildCalendarEvent(ev)
	if err != nil {
		return 0, err
	}

	added := 0
	for i, u := range users {
		if i > 0 && it.gap > 0 {
			select {
			case <-time.After(it.gap):
			case <-ctx.Done():
				return added, ctx.Err()
			}
		}

		if err := it.addForUser(ctx, u, body); err != nil {
			it.logger.Warn("Failed to add event to calendar",
				"email", u.Email,
				"event_id", ev.ID,
				"error", err)
			continue
		}
		added++
	}

	it.logger.Info("Calendar fan-out complete",
		"event_id", ev.ID,
		"added", added,
		"linked_users", len(users))
	return added, nil
}

func (it *Integrator) addForUser(ctx context.Context, u *club.CalendarUser, body *calendar.Event) error {
	tok, err := it.token(ctx, u)
	if err != nil {
		return err
	}

	svc, err := it.newService(ctx, tok)
	if err != nil {
		return fmt.Errorf("create calendar service: %w", err)
	}

	return retry.Do(
		func() error {
			_, err := svc.Events.Insert("primary", body).Context(ctx).Do()
			if err == nil {
				return nil
			}
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
				return retry.Unrecoverable(fmt.Errorf("insert event: %w", err))
			}
			return fmt.Errorf("insert event: %w", err)
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			it.logger.Warn("Retrying calendar insert", "email", u.Email, "attempt", attempt+1, "error", err)
		}),
	)
}
