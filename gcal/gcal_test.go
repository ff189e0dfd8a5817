package gcal

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"clubsite/pkg/club"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTokenStore struct {
	updates map[string]string
}

func (f *fakeTokenStore) UpdateCalendarToken(_ context.Context, email, accessToken string, _ time.Time) error {
	if f.updates == nil {
		f.updates = make(map[string]string)
	}
	f.updates[email] = accessToken
	return nil
}

func testEvent() *club.Event {
	return &club.Event{
		ID:               "e1",
		Title:            "Intro Workshop",
		Date:             "2099-01-01T18:00:00Z",
		Type:             "workshop",
		Description:      "Kickoff session",
		Location:         "Engineering Building",
		Venue:            "Room 101",
		RegistrationLink: "https://forms.example/signup",
	}
}

func TestDisabledWithoutCredentials(t *testing.T) {
	it := New("", "", "http://localhost:8080/api/auth/google", &fakeTokenStore{}, quietLogger())

	if it.Enabled() {
		t.Error("Enabled() = true without credentials")
	}
	if url := it.AuthURL("state"); url != "" {
		t.Errorf("AuthURL() = %q, want empty", url)
	}

	added, err := it.AddEventToAll(context.Background(), testEvent(), []*club.CalendarUser{
		{Email: "a@b.com", AccessToken: "tok"},
	})
	if err != nil {
		t.Errorf("AddEventToAll() disabled = %v, want nil", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
}

func TestAuthURL(t *testing.T) {
	it := New("client-id", "secret", "http://localhost:8080/api/auth/google", &fakeTokenStore{}, quietLogger())

	url := it.AuthURL("xyzzy")
	for _, want := range []string{
		"client_id=client-id",
		"state=xyzzy",
		"access_type=offline",
		"prompt=consent",
		"calendar.events",
		"userinfo.email",
	} {
		if !strings.Contains(url, want) {
			t.Errorf("AuthURL() missing %q: %s", want, url)
		}
	}
}

func TestBuildCalendarEvent(t *testing.T) {
	body, err := buildCalendarEvent(testEvent())
	if err != nil {
		t.Fatalf("buildCalendarEvent() error = %v", err)
	}

	if body.Summary != "Intro Workshop" {
		t.Errorf("Summary = %q", body.Summary)
	}
	if body.Location != "Room 101, Engineering Building" {
		t.Errorf("Location = %q", body.Location)
	}
	if body.Start.DateTime != "2099-01-01T18:00:00Z" {
		t.Errorf("Start = %q", body.Start.DateTime)
	}
	if body.End.DateTime != "2099-01-01T20:00:00Z" {
		t.Errorf("End = %q, want start plus two hours", body.End.DateTime)
	}
	if !strings.Contains(body.Description, "Register: https://forms.example/signup") {
		t.Errorf("Description = %q, want registration link appended", body.Description)
	}
}

func TestBuildCalendarEventExplicitEnd(t *testing.T) {
	ev := testEvent()
	ev.EndDate = "2099-01-01T21:30:00Z"

	body, err := buildCalendarEvent(ev)
	if err != nil {
		t.Fatalf("buildCalendarEvent() error = %v", err)
	}
	if body.End.DateTime != "2099-01-01T21:30:00Z" {
		t.Errorf("End = %q", body.End.DateTime)
	}
}

func TestBuildCalendarEventUnparseableDate(t *testing.T) {
	ev := testEvent()
	ev.Date = "soon"

	if _, err := buildCalendarEvent(ev); err == nil {
		t.Error("buildCalendarEvent() error = nil, want failure")
	}
}

func TestTokenStillValid(t *testing.T) {
	store := &fakeTokenStore{}
	it := New("client-id", "secret", "http://localhost:8080/api/auth/google", store, quietLogger())

	u := &club.CalendarUser{
		Email:        "a@b.com",
		AccessToken:  "live-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	tok, err := it.token(context.Background(), u)
	if err != nil {
		t.Fatalf("token() error = %v", err)
	}
	if tok.AccessToken != "live-token" {
		t.Errorf("AccessToken = %q, want stored token reused", tok.AccessToken)
	}
	if len(store.updates) != 0 {
		t.Errorf("store updated %d times, want 0", len(store.updates))
	}
}

func TestTokenExpiredNoRefreshToken(t *testing.T) {
	it := New("client-id", "secret", "http://localhost:8080/api/auth/google", &fakeTokenStore{}, quietLogger())

	u := &club.CalendarUser{
		Email:       "a@b.com",
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Hour),
	}

	if _, err := it.token(context.Background(), u); err == nil {
		t.Error("token() error = nil, want failure without refresh token")
	}
}
