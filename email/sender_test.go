package email

import (
	"context"
	"strings"
	"testing"
)

func newTestSender(provider Provider) *Sender {
	return New(provider, quietLogger(), "https://api.club.example", "https://club.example", Branding{
		ClubName:     "Test Club",
		LogoURL:      "https://club.example/logo.png",
		InstagramURL: "https://instagram.com/testclub",
	})
}

func TestRecipientName(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"jane.doe@x.edu", "jane doe"},
		{"bob_smith@x.edu", "bob smith"},
		{"plain@x.edu", "plain"},
		{"no-at-sign", "no-at-sign"},
	}

	for _, tt := range tests {
		if got := recipientName(tt.email); got != tt.want {
			t.Errorf("recipientName(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestEventNotificationMessage(t *testing.T) {
	provider := NewMockProvider(quietLogger())
	sender := newTestSender(provider)

	sub := testSub("jane.doe@x.edu")
	ev := testEvent()
	ev.RegistrationLink = "https://forms.example/signup"

	if err := sender.SendEventNotification(context.Background(), sub, ev); err != nil {
		t.Fatalf("SendEventNotification() error = %v", err)
	}

	sent := provider.Sent()
	if len(sent) != 1 {
		t.Fatalf("provider sent %d messages, want 1", len(sent))
	}
	msg := sent[0]

	if msg.To != "jane.doe@x.edu" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Subject != "New Event: Intro Workshop" {
		t.Errorf("Subject = %q", msg.Subject)
	}

	// Per-recipient template parameters.
	wantParams := map[string]string{
		"to_name":          "jane doe",
		"event_title":      "Intro Workshop",
		"event_date":       "Thursday, January 1, 2099",
		"event_time":       "6:00 PM UTC",
		"event_location":   "Engineering Building",
		"registration_url": "https://forms.example/signup",
		"club_name":        "Test Club",
	}
	for k, want := range wantParams {
		if got := msg.Params[k]; got != want {
			t.Errorf("Params[%q] = %q, want %q", k, got, want)
		}
	}

	if !strings.Contains(msg.Params["unsubscribe_url"], "/api/unsubscribe?token="+sub.UnsubscribeToken) {
		t.Errorf("unsubscribe_url = %q, want token link", msg.Params["unsubscribe_url"])
	}
	if !strings.Contains(msg.Params["ics_url"], "/api/download-ics?eventId=e1") {
		t.Errorf("ics_url = %q", msg.Params["ics_url"])
	}

	// Body carries the same content for body-based providers.
	for _, fragment := range []string{"Intro Workshop", "jane doe", "Add to calendar", "Unsubscribe"} {
		if !strings.Contains(msg.HTML, fragment) {
			t.Errorf("HTML body missing %q", fragment)
		}
	}
}

func TestEventBodyEscapesHTML(t *testing.T) {
	provider := NewMockProvider(quietLogger())
	sender := newTestSender(provider)

	ev := testEvent()
	ev.Title = `<script>alert("x")</script>`
	ev.Description = "a & b < c"

	if err := sender.SendEventNotification(context.Background(), testSub("a@b.com"), ev); err != nil {
		t.Fatalf("SendEventNotification() error = %v", err)
	}

	body := provider.Sent()[0].HTML
	if strings.Contains(body, "<script>") {
		t.Error("body contains unescaped script tag")
	}
	if !strings.Contains(body, "a &amp; b &lt; c") {
		t.Error("description not escaped")
	}
}

func TestSubscriptionEmails(t *testing.T) {
	tests := []struct {
		name        string
		send        func(s *Sender, ctx context.Context) error
		wantSubject string
	}{
		{
			name:        "welcome",
			send:        func(s *Sender, ctx context.Context) error { return s.SendWelcome(ctx, testSub("a@b.com")) },
			wantSubject: "Welcome to Test Club",
		},
		{
			name:        "reactivated",
			send:        func(s *Sender, ctx context.Context) error { return s.SendReactivated(ctx, testSub("a@b.com")) },
			wantSubject: "Welcome back to Test Club",
		},
		{
			name: "already subscribed",
			send: func(s *Sender, ctx context.Context) error {
				return s.SendAlreadySubscribed(ctx, testSub("a@b.com"))
			},
			wantSubject: "You're already subscribed to Test Club",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewMockProvider(quietLogger())
			sender := newTestSender(provider)

			if err := tt.send(sender, context.Background()); err != nil {
				t.Fatalf("send error = %v", err)
			}
			sent := provider.Sent()
			if len(sent) != 1 {
				t.Fatalf("sent %d messages, want 1", len(sent))
			}
			if sent[0].Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", sent[0].Subject, tt.wantSubject)
			}
			if !strings.Contains(sent[0].HTML, "Unsubscribe") {
				t.Error("body missing unsubscribe link")
			}
		})
	}
}

func TestFromSettingsSelection(t *testing.T) {
	logger := quietLogger()

	tests := []struct {
		name     string
		settings Settings
		want     string
	}{
		{"brevo first", Settings{BrevoAPIKey: "k", ResendAPIKey: "k2"}, "brevo"},
		{"resend second", Settings{ResendAPIKey: "k"}, "resend"},
		{"emailjs third", Settings{EmailJSServiceID: "svc"}, "emailjs"},
		{"mock fallback", Settings{}, "mock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromSettings(tt.settings, logger)
			if p.Name() != tt.want {
				t.Errorf("FromSettings() = %q, want %q", p.Name(), tt.want)
			}
		})
	}
}
