// Package email handles subscriber notification emails via multiple
// transactional providers.
package email

import (
	"context"
	"log/slog"
)

// Message is one outbound email. HTML carries the rendered body for
// body-based providers; Params carries the template parameters for
// template-based providers (EmailJS). Senders fill both.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Params  map[string]string
}

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send sends one email. Implementations retry transport failures
	// internally; a returned error means the message was not delivered.
	Send(ctx context.Context, msg *Message) error
	// Name identifies the provider in logs and job records.
	Name() string
}

// Settings selects and configures a provider from the environment.
type Settings struct {
	BrevoAPIKey      string
	BrevoSenderEmail string
	BrevoSenderName  string

	ResendAPIKey string
	ResendFrom   string

	EmailJSServiceID  string
	EmailJSTemplateID string
	EmailJSPublicKey  string
	EmailJSPrivateKey string
}

// FromSettings picks the first configured provider: Brevo, then Resend,
// then EmailJS, falling back to the mock so an unconfigured deployment
// still runs with email disabled rather than crashing.
func FromSettings(s Settings, logger *slog.Logger) Provider {
	switch {
	case s.BrevoAPIKey != "":
		logger.Info("Email provider configured", "provider", "brevo", "sender", s.BrevoSenderEmail)
		return NewBrevoProvider(s.BrevoAPIKey, s.BrevoSenderEmail, s.BrevoSenderName, logger)
	case s.ResendAPIKey != "":
		logger.Info("Email provider configured", "provider", "resend", "sender", s.ResendFrom)
		return NewResendProvider(s.ResendAPIKey, s.ResendFrom, logger)
	case s.EmailJSServiceID != "":
		logger.Info("Email provider configured", "provider", "emailjs", "service_id", s.EmailJSServiceID)
		return NewEmailJSProvider(s.EmailJSServiceID, s.EmailJSTemplateID, s.EmailJSPublicKey, s.EmailJSPrivateKey, logger)
	default:
		logger.Warn("No email provider configured, using mock")
		return NewMockProvider(logger)
	}
}
