package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// EmailJSProvider sends emails via the EmailJS REST API. Unlike Brevo and
// Resend it is template-based: the message body lives in an EmailJS template
// and only the per-recipient parameters travel in the request.
type EmailJSProvider struct {
	serviceID  string
	templateID string
	publicKey  string
	privateKey string
	client     *http.Client
	logger     *slog.Logger
}

// NewEmailJSProvider creates a new EmailJS email provider.
func NewEmailJSProvider(serviceID, templateID, publicKey, privateKey string, logger *slog.Logger) *EmailJSProvider {
	return &EmailJSProvider{
		serviceID:  serviceID,
		templateID: templateID,
		publicKey:  publicKey,
		privateKey: privateKey,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (*EmailJSProvider) Name() string { return "emailjs" }

type emailJSSendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

// Send sends an email via the EmailJS API.
func (p *EmailJSProvider) Send(ctx context.Context, msg *Message) error {
	params := make(map[string]string, len(msg.Params)+3)
	for k, v := range msg.Params {
		params[k] = v
	}
	// Recipient routing happens through template params as well.
	params["to_email"] = msg.To
	params["to_name"] = msg.ToName
	params["subject"] = msg.Subject

	reqBody := emailJSSendRequest{
		ServiceID:      p.serviceID,
		TemplateID:     p.templateID,
		UserID:         p.publicKey,
		AccessToken:    p.privateKey,
		TemplateParams: params,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			p.logger.Info("EmailJS API request starting",
				"method", "POST",
				"endpoint", "email/send",
				"to", msg.To,
				"template_id", p.templateID)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				"https://api.emailjs.com/api/v1.0/email/send", bytes.NewReader(jsonData))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			req.Header.Set("Content-Type", "application/json")

			resp, err := p.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				p.logger.Warn("EmailJS API request failed, will retry",
					"to", msg.To,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					p.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				p.logger.Warn("EmailJS API returned non-2xx status, will retry",
					"status_code", resp.StatusCode,
					"to", msg.To)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			p.logger.Info("EmailJS API request completed",
				"endpoint", "email/send",
				"to", msg.To,
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying EmailJS email send after error", "attempt", n, "error", err)
		}),
	)
}
