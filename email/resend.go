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

// ResendProvider sends emails via the Resend API.
type ResendProvider struct {
	apiKey   string
	fromAddr string
	client   *http.Client
	logger   *slog.Logger
}

// NewResendProvider creates a new Resend email provider.
func NewResendProvider(apiKey, fromAddr string, logger *slog.Logger) *ResendProvider {
	return &ResendProvider{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (*ResendProvider) Name() string { return "resend" }

type resendSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send sends an email via the Resend API.
func (p *ResendProvider) Send(ctx context.Context, msg *Message) error {
	reqBody := resendSendRequest{
		From:    p.fromAddr,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			p.logger.Info("Resend API request starting",
				"method", "POST",
				"endpoint", "emails",
				"to", msg.To,
				"subject", msg.Subject)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				"https://api.resend.com/emails", bytes.NewReader(jsonData))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+p.apiKey)

			resp, err := p.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				p.logger.Warn("Resend API request failed, will retry",
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
				p.logger.Warn("Resend API returned non-2xx status, will retry",
					"status_code", resp.StatusCode,
					"to", msg.To)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			p.logger.Info("Resend API request completed",
				"endpoint", "emails",
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
			p.logger.Info("Retrying Resend email send after error", "attempt", n, "error", err)
		}),
	)
}
