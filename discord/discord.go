// Package discord posts event announcements to a Discord channel webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"clubsite/pkg/club"
)

const embedColor = 0x6c5ce7

// Notifier sends new-event embeds to a Discord webhook. A Notifier with an
// empty webhook URL is valid and turns every Announce into a logged no-op.
type Notifier struct {
	webhookURL string
	appURL     string
	client     *http.Client
	logger     *slog.Logger
}

// New creates a Discord notifier. webhookURL may be empty when the
// integration is not configured.
func New(webhookURL, appURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		appURL:     appURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string      `json:"title"`
	URL         string      `json:"url,omitempty"`
	Description string      `json:"description,omitempty"`
	Color       int         `json:"color"`
	Fields      []field     `json:"fields,omitempty"`
	Thumbnail   *embedImage `json:"thumbnail,omitempty"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

// buildPayload assembles the webhook body for one event.
func (n *Notifier) buildPayload(ev *club.Event) *webhookPayload {
	date := "TBA"
	clock := "TBA"
	timestamp := ""
	if start, err := club.ParseEventTime(ev.Date); err == nil {
		date = start.UTC().Format("Monday, January 2, 2006")
		clock = start.UTC().Format("3:04 PM") + " UTC"
		timestamp = start.UTC().Format(time.RFC3339)
	}

	fields := []field{
		{Name: "Date", Value: date, Inline: true},
		{Name: "Time", Value: clock, Inline: true},
		{Name: "Type", Value: ev.Type, Inline: true},
	}
	if loc := ev.FullLocation(); loc != "" {
		fields = append(fields, field{Name: "Location", Value: loc})
	}
	fields = append(fields, field{Name: "Status", Value: string(ev.Status), Inline: true})
	if ev.RegistrationLink != "" {
		fields = append(fields, field{Name: "Register", Value: ev.RegistrationLink})
	}

	e := embed{
		Title:       ev.Title,
		Description: ev.Description,
		Color:       embedColor,
		Fields:      fields,
		Timestamp:   timestamp,
	}
	if n.appURL != "" && ev.Slug != "" {
		e.URL = fmt.Sprintf("%s/events/%s", n.appURL, ev.Slug)
	}
	if ev.CoverImage != "" {
		e.Thumbnail = &embedImage{URL: ev.CoverImage}
	}

	return &webhookPayload{Embeds: []embed{e}}
}

// Announce posts the event embed to the webhook. Missing configuration is a
// logged no-op, not an error: Discord is a best-effort channel.
func (n *Notifier) Announce(ctx context.Context, ev *club.Event) error {
	if !n.Enabled() {
		n.logger.Info("Discord webhook not configured, skipping announcement", "event_id", ev.ID)
		return nil
	}

	body, err := json.Marshal(n.buildPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := n.client.Do(req)
			if err != nil {
				return fmt.Errorf("send webhook: %w", err)
			}
			defer func() {
				if err := resp.Body.Close(); err != nil {
					n.logger.Debug("Failed to close response body", "error", err)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				err := fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(err)
				}
				return err
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.Warn("Retrying Discord webhook", "attempt", attempt+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("post Discord announcement: %w", err)
	}

	n.logger.Info("Posted Discord announcement", "event_id", ev.ID, "title", ev.Title)
	return nil
}
