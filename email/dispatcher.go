package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clubsite/pkg/club"
)

// sendGap is the fixed delay between recipient sends. A crude throttle to
// stay under provider rate limits, not a scheduler.
const sendGap = 100 * time.Millisecond

// SubscriberStore is the persistence surface the dispatcher needs.
type SubscriberStore interface {
	ListActiveSubscribers(ctx context.Context) ([]*club.Subscriber, error)
	UpdateEmailJob(ctx context.Context, id string, fields map[string]any) error
}

// Dispatcher fans one event announcement out to every active subscriber and
// records the outcome on the event's notification job record.
type Dispatcher struct {
	store  SubscriberStore
	sender *Sender
	logger *slog.Logger
	gap    time.Duration
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store SubscriberStore, sender *Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, logger: logger, gap: sendGap}
}

// NotifySubscribers emails every active subscriber about the event. One
// recipient failing never aborts the batch; the job record ends up sent (or
// failed when nothing got through) with the final counts. Designed to run
// detached from the request that created the event, so it returns an error
// only for the caller's log line.
func (d *Dispatcher) NotifySubscribers(ctx context.Context, ev *club.Event, jobID string) error {
	subs, err := d.store.ListActiveSubscribers(ctx)
	if err != nil {
		d.failJob(ctx, jobID, fmt.Sprintf("list subscribers: %v", err))
		return fmt.Errorf("list active subscribers: %w", err)
	}

	if len(subs) == 0 {
		d.logger.Info("No active subscribers, nothing to send", "event_id", ev.ID, "job_id", jobID)
		d.updateJob(ctx, jobID, map[string]any{
			"status":        string(club.JobSent),
			"sent_to_count": 0,
			"sent_at":       time.Now().UTC().Format(time.RFC3339),
		})
		return nil
	}

	d.logger.Info("Dispatching event notification batch",
		"event_id", ev.ID,
		"job_id", jobID,
		"subscriber_count", len(subs),
		"provider", d.sender.Provider().Name())

	d.updateJob(ctx, jobID, map[string]any{"status": string(club.JobProcessing)})

	var sent, failed int
	var firstErr error
	for i, sub := range subs {
		if i > 0 && d.gap > 0 {
			select {
			case <-ctx.Done():
				d.logger.Warn("Notification batch cancelled", "job_id", jobID, "sent", sent, "remaining", len(subs)-i)
				d.failJob(ctx, jobID, fmt.Sprintf("cancelled after %d of %d sends: %v", sent, len(subs), ctx.Err()))
				return ctx.Err()
			case <-time.After(d.gap):
			}
		}

		if err := d.sender.SendEventNotification(ctx, sub, ev); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			d.logger.Warn("Notification send failed, continuing batch",
				"to", sub.Email,
				"event_id", ev.ID,
				"error", err)
			continue
		}
		sent++
	}

	fields := map[string]any{
		"sent_to_count": sent,
		"sent_at":       time.Now().UTC().Format(time.RFC3339),
	}
	switch {
	case failed == 0:
		fields["status"] = string(club.JobSent)
	case sent > 0:
		// Partial failure still counts as sent overall, with the failure
		// tally preserved on the record.
		fields["status"] = string(club.JobSent)
		fields["error_message"] = fmt.Sprintf("partial failure: %d of %d sends failed (first error: %v)", failed, len(subs), firstErr)
	default:
		fields["status"] = string(club.JobFailed)
		fields["error_message"] = fmt.Sprintf("all %d sends failed (first error: %v)", failed, firstErr)
	}
	d.updateJob(ctx, jobID, fields)

	d.logger.Info("Notification batch completed",
		"event_id", ev.ID,
		"job_id", jobID,
		"sent", sent,
		"failed", failed)
	return nil
}

func (d *Dispatcher) updateJob(ctx context.Context, jobID string, fields map[string]any) {
	if jobID == "" {
		return
	}
	if err := d.store.UpdateEmailJob(ctx, jobID, fields); err != nil {
		d.logger.Warn("Failed to update email job", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) failJob(ctx context.Context, jobID, msg string) {
	d.updateJob(ctx, jobID, map[string]any{
		"status":        string(club.JobFailed),
		"error_message": msg,
	})
}
