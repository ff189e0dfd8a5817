package email

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"clubsite/pkg/club"
)

type fakeStore struct {
	subs    []*club.Subscriber
	listErr error
	jobs    map[string]map[string]any
}

func newFakeStore(subs ...*club.Subscriber) *fakeStore {
	return &fakeStore{subs: subs, jobs: make(map[string]map[string]any)}
}

func (f *fakeStore) ListActiveSubscribers(context.Context) ([]*club.Subscriber, error) {
	return f.subs, f.listErr
}

func (f *fakeStore) UpdateEmailJob(_ context.Context, id string, fields map[string]any) error {
	job := f.jobs[id]
	if job == nil {
		job = make(map[string]any)
		f.jobs[id] = job
	}
	for k, v := range fields {
		job[k] = v
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSub(email string) *club.Subscriber {
	return &club.Subscriber{
		Email:            email,
		IsActive:         true,
		UnsubscribeToken: strings.Repeat("a", 64),
	}
}

func testEvent() *club.Event {
	return &club.Event{
		ID:          "e1",
		Title:       "Intro Workshop",
		Slug:        "intro-workshop",
		Date:        "2099-01-01T18:00:00Z",
		Type:        "workshop",
		Description: "Kickoff session",
		Location:    "Engineering Building",
	}
}

func newTestDispatcher(store SubscriberStore, provider Provider) *Dispatcher {
	logger := quietLogger()
	sender := New(provider, logger, "http://localhost:8080", "http://localhost:5173", Branding{ClubName: "Test Club"})
	d := NewDispatcher(store, sender, logger)
	d.gap = 0 // no throttle in tests
	return d
}

func TestNotifySubscribersAllSucceed(t *testing.T) {
	store := newFakeStore(testSub("a@b.com"), testSub("c@d.com"))
	provider := NewMockProvider(quietLogger())
	d := newTestDispatcher(store, provider)

	if err := d.NotifySubscribers(context.Background(), testEvent(), "job-1"); err != nil {
		t.Fatalf("NotifySubscribers() error = %v", err)
	}

	if got := len(provider.Sent()); got != 2 {
		t.Errorf("provider sent %d messages, want 2", got)
	}

	job := store.jobs["job-1"]
	if job["status"] != string(club.JobSent) {
		t.Errorf("job status = %v, want sent", job["status"])
	}
	if job["sent_to_count"] != 2 {
		t.Errorf("sent_to_count = %v, want 2", job["sent_to_count"])
	}
	if _, ok := job["error_message"]; ok {
		t.Errorf("unexpected error_message on clean batch: %v", job["error_message"])
	}
}

// Second of three sends fails: batch continues, job reports sent with the
// partial failure recorded.
func TestNotifySubscribersPartialFailure(t *testing.T) {
	store := newFakeStore(testSub("a@b.com"), testSub("broken@x.com"), testSub("c@d.com"))
	provider := NewMockProvider(quietLogger())
	provider.FailWith(func(msg *Message) error {
		if msg.To == "broken@x.com" {
			return errors.New("provider rejected recipient")
		}
		return nil
	})
	d := newTestDispatcher(store, provider)

	if err := d.NotifySubscribers(context.Background(), testEvent(), "job-1"); err != nil {
		t.Fatalf("NotifySubscribers() error = %v", err)
	}

	job := store.jobs["job-1"]
	if job["status"] != string(club.JobSent) {
		t.Errorf("job status = %v, want sent despite one failure", job["status"])
	}
	if job["sent_to_count"] != 2 {
		t.Errorf("sent_to_count = %v, want 2", job["sent_to_count"])
	}
	errMsg, _ := job["error_message"].(string)
	if !strings.Contains(errMsg, "1 of 3") {
		t.Errorf("error_message = %q, want mention of the partial failure", errMsg)
	}
}

func TestNotifySubscribersAllFail(t *testing.T) {
	store := newFakeStore(testSub("a@b.com"), testSub("c@d.com"))
	provider := NewMockProvider(quietLogger())
	provider.FailWith(func(*Message) error { return errors.New("provider down") })
	d := newTestDispatcher(store, provider)

	if err := d.NotifySubscribers(context.Background(), testEvent(), "job-1"); err != nil {
		t.Fatalf("NotifySubscribers() error = %v (batch errors stay on the job record)", err)
	}

	job := store.jobs["job-1"]
	if job["status"] != string(club.JobFailed) {
		t.Errorf("job status = %v, want failed", job["status"])
	}
	if job["sent_to_count"] != 0 {
		t.Errorf("sent_to_count = %v, want 0", job["sent_to_count"])
	}
}

func TestNotifySubscribersEmptyListIsNoOp(t *testing.T) {
	store := newFakeStore()
	provider := NewMockProvider(quietLogger())
	d := newTestDispatcher(store, provider)

	if err := d.NotifySubscribers(context.Background(), testEvent(), "job-1"); err != nil {
		t.Fatalf("NotifySubscribers() error = %v", err)
	}

	if got := len(provider.Sent()); got != 0 {
		t.Errorf("provider sent %d messages, want 0", got)
	}
	job := store.jobs["job-1"]
	if job["status"] != string(club.JobSent) || job["sent_to_count"] != 0 {
		t.Errorf("job = %v, want sent with count 0", job)
	}
}

func TestNotifySubscribersListFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("store offline")
	provider := NewMockProvider(quietLogger())
	d := newTestDispatcher(store, provider)

	if err := d.NotifySubscribers(context.Background(), testEvent(), "job-1"); err == nil {
		t.Fatal("NotifySubscribers() error = nil, want store error")
	}

	job := store.jobs["job-1"]
	if job["status"] != string(club.JobFailed) {
		t.Errorf("job status = %v, want failed", job["status"])
	}
}
