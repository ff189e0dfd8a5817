package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSupabaseGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/events" {
			t.Errorf("path = %q, want /rest/v1/events", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "eq.e1" {
			t.Errorf("id filter = %q, want eq.e1", got)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"e1","title":"Intro Workshop"}]`)
	}))
	defer srv.Close()

	store := NewSupabase(srv.URL, "test-key", testLogger())
	raw, err := store.Get(context.Background(), "events", "e1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if doc["title"] != "Intro Workshop" {
		t.Errorf("title = %v, want Intro Workshop", doc["title"])
	}
}

func TestSupabaseGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	store := NewSupabase(srv.URL, "test-key", testLogger())
	_, err := store.Get(context.Background(), "events", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSupabaseQueryBuildsFilters(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"1"},{"id":"2"}]`)
	}))
	defer srv.Close()

	store := NewSupabase(srv.URL, "test-key", testLogger())
	rows, err := store.Query(context.Background(), "subscribers", Eq("is_active", true))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Query() returned %d rows, want 2", len(rows))
	}
	if gotQuery != "is_active=eq.true" {
		t.Errorf("query string = %q, want is_active=eq.true", gotQuery)
	}
}

func TestSupabaseSetMergePatchesExistingRow(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPatch {
			// Row exists, PATCH reports the updated representation.
			io.WriteString(w, `[{"id":"u@x.com"}]`)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := NewSupabase(srv.URL, "test-key", testLogger())
	err := store.Set(context.Background(), "calendar_users", "u@x.com", map[string]any{"access_token": "new"}, true)
	if err != nil {
		t.Fatalf("Set(merge) error = %v", err)
	}
	if len(methods) != 1 || methods[0] != http.MethodPatch {
		t.Errorf("requests = %v, want single PATCH", methods)
	}
}

func TestSupabaseSetMergeInsertsMissingRow(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPatch {
			// No matching row.
			io.WriteString(w, `[]`)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := NewSupabase(srv.URL, "test-key", testLogger())
	err := store.Set(context.Background(), "calendar_users", "new@x.com", map[string]any{"access_token": "tok"}, true)
	if err != nil {
		t.Fatalf("Set(merge) error = %v", err)
	}
	if len(methods) != 2 || methods[0] != http.MethodPatch || methods[1] != http.MethodPost {
		t.Errorf("requests = %v, want PATCH then POST", methods)
	}
}

func TestSupabaseClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := NewSupabase(srv.URL, "bad-key", testLogger())
	_, err := store.Query(context.Background(), "events")
	if err == nil {
		t.Fatal("Query() error = nil, want HTTP 401 error")
	}
	if calls != 1 {
		t.Errorf("server hit %d times, want 1 (4xx must not be retried)", calls)
	}
}
