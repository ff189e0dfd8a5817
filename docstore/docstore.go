// Package docstore abstracts the document store backing the service.
// Backends (Firestore, Supabase, local files) are selected at startup from
// the environment; call sites never know which one is in use.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// Filter restricts a Query. Op is one of "==", ">", "<".
type Filter struct {
	Field string
	Op    string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "==", Value: value}
}

// Store is the document store contract. Documents are addressed by
// collection + id and exchanged as raw JSON; typed access lives one layer up.
type Store interface {
	// Get returns the document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	// Set writes the document. With merge, existing fields not present in
	// value are preserved.
	Set(ctx context.Context, collection, id string, value any, merge bool) error
	// Query returns all documents in the collection matching every filter.
	Query(ctx context.Context, collection string, filters ...Filter) ([]json.RawMessage, error)
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Close releases backend resources.
	Close() error
}

// Env carries the environment settings that select and configure a backend.
type Env struct {
	FirestoreProject string
	CredentialsJSON  string
	SupabaseURL      string
	SupabaseKey      string
	LocalPath        string
}

// FromEnv picks a backend from the environment: Firestore when a project is
// configured, then Supabase, then the local file store for development.
// Returns nil when nothing is configured; dependent routes must degrade to
// a service-unavailable response rather than crash.
func FromEnv(ctx context.Context, env Env, logger *slog.Logger) (Store, error) {
	switch {
	case env.FirestoreProject != "":
		logger.Info("Using Firestore document store", "project", env.FirestoreProject)
		return NewFirestore(ctx, env.FirestoreProject, env.CredentialsJSON, logger)
	case env.SupabaseURL != "" && env.SupabaseKey != "":
		logger.Info("Using Supabase document store", "url", env.SupabaseURL)
		return NewSupabase(env.SupabaseURL, env.SupabaseKey, logger), nil
	case env.LocalPath != "":
		logger.Info("Using local document store", "path", env.LocalPath)
		return NewLocal(env.LocalPath, logger)
	default:
		logger.Warn("No document store configured; storage-backed routes will be unavailable")
		return nil, nil
	}
}

// matches reports whether a decoded document satisfies a filter. Used by
// backends that filter in memory.
func matches(doc map[string]any, f Filter) bool {
	got, ok := doc[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case "==", "":
		return looseEqual(got, f.Value)
	case ">":
		a, aok := asFloat(got)
		b, bok := asFloat(f.Value)
		return aok && bok && a > b
	case "<":
		a, aok := asFloat(got)
		b, bok := asFloat(f.Value)
		return aok && bok && a < b
	default:
		return false
	}
}

// looseEqual compares across the type drift JSON round-trips introduce
// (bool vs string, int vs float64).
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
