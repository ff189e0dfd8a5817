package docstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Local backs the document store with JSON files on disk, one directory per
// collection. Development only; there is no cross-process locking.
type Local struct {
	root   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewLocal creates a file-backed store rooted at the given path.
func NewLocal(root string, logger *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}
	return &Local{root: root, logger: logger}, nil
}

// docPath builds the file path for a document. Ids are base64-encoded so
// arbitrary keys (email addresses included) cannot traverse outside root.
func (l *Local) docPath(collection, id string) (string, error) {
	if collection == "" || strings.ContainsAny(collection, "/\\.") {
		return "", fmt.Errorf("invalid collection %q", collection)
	}
	name := base64.RawURLEncoding.EncodeToString([]byte(id)) + ".json"
	return filepath.Join(l.root, collection, name), nil
}

func (l *Local) Get(_ context.Context, collection, id string) (json.RawMessage, error) {
	path, err := l.docPath(collection, id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read local document: %w", err)
	}
	return json.RawMessage(data), nil
}

func (l *Local) Set(_ context.Context, collection, id string, value any, merge bool) error {
	path, err := l.docPath(collection, id)
	if err != nil {
		return err
	}

	doc, err := toMap(value)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if merge {
		if existing, err := os.ReadFile(path); err == nil {
			var base map[string]any
			if err := json.Unmarshal(existing, &base); err == nil {
				for k, v := range doc {
					base[k] = v
				}
				doc = base
			}
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create collection directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write local document: %w", err)
	}
	return nil
}

func (l *Local) Query(_ context.Context, collection string, filters ...Filter) ([]json.RawMessage, error) {
	if collection == "" || strings.ContainsAny(collection, "/\\.") {
		return nil, fmt.Errorf("invalid collection %q", collection)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dir := filepath.Join(l.root, collection)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read collection directory: %w", err)
	}

	var out []json.RawMessage
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			l.logger.Warn("Failed to read local document", "file", entry.Name(), "error", err)
			continue
		}

		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			l.logger.Warn("Skipping undecodable document", "file", entry.Name(), "error", err)
			continue
		}

		ok := true
		for _, f := range filters {
			if !matches(doc, f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, json.RawMessage(data))
		}
	}
	return out, nil
}

func (l *Local) Delete(_ context.Context, collection, id string) error {
	path, err := l.docPath(collection, id)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete local document: %w", err)
	}
	return nil
}

func (l *Local) Close() error { return nil }
