package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Supabase backs the document store with Supabase's PostgREST API.
// Collections map to tables; every table has an "id" primary key column.
type Supabase struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewSupabase creates a Supabase-backed store.
func NewSupabase(baseURL, apiKey string, logger *slog.Logger) *Supabase {
	return &Supabase{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (s *Supabase) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s&limit=1", s.baseURL, url.PathEscape(collection), url.QueryEscape(id))

	rows, err := s.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *Supabase) Set(ctx context.Context, collection, id string, value any, merge bool) error {
	data, err := toMap(value)
	if err != nil {
		return err
	}
	data["id"] = id

	if merge {
		// Merge-set: patch when the row exists, insert otherwise. PostgREST
		// upsert replaces whole rows, which would drop preserved fields.
		endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s", s.baseURL, url.PathEscape(collection), url.QueryEscape(id))
		rows, err := s.do(ctx, http.MethodPatch, endpoint, data, map[string]string{"Prefer": "return=representation"})
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return nil
		}
		// Row did not exist; fall through to insert.
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", s.baseURL, url.PathEscape(collection))
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	_, err = s.do(ctx, http.MethodPost, endpoint, data, headers)
	return err
}

func (s *Supabase) Query(ctx context.Context, collection string, filters ...Filter) ([]json.RawMessage, error) {
	params := url.Values{}
	for _, f := range filters {
		op, err := postgrestOp(f.Op)
		if err != nil {
			return nil, err
		}
		params.Add(f.Field, fmt.Sprintf("%s.%v", op, f.Value))
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", s.baseURL, url.PathEscape(collection))
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	return s.do(ctx, http.MethodGet, endpoint, nil, nil)
}

func (s *Supabase) Delete(ctx context.Context, collection, id string) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s", s.baseURL, url.PathEscape(collection), url.QueryEscape(id))
	_, err := s.do(ctx, http.MethodDelete, endpoint, nil, nil)
	return err
}

func (s *Supabase) Close() error { return nil }

func postgrestOp(op string) (string, error) {
	switch op {
	case "==", "":
		return "eq", nil
	case ">":
		return "gt", nil
	case "<":
		return "lt", nil
	default:
		return "", fmt.Errorf("unsupported filter op %q", op)
	}
}

// do issues one PostgREST request with retries and decodes the row array
// response (when there is one).
func (s *Supabase) do(ctx context.Context, method, endpoint string, body any, headers map[string]string) ([]json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var rows []json.RawMessage

	err := retry.Do(
		func() error {
			var reader io.Reader
			if payload != nil {
				reader = bytes.NewReader(payload)
			}

			req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("apikey", s.apiKey)
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("Supabase request failed, will retry",
					"method", method,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				s.logger.Warn("Supabase returned non-2xx status",
					"method", method,
					"status_code", resp.StatusCode)
				httpErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
				// Client errors will not heal on retry.
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(httpErr)
				}
				return httpErr
			}

			rows = nil
			if len(respBody) > 0 && respBody[0] == '[' {
				if err := json.Unmarshal(respBody, &rows); err != nil {
					return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
				}
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying Supabase request after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("supabase %s: %w", method, err)
	}
	return rows, nil
}
