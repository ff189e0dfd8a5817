package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore backs the document store with Cloud Firestore.
type Firestore struct {
	client *firestore.Client
	logger *slog.Logger
}

// NewFirestore creates a Firestore-backed store. With an empty credentials
// JSON it relies on Application Default Credentials, the same way the
// service authenticates on Cloud Run.
func NewFirestore(ctx context.Context, project, credentialsJSON string, logger *slog.Logger) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := firestore.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	return &Firestore{client: client, logger: logger}, nil
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("firestore get %s/%s: %w", collection, id, err)
	}
	return marshalDoc(snap.Data())
}

func (f *Firestore) Set(ctx context.Context, collection, id string, value any, merge bool) error {
	data, err := toMap(value)
	if err != nil {
		return err
	}

	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}

	if _, err := f.client.Collection(collection).Doc(id).Set(ctx, data, opts...); err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *Firestore) Query(ctx context.Context, collection string, filters ...Filter) ([]json.RawMessage, error) {
	q := f.client.Collection(collection).Query
	for _, flt := range filters {
		q = q.Where(flt.Field, flt.Op, flt.Value)
	}

	var out []json.RawMessage
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore query %s: %w", collection, err)
		}
		raw, err := marshalDoc(snap.Data())
		if err != nil {
			f.logger.Warn("Skipping undecodable document", "collection", collection, "id", snap.Ref.ID, "error", err)
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	if _, err := f.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func marshalDoc(data map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return raw, nil
}

// toMap converts an arbitrary value to the map form Firestore expects,
// honoring the struct's JSON tags so all backends store identical shapes.
func toMap(value any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("value is not a document: %w", err)
	}
	return m, nil
}
