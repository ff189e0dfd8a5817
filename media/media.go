// Package media stores event gallery images in Cloud Storage, with a local
// filesystem fallback for development.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const maxImageSize = 10 << 20 // 10 MiB

// Image describes one stored gallery image.
type Image struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Gallery stores event images either in a GCS bucket or under a local
// directory when no bucket is configured.
type Gallery struct {
	client   *storage.Client
	bucket   string
	localDir string
	logger   *slog.Logger

	// newWriter opens a writer for one upload attempt; swappable in tests.
	newWriter func(ctx context.Context, name string) io.WriteCloser
}

// New creates a gallery. When bucket is empty, images go to localDir; when
// both are empty the gallery is disabled.
func New(ctx context.Context, bucket, localDir string, logger *slog.Logger) (*Gallery, error) {
	g := &Gallery{bucket: bucket, localDir: localDir, logger: logger}

	if bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		g.client = client
		g.newWriter = func(ctx context.Context, name string) io.WriteCloser {
			w := client.Bucket(bucket).Object(name).NewWriter(ctx)
			w.ContentType = mime.TypeByExtension(path.Ext(name))
			return w
		}
		logger.Info("Gallery using Cloud Storage", "bucket", bucket)
		return g, nil
	}

	if localDir != "" {
		if err := os.MkdirAll(localDir, 0o755); err != nil {
			return nil, fmt.Errorf("create local gallery dir: %w", err)
		}
		logger.Info("Gallery using local storage", "dir", localDir)
		return g, nil
	}

	logger.Warn("No gallery storage configured, uploads disabled")
	return g, nil
}

// Enabled reports whether any storage backend is configured.
func (g *Gallery) Enabled() bool { return g.bucket != "" || g.localDir != "" }

// LocalDir returns the local fallback directory, or "" when images live in
// Cloud Storage. Callers serve this directory under /media/.
func (g *Gallery) LocalDir() string {
	if g.bucket != "" {
		return ""
	}
	return g.localDir
}

// objectName builds a collision-free object key under the event's prefix,
// keeping the original extension so content type survives.
func objectName(eventID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("events/%s/%s%s", eventID, uuid.NewString(), ext)
}

func allowedExt(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

// Upload stores one image for an event and returns its public URL.
func (g *Gallery) Upload(ctx context.Context, eventID, filename string, r io.Reader) (*Image, error) {
	if !g.Enabled() {
		return nil, fmt.Errorf("gallery storage not configured")
	}
	if !allowedExt(filename) {
		return nil, fmt.Errorf("unsupported image type %q", path.Ext(filename))
	}

	// Buffer the capped body once so every retry attempt writes the same
	// bytes; streaming the reader into the retry loop would leave later
	// attempts with a drained reader.
	data, err := io.ReadAll(io.LimitReader(r, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageSize)
	}

	name := objectName(eventID, filename)
	if g.bucket == "" {
		return g.uploadLocal(name, data)
	}

	err = retry.Do(
		func() error {
			w := g.newWriter(ctx, name)
			if _, err := w.Write(data); err != nil {
				_ = w.Close()
				return fmt.Errorf("write image: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("close storage writer: %w", err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			g.logger.Warn("Retrying image upload", "object", name, "attempt", attempt+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	g.logger.Info("Gallery image uploaded", "object", name, "event_id", eventID)
	return &Image{Name: name, URL: g.publicURL(name)}, nil
}

func (g *Gallery) uploadLocal(name string, data []byte) (*Image, error) {
	dst := filepath.Join(g.localDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return nil, fmt.Errorf("write image file: %w", err)
	}

	g.logger.Info("Gallery image saved locally", "path", dst)
	return &Image{Name: name, URL: "/media/" + name}, nil
}

// List returns every stored image for an event, name-sorted.
func (g *Gallery) List(ctx context.Context, eventID string) ([]*Image, error) {
	if !g.Enabled() {
		return nil, fmt.Errorf("gallery storage not configured")
	}

	prefix := fmt.Sprintf("events/%s/", eventID)
	if g.bucket == "" {
		return g.listLocal(prefix)
	}

	var images []*Image
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gallery objects: %w", err)
		}
		images = append(images, &Image{Name: attrs.Name, URL: g.publicURL(attrs.Name)})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

func (g *Gallery) listLocal(prefix string) ([]*Image, error) {
	dir := filepath.Join(g.localDir, filepath.FromSlash(prefix))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read gallery dir: %w", err)
	}

	var images []*Image
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := prefix + e.Name()
		images = append(images, &Image{Name: name, URL: "/media/" + name})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

func (g *Gallery) publicURL(name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, name)
}

// Close releases the storage client if one was created.
func (g *Gallery) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
