package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newLocalGallery(t *testing.T) *Gallery {
	t.Helper()
	g, err := New(context.Background(), "", t.TempDir(), quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

func TestUploadAndListLocal(t *testing.T) {
	g := newLocalGallery(t)
	ctx := context.Background()

	img, err := g.Upload(ctx, "e1", "cover.png", strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(img.Name, "events/e1/") || !strings.HasSuffix(img.Name, ".png") {
		t.Errorf("Name = %q", img.Name)
	}
	if !strings.HasPrefix(img.URL, "/media/events/e1/") {
		t.Errorf("URL = %q", img.URL)
	}

	if _, err := g.Upload(ctx, "e1", "second.jpg", strings.NewReader("jpg bytes")); err != nil {
		t.Fatalf("Upload() second error = %v", err)
	}

	images, err := g.List(ctx, "e1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("List() = %d images, want 2", len(images))
	}

	other, err := g.List(ctx, "e2")
	if err != nil {
		t.Fatalf("List() empty event error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("List() for other event = %d images, want 0", len(other))
	}
}

func TestUploadRejectsUnknownType(t *testing.T) {
	g := newLocalGallery(t)

	if _, err := g.Upload(context.Background(), "e1", "notes.txt", strings.NewReader("hi")); err == nil {
		t.Error("Upload() accepted .txt, want rejection")
	}
}

func TestUploadRejectsOversized(t *testing.T) {
	g := newLocalGallery(t)

	big := strings.NewReader(strings.Repeat("x", maxImageSize+2))
	if _, err := g.Upload(context.Background(), "e1", "huge.png", big); err == nil {
		t.Error("Upload() accepted oversized image, want rejection")
	}
}

// flakyWriter captures what one upload attempt wrote and can fail on Close,
// the way a bucket writer surfaces transient errors.
type flakyWriter struct {
	buf  bytes.Buffer
	fail bool
}

func (w *flakyWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *flakyWriter) Close() error {
	if w.fail {
		return errors.New("transient storage error")
	}
	return nil
}

func TestUploadRetryWritesFullBody(t *testing.T) {
	var writers []*flakyWriter
	g := &Gallery{
		bucket: "club-gallery",
		logger: quietLogger(),
		newWriter: func(context.Context, string) io.WriteCloser {
			w := &flakyWriter{fail: len(writers) == 0}
			writers = append(writers, w)
			return w
		},
	}

	body := strings.Repeat("jpeg bytes ", 100)
	img, err := g.Upload(context.Background(), "e1", "group.jpg", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(writers) != 2 {
		t.Fatalf("Upload() opened %d writers, want 2", len(writers))
	}
	if got := writers[1].buf.String(); got != body {
		t.Errorf("retry attempt wrote %d bytes, want the full %d-byte body", len(got), len(body))
	}
	if !strings.HasPrefix(img.URL, "https://storage.googleapis.com/club-gallery/") {
		t.Errorf("URL = %q", img.URL)
	}
}

func TestDisabledGallery(t *testing.T) {
	g, err := New(context.Background(), "", "", quietLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if g.Enabled() {
		t.Error("Enabled() = true with no backend")
	}
	if _, err := g.Upload(context.Background(), "e1", "a.png", strings.NewReader("x")); err == nil {
		t.Error("Upload() on disabled gallery = nil error")
	}
	if _, err := g.List(context.Background(), "e1"); err == nil {
		t.Error("List() on disabled gallery = nil error")
	}
}

func TestObjectNameUnique(t *testing.T) {
	a := objectName("e1", "photo.JPG")
	b := objectName("e1", "photo.JPG")
	if a == b {
		t.Error("objectName() returned duplicate names")
	}
	if !strings.HasSuffix(a, ".jpg") {
		t.Errorf("objectName() = %q, want lowercased extension", a)
	}
}
