package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"blogpress/app/internal/apperr"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

type stubStore struct {
	mu        sync.Mutex
	puts      []string
	deletes   []string
	body      []byte
	putErr    error
	deleteErr error
}

func (s *stubStore) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	data, _ := io.ReadAll(body)
	s.body = data
	s.puts = append(s.puts, key)
	return "/uploads/" + key, nil
}

func (s *stubStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, ref)
	return s.deleteErr
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestHandler(t *testing.T, store ObjectStore, maxBytes int64) *Handler {
	t.Helper()

	handler, err := NewHandler(HandlerOptions{Store: store, MaxBytes: maxBytes, Logger: silentLogger()})
	if err != nil {
		t.Fatalf("NewHandler returned error: %v", err)
	}
	return handler
}

func TestAcceptStoresImageUnderThumbnailKey(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	handler := newTestHandler(t, store, 1024)

	ref, err := handler.Accept(context.Background(), Upload{
		Filename:    "cover.png",
		ContentType: "image/png",
		Size:        int64(len(pngBytes)),
		Body:        bytes.NewReader(pngBytes),
	})
	if err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}

	if len(store.puts) != 1 {
		t.Fatalf("expected one put, got %d", len(store.puts))
	}
	key := store.puts[0]
	if !strings.HasPrefix(key, "thumbnails/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
	if ref != "/uploads/"+key {
		t.Fatalf("unexpected ref %q", ref)
	}
	if !bytes.Equal(store.body, pngBytes) {
		t.Fatalf("expected stored body to match upload")
	}
}

func TestAcceptRejectsNonImageBeforeStoring(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	handler := newTestHandler(t, store, 1024)

	_, err := handler.Accept(context.Background(), Upload{
		ContentType: "application/pdf",
		Size:        4,
		Body:        strings.NewReader("%PDF"),
	})
	if apperr.KindOf(err) != apperr.KindUnsupportedMediaType {
		t.Fatalf("expected unsupported media type, got %v", err)
	}

	_, err = handler.Accept(context.Background(), Upload{
		ContentType: "image/png",
		Size:        11,
		Body:        strings.NewReader("plain text!"),
	})
	if apperr.KindOf(err) != apperr.KindUnsupportedMediaType {
		t.Fatalf("expected sniffed mismatch to be rejected, got %v", err)
	}

	if len(store.puts) != 0 {
		t.Fatalf("expected nothing to be stored, got %v", store.puts)
	}
}

func TestAcceptRejectsOversizedUploads(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	handler := newTestHandler(t, store, 16)

	_, err := handler.Accept(context.Background(), Upload{
		ContentType: "image/png",
		Size:        int64(len(pngBytes)),
		Body:        bytes.NewReader(pngBytes),
	})
	if apperr.KindOf(err) != apperr.KindPayloadTooLarge {
		t.Fatalf("expected declared size to be rejected, got %v", err)
	}

	_, err = handler.Accept(context.Background(), Upload{
		ContentType: "image/png; charset=binary",
		Size:        1,
		Body:        bytes.NewReader(pngBytes),
	})
	if apperr.KindOf(err) != apperr.KindPayloadTooLarge {
		t.Fatalf("expected actual size to be rejected, got %v", err)
	}

	if len(store.puts) != 0 {
		t.Fatalf("expected nothing to be stored, got %v", store.puts)
	}
}

func TestReleaseSwallowsStoreErrors(t *testing.T) {
	t.Parallel()

	store := &stubStore{deleteErr: os.ErrPermission}
	handler := newTestHandler(t, store, 1024)

	handler.Release(context.Background(), "/uploads/thumbnails/a.png")
	handler.Release(context.Background(), "")

	if len(store.deletes) != 1 || store.deletes[0] != "/uploads/thumbnails/a.png" {
		t.Fatalf("expected a single delete attempt, got %v", store.deletes)
	}
}

func TestNewHandlerRequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(HandlerOptions{MaxBytes: 1}); err == nil {
		t.Fatalf("expected missing store to fail")
	}
	if _, err := NewHandler(HandlerOptions{Store: &stubStore{}}); err == nil {
		t.Fatalf("expected zero ceiling to fail")
	}
}

func TestLocalStorePutAndDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads/")
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}

	ref, err := store.Put(context.Background(), "thumbnails/a.png", "image/png", bytes.NewReader(pngBytes), int64(len(pngBytes)))
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if ref != "/uploads/thumbnails/a.png" {
		t.Fatalf("unexpected ref %q", ref)
	}

	stored, err := os.ReadFile(filepath.Join(dir, "thumbnails", "a.png"))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !bytes.Equal(stored, pngBytes) {
		t.Fatalf("stored bytes differ")
	}

	if err := store.Delete(context.Background(), ref); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "thumbnails", "a.png")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, got %v", err)
	}

	if err := store.Delete(context.Background(), ref); err != nil {
		t.Fatalf("expected deleting a missing object to succeed, got %v", err)
	}
}

func TestLocalStoreRejectsEscapingReferences(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}

	if err := store.Delete(context.Background(), "/uploads/../secrets.txt"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if err := store.Delete(context.Background(), "https://elsewhere.example/a.png"); err == nil {
		t.Fatalf("expected foreign reference to be rejected")
	}
	if _, err := store.Put(context.Background(), "../x.png", "image/png", bytes.NewReader(nil), 0); err == nil {
		t.Fatalf("expected escaping key to be rejected")
	}
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	objects  map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3StorePutAndDelete(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	store, err := NewS3Store(context.Background(), S3Options{
		Endpoint:     server.URL,
		Region:       "us-east-1",
		Bucket:       "thumbs",
		AccessKey:    "test",
		SecretKey:    "secret",
		PublicURL:    "https://cdn.example.com/",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3Store returned error: %v", err)
	}

	ref, err := store.Put(context.Background(), "thumbnails/a.png", "image/png", bytes.NewReader(pngBytes), int64(len(pngBytes)))
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if ref != "https://cdn.example.com/thumbnails/a.png" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if !bytes.Equal(fake.objects["/thumbs/thumbnails/a.png"], pngBytes) {
		t.Fatalf("expected object to be uploaded path-style, got %v", fake.requests)
	}

	if err := store.Delete(context.Background(), ref); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := fake.objects["/thumbs/thumbnails/a.png"]; ok {
		t.Fatalf("expected object to be deleted")
	}

	if err := store.Delete(context.Background(), "/uploads/other.png"); err == nil {
		t.Fatalf("expected foreign reference to be rejected")
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewS3Store(context.Background(), S3Options{}); err == nil {
		t.Fatalf("expected missing bucket to fail")
	}
}
