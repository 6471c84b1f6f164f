package evidence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDisabledReturnsNilStore(t *testing.T) {
	s, err := New(Config{Enabled: false}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil store when disabled, got %+v", s)
	}
}

func TestNilStoreUploadIsNoOp(t *testing.T) {
	var s *Store
	// Must not panic on a nil receiver, and must return immediately.
	s.Upload("gate-1", 42, time.Now(), []byte("jpeg-bytes"))
}

func TestNilStoreEnsureBucketIsNoOp(t *testing.T) {
	var s *Store
	if err := s.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket on nil store: %v", err)
	}
}

func TestEnabledStoreUploadSkipsEmptyCrop(t *testing.T) {
	s, err := New(Config{
		Enabled:   true,
		Endpoint:  "127.0.0.1:9000",
		Bucket:    "evidence",
		AccessKey: "key",
		SecretKey: "secret",
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s == nil {
		t.Fatal("expected a non-nil store when enabled")
	}
	// An empty crop must not spawn an upload goroutine or touch the client.
	s.Upload("gate-1", 42, time.Now(), nil)
}
