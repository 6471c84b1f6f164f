// Package evidence uploads face-crop snapshots to an S3-compatible bucket
// as a best-effort enrichment of the access log, grounded on the FD
// teacher's internal/storage/minio.go.
package evidence

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds evidence-store connection settings.
type Config struct {
	Enabled   bool
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Store uploads snapshots. A nil *Store (or one constructed with
// Enabled=false) makes Upload a silent no-op so callers never need to
// branch on whether evidence storage is configured.
type Store struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// New constructs a Store, or returns (nil, nil) when cfg.Enabled is false.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: create client: %w", err)
	}

	return &Store{client: client, bucket: cfg.Bucket, log: log}, nil
}

// EnsureBucket creates the target bucket if it does not already exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if s == nil {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("evidence: check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("evidence: create bucket: %w", err)
		}
	}
	return nil
}

// Upload stores crop under "{gateID}/{trackID}/{timestamp}.jpg" in the
// background and never blocks the caller or propagates an error: a failed
// upload is logged and dropped, matching the "never blocks the
// AccessEvent write" invariant.
func (s *Store) Upload(gateID string, trackID int64, ts time.Time, crop []byte) {
	if s == nil || len(crop) == 0 {
		return
	}

	key := fmt.Sprintf("%s/%d/%d.jpg", gateID, trackID, ts.UnixMilli())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		reader := bytes.NewReader(crop)
		_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(crop)), minio.PutObjectOptions{
			ContentType: "image/jpeg",
		})
		if err != nil {
			s.log.Warn("evidence upload failed", "key", key, "error", err)
		}
	}()
}
