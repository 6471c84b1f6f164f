package sync

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/gatenet/edge-node/internal/accesslog"
	"github.com/gatenet/edge-node/internal/faceindex"
	"github.com/gatenet/edge-node/internal/models"
	"github.com/gatenet/edge-node/internal/observability"
	"github.com/gatenet/edge-node/pkg/dto"
)

// Status is a point-in-time snapshot of the worker's sync/upload health.
type Status struct {
	LastSyncSuccess bool
	LastSyncTime    time.Time
	SyncError       string
	FaceDBVersion   string
	FaceDBCount     int
}

// Worker runs the periodic faces-sync loop and the access-log upload loop.
type Worker struct {
	client   *Client
	index    *faceindex.Index
	log      *accesslog.Store
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	status Status
}

// New constructs a sync Worker.
func New(client *Client, index *faceindex.Index, logStore *accesslog.Store, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{client: client, index: index, log: logStore, interval: interval, logger: logger}
}

// Run blocks, syncing immediately and then on every tick, until ctx is
// cancelled. Each tick also drains a batch of unsynced access-log rows.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("sync worker started", "initial_count", w.index.Count(), "version", w.index.Version())
	w.syncFaces(ctx)
	w.uploadLogs(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.syncFaces(ctx)
			w.uploadLogs(ctx)
		}
	}
}

// syncFaces performs one delta-sync round: apply deletes, then upserts
// individually (never a destructive full rebuild), persist, record the new
// version. Network failures are transient and never propagate.
func (w *Worker) syncFaces(ctx context.Context) {
	if w.client.TokenExpiringSoon(w.interval) {
		w.logger.Warn("backend auth token expires within one sync interval")
	}
	current := w.index.Version()
	resp, err := w.client.FetchFaces(ctx, current)
	if err != nil {
		w.logger.Warn("face sync failed", "error", err)
		w.mu.Lock()
		w.status.LastSyncSuccess = false
		w.status.SyncError = err.Error()
		w.mu.Unlock()
		observability.SyncSuccess.Set(0)
		return
	}

	for _, faceID := range resp.Deletes {
		w.index.Remove(faceID)
	}

	added := 0
	for _, u := range resp.Upserts {
		rec := models.FaceRecord{
			FaceID:    u.ID,
			PersonID:  u.PersonID,
			FullName:  u.FullName,
			Status:    models.PersonStatus(u.Status),
			Embedding: u.Embedding,
		}
		if err := w.index.Add(rec); err != nil {
			w.logger.Error("failed to add synced face", "face_id", u.ID, "error", err)
			continue
		}
		added++
	}

	if len(resp.Upserts) > 0 || len(resp.Deletes) > 0 {
		w.index.SetVersion(resp.Version)
		if err := w.index.Save(); err != nil {
			w.logger.Error("failed to persist face index after sync", "error", err)
		}
		w.logger.Info("sync ok", "upserts", added, "deletes", len(resp.Deletes), "count", w.index.Count(), "version", resp.Version)
	} else {
		w.logger.Info("no updates from backend")
	}

	w.mu.Lock()
	w.status.LastSyncSuccess = true
	w.status.LastSyncTime = time.Now()
	w.status.SyncError = ""
	w.status.FaceDBVersion = w.index.Version()
	w.status.FaceDBCount = w.index.Count()
	w.mu.Unlock()

	observability.SyncSuccess.Set(1)
	observability.FaceDBCount.Set(float64(w.status.FaceDBCount))
}

// uploadLogs drains up to 50 unsynced access events and uploads them,
// matching the reference implementation's batch size.
func (w *Worker) uploadLogs(ctx context.Context) {
	events, err := w.log.UnsyncedBatch(50)
	if err != nil {
		w.logger.Error("reading unsynced events failed", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	entries := make([]dto.AccessLogEntry, 0, len(events))
	for _, e := range events {
		var cropB64 string
		if len(e.FaceCrop) > 0 {
			cropB64 = base64.StdEncoding.EncodeToString(e.FaceCrop)
		}
		entries = append(entries, dto.AccessLogEntry{
			ID: e.EventID, Timestamp: e.Timestamp.Unix(), GateID: e.GateID, TrackID: e.TrackID,
			FaceID: e.FaceID, Name: e.PersonName, Status: string(e.Status), Decision: string(e.Decision),
			Confidence: e.Confidence, FaceCropB64: cropB64,
		})
	}

	if err := w.client.UploadLogs(ctx, entries); err != nil {
		w.logger.Warn("log upload failed", "error", err)
		return
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.EventID)
	}
	if err := w.log.MarkSynced(ids); err != nil {
		w.logger.Error("marking events synced failed", "error", err)
		return
	}
	w.logger.Info("uploaded access logs", "count", len(events))
}

// Status returns a copy of the current sync/upload health snapshot.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}
