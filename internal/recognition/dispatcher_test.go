package recognition

import (
	"errors"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatenet/edge-node/internal/faceindex"
	"github.com/gatenet/edge-node/internal/models"
	"github.com/gatenet/edge-node/internal/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestIndex(t *testing.T) *faceindex.Index {
	t.Helper()
	dir := t.TempDir()
	return faceindex.New(filepath.Join(dir, "i.bin"), filepath.Join(dir, "m.json"), filepath.Join(dir, "v.txt"), testLogger())
}

// fakeEmbedder returns a fixed embedding regardless of input, letting
// tests drive the search/miss paths deterministically without an ONNX
// model file.
type fakeEmbedder struct {
	vec []float32
	err error
	n   int32
}

func (f *fakeEmbedder) Extract(*image.RGBA) ([]float32, error) {
	atomic.AddInt32(&f.n, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func newConfirmedTrack(tr *tracker.Tracker) tracker.Snapshot {
	tr.Update([]models.Detection{{BBox: models.BBox{10, 10, 110, 110}, Score: 0.9}})
	tr.Update([]models.Detection{{BBox: models.BBox{11, 11, 111, 111}, Score: 0.9}})
	snaps := tr.Update([]models.Detection{{BBox: models.BBox{12, 12, 112, 112}, Score: 0.9}})
	return snaps[0]
}

func waitForIdle(d *Dispatcher, trackID int64) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		pending := d.pending[trackID]
		d.mu.Unlock()
		if !pending {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatchMarksRecognizedOnMatch(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Add(models.FaceRecord{FaceID: "F1", FullName: "Alice", Status: models.StatusAuthorized, Embedding: []float32{1, 0, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	tr := tracker.New(tracker.DefaultConfig())
	snap := newConfirmedTrack(tr)

	cfg := DefaultConfig()
	cfg.Workers = 1
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0}}
	d := New(cfg, tr, idx, embedder, nil, testLogger())
	defer d.Stop()

	frame := models.Frame{Width: 200, Height: 200, Pix: make([]byte, 200*200*3)}
	d.Dispatch([]tracker.Snapshot{withLandmarks(snap)}, frame)
	waitForIdle(d, snap.ID)

	got, ok := tr.Get(snap.ID)
	if !ok || got.Phase != tracker.RECOGNIZED {
		t.Fatalf("expected track recognized, got phase=%v ok=%v", got.Phase, ok)
	}
	if got.Identity.FaceID != "F1" {
		t.Fatalf("expected identity F1, got %+v", got.Identity)
	}
}

func TestDispatchRecordsAttemptOnMiss(t *testing.T) {
	idx := newTestIndex(t)
	tr := tracker.New(tracker.DefaultConfig())
	snap := newConfirmedTrack(tr)

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.MaxAttempts = 3
	embedder := &fakeEmbedder{vec: []float32{0, 1, 0}}
	d := New(cfg, tr, idx, embedder, nil, testLogger())
	defer d.Stop()

	frame := models.Frame{Width: 200, Height: 200, Pix: make([]byte, 200*200*3)}
	d.Dispatch([]tracker.Snapshot{withLandmarks(snap)}, frame)
	waitForIdle(d, snap.ID)

	got, _ := tr.Get(snap.ID)
	if got.Phase == tracker.RECOGNIZED {
		t.Fatalf("expected track to remain unrecognized after one miss, got %v", got.Phase)
	}
	if got.RecognitionAttempts != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", got.RecognitionAttempts)
	}
}

func TestOnRecognizedFiresExactlyOnceOnMatch(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Add(models.FaceRecord{FaceID: "F1", FullName: "Alice", Status: models.StatusAuthorized, Embedding: []float32{1, 0, 0}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	tr := tracker.New(tracker.DefaultConfig())
	snap := newConfirmedTrack(tr)

	var fired int32
	var firedID int64
	cfg := DefaultConfig()
	cfg.Workers = 1
	embedder := &fakeEmbedder{vec: []float32{1, 0, 0}}
	d := New(cfg, tr, idx, embedder, func(id int64) {
		atomic.AddInt32(&fired, 1)
		atomic.StoreInt64(&firedID, id)
	}, testLogger())
	defer d.Stop()

	frame := models.Frame{Width: 200, Height: 200, Pix: make([]byte, 200*200*3)}
	d.Dispatch([]tracker.Snapshot{withLandmarks(snap)}, frame)
	waitForIdle(d, snap.ID)

	// Dispatching again for the same now-RECOGNIZED track must not re-fire:
	// TracksReadyForRecognition would no longer return it, but even a
	// direct re-dispatch must not call MarkRecognized a second time.
	d.Dispatch([]tracker.Snapshot{withLandmarks(snap)}, frame)
	waitForIdle(d, snap.ID)

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("onRecognized fired %d times, want exactly 1", got)
	}
	if got := atomic.LoadInt64(&firedID); got != snap.ID {
		t.Fatalf("onRecognized fired for track %d, want %d", got, snap.ID)
	}
}

func TestOnRecognizedFiresOnceOnExhaustedMiss(t *testing.T) {
	idx := newTestIndex(t)
	tr := tracker.New(tracker.DefaultConfig())
	snap := newConfirmedTrack(tr)

	var fired int32
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.MaxAttempts = 1
	embedder := &fakeEmbedder{vec: []float32{0, 1, 0}}
	d := New(cfg, tr, idx, embedder, func(int64) { atomic.AddInt32(&fired, 1) }, testLogger())
	defer d.Stop()

	frame := models.Frame{Width: 200, Height: 200, Pix: make([]byte, 200*200*3)}
	d.Dispatch([]tracker.Snapshot{withLandmarks(snap)}, frame)
	waitForIdle(d, snap.ID)

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("onRecognized fired %d times on exhausted miss, want exactly 1", got)
	}
}

func TestPendingSetRejectsDuplicateTrack(t *testing.T) {
	idx := newTestIndex(t)
	tr := tracker.New(tracker.DefaultConfig())

	cfg := DefaultConfig()
	cfg.Workers = 1
	embedder := &fakeEmbedder{vec: []float32{0, 1, 0}, err: errors.New("unused")}
	d := New(cfg, tr, idx, embedder, nil, testLogger())
	defer d.Stop()

	if !d.tryMarkPending(7) {
		t.Fatalf("expected first mark to succeed")
	}
	if d.tryMarkPending(7) {
		t.Fatalf("expected second mark for the same track to be rejected while pending")
	}
	d.clearPending(7)
	if !d.tryMarkPending(7) {
		t.Fatalf("expected mark to succeed again after clearing")
	}
}

func withLandmarks(s tracker.Snapshot) tracker.Snapshot {
	s.Landmarks = models.Landmarks{{30, 30}, {90, 30}, {60, 60}, {35, 90}, {85, 90}}
	return s
}
