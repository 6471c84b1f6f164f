// Package recognition implements the bounded worker pool that runs
// alignment, embedding, and face-index lookup off the main pipeline loop,
// calling back into the tracker to record a terminal recognition outcome
// at most once per track. Grounded on SPEC_FULL.md §4.7 and, for the
// worker-pool shape, on the FD teacher's queue/consumer pattern.
package recognition

import (
	"image"
	"log/slog"
	"sync"

	"github.com/gatenet/edge-node/internal/faceindex"
	"github.com/gatenet/edge-node/internal/models"
	"github.com/gatenet/edge-node/internal/observability"
	"github.com/gatenet/edge-node/internal/tracker"
	"github.com/gatenet/edge-node/internal/vision"
)

// Aligner is the capability the dispatcher needs from vision.Aligner.
type Aligner interface {
	Align(frame models.Frame, det models.Detection) (*image.RGBA, error)
}

// Embedder is the capability the dispatcher needs from vision.Embedder.
type Embedder interface {
	Extract(aligned *image.RGBA) ([]float32, error)
}

// Config holds dispatcher policy knobs.
type Config struct {
	Workers        int
	MaxAttempts    int
	MatchThreshold float32 // max cosine distance accepted as an identity match
}

// DefaultConfig matches SPEC_FULL.md §4.7: 2 workers, 3 attempts before a
// track is terminally marked UNKNOWN.
func DefaultConfig() Config {
	return Config{Workers: 2, MaxAttempts: 3, MatchThreshold: 0.4}
}

// job is one recognition attempt: a frame-bound snapshot of a track ready
// for recognition.
type job struct {
	trackID  int64
	bbox     models.BBox
	score    float32
	landmarks models.Landmarks
	frame    models.Frame
}

// Dispatcher owns the worker pool, the pending-set gate, and the
// align/embed/search chain.
type Dispatcher struct {
	cfg      Config
	tr       *tracker.Tracker
	index    *faceindex.Index
	aligner  Aligner
	embedder Embedder
	log      *slog.Logger

	// onRecognized fires exactly once per track, at the moment it actually
	// transitions CONFIRMED -> RECOGNIZED (match found or attempts
	// exhausted). It is the only one-shot signal callers should act on;
	// a track's Recognized flag stays true on every later frame, so acting
	// on that flag instead would re-fire for as long as the face stays in
	// view.
	onRecognized func(trackID int64)

	jobs chan job

	mu      sync.Mutex
	pending map[int64]bool

	wg sync.WaitGroup
}

// New constructs a Dispatcher and starts its worker pool. Stop must be
// called to drain workers on shutdown. onRecognized may be nil.
func New(cfg Config, tr *tracker.Tracker, index *faceindex.Index, embedder Embedder, onRecognized func(trackID int64), log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:          cfg,
		tr:           tr,
		index:        index,
		aligner:      vision.NewAligner(),
		embedder:     embedder,
		onRecognized: onRecognized,
		log:          log,
		jobs:         make(chan job, cfg.Workers),
		pending:      make(map[int64]bool),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Stop closes the job queue and waits for in-flight workers to finish.
func (d *Dispatcher) Stop() {
	close(d.jobs)
	d.wg.Wait()
}

// Dispatch submits every track ready for recognition that is not already
// in flight. It never blocks the caller: if the pool's queue is full for a
// given track, that track is simply retried on the next call.
func (d *Dispatcher) Dispatch(ready []tracker.Snapshot, frame models.Frame) {
	for _, t := range ready {
		if !d.tryMarkPending(t.ID) {
			continue
		}

		j := job{trackID: t.ID, bbox: t.BBox, score: t.Score, landmarks: t.Landmarks, frame: frame}
		select {
		case d.jobs <- j:
		default:
			d.clearPending(t.ID)
			d.log.Debug("recognition pool saturated, deferring", "track_id", t.ID)
		}
	}
}

func (d *Dispatcher) tryMarkPending(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[id] {
		return false
	}
	d.pending[id] = true
	return true
}

func (d *Dispatcher) clearPending(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.process(j)
		d.clearPending(j.trackID)
	}
}

func (d *Dispatcher) process(j job) {
	det := models.Detection{BBox: j.bbox, Score: j.score, Landmarks: j.landmarks}

	aligned, err := d.aligner.Align(j.frame, det)
	if err != nil {
		d.recordMiss(j.trackID)
		return
	}

	embedding, err := d.embedder.Extract(aligned)
	if err != nil {
		d.log.Error("embedding extraction failed", "track_id", j.trackID, "error", err)
		d.recordMiss(j.trackID)
		return
	}

	matches := d.index.Search(embedding, 1)
	if len(matches) == 0 || matches[0].Distance > d.cfg.MatchThreshold {
		d.recordMiss(j.trackID)
		return
	}

	best := matches[0]
	identity := models.Identity{
		FaceID:     best.FaceID,
		PersonID:   best.PersonID,
		FullName:   best.FullName,
		Status:     best.Status,
		Confidence: 1 - best.Distance,
	}
	observability.RecognitionAttempts.WithLabelValues("match").Inc()
	if d.tr.MarkRecognized(j.trackID, identity) {
		d.fireRecognized(j.trackID)
	}
}

func (d *Dispatcher) recordMiss(trackID int64) {
	exhausted, ok := d.tr.RecordAttempt(trackID, d.cfg.MaxAttempts)
	if !ok {
		return
	}
	if exhausted {
		observability.RecognitionAttempts.WithLabelValues("exhausted").Inc()
		if d.tr.MarkRecognized(trackID, models.Identity{Status: models.StatusUnknown}) {
			d.fireRecognized(trackID)
		}
		return
	}
	observability.RecognitionAttempts.WithLabelValues("miss").Inc()
}

func (d *Dispatcher) fireRecognized(trackID int64) {
	if d.onRecognized != nil {
		d.onRecognized(trackID)
	}
}
