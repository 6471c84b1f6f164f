// Package tracker implements the phase-based multi-face tracker: the
// central data structure that assigns a stable identity to each physical
// face across frames and gates recognition to run at most once per track.
package tracker

import (
	"math"
	"sync"
	"time"

	"github.com/gatenet/edge-node/internal/models"
	"github.com/gatenet/edge-node/internal/observability"
)

// Phase is a track's position in its lifecycle.
type Phase int

const (
	TENTATIVE Phase = iota
	CONFIRMED
	RECOGNIZED
)

func (p Phase) String() string {
	switch p {
	case CONFIRMED:
		return "CONFIRMED"
	case RECOGNIZED:
		return "RECOGNIZED"
	default:
		return "TENTATIVE"
	}
}

const embeddingHistoryCap = 5

// Track is the persistent identity of one physical face across frames.
// Tracks are owned exclusively by the Tracker; everything outside this
// package only ever sees a Snapshot copy.
type Track struct {
	ID        int64
	BBox      models.BBox
	Score     float32
	Landmarks models.Landmarks

	Phase Phase
	Hits  int
	Age   int
	TimeSinceUpdate int

	Embedding        []float32
	embeddingHistory [][]float32

	Recognized          bool
	RecognitionAttempts int
	Identity            models.Identity

	CreatedAt    time.Time
	RecognizedAt time.Time
}

// Snapshot is a read-only copy of a Track handed to external components.
type Snapshot struct {
	ID                  int64
	BBox                models.BBox
	Score               float32
	Landmarks           models.Landmarks
	Phase               Phase
	Hits                int
	Age                 int
	TimeSinceUpdate     int
	Recognized          bool
	RecognitionAttempts int
	Identity            models.Identity
	CreatedAt           time.Time
}

func (t *Track) snapshot() Snapshot {
	return Snapshot{
		ID:                  t.ID,
		BBox:                t.BBox,
		Score:               t.Score,
		Landmarks:           t.Landmarks,
		Phase:               t.Phase,
		Hits:                t.Hits,
		Age:                 t.Age,
		TimeSinceUpdate:     t.TimeSinceUpdate,
		Recognized:          t.Recognized,
		RecognitionAttempts: t.RecognitionAttempts,
		Identity:            t.Identity,
		CreatedAt:           t.CreatedAt,
	}
}

func (t *Track) pushEmbedding(e []float32) {
	cp := make([]float32, len(e))
	copy(cp, e)
	t.embeddingHistory = append(t.embeddingHistory, cp)
	if len(t.embeddingHistory) > embeddingHistoryCap {
		t.embeddingHistory = t.embeddingHistory[len(t.embeddingHistory)-embeddingHistoryCap:]
	}

	dim := len(cp)
	mean := make([]float32, dim)
	for _, h := range t.embeddingHistory {
		for i, v := range h {
			mean[i] += v
		}
	}
	n := float32(len(t.embeddingHistory))
	for i := range mean {
		mean[i] /= n
	}
	normalize(mean)
	t.Embedding = mean
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -1
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// Config holds tracker policy knobs. See SPEC_FULL.md §4.6 for the
// authoritative defaults.
type Config struct {
	MinHits             int
	MaxAge              int
	IoUThreshold         float32
	MatchThreshold      float32 // max embedding distance accepted as a match
	SwapThreshold        float32 // embedding distance that forces a RECOGNIZED->CONFIRMED reset
	EmbeddingWeight      float32 // cost-matrix weight given to embedding distance vs IoU
	TentativeTimeout     int
	RecognizedTimeout    int
}

// DefaultConfig returns the authoritative defaults decided in SPEC_FULL.md
// for >=10fps operation: min_hits=3, max_age=30, iou_threshold=0.3,
// match_threshold=0.6, swap_threshold=0.7 (swap_threshold > match_threshold).
func DefaultConfig() Config {
	return Config{
		MinHits:           3,
		MaxAge:            30,
		IoUThreshold:      0.3,
		MatchThreshold:    0.6,
		SwapThreshold:     0.7,
		EmbeddingWeight:   0.3,
		TentativeTimeout:  3,
		RecognizedTimeout: 5,
	}
}

// Stats counts lifecycle transitions only, never per-frame activity.
type Stats struct {
	TracksCreated    int64
	TracksConfirmed  int64
	TracksRecognized int64
	TracksRemoved    int64
	SwapResets       int64
}

// Tracker is the phase-based multi-object face tracker.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	tracks map[int64]*Track
	nextID int64
	stats  Stats
}

// New creates a Tracker with the given configuration.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int64]*Track),
		nextID: 1,
	}
}

// Update runs one frame's worth of tracking: ages all tracks, assigns
// detections by cost-gated bipartite matching, creates/promotes/removes
// tracks, and returns a snapshot of every CONFIRMED or RECOGNIZED track.
// Update never panics on degenerate input (nil/empty detections, zero-area
// boxes).
func (tr *Tracker) Update(detections []models.Detection) []Snapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for _, t := range tr.tracks {
		t.Age++
		t.TimeSinceUpdate++
	}

	if len(detections) == 0 {
		tr.removeDead()
		return tr.activeLocked()
	}

	ids := tr.liveTrackIDs()
	assignments, unmatchedDets := tr.assign(detections, ids)

	for detIdx, id := range assignments {
		tr.applyMatch(tr.tracks[id], detections[detIdx])
	}

	for _, detIdx := range unmatchedDets {
		tr.createTrack(detections[detIdx])
	}

	for _, t := range tr.tracks {
		if t.Phase == TENTATIVE && t.Hits >= tr.cfg.MinHits {
			t.Phase = CONFIRMED
			tr.stats.TracksConfirmed++
		}
	}

	tr.removeDead()
	return tr.activeLocked()
}

func (tr *Tracker) liveTrackIDs() []int64 {
	ids := make([]int64, 0, len(tr.tracks))
	for id := range tr.tracks {
		ids = append(ids, id)
	}
	return ids
}

func (tr *Tracker) createTrack(d models.Detection) {
	t := &Track{
		ID:              tr.nextID,
		BBox:            d.BBox,
		Score:           d.Score,
		Landmarks:       d.Landmarks,
		Phase:           TENTATIVE,
		Hits:            1,
		Age:             0,
		TimeSinceUpdate: 0,
		CreatedAt:       time.Now(),
	}
	tr.nextID++
	tr.tracks[t.ID] = t
	tr.stats.TracksCreated++
	observability.TracksCreated.Inc()
}

func (tr *Tracker) applyMatch(t *Track, d models.Detection) {
	t.BBox = d.BBox
	t.Score = d.Score
	t.Landmarks = d.Landmarks
	t.Hits++
	t.TimeSinceUpdate = 0

	if t.Phase == TENTATIVE {
		// Only the match that promotes the track to CONFIRMED seeds it.
		if t.Hits >= tr.cfg.MinHits && len(d.Embedding) > 0 {
			t.pushEmbedding(d.Embedding)
		}
		return
	}

	if len(d.Embedding) == 0 {
		return
	}

	if t.Phase == RECOGNIZED && len(t.Embedding) > 0 {
		dist := 1 - cosineSimilarity(t.Embedding, d.Embedding)
		if dist > tr.cfg.SwapThreshold {
			tr.resetForSwap(t, d.Embedding)
			return
		}
	}

	t.pushEmbedding(d.Embedding)
}

// resetForSwap performs the sole permitted regression out of RECOGNIZED:
// a different person has taken over this track's screen position.
func (tr *Tracker) resetForSwap(t *Track, newEmbedding []float32) {
	t.Phase = CONFIRMED
	t.Recognized = false
	t.Identity = models.Identity{}
	t.RecognitionAttempts = 0
	t.embeddingHistory = nil
	t.pushEmbedding(newEmbedding)
	tr.stats.SwapResets++
}

func (tr *Tracker) removeDead() {
	for id, t := range tr.tracks {
		var timeout int
		switch t.Phase {
		case TENTATIVE:
			timeout = tr.cfg.TentativeTimeout
		case RECOGNIZED:
			timeout = tr.cfg.RecognizedTimeout
		default:
			timeout = tr.cfg.MaxAge
		}
		if t.TimeSinceUpdate > timeout {
			delete(tr.tracks, id)
			tr.stats.TracksRemoved++
		}
	}
}

func (tr *Tracker) activeLocked() []Snapshot {
	out := make([]Snapshot, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		if t.Phase == CONFIRMED || t.Phase == RECOGNIZED {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// TracksReadyForRecognition returns snapshots of CONFIRMED tracks that have
// not yet been recognized.
func (tr *Tracker) TracksReadyForRecognition() []Snapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]Snapshot, 0)
	for _, t := range tr.tracks {
		if t.Phase == CONFIRMED && !t.Recognized {
			out = append(out, t.snapshot())
		}
	}
	return out
}

// ActiveTracks returns CONFIRMED ∪ RECOGNIZED track snapshots.
func (tr *Tracker) ActiveTracks() []Snapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.activeLocked()
}

// Stats returns a copy of the lifecycle counters.
func (tr *Tracker) Stats() Stats {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.stats
}

// MarkRecognized transitions track id to RECOGNIZED with the given identity.
// It is idempotent-by-refusal: if the track is already recognized, is no
// longer CONFIRMED, or no longer exists, it returns false without mutating
// anything. This is the only external trigger for CONFIRMED -> RECOGNIZED.
func (tr *Tracker) MarkRecognized(id int64, identity models.Identity) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.tracks[id]
	if !ok || t.Recognized || t.Phase != CONFIRMED {
		return false
	}

	t.Phase = RECOGNIZED
	t.Recognized = true
	t.Identity = identity
	t.RecognizedAt = time.Now()
	tr.stats.TracksRecognized++
	observability.TracksRecognized.Inc()
	return true
}

// RecordAttempt increments a track's recognition-attempt counter and
// reports whether attempts have now reached maxAttempts. Returns false if
// the track no longer exists.
func (tr *Tracker) RecordAttempt(id int64, maxAttempts int) (exhausted bool, ok bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, exists := tr.tracks[id]
	if !exists {
		return false, false
	}
	t.RecognitionAttempts++
	return t.RecognitionAttempts >= maxAttempts, true
}

// Get returns a snapshot of a single track by id.
func (tr *Tracker) Get(id int64) (Snapshot, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	t, ok := tr.tracks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}
