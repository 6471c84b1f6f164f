package tracker

import (
	"testing"

	"github.com/gatenet/edge-node/internal/models"
)

func unitEmbedding(seed float32) []float32 {
	v := make([]float32, 8)
	v[0] = 1
	for i := 1; i < len(v); i++ {
		v[i] = seed * 0.01
	}
	normalize(v)
	return v
}

func detAt(x float32, emb []float32) models.Detection {
	return models.Detection{
		BBox:      models.BBox{x, 10, x + 40, 50},
		Score:     0.9,
		Embedding: emb,
	}
}

func TestTentativeToConfirmedPromotion(t *testing.T) {
	tr := New(DefaultConfig())
	var last []Snapshot
	for i := 0; i < 3; i++ {
		last = tr.Update([]models.Detection{detAt(100, nil)})
	}
	if len(last) != 1 {
		t.Fatalf("expected 1 active track after min_hits frames, got %d", len(last))
	}
	if last[0].Phase != CONFIRMED {
		t.Fatalf("expected CONFIRMED, got %v", last[0].Phase)
	}
	if got := tr.Stats().TracksConfirmed; got != 1 {
		t.Fatalf("expected exactly one tracks_confirmed increment, got %d", got)
	}
}

func TestEmptyDetectionsAgesAndNeverPanics(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Update([]models.Detection{detAt(100, nil)})
	out := tr.Update(nil)
	if len(out) != 0 {
		t.Fatalf("expected no active (still TENTATIVE) tracks, got %d", len(out))
	}
}

func TestZeroAreaBBoxNeverMatched(t *testing.T) {
	tr := New(DefaultConfig())
	zero := models.Detection{BBox: models.BBox{10, 10, 10, 10}, Score: 0.9}
	tr.Update([]models.Detection{zero})
	out := tr.Update([]models.Detection{zero})
	// both frames create a fresh TENTATIVE track since IoU is always 0 for
	// zero-area boxes against themselves; confirm nothing panics and no
	// track is ever confirmed from zero-area input alone.
	for _, s := range out {
		if s.Phase != TENTATIVE {
			t.Fatalf("zero-area detections should never confirm a track")
		}
	}
}

func TestMarkRecognizedIdempotentRefusal(t *testing.T) {
	tr := New(DefaultConfig())
	for i := 0; i < 3; i++ {
		tr.Update([]models.Detection{detAt(100, nil)})
	}
	ready := tr.TracksReadyForRecognition()
	if len(ready) != 1 {
		t.Fatalf("expected one track ready for recognition, got %d", len(ready))
	}
	id := ready[0].ID

	ok1 := tr.MarkRecognized(id, models.Identity{FaceID: "f1", Status: models.StatusAuthorized})
	if !ok1 {
		t.Fatalf("first mark_recognized should succeed")
	}
	ok2 := tr.MarkRecognized(id, models.Identity{FaceID: "f2", Status: models.StatusWanted})
	if ok2 {
		t.Fatalf("second mark_recognized must be refused")
	}

	snap, _ := tr.Get(id)
	if snap.Identity.FaceID != "f1" {
		t.Fatalf("identity must not change after refusal, got %q", snap.Identity.FaceID)
	}
	if snap.Phase != RECOGNIZED || !snap.Recognized {
		t.Fatalf("track must be RECOGNIZED")
	}
}

func TestSwapDetectionResetsToConfirmed(t *testing.T) {
	tr := New(DefaultConfig())
	embA := unitEmbedding(1)
	for i := 0; i < 3; i++ {
		tr.Update([]models.Detection{detAt(100, embA)})
	}
	ready := tr.TracksReadyForRecognition()
	id := ready[0].ID
	tr.MarkRecognized(id, models.Identity{FaceID: "A", Status: models.StatusAuthorized})

	// a near-orthogonal embedding at the same position simulates a
	// different person taking over the bbox
	embB := make([]float32, len(embA))
	embB[len(embB)-1] = 1
	normalize(embB)

	out := tr.Update([]models.Detection{detAt(100, embB)})
	if len(out) != 1 {
		t.Fatalf("expected 1 active track after swap, got %d", len(out))
	}
	if out[0].Phase != CONFIRMED {
		t.Fatalf("expected swap to reset phase to CONFIRMED, got %v", out[0].Phase)
	}
	if out[0].Recognized {
		t.Fatalf("swap must clear recognized flag")
	}
	if out[0].Identity.FaceID != "" {
		t.Fatalf("swap must clear identity")
	}
	if tr.Stats().SwapResets != 1 {
		t.Fatalf("expected one swap reset counted")
	}
}

func TestRecognizedTrackShortTimeout(t *testing.T) {
	cfg := DefaultConfig()
	tr := New(cfg)
	for i := 0; i < 3; i++ {
		tr.Update([]models.Detection{detAt(100, nil)})
	}
	id := tr.TracksReadyForRecognition()[0].ID
	tr.MarkRecognized(id, models.Identity{FaceID: "A", Status: models.StatusAuthorized})

	for i := 0; i <= cfg.RecognizedTimeout; i++ {
		tr.Update(nil)
	}
	if _, ok := tr.Get(id); ok {
		t.Fatalf("RECOGNIZED track should be removed once its misses exceed RecognizedTimeout")
	}
}

func TestHungarianPrefersGloballyOptimalAssignment(t *testing.T) {
	cost := [][]float32{
		{1, 2},
		{2, 1},
	}
	result := hungarian(cost)
	if result[0] != 0 || result[1] != 1 {
		t.Fatalf("expected diagonal assignment minimising total cost, got %v", result)
	}
}
