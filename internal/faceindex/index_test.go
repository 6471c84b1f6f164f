package faceindex

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gatenet/edge-node/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func unitVec(seed float32, dim int) []float32 {
	v := make([]float32, dim)
	v[0] = 1 + seed
	return v
}

func TestAddNormalizesEmbedding(t *testing.T) {
	idx := New("x", "y", "z", testLogger())
	idx.Add(models.FaceRecord{FaceID: "f1", Status: models.StatusAuthorized, Embedding: []float32{3, 4}})
	m := idx.Search([]float32{3, 4}, 1)
	if len(m) != 1 {
		t.Fatalf("expected 1 match")
	}
	if m[0].Distance > 1e-3 {
		t.Fatalf("expected near-zero distance to itself, got %f", m[0].Distance)
	}
}

func TestAddRejectsUnknownStatus(t *testing.T) {
	idx := New("x", "y", "z", testLogger())
	if err := idx.Add(models.FaceRecord{FaceID: "f1", Status: models.StatusUnknown, Embedding: []float32{1}}); err == nil {
		t.Fatalf("expected UNKNOWN status to be rejected")
	}
}

func TestDuplicateFaceIDUpdatesMetadataOnly(t *testing.T) {
	idx := New("x", "y", "z", testLogger())
	idx.Add(models.FaceRecord{FaceID: "f1", FullName: "Alice", Status: models.StatusAuthorized, Embedding: []float32{1, 0}})
	idx.Add(models.FaceRecord{FaceID: "f1", FullName: "Alice Renamed", Status: models.StatusAuthorized, Embedding: []float32{0, 1}})

	m := idx.Search([]float32{1, 0}, 1)
	if len(m) != 1 || m[0].FullName != "Alice Renamed" {
		t.Fatalf("expected metadata updated but vector kept from original insert")
	}
	if m[0].Distance > 1e-3 {
		t.Fatalf("vector should be unchanged (still close to original [1,0]), got distance %f", m[0].Distance)
	}
}

func TestRemoveIsLogicalDelete(t *testing.T) {
	idx := New("x", "y", "z", testLogger())
	idx.Add(models.FaceRecord{FaceID: "f1", Status: models.StatusAuthorized, Embedding: []float32{1, 0}})
	idx.Remove("f1")
	if idx.Count() != 0 {
		t.Fatalf("expected count 0 after remove")
	}
	if len(idx.Search([]float32{1, 0}, 1)) != 0 {
		t.Fatalf("removed face must not be searchable")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.bin")
	metaPath := filepath.Join(dir, "meta.json")
	versionPath := filepath.Join(dir, "version.txt")

	idx := New(indexPath, metaPath, versionPath, testLogger())
	idx.Add(models.FaceRecord{FaceID: "f1", FullName: "Alice", Status: models.StatusAuthorized, Embedding: []float32{1, 2, 3}})
	idx.Add(models.FaceRecord{FaceID: "f2", FullName: "Bob", Status: models.StatusWanted, Embedding: []float32{3, 2, 1}})
	idx.SetVersion("V1")
	if err := idx.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded := New(indexPath, metaPath, versionPath, testLogger())
	reloaded.Load()

	if reloaded.Count() != 2 {
		t.Fatalf("expected count 2 after reload, got %d", reloaded.Count())
	}
	if reloaded.Version() != "V1" {
		t.Fatalf("expected version V1, got %q", reloaded.Version())
	}

	m := reloaded.Search([]float32{1, 2, 3}, 1)
	if len(m) != 1 || m[0].FaceID != "f1" {
		t.Fatalf("expected reloaded search to find f1, got %+v", m)
	}
}

func TestLoadToleratesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "missing.bin"), filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.txt"), testLogger())
	idx.Load() // must not panic
	if idx.Count() != 0 {
		t.Fatalf("expected empty index after tolerant load")
	}
}
