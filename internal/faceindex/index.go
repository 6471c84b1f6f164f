// Package faceindex implements the in-memory brute-force ANN index over
// 512-D face embeddings, grounded on original_source's
// gate-node/storage/face_db.py FaceDatabase, but resolving its unresolved
// persistence-atomicity question via a shadow-directory-and-rename swap
// (see SPEC_FULL.md §4.10 and DESIGN.md).
package faceindex

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gatenet/edge-node/internal/models"
)

// Match is one search result, sorted ascending by distance.
type Match struct {
	FaceID     string
	Distance   float32
	PersonID   string
	FullName   string
	Status     models.PersonStatus
}

type entry struct {
	FaceID    string
	PersonID  string
	FullName  string
	Status    models.PersonStatus
	Embedding []float32
	deleted   bool
}

// sidecar is the JSON metadata persisted alongside the vector blob.
type sidecar struct {
	Version     string           `json:"version"`
	NextIdx     int              `json:"next_idx"`
	FaceIDToIdx map[string]int   `json:"face_id_to_idx"`
	Metadata    map[int]metaItem `json:"metadata"`
}

type metaItem struct {
	FaceID   string              `json:"face_id"`
	PersonID string              `json:"person_id"`
	FullName string              `json:"full_name"`
	Status   models.PersonStatus `json:"status"`
}

// Index is an in-memory brute-force cosine-distance ANN index with
// persisted metadata and a sync version.
type Index struct {
	mu          sync.RWMutex
	dir         string // directory the index lives in: indexPath, metadataPath, versionPath siblings
	indexPath   string
	metaPath    string
	versionPath string

	entries     map[int]*entry
	faceIDToIdx map[string]int
	nextIdx     int
	version     string
	log         *slog.Logger
}

// New constructs an empty index. indexPath/metaPath/versionPath name the
// three files used on disk; they must live under the same parent
// directory for the shadow-swap persistence strategy to be atomic. The
// live directory itself is a fixed "current" subdirectory of that parent
// (see liveDir); the configured paths are used only for their basenames
// and common parent.
func New(indexPath, metaPath, versionPath string, log *slog.Logger) *Index {
	return &Index{
		dir:         filepath.Dir(indexPath),
		indexPath:   indexPath,
		metaPath:    metaPath,
		versionPath: versionPath,
		entries:     make(map[int]*entry),
		faceIDToIdx: make(map[string]int),
		log:         log,
	}
}

// liveDir is the single directory holding the three persisted files
// together, swapped into place as one unit by Save.
func (idx *Index) liveDir() string {
	return filepath.Join(idx.dir, "current")
}

func l2normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Add adds or updates a face. On a duplicate face_id only metadata is
// updated and the stored vector is left as-is, matching the reference
// implementation's "hnswlib doesn't support update" behaviour. UNKNOWN is
// rejected as an input status — it is a decision-time output only, never a
// stored identity.
func (idx *Index) Add(rec models.FaceRecord) error {
	if rec.Status == models.StatusUnknown {
		return fmt.Errorf("faceindex: refusing to store UNKNOWN as a face status")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if i, ok := idx.faceIDToIdx[rec.FaceID]; ok {
		e := idx.entries[i]
		e.PersonID = rec.PersonID
		e.FullName = rec.FullName
		e.Status = rec.Status
		e.deleted = false
		return nil
	}

	i := idx.nextIdx
	idx.nextIdx++
	idx.entries[i] = &entry{
		FaceID:    rec.FaceID,
		PersonID:  rec.PersonID,
		FullName:  rec.FullName,
		Status:    rec.Status,
		Embedding: l2normalize(rec.Embedding),
	}
	idx.faceIDToIdx[rec.FaceID] = i
	return nil
}

// Remove logically deletes a face: the entry stays in memory marked
// deleted (skipped by Search and Count) and is left out of the blob and
// sidecar written by the next Save.
func (idx *Index) Remove(faceID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if i, ok := idx.faceIDToIdx[faceID]; ok {
		idx.entries[i].deleted = true
		delete(idx.faceIDToIdx, faceID)
	}
}

// Search returns up to k matches within no particular threshold (callers
// apply their own threshold), sorted ascending by cosine distance.
func (idx *Index) Search(query []float32, k int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	q := l2normalize(query)
	matches := make([]Match, 0, len(idx.entries))
	for _, e := range idx.entries {
		if e.deleted || len(e.Embedding) != len(q) {
			continue
		}
		var dot float32
		for i := range q {
			dot += q[i] * e.Embedding[i]
		}
		matches = append(matches, Match{
			FaceID:   e.FaceID,
			Distance: 1 - dot,
			PersonID: e.PersonID,
			FullName: e.FullName,
			Status:   e.Status,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Count returns the number of non-deleted entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, e := range idx.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}

// Version returns the last-recorded sync version.
func (idx *Index) Version() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.version
}

// SetVersion records the new sync version and persists it as part of save.
func (idx *Index) SetVersion(v string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.version = v
}

// Save persists the index atomically: the vector blob, the sidecar JSON,
// and the version file are all written into a fresh shadow directory,
// which is then renamed into place as the live directory in one os.Rename.
// A crash while the shadow directory is being written leaves the previous
// live directory untouched; a crash after the rename leaves the new one
// intact. Blob, sidecar, and version are never swapped independently. The
// one gap is between removing the stale live directory and the rename: a
// crash there leaves no live directory, and Load then starts empty.
func (idx *Index) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	shadow, err := os.MkdirTemp(idx.dir, "index.tmp-")
	if err != nil {
		return fmt.Errorf("faceindex: create shadow dir: %w", err)
	}
	defer os.RemoveAll(shadow)

	blob := idx.encodeBlob()
	if err := os.WriteFile(filepath.Join(shadow, filepath.Base(idx.indexPath)), blob, 0o644); err != nil {
		return fmt.Errorf("faceindex: write vector blob: %w", err)
	}

	sc := idx.encodeSidecar()
	scBytes, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("faceindex: marshal sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(shadow, filepath.Base(idx.metaPath)), scBytes, 0o644); err != nil {
		return fmt.Errorf("faceindex: write sidecar: %w", err)
	}

	if err := os.WriteFile(filepath.Join(shadow, filepath.Base(idx.versionPath)), []byte(idx.version), 0o644); err != nil {
		return fmt.Errorf("faceindex: write version: %w", err)
	}

	// os.Rename cannot replace a non-empty directory, so the stale
	// generation is cleared first. Should the process crash between the
	// two calls, Load's missing-file tolerance degrades this to "start
	// empty" rather than any partially-written or desynchronised state.
	live := idx.liveDir()
	if err := os.RemoveAll(live); err != nil {
		return fmt.Errorf("faceindex: clear stale live dir: %w", err)
	}
	if err := os.Rename(shadow, live); err != nil {
		return fmt.Errorf("faceindex: swap live dir: %w", err)
	}
	return nil
}

// Load reads the persisted index. Missing or corrupt files re-initialise
// an empty index and log the fault rather than preventing startup.
func (idx *Index) Load() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	live := idx.liveDir()

	blob, err := os.ReadFile(filepath.Join(live, filepath.Base(idx.indexPath)))
	if err != nil {
		idx.log.Warn("face index blob unreadable, starting empty", "error", err)
		return
	}
	scBytes, err := os.ReadFile(filepath.Join(live, filepath.Base(idx.metaPath)))
	if err != nil {
		idx.log.Warn("face index sidecar unreadable, starting empty", "error", err)
		return
	}

	var sc sidecar
	if err := json.Unmarshal(scBytes, &sc); err != nil {
		idx.log.Warn("face index sidecar corrupt, starting empty", "error", err)
		return
	}

	entries, err := decodeBlob(blob)
	if err != nil {
		idx.log.Warn("face index blob corrupt, starting empty", "error", err)
		return
	}

	idx.entries = make(map[int]*entry)
	idx.faceIDToIdx = make(map[string]int)
	for i, emb := range entries {
		meta, ok := sc.Metadata[i]
		if !ok {
			continue
		}
		idx.entries[i] = &entry{
			FaceID:    meta.FaceID,
			PersonID:  meta.PersonID,
			FullName:  meta.FullName,
			Status:    meta.Status,
			Embedding: emb,
		}
		idx.faceIDToIdx[meta.FaceID] = i
	}
	idx.nextIdx = sc.NextIdx

	if v, err := os.ReadFile(filepath.Join(live, filepath.Base(idx.versionPath))); err == nil {
		idx.version = string(v)
	}
}

func (idx *Index) encodeSidecar() sidecar {
	sc := sidecar{
		Version:     idx.version,
		NextIdx:     idx.nextIdx,
		FaceIDToIdx: make(map[string]int, len(idx.faceIDToIdx)),
		Metadata:    make(map[int]metaItem, len(idx.entries)),
	}
	for k, v := range idx.faceIDToIdx {
		sc.FaceIDToIdx[k] = v
	}
	for i, e := range idx.entries {
		if e.deleted {
			continue
		}
		sc.Metadata[i] = metaItem{FaceID: e.FaceID, PersonID: e.PersonID, FullName: e.FullName, Status: e.Status}
	}
	return sc
}
