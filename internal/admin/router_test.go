package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatenet/edge-node/internal/accesslog"
	"github.com/gatenet/edge-node/internal/alert"
	"github.com/gatenet/edge-node/internal/faceindex"
	"github.com/gatenet/edge-node/internal/gate"
	"github.com/gatenet/edge-node/internal/sync"
	"github.com/gatenet/edge-node/internal/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(t *testing.T, apiKey string) Deps {
	t.Helper()
	dir := t.TempDir()

	log := testLogger()

	idx := faceindex.New(
		filepath.Join(dir, "faces.bin"),
		filepath.Join(dir, "faces.json"),
		filepath.Join(dir, "version.txt"),
		log,
	)

	logStore, err := accesslog.Open(filepath.Join(dir, "access_log.db"))
	if err != nil {
		t.Fatalf("accesslog.Open: %v", err)
	}
	t.Cleanup(func() { logStore.Close() })

	trk := tracker.New(tracker.Config{
		MinHits:        3,
		MaxAge:         30,
		IoUThreshold:   0.3,
		MatchThreshold: 0.6,
		SwapThreshold:  0.7,
	})

	gateCtl := gate.New(gate.DefaultConfig(), nil, log)
	t.Cleanup(gateCtl.Cleanup)

	hub := alert.NewHub(log)
	alertState := alert.New(alert.DefaultConfig(), hub)

	client := sync.NewClient("http://backend.invalid", "org-1", "token")
	syncWorker := sync.New(client, idx, logStore, time.Minute, log)

	return Deps{
		APIKey:     apiKey,
		GateID:     "gate-1",
		StartedAt:  time.Now(),
		Gate:       gateCtl,
		Tracker:    trk,
		Index:      idx,
		SyncWorker: syncWorker,
		AccessLog:  logStore,
		Alerts:     alertState,
		Hub:        hub,
	}
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	r := NewRouter(testDeps(t, "secret"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzReflectsEmptyIndex(t *testing.T) {
	r := NewRouter(testDeps(t, ""), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 for an empty face index", rec.Code)
	}
}

func TestMetricsIsUnauthenticated(t *testing.T) {
	r := NewRouter(testDeps(t, "secret"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatusRequiresAPIKey(t *testing.T) {
	r := NewRouter(testDeps(t, "secret"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with no API key supplied", rec.Code)
	}
}

func TestStatusWithValidAPIKey(t *testing.T) {
	r := NewRouter(testDeps(t, "secret"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a valid API key", rec.Code)
	}
}

func TestStatusWithWrongAPIKey(t *testing.T) {
	r := NewRouter(testDeps(t, "secret"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 with a wrong API key", rec.Code)
	}
}

func TestStatusOpenWhenNoAPIKeyConfigured(t *testing.T) {
	r := NewRouter(testDeps(t, ""), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when no admin API key is configured", rec.Code)
	}
}
