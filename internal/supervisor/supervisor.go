// Package supervisor owns startup ordering and graceful shutdown for the
// edge node: face index, vision adapters, gate controller, frame source,
// alarm, worker goroutines (sync, recognition pool, alert sweep), and the
// admin HTTP surface. Grounded on the FD teacher's cmd/worker/main.go
// signal-handling and ordered-bring-up pattern, generalised into a
// reusable type so cmd/gatenode/main.go stays a thin entrypoint.
package supervisor

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/gatenet/edge-node/internal/accesslog"
	"github.com/gatenet/edge-node/internal/admin"
	"github.com/gatenet/edge-node/internal/alarm"
	"github.com/gatenet/edge-node/internal/alert"
	"github.com/gatenet/edge-node/internal/apperr"
	"github.com/gatenet/edge-node/internal/config"
	"github.com/gatenet/edge-node/internal/decision"
	"github.com/gatenet/edge-node/internal/evidence"
	"github.com/gatenet/edge-node/internal/faceindex"
	"github.com/gatenet/edge-node/internal/gate"
	"github.com/gatenet/edge-node/internal/models"
	"github.com/gatenet/edge-node/internal/observability"
	"github.com/gatenet/edge-node/internal/recognition"
	"github.com/gatenet/edge-node/internal/sync"
	"github.com/gatenet/edge-node/internal/tracker"
	"github.com/gatenet/edge-node/internal/vision"
)

// Supervisor wires and owns every long-lived component of the node.
type Supervisor struct {
	cfg *config.Config
	log *slog.Logger

	index      *faceindex.Index
	accessLog  *accesslog.Store
	evidence   *evidence.Store
	detector   *vision.Detector
	embedder   *vision.Embedder
	quality    *vision.Filter
	camera     vision.Camera
	frames     *vision.FrameSource
	trk        *tracker.Tracker
	dispatcher *recognition.Dispatcher
	gateCtl    *gate.Controller
	alarmSys   *alarm.System
	alertHub   *alert.Hub
	alertState *alert.State
	syncClient *sync.Client
	syncWorker *sync.Worker
	admin      *http.Server

	// recognized carries one-shot CONFIRMED->RECOGNIZED (or exhausted-miss)
	// transitions from the recognition dispatcher's callback to
	// runRecognized, so a track is ever booked (AccessEvent, gate, alarm)
	// exactly once, not once per frame it remains in view.
	recognized chan int64

	startedAt time.Time
}

// New constructs and wires every component but does not start any
// goroutines yet. It fails fast if a mandatory resource (face index
// directory, detector/embedder model) cannot be opened.
func New(cfg *config.Config, log *slog.Logger) (*Supervisor, error) {
	s := &Supervisor{cfg: cfg, log: log}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.IndexPath), 0o755); err != nil {
		return nil, apperr.New(apperr.KindResourceUnavailable, "faceindex", err)
	}
	s.index = faceindex.New(cfg.Storage.IndexPath, cfg.Storage.MetadataPath, cfg.Storage.VersionPath, log.With("component", "faceindex"))
	s.index.Load()

	accessStore, err := accesslog.Open(cfg.Storage.LogDBPath)
	if err != nil {
		return nil, apperr.New(apperr.KindResourceUnavailable, "accesslog", err)
	}
	s.accessLog = accessStore

	evStore, err := evidence.New(evidence.Config{
		Enabled: cfg.Evidence.Enabled, Endpoint: cfg.Evidence.Endpoint, Bucket: cfg.Evidence.Bucket,
		AccessKey: cfg.Evidence.AccessKey, SecretKey: cfg.Evidence.SecretKey, UseSSL: cfg.Evidence.UseSSL,
	}, log.With("component", "evidence"))
	if err != nil {
		return nil, apperr.New(apperr.KindResourceUnavailable, "evidence", err)
	}
	s.evidence = evStore

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, apperr.New(apperr.KindResourceUnavailable, "onnxruntime", err)
	}

	detector, err := vision.NewDetector(cfg.Models.DetectorPath, 0.5, nil)
	if err != nil {
		return nil, apperr.New(apperr.KindResourceUnavailable, "detector", err)
	}
	s.detector = detector

	embedder, err := vision.NewEmbedder(cfg.Models.EmbedderPath)
	if err != nil {
		return nil, apperr.New(apperr.KindResourceUnavailable, "embedder", err)
	}
	s.embedder = embedder

	s.quality = vision.NewFilter(vision.DefaultQualityConfig())

	if cfg.Camera.FPS <= 0 {
		cfg.Camera.FPS = 15
	}
	s.camera = vision.NewGoCVCamera()
	frames, err := vision.NewFrameSource(s.camera, cfg.Camera.Index, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS, log.With("component", "frame_source"))
	if err != nil {
		return nil, apperr.New(apperr.KindResourceUnavailable, "camera", err)
	}
	s.frames = frames

	s.trk = tracker.New(tracker.Config{
		MinHits: cfg.Tracker.MinHits, MaxAge: cfg.Tracker.MaxAge,
		IoUThreshold: float32(cfg.Tracker.IoUThreshold), MatchThreshold: float32(cfg.Tracker.MatchThreshold),
		SwapThreshold: float32(cfg.Tracker.SwapThreshold), EmbeddingWeight: 0.3,
		TentativeTimeout: 3, RecognizedTimeout: 5,
	})

	s.recognized = make(chan int64, 64)
	s.dispatcher = recognition.New(recognition.Config{
		Workers: cfg.Recog.Workers, MaxAttempts: cfg.Recog.MaxAttempts, MatchThreshold: 0.4,
	}, s.trk, s.index, embedder, s.onRecognized, log.With("component", "recognition"))

	s.gateCtl = gate.New(gate.Config{
		GPIOEnabled: cfg.GPIO.Enabled, PinName: cfg.GPIO.Pin, ActiveLow: cfg.GPIO.ActiveLow,
		OpenDuration: time.Duration(cfg.Gate.OpenDurationSeconds) * time.Second,
		Cooldown:     time.Duration(cfg.Gate.CooldownSeconds) * time.Second,
	}, func(open bool) { observability.GateState.Set(boolToFloat(open)) }, log.With("component", "gate"))

	alarmCfg := alarm.DefaultConfig()
	alarmCfg.Enabled = cfg.Alarm.Enabled
	alarmCfg.GPIOEnabled = cfg.GPIO.Enabled
	alarmCfg.GPIOPinName = cfg.GPIO.Pin
	s.alarmSys = alarm.New(alarmCfg, log.With("component", "alarm"))

	s.alertHub = alert.NewHub(log.With("component", "alert_hub"))
	alertCfg := alert.DefaultConfig()
	alertCfg.DisplayDuration = time.Duration(cfg.Display.AlertDisplaySeconds) * time.Second
	s.alertState = alert.New(alertCfg, s.alertHub)

	s.syncClient = sync.NewClient(cfg.Backend.URL, cfg.OrgID, cfg.Backend.AuthToken)
	s.syncWorker = sync.New(s.syncClient, s.index, s.accessLog, cfg.Backend.SyncInterval, log.With("component", "sync"))

	s.startedAt = time.Now()
	return s, nil
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Run starts every worker goroutine and the admin HTTP surface, then
// blocks until ctx is cancelled (typically by a signal handler in main),
// at which point it shuts everything down in reverse order.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.frames.Run(runCtx)
	go s.syncWorker.Run(runCtx)
	go s.runAlertSweep(runCtx)
	go s.runPipeline(runCtx)
	go s.runRecognized(runCtx)

	if s.cfg.Admin.Enabled {
		router := admin.NewRouter(admin.Deps{
			APIKey: s.cfg.Admin.APIKey, GateID: s.cfg.GateID, StartedAt: s.startedAt,
			Gate: s.gateCtl, Tracker: s.trk, Index: s.index, SyncWorker: s.syncWorker,
			AccessLog: s.accessLog, Alerts: s.alertState, Hub: s.alertHub,
		}, s.log.With("component", "admin"))
		s.admin = &http.Server{Addr: s.cfg.Admin.ListenAddr, Handler: router}

		go s.alertHub.Run(runCtx.Done())
		go func() {
			s.log.Info("admin http surface listening", "addr", s.cfg.Admin.ListenAddr)
			if err := s.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Error("admin http server error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	s.log.Info("supervisor: shutdown signal received")
	return s.shutdown()
}

// onRecognized is the recognition dispatcher's one-shot callback: it fires
// exactly once per track, at the moment MarkRecognized actually performs
// the CONFIRMED->RECOGNIZED transition (match found or attempts
// exhausted). It never blocks the dispatcher's worker goroutine.
func (s *Supervisor) onRecognized(trackID int64) {
	select {
	case s.recognized <- trackID:
	default:
		s.log.Warn("recognized-track queue full, dropping booking", "track_id", trackID)
	}
}

// runRecognized performs the once-per-track booking (AccessEvent, gate,
// alarm, alert) for every track the dispatcher has just transitioned, per
// SPEC_FULL.md §8 S1/S2's exactly-once guarantees.
func (s *Supervisor) runRecognized(ctx context.Context) {
	thresholds := decision.Thresholds{
		AuthThreshold: float32(s.cfg.Decision.AuthThreshold), WantedThreshold: float32(s.cfg.Decision.WantedThreshold),
	}
	for {
		select {
		case <-ctx.Done():
			return
		case trackID := <-s.recognized:
			snap, ok := s.trk.Get(trackID)
			if !ok {
				continue
			}
			s.handleRecognized(snap, thresholds)
		}
	}
}

func (s *Supervisor) runAlertSweep(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.alertState.Sweep()
		}
	}
}

// runPipeline is the per-frame hot loop: capture -> detect -> quality
// filter -> track -> dispatch recognition. Booking a recognized track
// (AccessEvent, gate, alarm) happens separately in runRecognized, driven
// by the dispatcher's one-shot transition callback, not by this loop.
func (s *Supervisor) runPipeline(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.runFrame()
	}
}

// runFrame processes one captured frame. A panic anywhere in the chain is
// recovered and logged rather than taking down the pipeline goroutine, per
// the per-frame recovery policy: no single frame may stall the node.
func (s *Supervisor) runFrame() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered from panic in frame pipeline", "panic", r)
		}
	}()

	frame, ok := s.frames.ReadAI(200 * time.Millisecond)
	if !ok {
		return
	}

	dets, err := s.detector.Detect(frame)
	if err != nil {
		s.log.Error("detect failed", "error", err)
		return
	}

	var kept []models.Detection
	for _, d := range dets {
		if s.quality.Evaluate(frame, d, false) == vision.RejectNone {
			kept = append(kept, d)
		}
	}

	snapshots := s.trk.Update(kept)
	observability.TracksActive.Set(float64(len(snapshots)))

	ready := s.trk.TracksReadyForRecognition()
	s.dispatcher.Dispatch(ready, frame)
}

func (s *Supervisor) handleRecognized(snap tracker.Snapshot, thresholds decision.Thresholds) {
	matchFound := snap.Identity.FaceID != ""
	outcome := decision.Decide(matchFound, snap.Identity.Status, snap.Identity.Confidence, thresholds)

	if outcome.Decision == models.DecisionOpen {
		s.gateCtl.Open(string(outcome.Status), snap.Identity.Confidence)
	} else {
		s.gateCtl.Reject()
	}

	if outcome.Alert {
		kind := alarm.Unknown
		if outcome.Status == models.StatusWanted {
			kind = alarm.Wanted
		}
		s.alarmSys.Trigger(kind, snap.Identity.FullName, false)
		s.alertState.ShowAlert(snap.ID, outcome.Status, snap.Identity.FullName, snap.Identity.Confidence, nil)
	}

	event := models.AccessEvent{
		EventID: uuid.NewString(), Timestamp: time.Now(), GateID: s.cfg.GateID, TrackID: snap.ID,
		FaceID: snap.Identity.FaceID, PersonName: snap.Identity.FullName, Status: outcome.Status,
		Decision: outcome.Decision, Confidence: snap.Identity.Confidence,
	}
	if err := s.accessLog.Append(event); err != nil {
		s.log.Error("append access event failed", "error", err)
	}
	s.evidence.Upload(s.cfg.GateID, snap.ID, event.Timestamp, nil)

	observability.GateDecisions.WithLabelValues(string(outcome.Status)).Inc()
}

func (s *Supervisor) shutdown() error {
	if s.admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.admin.Shutdown(shutdownCtx)
	}

	s.dispatcher.Stop()
	s.gateCtl.Cleanup()

	if err := s.index.Save(); err != nil {
		s.log.Error("final face index save failed", "error", err)
	}
	if err := s.accessLog.Close(); err != nil {
		s.log.Error("close access log failed", "error", err)
	}

	s.detector.Close()
	s.embedder.Close()
	ort.DestroyEnvironment()

	if err := s.camera.Close(); err != nil {
		s.log.Warn("camera close failed", "error", err)
	}

	s.log.Info("supervisor: shutdown complete")
	return nil
}
