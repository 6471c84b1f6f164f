// Package vision implements the capture, detection, alignment, embedding,
// and quality-filter stages of the edge pipeline (C1-C5).
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gatenet/edge-node/internal/models"
	"github.com/gatenet/edge-node/internal/observability"
)

// Camera is the capability interface the frame source needs from the
// underlying hardware/software backend. Concrete backends: gocv (cgo
// build) or a synthetic simulator (non-cgo build).
type Camera interface {
	Open(deviceIndex, width, height, fps int) error
	Read() (pix []byte, width, height int, err error)
	Close() error
}

// dropOldestBuffer is a bounded channel that drops the oldest item when
// full rather than blocking the writer, matching SPEC_FULL.md §4.1's
// drop-oldest policy for both the AI and stream buffers.
type dropOldestBuffer struct {
	mu      sync.Mutex
	name    string
	items   []models.Frame
	cap     int
	dropped int64
}

func newDropOldestBuffer(name string, capacity int) *dropOldestBuffer {
	return &dropOldestBuffer{name: name, cap: capacity}
}

func (b *dropOldestBuffer) push(f models.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.cap {
		b.items = b.items[1:]
		b.dropped++
		observability.FramesDropped.WithLabelValues(b.name).Inc()
	}
	b.items = append(b.items, f)
}

func (b *dropOldestBuffer) pop() (models.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return models.Frame{}, false
	}
	f := b.items[0]
	b.items = b.items[1:]
	return f, true
}

func (b *dropOldestBuffer) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Stats reports Frame Source counters.
type Stats struct {
	FramesCaptured  int64
	AIDropped       int64
	StreamDropped   int64
	ObservedFPS     float64
}

// FrameSource owns the camera and fans out captured frames to the bounded
// AI and stream buffers, plus a non-blocking "latest frame" slot.
type FrameSource struct {
	cam    Camera
	logger *slog.Logger

	ai     *dropOldestBuffer
	stream *dropOldestBuffer

	mu            sync.RWMutex
	latest        models.Frame
	hasLatest     bool
	framesCaptured int64

	fpsMu        sync.Mutex
	fpsWindowStart time.Time
	fpsWindowCount int
	observedFPS    float64
}

// NewFrameSource opens the camera with the given parameters. The AI buffer
// has capacity 2 and the stream buffer capacity 5, per SPEC_FULL.md §4.1.
func NewFrameSource(cam Camera, deviceIndex, width, height, fps int, logger *slog.Logger) (*FrameSource, error) {
	if err := cam.Open(deviceIndex, width, height, fps); err != nil {
		return nil, fmt.Errorf("vision: open camera: %w", err)
	}
	return &FrameSource{
		cam:    cam,
		logger: logger,
		ai:     newDropOldestBuffer("ai", 2),
		stream: newDropOldestBuffer("stream", 5),
	}, nil
}

// Run captures frames at the camera's native rate until ctx is cancelled.
// Consecutive read failures are logged and retried; the camera is always
// closed on return.
func (fs *FrameSource) Run(ctx context.Context) {
	defer fs.cam.Close()

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pix, w, h, err := fs.cam.Read()
		if err != nil {
			consecutiveFailures++
			fs.logger.Warn("camera read failed", "error", err, "consecutive_failures", consecutiveFailures)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		consecutiveFailures = 0

		frame := models.Frame{CapturedAt: time.Now(), Width: w, Height: h, Pix: pix}

		fs.mu.Lock()
		fs.latest = frame
		fs.hasLatest = true
		fs.framesCaptured++
		fs.mu.Unlock()

		observability.FramesCaptured.Inc()
		fs.ai.push(frame)
		fs.stream.push(frame)
		fs.tickFPS()
	}
}

func (fs *FrameSource) tickFPS() {
	fs.fpsMu.Lock()
	defer fs.fpsMu.Unlock()
	now := time.Now()
	if fs.fpsWindowStart.IsZero() {
		fs.fpsWindowStart = now
	}
	fs.fpsWindowCount++
	if elapsed := now.Sub(fs.fpsWindowStart); elapsed >= time.Second {
		fs.observedFPS = float64(fs.fpsWindowCount) / elapsed.Seconds()
		observability.ObservedFPS.Set(fs.observedFPS)
		fs.fpsWindowStart = now
		fs.fpsWindowCount = 0
	}
}

// ReadAI pops the next frame from the AI buffer, blocking up to timeout.
func (fs *FrameSource) ReadAI(timeout time.Duration) (models.Frame, bool) {
	return pollBuffer(fs.ai, timeout)
}

// ReadStream pops the next frame from the stream buffer, blocking up to a
// short timeout.
func (fs *FrameSource) ReadStream(timeout time.Duration) (models.Frame, bool) {
	return pollBuffer(fs.stream, timeout)
}

func pollBuffer(b *dropOldestBuffer, timeout time.Duration) (models.Frame, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if f, ok := b.pop(); ok {
			return f, true
		}
		if time.Now().After(deadline) {
			return models.Frame{}, false
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Latest returns the most recently captured frame without blocking.
func (fs *FrameSource) Latest() (models.Frame, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.latest, fs.hasLatest
}

// Stats reports capture counters.
func (fs *FrameSource) Stats() Stats {
	fs.mu.RLock()
	captured := fs.framesCaptured
	fs.mu.RUnlock()

	fs.fpsMu.Lock()
	fps := fs.observedFPS
	fs.fpsMu.Unlock()

	return Stats{
		FramesCaptured: captured,
		AIDropped:      fs.ai.droppedCount(),
		StreamDropped:  fs.stream.droppedCount(),
		ObservedFPS:    fps,
	}
}
