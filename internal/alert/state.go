package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/gatenet/edge-node/internal/models"
	"github.com/gatenet/edge-node/internal/observability"
	"github.com/gatenet/edge-node/pkg/dto"
)

// Mode is one of the display's three mutually-exclusive render modes.
type Mode int

const (
	ModeAlertOnly Mode = iota
	ModeContinuous
	ModeStreaming
)

func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "CONTINUOUS"
	case ModeStreaming:
		return "STREAMING"
	default:
		return "ALERT_ONLY"
	}
}

// Config holds alert-set policy knobs.
type Config struct {
	DisplayDuration time.Duration
	Cooldown        time.Duration
}

// DefaultConfig matches SPEC_FULL.md §4.13: 60s display duration for both
// WANTED and UNKNOWN, 3s per-track insert cooldown.
func DefaultConfig() Config {
	return Config{DisplayDuration: 60 * time.Second, Cooldown: 3 * time.Second}
}

// State owns the alert set and current display mode. Safe for concurrent
// use; show/expire calls from the pipeline race with reads from the
// render loop and the admin HTTP surface.
type State struct {
	cfg  Config
	hub  *Hub
	mode Mode

	mu      sync.Mutex
	entries map[int64]models.AlertEntry
}

// New constructs a State broadcasting over hub. hub may be nil to run
// fully headless (log-only, no websocket transport).
func New(cfg Config, hub *Hub) *State {
	return &State{cfg: cfg, hub: hub, mode: ModeAlertOnly, entries: make(map[int64]models.AlertEntry)}
}

// ShowAlert inserts or refreshes the alert entry for trackID. A repeat
// call within the configured cooldown is a no-op, preventing the same
// still-visible track from spamming refreshes.
func (s *State) ShowAlert(trackID int64, status models.PersonStatus, name string, confidence float32, crop []byte) {
	now := time.Now()

	s.mu.Lock()
	existing, had := s.entries[trackID]
	if had && now.Sub(existing.LastRefreshAt) < s.cfg.Cooldown {
		s.mu.Unlock()
		return
	}

	entry := models.AlertEntry{
		TrackID: trackID, Status: status, Name: name, Confidence: confidence, Crop: crop,
		LastRefreshAt: now,
	}
	if had {
		entry.FirstShownAt = existing.FirstShownAt
	} else {
		entry.FirstShownAt = now
	}
	s.entries[trackID] = entry
	count := len(s.entries)
	s.mu.Unlock()

	observability.AlertsActive.Set(float64(count))
	if s.hub != nil {
		s.hub.Broadcast(dto.AlertEvent{TrackID: trackID, Status: string(status), Name: name, Confidence: confidence, Kind: "shown"})
	}
}

// Sweep removes entries older than DisplayDuration. Call periodically
// from the render loop.
func (s *State) Sweep() {
	now := time.Now()
	var expired []int64

	s.mu.Lock()
	for id, e := range s.entries {
		if now.Sub(e.FirstShownAt) >= s.cfg.DisplayDuration {
			delete(s.entries, id)
			expired = append(expired, id)
		}
	}
	count := len(s.entries)
	s.mu.Unlock()

	observability.AlertsActive.Set(float64(count))
	if s.hub != nil {
		for _, id := range expired {
			s.hub.Broadcast(dto.AlertEvent{TrackID: id, Kind: "expired"})
		}
	}
}

// Active returns the current alert set sorted WANTED before UNKNOWN, then
// by longest-displayed first, matching the render loop's intended order.
func (s *State) Active() []models.AlertEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AlertEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == models.StatusWanted
		}
		return out[i].FirstShownAt.Before(out[j].FirstShownAt)
	})
	return out
}

// Mode returns the current display mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// CycleMode advances to the next display mode in ALERT_ONLY -> CONTINUOUS
// -> STREAMING -> ALERT_ONLY order.
func (s *State) CycleMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = (s.mode + 1) % 3
	return s.mode
}

// SetMode sets the display mode explicitly.
func (s *State) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}
