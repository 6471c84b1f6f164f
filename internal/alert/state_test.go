package alert

import (
	"testing"
	"time"

	"github.com/gatenet/edge-node/internal/models"
)

func TestShowAlertRespectsCooldown(t *testing.T) {
	s := New(Config{DisplayDuration: time.Minute, Cooldown: time.Hour}, nil)

	s.ShowAlert(1, models.StatusUnknown, "", 0.2, nil)
	first := s.Active()[0].LastRefreshAt

	s.ShowAlert(1, models.StatusUnknown, "", 0.9, nil)
	second := s.Active()[0]

	if !second.LastRefreshAt.Equal(first) {
		t.Fatalf("expected refresh to be suppressed within cooldown")
	}
	if second.Confidence != 0.2 {
		t.Fatalf("expected original confidence retained, got %v", second.Confidence)
	}
}

func TestSweepExpiresOldEntries(t *testing.T) {
	s := New(Config{DisplayDuration: time.Nanosecond, Cooldown: 0}, nil)
	s.ShowAlert(1, models.StatusWanted, "Bob", 0.8, nil)

	time.Sleep(time.Millisecond)
	s.Sweep()

	if len(s.Active()) != 0 {
		t.Fatalf("expected expired entry to be removed")
	}
}

func TestActiveSortsWantedBeforeUnknown(t *testing.T) {
	s := New(DefaultConfig(), nil)
	s.ShowAlert(1, models.StatusUnknown, "", 0.1, nil)
	s.ShowAlert(2, models.StatusWanted, "Eve", 0.9, nil)

	active := s.Active()
	if len(active) != 2 || active[0].Status != models.StatusWanted {
		t.Fatalf("expected WANTED entry first, got %+v", active)
	}
}

func TestCycleModeWrapsAround(t *testing.T) {
	s := New(DefaultConfig(), nil)
	if s.Mode() != ModeAlertOnly {
		t.Fatalf("expected initial mode ALERT_ONLY")
	}
	if m := s.CycleMode(); m != ModeContinuous {
		t.Fatalf("expected CONTINUOUS, got %v", m)
	}
	if m := s.CycleMode(); m != ModeStreaming {
		t.Fatalf("expected STREAMING, got %v", m)
	}
	if m := s.CycleMode(); m != ModeAlertOnly {
		t.Fatalf("expected wrap to ALERT_ONLY, got %v", m)
	}
}
