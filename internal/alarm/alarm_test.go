package alarm

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTriggerRespectsCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownPerKind = 50 * time.Millisecond
	s := New(cfg, testLogger())

	var calls int32
	s.beep = func(int, int) { atomic.AddInt32(&calls, 1) }

	if !s.Trigger(Unknown, "", false) {
		t.Fatalf("expected first trigger to fire")
	}
	if s.Trigger(Unknown, "", false) {
		t.Fatalf("expected second trigger to be suppressed by cooldown")
	}

	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&calls) != int32(cfg.Unknown.Beeps) {
		t.Fatalf("expected %d beeps from the single fired trigger, got %d", cfg.Unknown.Beeps, calls)
	}
}

func TestSilentNeverTriggers(t *testing.T) {
	s := New(DefaultConfig(), testLogger())
	if s.Trigger(Silent, "", true) {
		t.Fatalf("SILENT must never trigger")
	}
}

func TestDisabledNeverTriggers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s := New(cfg, testLogger())
	if s.Trigger(Wanted, "", true) {
		t.Fatalf("disabled alarm system must never trigger")
	}
}
