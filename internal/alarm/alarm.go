// Package alarm implements the non-blocking frequency/duration beeper,
// grounded on original_source's gate-node/core/alarm.py AlarmSystem. Unlike
// the reference implementation, there is no package-level singleton: the
// system is constructed once by the supervisor and passed explicitly to
// every caller, per SPEC_FULL.md §9.
package alarm

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"

	"github.com/gatenet/edge-node/internal/observability"
)

// Kind identifies which beep sequence to play.
type Kind string

const (
	Wanted     Kind = "WANTED"
	Unknown    Kind = "UNKNOWN"
	Authorized Kind = "AUTHORIZED"
	Silent     Kind = "SILENT"
)

// ToneConfig is one kind's beep sequence.
type ToneConfig struct {
	FrequencyHz int
	DurationMs  int
	Beeps       int
	GapMs       int
}

// Config holds per-kind sequences, global enable, and cooldown.
type Config struct {
	Enabled            bool
	Wanted             ToneConfig
	Unknown            ToneConfig
	Authorized         ToneConfig
	AuthorizedEnabled  bool
	CooldownPerKind    time.Duration
	GPIOEnabled        bool
	GPIOPinName        string
}

// DefaultConfig matches original_source's AlarmConfig defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Wanted:            ToneConfig{FrequencyHz: 2500, DurationMs: 500, Beeps: 5, GapMs: 100},
		Unknown:           ToneConfig{FrequencyHz: 1500, DurationMs: 300, Beeps: 1, GapMs: 150},
		Authorized:        ToneConfig{FrequencyHz: 800, DurationMs: 100, Beeps: 1, GapMs: 0},
		AuthorizedEnabled: false,
		CooldownPerKind:   5 * time.Second,
	}
}

// beepFunc plays one tone; platform backends implement this signature.
type beepFunc func(frequencyHz, durationMs int)

// System is the alarm beeper.
type System struct {
	cfg  Config
	log  *slog.Logger
	beep beepFunc

	mu        sync.Mutex
	lastAlarm map[Kind]time.Time
}

// New constructs an alarm System, picking a beep backend: GPIO PWM when
// enabled and a pin resolves, otherwise a terminal-bell/`beep` command
// fallback mirroring the reference implementation's Linux path.
func New(cfg Config, log *slog.Logger) *System {
	s := &System{cfg: cfg, log: log, lastAlarm: make(map[Kind]time.Time)}

	if cfg.GPIOEnabled {
		if pin := gpioreg.ByName(cfg.GPIOPinName); pin != nil {
			s.beep = gpioBeep(pin, log)
			return s
		}
		log.Warn("alarm gpio pin not found, falling back to system beep", "pin", cfg.GPIOPinName)
	}
	s.beep = systemBeep(log)
	return s
}

func gpioBeep(pin gpio.PinIO, log *slog.Logger) beepFunc {
	return func(frequencyHz, durationMs int) {
		if err := pin.PWM(128); err != nil { // ~50% duty cycle
			log.Debug("gpio pwm beep failed, no fallback available mid-sequence", "error", err)
			return
		}
		time.Sleep(time.Duration(durationMs) * time.Millisecond)
		_ = pin.Out(gpio.Low)
	}
}

func systemBeep(log *slog.Logger) beepFunc {
	return func(frequencyHz, durationMs int) {
		cmd := exec.Command("beep", "-f", fmt.Sprintf("%d", frequencyHz), "-l", fmt.Sprintf("%d", durationMs))
		if err := cmd.Run(); err != nil {
			fmt.Print("\a") // terminal bell fallback
		}
	}
}

// Trigger schedules a beep sequence on a background goroutine and returns
// immediately. It returns false (and plays nothing) if the system is
// disabled, the kind is SILENT, or the per-kind cooldown has not elapsed
// (force bypasses the cooldown).
func (s *System) Trigger(kind Kind, personName string, force bool) bool {
	if !s.cfg.Enabled || kind == Silent {
		return false
	}

	now := time.Now()
	s.mu.Lock()
	last := s.lastAlarm[kind]
	if !force && now.Sub(last) < s.cfg.CooldownPerKind {
		s.mu.Unlock()
		s.log.Debug("alarm skipped by cooldown", "kind", kind)
		return false
	}
	s.lastAlarm[kind] = now
	s.mu.Unlock()

	nameSuffix := ""
	if personName != "" {
		nameSuffix = " (" + personName + ")"
	}
	s.log.Warn("alarm triggered", "kind", kind, "person", nameSuffix)
	observability.AlarmTriggered.WithLabelValues(string(kind)).Inc()

	go s.play(kind)
	return true
}

func (s *System) play(kind Kind) {
	var tc ToneConfig
	switch kind {
	case Wanted:
		tc = s.cfg.Wanted
	case Unknown:
		tc = s.cfg.Unknown
	case Authorized:
		if !s.cfg.AuthorizedEnabled {
			return
		}
		tc = s.cfg.Authorized
	default:
		return
	}

	for i := 0; i < tc.Beeps; i++ {
		s.beep(tc.FrequencyHz, tc.DurationMs)
		if i < tc.Beeps-1 {
			time.Sleep(time.Duration(tc.GapMs) * time.Millisecond)
		}
	}
}
