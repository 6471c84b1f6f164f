// Package gate drives the physical gate relay: open/extend/auto-close with
// a cooldown, grounded on original_source's
// gate-node/core/gate_control.py GateController.
package gate

import (
	"log/slog"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"

	"github.com/gatenet/edge-node/internal/observability"
)

// State is the gate's two-state machine.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "OPEN"
	}
	return "CLOSED"
}

// Stats counts gate operations for observability.
type Stats struct {
	TotalOpens       int64
	AuthorizedOpens  int64
	WantedOpens      int64
	RejectedUnknown  int64
}

// Config configures the relay pin and timing policy.
type Config struct {
	GPIOEnabled  bool
	PinName      string
	ActiveLow    bool
	OpenDuration time.Duration
	Cooldown     time.Duration
}

// DefaultConfig matches SPEC_FULL.md §4.9's defaults: 5s open duration, 2s cooldown.
func DefaultConfig() Config {
	return Config{OpenDuration: 5 * time.Second, Cooldown: 2 * time.Second}
}

// Controller drives the gate relay. All operations are serialised by a
// single mutex, including the auto-close timer's own callback, exactly as
// the reference implementation does.
type Controller struct {
	cfg Config
	log *slog.Logger

	pin gpio.PinIO

	mu           sync.Mutex
	state        State
	lastOpenTime time.Time
	closeTimer   *time.Timer
	stats        Stats

	onStateChange func(open bool)
}

// New constructs a Controller. If cfg.GPIOEnabled is false, or the named pin
// cannot be resolved, the controller runs in simulation mode (log only).
func New(cfg Config, onStateChange func(open bool), log *slog.Logger) *Controller {
	c := &Controller{cfg: cfg, log: log, onStateChange: onStateChange, state: Closed}

	if cfg.GPIOEnabled {
		if p := gpioreg.ByName(cfg.PinName); p != nil {
			c.pin = p
		} else {
			log.Warn("gpio pin not found, running in simulation mode", "pin", cfg.PinName)
		}
	}

	c.setRelay(false)
	return c
}

func (c *Controller) setRelay(openState bool) {
	level := gpio.Low
	if openState != c.cfg.ActiveLow {
		level = gpio.High
	}
	if c.pin != nil {
		if err := c.pin.Out(level); err != nil {
			c.log.Error("gate relay drive failed", "error", err)
		}
		return
	}
	c.log.Info("simulated relay", "open", openState)
}

// Open drives the relay on if CLOSED, or extends the auto-close timer if
// already OPEN without re-driving the relay — matching the reference
// implementation's explicit "extend" semantics.
func (c *Controller) Open(status string, confidence float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}

	if c.state == Open {
		if now.Sub(c.lastOpenTime) < c.cfg.Cooldown {
			c.log.Debug("open suppressed by cooldown")
		}
		c.closeTimer = time.AfterFunc(c.cfg.OpenDuration, c.autoClose)
		c.log.Info("gate extended", "status", status)
		c.bumpCounters(status)
		return
	}

	c.setRelay(true)
	c.state = Open
	c.lastOpenTime = now
	c.closeTimer = time.AfterFunc(c.cfg.OpenDuration, c.autoClose)
	c.bumpCounters(status)
	observability.GateOpenTotal.Inc()

	if c.onStateChange != nil {
		c.onStateChange(true)
	}
	c.log.Info("gate opened", "status", status, "confidence", confidence)
}

func (c *Controller) bumpCounters(status string) {
	c.stats.TotalOpens++
	switch status {
	case "AUTHORIZED":
		c.stats.AuthorizedOpens++
	case "WANTED":
		c.stats.WantedOpens++
	}
}

// Close cancels any pending auto-close timer and drives the relay off. It
// is a no-op when already CLOSED.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Controller) closeLocked() {
	if c.state == Closed {
		return
	}
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	c.setRelay(false)
	c.state = Closed
	if c.onStateChange != nil {
		c.onStateChange(false)
	}
	c.log.Info("gate closed")
}

func (c *Controller) autoClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Info("gate auto-close timer fired")
	c.closeLocked()
}

// Reject records a rejection without touching the relay.
func (c *Controller) Reject() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.RejectedUnknown++
}

// Stats returns a copy of the gate operation counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// IsOpen reports the current state.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Open
}

// Cleanup cancels any pending timer and forces the relay to its inactive
// level. Must be called on every shutdown path.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	c.setRelay(false)
	c.state = Closed
}
