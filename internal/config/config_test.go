package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTOML(t, `
gate_id = "gate-1"
org_id = "org-1"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Camera.Width != 640 || cfg.Camera.Height != 480 || cfg.Camera.FPS != 15 {
		t.Errorf("camera defaults = %+v", cfg.Camera)
	}
	if cfg.Decision.AuthThreshold != 0.5 || cfg.Decision.WantedThreshold != 0.5 {
		t.Errorf("decision defaults = %+v", cfg.Decision)
	}
	if cfg.Tracker.SwapThreshold != 0.7 || cfg.Tracker.MatchThreshold != 0.6 {
		t.Errorf("tracker defaults = %+v", cfg.Tracker)
	}
	if cfg.Recog.MaxAttempts != 3 || cfg.Recog.Workers != 2 {
		t.Errorf("recognition defaults = %+v", cfg.Recog)
	}
	if cfg.Gate.OpenDurationSeconds != 5 || cfg.Gate.CooldownSeconds != 2 {
		t.Errorf("gate defaults = %+v", cfg.Gate)
	}
	if cfg.Storage.DataDir != "./data" || cfg.Storage.LogDBPath != "./data/access_log.db" {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.Admin.ListenAddr != ":8080" {
		t.Errorf("admin default listen addr = %q", cfg.Admin.ListenAddr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Backend.SyncIntervalSecond != 30 {
		t.Errorf("sync interval default = %d", cfg.Backend.SyncIntervalSecond)
	}
	if cfg.Backend.SyncInterval.Seconds() != 30 {
		t.Errorf("derived sync interval = %v", cfg.Backend.SyncInterval)
	}
}

func TestLoadExplicitValuesNotOverwritten(t *testing.T) {
	path := writeTOML(t, `
gate_id = "gate-1"
org_id = "org-1"

[camera]
width = 1280
height = 720
fps = 30

[decision]
auth_threshold = 0.8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 || cfg.Camera.FPS != 30 {
		t.Errorf("camera overrides lost: %+v", cfg.Camera)
	}
	if cfg.Decision.AuthThreshold != 0.8 {
		t.Errorf("auth threshold override lost: %v", cfg.Decision.AuthThreshold)
	}
	if cfg.Decision.WantedThreshold != 0.5 {
		t.Errorf("wanted threshold should still default: %v", cfg.Decision.WantedThreshold)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTOML(t, `
gate_id = "gate-1"
org_id = "org-1"
`)

	t.Setenv("GATE_ID", "gate-env")
	t.Setenv("GATE_CAMERA_WIDTH", "800")
	t.Setenv("GATE_AUTH_THRESHOLD", "0.9")
	t.Setenv("GATE_GPIO_ENABLED", "true")
	t.Setenv("GATE_SYNC_INTERVAL_SECONDS", "60")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GateID != "gate-env" {
		t.Errorf("GateID = %q, want env override", cfg.GateID)
	}
	if cfg.Camera.Width != 800 {
		t.Errorf("Camera.Width = %d, want env override", cfg.Camera.Width)
	}
	if cfg.Decision.AuthThreshold != 0.9 {
		t.Errorf("AuthThreshold = %v, want env override", cfg.Decision.AuthThreshold)
	}
	if !cfg.GPIO.Enabled {
		t.Error("GPIO.Enabled should be true from env override")
	}
	if cfg.Backend.SyncInterval.Seconds() != 60 {
		t.Errorf("derived SyncInterval = %v, want 60s", cfg.Backend.SyncInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error loading a nonexistent config file")
	}
}

func TestLoadMalformedEnvValuesIgnored(t *testing.T) {
	path := writeTOML(t, `
gate_id = "gate-1"
org_id = "org-1"
`)
	t.Setenv("GATE_CAMERA_WIDTH", "not-a-number")
	t.Setenv("GATE_AUTH_THRESHOLD", "not-a-float")
	t.Setenv("GATE_GPIO_ENABLED", "not-a-bool")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Camera.Width != 640 {
		t.Errorf("malformed int override should be ignored, got %d", cfg.Camera.Width)
	}
	if cfg.Decision.AuthThreshold != 0.5 {
		t.Errorf("malformed float override should be ignored, got %v", cfg.Decision.AuthThreshold)
	}
	if cfg.GPIO.Enabled {
		t.Error("malformed bool override should be ignored")
	}
}
