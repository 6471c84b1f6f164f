// Package config loads the edge node's TOML configuration file and
// applies GATE_-prefixed environment variable overrides, grounded on the
// FD teacher's internal/config/config.go override structure (file +
// env-var layering) but switched from YAML to TOML per the domain stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	GateID string `toml:"gate_id"`
	OrgID  string `toml:"org_id"`

	Backend  BackendConfig  `toml:"backend"`
	Camera   CameraConfig   `toml:"camera"`
	Models   ModelsConfig   `toml:"models"`
	Decision DecisionConfig `toml:"decision"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Recog    RecogConfig    `toml:"recognition"`
	GPIO     GPIOConfig     `toml:"gpio"`
	Gate     GateConfig     `toml:"gate"`
	Display  DisplayConfig  `toml:"display"`
	Alarm    AlarmConfig    `toml:"alarm"`
	Storage  StorageConfig  `toml:"storage"`
	Admin    AdminConfig    `toml:"admin"`
	Evidence EvidenceConfig `toml:"evidence"`
	Logging  LoggingConfig  `toml:"logging"`
}

type BackendConfig struct {
	URL                string        `toml:"url"`
	AuthToken          string        `toml:"auth_token"`
	SyncIntervalSecond int           `toml:"sync_interval_seconds"`
	SyncInterval       time.Duration `toml:"-"`
}

type CameraConfig struct {
	Index  int `toml:"index"`
	Width  int `toml:"width"`
	Height int `toml:"height"`
	FPS    int `toml:"fps"`
}

type ModelsConfig struct {
	DetectorPath string `toml:"detector_path"`
	EmbedderPath string `toml:"embedder_path"`
}

type DecisionConfig struct {
	AuthThreshold   float64 `toml:"auth_threshold"`
	WantedThreshold float64 `toml:"wanted_threshold"`
}

type TrackerConfig struct {
	MinHits        int     `toml:"min_hits"`
	MaxAge         int     `toml:"max_age"`
	IoUThreshold   float64 `toml:"iou_threshold"`
	MatchThreshold float64 `toml:"match_threshold"`
	SwapThreshold  float64 `toml:"swap_threshold"`
}

type RecogConfig struct {
	MaxAttempts          int `toml:"max_recognition_attempts"`
	TrackCooldownSeconds int `toml:"track_cooldown_seconds"`
	Workers              int `toml:"workers"`
}

type GPIOConfig struct {
	Enabled   bool   `toml:"enabled"`
	Pin       string `toml:"pin"`
	ActiveLow bool   `toml:"active_low"`
}

type GateConfig struct {
	OpenDurationSeconds int `toml:"open_duration_seconds"`
	CooldownSeconds     int `toml:"cooldown_seconds"`
}

type DisplayConfig struct {
	Enabled             bool   `toml:"enabled"`
	Width               int    `toml:"width"`
	Height              int    `toml:"height"`
	Mode                string `toml:"mode"`
	Fullscreen          bool   `toml:"fullscreen"`
	AlertDisplaySeconds int    `toml:"alert_display_duration_seconds"`
}

type AlarmConfig struct {
	Enabled          bool    `toml:"enabled"`
	WantedBeepCount  int     `toml:"wanted_beep_count"`
	WantedFreqHz     float64 `toml:"wanted_freq_hz"`
	UnknownBeepCount int     `toml:"unknown_beep_count"`
	UnknownFreqHz    float64 `toml:"unknown_freq_hz"`
	CooldownSeconds  int     `toml:"cooldown_seconds"`
}

type StorageConfig struct {
	DataDir      string `toml:"data_dir"`
	LogDBPath    string `toml:"log_db_path"`
	IndexPath    string `toml:"index_path"`
	MetadataPath string `toml:"metadata_path"`
	VersionPath  string `toml:"version_path"`
}

type AdminConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	APIKey     string `toml:"api_key"`
}

type EvidenceConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads config from a TOML file, applies GATE_-prefixed environment
// overrides, and fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)
	cfg.Backend.SyncInterval = time.Duration(cfg.Backend.SyncIntervalSecond) * time.Second

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 15
	}
	if cfg.Backend.SyncIntervalSecond == 0 {
		cfg.Backend.SyncIntervalSecond = 30
	}
	if cfg.Decision.AuthThreshold == 0 {
		cfg.Decision.AuthThreshold = 0.5
	}
	if cfg.Decision.WantedThreshold == 0 {
		cfg.Decision.WantedThreshold = 0.5
	}
	if cfg.Tracker.MinHits == 0 {
		cfg.Tracker.MinHits = 3
	}
	if cfg.Tracker.MaxAge == 0 {
		cfg.Tracker.MaxAge = 30
	}
	if cfg.Tracker.IoUThreshold == 0 {
		cfg.Tracker.IoUThreshold = 0.3
	}
	if cfg.Tracker.MatchThreshold == 0 {
		cfg.Tracker.MatchThreshold = 0.6
	}
	if cfg.Tracker.SwapThreshold == 0 {
		cfg.Tracker.SwapThreshold = 0.7
	}
	if cfg.Recog.MaxAttempts == 0 {
		cfg.Recog.MaxAttempts = 3
	}
	if cfg.Recog.Workers == 0 {
		cfg.Recog.Workers = 2
	}
	if cfg.Gate.OpenDurationSeconds == 0 {
		cfg.Gate.OpenDurationSeconds = 5
	}
	if cfg.Gate.CooldownSeconds == 0 {
		cfg.Gate.CooldownSeconds = 2
	}
	if cfg.Display.AlertDisplaySeconds == 0 {
		cfg.Display.AlertDisplaySeconds = 60
	}
	if cfg.Display.Mode == "" {
		cfg.Display.Mode = "ALERT_ONLY"
	}
	if cfg.Alarm.CooldownSeconds == 0 {
		cfg.Alarm.CooldownSeconds = 5
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.LogDBPath == "" {
		cfg.Storage.LogDBPath = cfg.Storage.DataDir + "/access_log.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = cfg.Storage.DataDir + "/faces.bin"
	}
	if cfg.Storage.MetadataPath == "" {
		cfg.Storage.MetadataPath = cfg.Storage.DataDir + "/faces.json"
	}
	if cfg.Storage.VersionPath == "" {
		cfg.Storage.VersionPath = cfg.Storage.DataDir + "/version.txt"
	}
	if cfg.Admin.ListenAddr == "" {
		cfg.Admin.ListenAddr = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	str("GATE_ID", &cfg.GateID)
	str("GATE_ORG_ID", &cfg.OrgID)
	str("GATE_BACKEND_URL", &cfg.Backend.URL)
	str("GATE_BACKEND_AUTH_TOKEN", &cfg.Backend.AuthToken)
	integer("GATE_SYNC_INTERVAL_SECONDS", &cfg.Backend.SyncIntervalSecond)

	integer("GATE_CAMERA_INDEX", &cfg.Camera.Index)
	integer("GATE_CAMERA_WIDTH", &cfg.Camera.Width)
	integer("GATE_CAMERA_HEIGHT", &cfg.Camera.Height)
	integer("GATE_CAMERA_FPS", &cfg.Camera.FPS)

	str("GATE_DETECTOR_MODEL_PATH", &cfg.Models.DetectorPath)
	str("GATE_EMBEDDER_MODEL_PATH", &cfg.Models.EmbedderPath)

	float("GATE_AUTH_THRESHOLD", &cfg.Decision.AuthThreshold)
	float("GATE_WANTED_THRESHOLD", &cfg.Decision.WantedThreshold)

	integer("GATE_MAX_RECOGNITION_ATTEMPTS", &cfg.Recog.MaxAttempts)
	integer("GATE_TRACK_COOLDOWN_SECONDS", &cfg.Recog.TrackCooldownSeconds)

	integer("GATE_TRACKER_MIN_HITS", &cfg.Tracker.MinHits)
	integer("GATE_TRACKER_MAX_AGE", &cfg.Tracker.MaxAge)
	float("GATE_TRACKER_IOU_THRESHOLD", &cfg.Tracker.IoUThreshold)
	float("GATE_TRACKER_MATCH_THRESHOLD", &cfg.Tracker.MatchThreshold)
	float("GATE_TRACKER_SWAP_THRESHOLD", &cfg.Tracker.SwapThreshold)

	boolean("GATE_GPIO_ENABLED", &cfg.GPIO.Enabled)
	str("GATE_GPIO_PIN", &cfg.GPIO.Pin)
	boolean("GATE_GPIO_ACTIVE_LOW", &cfg.GPIO.ActiveLow)

	integer("GATE_GATE_OPEN_DURATION", &cfg.Gate.OpenDurationSeconds)
	integer("GATE_GATE_COOLDOWN", &cfg.Gate.CooldownSeconds)

	boolean("GATE_DISPLAY_ENABLED", &cfg.Display.Enabled)
	str("GATE_DISPLAY_MODE", &cfg.Display.Mode)
	boolean("GATE_DISPLAY_FULLSCREEN", &cfg.Display.Fullscreen)

	boolean("GATE_ALARM_ENABLED", &cfg.Alarm.Enabled)

	str("GATE_DATA_DIR", &cfg.Storage.DataDir)
	str("GATE_LOG_DB_PATH", &cfg.Storage.LogDBPath)
	str("GATE_INDEX_PATH", &cfg.Storage.IndexPath)
	str("GATE_METADATA_PATH", &cfg.Storage.MetadataPath)
	str("GATE_VERSION_PATH", &cfg.Storage.VersionPath)

	boolean("GATE_ADMIN_ENABLED", &cfg.Admin.Enabled)
	str("GATE_ADMIN_LISTEN_ADDR", &cfg.Admin.ListenAddr)
	str("GATE_ADMIN_API_KEY", &cfg.Admin.APIKey)

	boolean("GATE_EVIDENCE_ENABLED", &cfg.Evidence.Enabled)
	str("GATE_EVIDENCE_ENDPOINT", &cfg.Evidence.Endpoint)
	str("GATE_EVIDENCE_BUCKET", &cfg.Evidence.Bucket)
	str("GATE_EVIDENCE_ACCESS_KEY", &cfg.Evidence.AccessKey)
	str("GATE_EVIDENCE_SECRET_KEY", &cfg.Evidence.SecretKey)

	str("GATE_LOG_LEVEL", &cfg.Logging.Level)
	str("GATE_LOG_FORMAT", &cfg.Logging.Format)
}
