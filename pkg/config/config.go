package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Engine   EngineConfig   `json:"engine"`
	Fleet    FleetConfig    `json:"fleet"`
	Gateway  GatewayConfig  `json:"gateway"`
	Channels ChannelsConfig `json:"channels"`
	Logging  LoggingConfig  `json:"logging"`
	Sentinel SentinelConfig `json:"sentinel"`
	mu       sync.RWMutex
}

type EngineConfig struct {
	ExecTimeoutMS  int    `json:"exec_timeout_ms" env:"BOTSIM_ENGINE_EXEC_TIMEOUT_MS"`
	InstancePolicy string `json:"instance_policy" env:"BOTSIM_ENGINE_INSTANCE_POLICY"`
}

type FleetConfig struct {
	ConnectAttemptMS   int     `json:"connect_attempt_ms" env:"BOTSIM_FLEET_CONNECT_ATTEMPT_MS"`
	ValidateTokenMS    int     `json:"validate_token_ms" env:"BOTSIM_FLEET_VALIDATE_TOKEN_MS"`
	EstablishMS        int     `json:"establish_ms" env:"BOTSIM_FLEET_ESTABLISH_MS"`
	GoLiveMS           int     `json:"go_live_ms" env:"BOTSIM_FLEET_GO_LIVE_MS"`
	RedeployMS         int     `json:"redeploy_ms" env:"BOTSIM_FLEET_REDEPLOY_MS"`
	LogLimit           int     `json:"log_limit" env:"BOTSIM_FLEET_LOG_LIMIT"`
	TelemetryMinSec    int     `json:"telemetry_min_sec" env:"BOTSIM_FLEET_TELEMETRY_MIN_SEC"`
	TelemetryMaxSec    int     `json:"telemetry_max_sec" env:"BOTSIM_FLEET_TELEMETRY_MAX_SEC"`
	CrashProbability   float64 `json:"crash_probability" env:"BOTSIM_FLEET_CRASH_PROBABILITY"`
	SessionsDir        string  `json:"sessions_dir" env:"BOTSIM_FLEET_SESSIONS_DIR"`
	ManifestsDir       string  `json:"manifests_dir" env:"BOTSIM_FLEET_MANIFESTS_DIR"`
	DefaultLanguage    string  `json:"default_language" env:"BOTSIM_FLEET_DEFAULT_LANGUAGE"`
	MaxTranscriptItems int     `json:"max_transcript_items" env:"BOTSIM_FLEET_MAX_TRANSCRIPT_ITEMS"`
}

type GatewayConfig struct {
	Host         string  `json:"host" env:"BOTSIM_GATEWAY_HOST"`
	Port         int     `json:"port" env:"BOTSIM_GATEWAY_PORT"`
	MessageRate  float64 `json:"message_rate" env:"BOTSIM_GATEWAY_MESSAGE_RATE"`
	MessageBurst int     `json:"message_burst" env:"BOTSIM_GATEWAY_MESSAGE_BURST"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig controls the live bridge. The bot token comes from each
// simulated bot, never from here.
type TelegramConfig struct {
	Enabled        bool     `json:"enabled" env:"BOTSIM_CHANNELS_TELEGRAM_ENABLED"`
	AllowFrom      []string `json:"allow_from" env:"BOTSIM_CHANNELS_TELEGRAM_ALLOW_FROM"`
	PollTimeoutSec int      `json:"poll_timeout_sec" env:"BOTSIM_CHANNELS_TELEGRAM_POLL_TIMEOUT_SEC"`
}

type LoggingConfig struct {
	Enabled       bool   `json:"enabled" env:"BOTSIM_LOGGING_ENABLED"`
	Level         string `json:"level" env:"BOTSIM_LOGGING_LEVEL"`
	Dir           string `json:"dir" env:"BOTSIM_LOGGING_DIR"`
	Filename      string `json:"filename" env:"BOTSIM_LOGGING_FILENAME"`
	MaxSizeMB     int    `json:"max_size_mb" env:"BOTSIM_LOGGING_MAX_SIZE_MB"`
	MaxBackups    int    `json:"max_backups" env:"BOTSIM_LOGGING_MAX_BACKUPS"`
	RetentionDays int    `json:"retention_days" env:"BOTSIM_LOGGING_RETENTION_DAYS"`
	Compress      bool   `json:"compress" env:"BOTSIM_LOGGING_COMPRESS"`
}

type SentinelConfig struct {
	Enabled     bool `json:"enabled" env:"BOTSIM_SENTINEL_ENABLED"`
	IntervalSec int  `json:"interval_sec" env:"BOTSIM_SENTINEL_INTERVAL_SEC"`
	AutoHeal    bool `json:"auto_heal" env:"BOTSIM_SENTINEL_AUTO_HEAL"`
}

var (
	isDebug bool
	muDebug sync.RWMutex
)

func SetDebugMode(debug bool) {
	muDebug.Lock()
	defer muDebug.Unlock()
	isDebug = debug
}

func IsDebugMode() bool {
	muDebug.RLock()
	defer muDebug.RUnlock()
	return isDebug
}

// GetConfigDir is ~/.botsim, or ./.botsim in debug mode.
func GetConfigDir() string {
	if IsDebugMode() {
		return ".botsim"
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".botsim")
}

func DefaultConfig() *Config {
	configDir := GetConfigDir()
	return &Config{
		Engine: EngineConfig{
			ExecTimeoutMS:  2000,
			InstancePolicy: "last",
		},
		Fleet: FleetConfig{
			ConnectAttemptMS:   500,
			ValidateTokenMS:    1000,
			EstablishMS:        800,
			GoLiveMS:           1200,
			RedeployMS:         1000,
			LogLimit:           100,
			TelemetryMinSec:    5,
			TelemetryMaxSec:    7,
			CrashProbability:   0.02,
			SessionsDir:        "",
			ManifestsDir:       filepath.Join(configDir, "bots"),
			DefaultLanguage:    "python",
			MaxTranscriptItems: 500,
		},
		Gateway: GatewayConfig{
			Host:         "127.0.0.1",
			Port:         18800,
			MessageRate:  5,
			MessageBurst: 10,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:        false,
				AllowFrom:      []string{},
				PollTimeoutSec: 30,
			},
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Level:         "info",
			Dir:           filepath.Join(configDir, "logs"),
			Filename:      "botsim.log",
			MaxSizeMB:     20,
			MaxBackups:    5,
			RetentionDays: 3,
		},
		Sentinel: SentinelConfig{
			Enabled:     true,
			IntervalSec: 60,
			AutoHeal:    true,
		},
	}
}

// LoadConfig reads path over the defaults, then applies BOTSIM_* variables.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := unmarshalConfigStrict(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfigStrict(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing JSON content")
		}
		return err
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) LogFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filename := c.Logging.Filename
	if filename == "" {
		filename = "botsim.log"
	}
	return filepath.Join(expandHome(c.Logging.Dir), filename)
}

func (c *Config) SessionsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Fleet.SessionsDir)
}

func (c *Config) ManifestsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Fleet.ManifestsDir)
}

// ListenAddr is the gateway host:port.
func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
