package config

import (
	"fmt"
	"strings"
)

// Validate returns configuration problems found in cfg.
// It does not mutate cfg.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{fmt.Errorf("config is nil")}
	}

	var errs []error

	if cfg.Engine.ExecTimeoutMS < 10 {
		errs = append(errs, fmt.Errorf("engine.exec_timeout_ms must be >= 10"))
	}
	switch cfg.Engine.InstancePolicy {
	case "", "last", "first", "reject":
	default:
		errs = append(errs, fmt.Errorf("engine.instance_policy must be one of: last, first, reject"))
	}

	f := cfg.Fleet
	delays := []struct {
		name string
		ms   int
	}{
		{"fleet.connect_attempt_ms", f.ConnectAttemptMS},
		{"fleet.validate_token_ms", f.ValidateTokenMS},
		{"fleet.establish_ms", f.EstablishMS},
		{"fleet.go_live_ms", f.GoLiveMS},
		{"fleet.redeploy_ms", f.RedeployMS},
	}
	for _, d := range delays {
		if d.ms < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", d.name))
		}
	}
	if f.LogLimit <= 0 {
		errs = append(errs, fmt.Errorf("fleet.log_limit must be > 0"))
	}
	if f.TelemetryMinSec < 1 {
		errs = append(errs, fmt.Errorf("fleet.telemetry_min_sec must be >= 1"))
	}
	if f.TelemetryMaxSec < f.TelemetryMinSec {
		errs = append(errs, fmt.Errorf("fleet.telemetry_max_sec must be >= fleet.telemetry_min_sec"))
	}
	if f.CrashProbability < 0 || f.CrashProbability > 1 {
		errs = append(errs, fmt.Errorf("fleet.crash_probability must be in [0,1]"))
	}
	if f.MaxTranscriptItems < 0 {
		errs = append(errs, fmt.Errorf("fleet.max_transcript_items must be >= 0"))
	}
	switch strings.ToLower(f.DefaultLanguage) {
	case "python", "javascript":
	default:
		errs = append(errs, fmt.Errorf("fleet.default_language must be python or javascript"))
	}

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port must be in 1..65535"))
	}
	if cfg.Gateway.MessageRate < 0 {
		errs = append(errs, fmt.Errorf("gateway.message_rate must be >= 0"))
	}
	if cfg.Gateway.MessageRate > 0 && cfg.Gateway.MessageBurst <= 0 {
		errs = append(errs, fmt.Errorf("gateway.message_burst must be > 0 when gateway.message_rate > 0"))
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.PollTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("channels.telegram.poll_timeout_sec must be > 0 when channels.telegram.enabled=true"))
	}
	errs = append(errs, validateNonEmptyStringList("channels.telegram.allow_from", cfg.Channels.Telegram.AllowFrom)...)

	if cfg.Logging.Enabled {
		if cfg.Logging.Dir == "" {
			errs = append(errs, fmt.Errorf("logging.dir is required when logging.enabled=true"))
		}
		if cfg.Logging.Filename == "" {
			errs = append(errs, fmt.Errorf("logging.filename is required when logging.enabled=true"))
		}
		if cfg.Logging.MaxSizeMB <= 0 {
			errs = append(errs, fmt.Errorf("logging.max_size_mb must be > 0"))
		}
		if cfg.Logging.RetentionDays <= 0 {
			errs = append(errs, fmt.Errorf("logging.retention_days must be > 0"))
		}
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of: debug, info, warn, error"))
	}

	if cfg.Sentinel.Enabled && cfg.Sentinel.IntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("sentinel.interval_sec must be > 0 when sentinel.enabled=true"))
	}

	return errs
}

func validateNonEmptyStringList(path string, values []string) []error {
	var errs []error
	for i, value := range values {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s[%d] must not be empty", path, i))
		}
	}
	return errs
}
