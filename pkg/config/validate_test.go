package config

import (
	"strings"
	"testing"
)

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.InstancePolicy = "random"
	cfg.Fleet.TelemetryMinSec = 9
	cfg.Fleet.TelemetryMaxSec = 3
	cfg.Fleet.CrashProbability = 1.5
	cfg.Gateway.Port = 0
	cfg.Channels.Telegram.AllowFrom = []string{"42", " "}

	errs := Validate(cfg)
	want := []string{
		"engine.instance_policy",
		"fleet.telemetry_max_sec",
		"fleet.crash_probability",
		"gateway.port",
		"channels.telegram.allow_from[1]",
	}
	joined := ""
	for _, err := range errs {
		joined += err.Error() + "\n"
	}
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Fatalf("expected error mentioning %q, got:\n%s", w, joined)
		}
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.InstancePolicy = ""
	_ = Validate(cfg)
	if cfg.Engine.InstancePolicy != "" {
		t.Fatalf("validate mutated instance_policy")
	}
}

func TestValidateNil(t *testing.T) {
	if errs := Validate(nil); len(errs) != 1 {
		t.Fatalf("expected one error for nil config, got %v", errs)
	}
}
