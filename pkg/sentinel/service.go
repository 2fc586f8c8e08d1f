package sentinel

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"botsim/pkg/config"
	"botsim/pkg/lifecycle"
	"botsim/pkg/logger"
)

const alertCooldown = 5 * time.Minute

type AlertFunc func(msg string)

// FleetProbe exposes the fleet state the sentinel cross-checks.
type FleetProbe interface {
	TelemetryOrphans() []string
}

type Service struct {
	cfgPath    string
	fleet      FleetProbe
	interval   time.Duration
	autoHeal   bool
	onAlert    AlertFunc
	runner     *lifecycle.LoopRunner
	mu         sync.RWMutex
	lastAlerts map[string]time.Time
	now        func() time.Time
}

func NewService(cfgPath string, fleet FleetProbe, intervalSec int, autoHeal bool, onAlert AlertFunc) *Service {
	if intervalSec <= 0 {
		intervalSec = 60
	}
	return &Service{
		cfgPath:    cfgPath,
		fleet:      fleet,
		interval:   time.Duration(intervalSec) * time.Second,
		autoHeal:   autoHeal,
		onAlert:    onAlert,
		runner:     lifecycle.NewLoopRunner(),
		lastAlerts: map[string]time.Time{},
		now:        time.Now,
	}
}

func (s *Service) Start() {
	if !s.runner.Start(lifecycle.Ticker(s.interval, true, s.RunChecks)) {
		return
	}
	logger.InfoCF("sentinel", "Sentinel started", map[string]interface{}{
		"interval":  s.interval.String(),
		"auto_heal": s.autoHeal,
	})
}

func (s *Service) Stop() {
	if !s.runner.Stop() {
		return
	}
	logger.InfoC("sentinel", "Sentinel stopped")
}

// RunChecks runs every check once and alerts on each issue found.
func (s *Service) RunChecks() []string {
	cfg, issues := s.checkConfig()
	if cfg != nil {
		issues = append(issues, s.checkDir("log", filepath.Dir(cfg.LogFilePath()), cfg.Logging.Enabled)...)
		issues = append(issues, s.checkDir("sessions", cfg.SessionsPath(), cfg.SessionsPath() != "")...)
	}
	issues = append(issues, s.checkFleet()...)

	for _, issue := range issues {
		s.alert(issue)
	}
	return issues
}

func (s *Service) checkConfig() (*config.Config, []string) {
	cfg, err := config.LoadConfig(s.cfgPath)
	if err != nil {
		return nil, []string{fmt.Sprintf("sentinel: config parse failed: %v", err)}
	}

	verrs := config.Validate(cfg)
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, fmt.Sprintf("sentinel: config validation issue: %v", e))
	}
	return cfg, out
}

func (s *Service) checkDir(label, dir string, needed bool) []string {
	if !needed {
		return nil
	}
	dir = filepath.Clean(dir)
	if _, err := os.Stat(dir); err != nil {
		if s.autoHeal {
			if mkErr := os.MkdirAll(dir, 0755); mkErr == nil {
				return []string{fmt.Sprintf("sentinel: %s dir missing, auto-healed", label)}
			}
		}
		return []string{fmt.Sprintf("sentinel: %s dir missing: %s", label, dir)}
	}
	return nil
}

// checkFleet flags bots whose telemetry schedule disagrees with their status.
func (s *Service) checkFleet() []string {
	if s.fleet == nil {
		return nil
	}
	orphans := s.fleet.TelemetryOrphans()
	out := make([]string, 0, len(orphans))
	for _, id := range orphans {
		out = append(out, fmt.Sprintf("sentinel: telemetry out of sync for bot %s", id))
	}
	return out
}

func (s *Service) alert(msg string) {
	now := s.now()
	s.mu.Lock()
	last, ok := s.lastAlerts[msg]
	if ok && now.Sub(last) < alertCooldown {
		s.mu.Unlock()
		return
	}
	s.lastAlerts[msg] = now
	s.mu.Unlock()

	logger.WarnCF("sentinel", msg, nil)
	if s.onAlert != nil {
		s.onAlert(msg)
	}
}
