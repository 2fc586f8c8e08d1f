package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"botsim/pkg/config"
	"botsim/pkg/engine"
	"botsim/pkg/fleet"
	"botsim/pkg/logger"
	"botsim/pkg/session"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func normalizeCLIArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := []string{args[0]}
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--debug" || arg == "-d" {
			continue
		}
		if arg == "--config" {
			if i+1 < len(args) {
				i++
			}
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			continue
		}
		normalized = append(normalized, arg)
	}
	return normalized
}

func detectConfigPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			return strings.TrimSpace(args[i+1])
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimSpace(strings.TrimPrefix(arg, "--config="))
		}
	}
	return ""
}

// cliArgs splits command arguments into flag values and positionals.
// Flags take the next argument as value unless listed in boolFlags.
type cliArgs struct {
	flags       map[string]string
	positionals []string
}

func parseArgs(args []string, boolFlags ...string) cliArgs {
	isBool := make(map[string]bool, len(boolFlags))
	for _, f := range boolFlags {
		isBool[f] = true
	}
	out := cliArgs{flags: map[string]string{}}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" || isNumber(arg) {
			out.positionals = append(out.positionals, arg)
			continue
		}
		if k, v, ok := strings.Cut(arg, "="); ok {
			out.flags[k] = v
			continue
		}
		if isBool[arg] || i+1 >= len(args) {
			out.flags[arg] = "true"
			continue
		}
		out.flags[arg] = args[i+1]
		i++
	}
	return out
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// get returns the first value set under any of names.
func (a cliArgs) get(names ...string) string {
	for _, n := range names {
		if v, ok := a.flags[n]; ok {
			return v
		}
	}
	return ""
}

func (a cliArgs) has(names ...string) bool {
	for _, n := range names {
		if _, ok := a.flags[n]; ok {
			return true
		}
	}
	return false
}

func printHelp() {
	fmt.Printf("%s botsim - Telegram bot reply simulator v%s\n\n", logo, version)
	fmt.Println("Usage: botsim <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve       Run the fleet with its HTTP API")
	fmt.Println("  simulate    Run one message through bot code and print the reply")
	fmt.Println("  chat        Chat with a bot in the terminal")
	fmt.Println("  template    Print or write a starter bot")
	fmt.Println("  channel     Check a Telegram token against the Bot API")
	fmt.Println("  status      Show config and fleet status")
	fmt.Println("  config      Check or show the effective config")
	fmt.Println("  version     Show version information")
	fmt.Println()
	fmt.Println("Global options:")
	fmt.Println("  --config <path>         Use custom config file")
	fmt.Println("  --debug, -d             Enable debug logging")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  botsim simulate --lang python --file bot.py --message /start")
	fmt.Println("  botsim chat bot.js --plain")
	fmt.Println("  botsim template js --out echo.js")
}

func getConfigPath() string {
	if strings.TrimSpace(globalConfigPathOverride) != "" {
		return globalConfigPathOverride
	}
	if fromEnv := strings.TrimSpace(os.Getenv("BOTSIM_CONFIG")); fromEnv != "" {
		return fromEnv
	}
	return filepath.Join(config.GetConfigDir(), "config.json")
}

// loadConfig reads .env from the working directory, then the config file.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: failed to load .env: %v\n", err)
	}
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, err
	}
	configureLogging(cfg)
	return cfg, nil
}

func configureLogging(cfg *config.Config) {
	if !config.IsDebugMode() && cfg.Logging.Level != "" {
		if level, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
			logger.SetLevel(level)
		}
	}

	if !cfg.Logging.Enabled {
		logger.DisableFileLogging()
		return
	}

	err := logger.EnableFileLogging(logger.FileOptions{
		Path:       cfg.LogFilePath(),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.RetentionDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Printf("Warning: failed to enable file logging: %v\n", err)
	}
}

func buildEngines(cfg *config.Config) (*engine.Set, error) {
	policy, err := engine.ParseInstancePolicy(cfg.Engine.InstancePolicy)
	if err != nil {
		return nil, err
	}
	return engine.NewSet(engine.SandboxOptions{
		Timeout:        millis(cfg.Engine.ExecTimeoutMS),
		InstancePolicy: policy,
	}), nil
}

func buildFleet(cfg *config.Config, engines *engine.Set, reg prometheus.Registerer) *fleet.Manager {
	f := cfg.Fleet
	opts := fleet.DefaultOptions()
	opts.Delays = fleet.Delays{
		Attempt:   millis(f.ConnectAttemptMS),
		Validate:  millis(f.ValidateTokenMS),
		Establish: millis(f.EstablishMS),
		GoLive:    millis(f.GoLiveMS),
		Redeploy:  millis(f.RedeployMS),
	}
	opts.LogLimit = f.LogLimit
	opts.TelemetryMin = time.Duration(f.TelemetryMinSec) * time.Second
	opts.TelemetryMax = time.Duration(f.TelemetryMaxSec) * time.Second
	opts.CrashProbability = f.CrashProbability
	opts.DefaultLanguage = f.DefaultLanguage
	opts.Engines = engines
	opts.Sessions = session.NewSessionManager(cfg.SessionsPath(), f.MaxTranscriptItems)
	opts.Registerer = reg
	return fleet.NewManager(opts)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// readCode loads bot code from a file, or from stdin when path is "-".
func readCode(path string) (string, error) {
	if path == "-" {
		data, err := readAllStdin()
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// languageFromPath guesses the engine from a file extension.
func languageFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return engine.LanguagePython
	case ".js", ".mjs", ".cjs":
		return engine.LanguageJavaScript
	}
	return ""
}
