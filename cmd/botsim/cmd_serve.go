package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"botsim/pkg/bus"
	"botsim/pkg/channels"
	"botsim/pkg/config"
	"botsim/pkg/fleet"
	"botsim/pkg/logger"
	"botsim/pkg/manifest"
	"botsim/pkg/relay"
	"botsim/pkg/sentinel"
	"botsim/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func serveCmd() {
	args := parseArgs(os.Args[2:])
	if args.has("--help", "-h") {
		fmt.Println("Usage: botsim serve [--port <n>] [--host <addr>] [--manifests <dir>]")
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := applyServeOverrides(cfg, args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	engines, err := buildEngines(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fm := buildFleet(cfg, engines, prometheus.DefaultRegisterer)
	defer fm.Close()

	launched := launchManifests(fm, cfg.ManifestsPath())
	fmt.Printf("✓ Fleet ready (%d bots from %s)\n", launched, cfg.ManifestsPath())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	botRelay := relay.New(msgBus, fm)
	botRelay.Start()
	defer botRelay.Stop()

	sentinelService := sentinel.NewService(
		getConfigPath(),
		fm,
		cfg.Sentinel.IntervalSec,
		cfg.Sentinel.AutoHeal,
		func(message string) {
			logger.WarnCF("sentinel", message, nil)
		},
	)
	if cfg.Sentinel.Enabled {
		sentinelService.Start()
		defer sentinelService.Stop()
		fmt.Println("✓ Sentinel service started")
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Channels.Telegram.Enabled {
		channelManager := channels.NewManager(cfg, fm, msgBus)
		g.Go(func() error {
			return channelManager.Run(gctx)
		})
		fmt.Println("✓ Telegram bridge enabled")
	} else {
		fmt.Println("⚠ Telegram bridge disabled, bots are reachable through the API only")
	}

	srv := server.NewServer(cfg, fm, engines, nil)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	fmt.Printf("✓ API listening on http://%s\n", cfg.ListenAddr())
	fmt.Println("Press Ctrl+C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorCF("serve", "Shutdown with error", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Stopped")
}

func applyServeOverrides(cfg *config.Config, args cliArgs) error {
	if v := args.get("--port", "-p"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err != nil {
			return fmt.Errorf("invalid --port %q", v)
		}
		cfg.Gateway.Port = port
	}
	if v := args.get("--host"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := args.get("--manifests"); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return err
		}
		cfg.Fleet.ManifestsDir = abs
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// launchManifests starts every bot described under dir. Broken manifests
// are logged and skipped.
func launchManifests(fm *fleet.Manager, dir string) int {
	specs, err := manifest.LoadDir(dir)
	if err != nil {
		logger.WarnCF("serve", "Manifest directory unreadable", map[string]interface{}{
			"dir":             dir,
			logger.FieldError: err.Error(),
		})
	}
	n := 0
	for _, spec := range specs {
		if _, err := fm.Launch(spec); err != nil {
			logger.WarnCF("serve", "Manifest launch failed", map[string]interface{}{
				"name":            spec.Name,
				logger.FieldError: err.Error(),
			})
			continue
		}
		n++
	}
	return n
}
