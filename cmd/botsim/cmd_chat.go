package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"botsim/pkg/config"
	"botsim/pkg/fleet"
	"botsim/pkg/manifest"
	"botsim/pkg/tui"
)

func chatCmd() {
	args := parseArgs(os.Args[2:], "--plain", "--help", "-h")
	if args.has("--help", "-h") {
		fmt.Println("Usage: botsim chat [<bot.py|bot.js|manifest.yaml>] [--lang <lang>] [--token <token>] [--plain]")
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	spec, err := chatSpec(args, cfg.Fleet.DefaultLanguage)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	engines, err := buildEngines(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	// A terminal session keeps its own transcript and never persists it.
	cfg.Fleet.SessionsDir = ""
	fm := buildFleet(cfg, engines, nil)
	defer fm.Close()

	bot, err := fm.Launch(spec)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if args.has("--plain") {
		fmt.Printf("Deploying %s (%s)...\n", bot.Name, bot.Language)
		status := waitSettled(fm, bot.ID, 30*time.Second)
		if status != fleet.StatusRunning {
			fmt.Printf("✗ Bot did not go live (status %s)\n", status)
			if logs, err := fm.Logs(bot.ID, 3); err == nil {
				for _, l := range logs {
					fmt.Println("  " + l)
				}
			}
			os.Exit(1)
		}
		history := filepath.Join(config.GetConfigDir(), "chat_history")
		if err := tui.NewREPL(fm, bot.ID, history).Run(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	chat, err := tui.NewChat(fm, bot.ID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := chat.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// chatSpec builds the bot to chat with from a code file, a manifest or the
// starter template.
func chatSpec(args cliArgs, defaultLang string) (fleet.Spec, error) {
	var spec fleet.Spec
	path := ""
	if len(args.positionals) > 0 {
		path = args.positionals[0]
	}

	switch ext := strings.ToLower(filepath.Ext(path)); {
	case path == "":
		spec.Language = defaultLang
	case ext == ".yaml" || ext == ".yml":
		loaded, err := manifest.Load(path)
		if err != nil {
			return spec, err
		}
		spec = loaded
	default:
		code, err := readCode(path)
		if err != nil {
			return spec, err
		}
		spec.Code = code
		spec.Language = languageFromPath(path)
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if lang := args.get("--lang", "-l"); lang != "" {
		spec.Language = lang
	}
	if spec.Language == "" {
		spec.Language = defaultLang
	}
	if token := args.get("--token"); token != "" {
		spec.Token = token
	}
	if spec.Token == "" {
		spec.Token = placeholderToken
	}
	return spec, nil
}

// waitSettled blocks until the bot leaves its connection sequence or the
// timeout passes, and returns the last status seen.
func waitSettled(fm *fleet.Manager, id string, timeout time.Duration) fleet.Status {
	events, cancel := fm.Subscribe(64)
	defer cancel()

	deadline := time.After(timeout)
	for {
		bot, err := fm.Get(id)
		if err != nil {
			return fleet.StatusError
		}
		if bot.Status == fleet.StatusRunning || bot.Status == fleet.StatusError {
			return bot.Status
		}
		select {
		case _, ok := <-events:
			if !ok {
				return bot.Status
			}
		case <-deadline:
			return bot.Status
		}
	}
}
