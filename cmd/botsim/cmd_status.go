package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"botsim/pkg/fleet"
	"botsim/pkg/manifest"

	"github.com/dustin/go-humanize"
)

type healthReport struct {
	OK      bool   `json:"ok"`
	Uptime  string `json:"uptime"`
	Bots    int    `json:"bots"`
	Running int    `json:"running"`
}

func statusCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	configPath := getConfigPath()

	fmt.Printf("%s botsim Status\n\n", logo)

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "(defaults)")
	}

	manifests, err := manifest.LoadDir(cfg.ManifestsPath())
	if err != nil {
		fmt.Println("Manifests:", cfg.ManifestsPath(), "✗", err)
	} else {
		fmt.Printf("Manifests: %s (%d)\n", cfg.ManifestsPath(), len(manifests))
	}
	if dir := cfg.SessionsPath(); dir != "" {
		fmt.Println("Sessions:", dir)
	} else {
		fmt.Println("Sessions: in memory")
	}
	fmt.Printf("Telegram bridge: %v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Logging: %v\n", cfg.Logging.Enabled)
	if cfg.Logging.Enabled {
		logFile := cfg.LogFilePath()
		if info, err := os.Stat(logFile); err == nil {
			fmt.Printf("Log File: %s (%s, modified %s)\n", logFile, humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
		} else {
			fmt.Printf("Log File: %s\n", logFile)
		}
	}

	base := "http://" + cfg.ListenAddr()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var health healthReport
	if err := getJSON(ctx, base+"/health", &health); err != nil {
		fmt.Printf("\nServer: %s not reachable\n", base)
		return
	}
	fmt.Printf("\nServer: %s ✓ (up %s, %d bots, %d running)\n", base, health.Uptime, health.Bots, health.Running)

	var list struct {
		Bots []fleet.Bot `json:"bots"`
	}
	if err := getJSON(ctx, base+"/api/bots", &list); err != nil {
		fmt.Printf("Bots: %v\n", err)
		return
	}
	for _, b := range list.Bots {
		fmt.Printf("  %-8s %-20s %-10s %-7s cpu %5.2f%%  ram %5.2fMB  code %s  updated %s\n",
			shortID(b.ID), b.Name, b.Language, b.Status, b.CPU, b.RAM,
			humanize.Bytes(uint64(len(b.Code))), humanize.Time(b.Updated))
	}
}

func getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
