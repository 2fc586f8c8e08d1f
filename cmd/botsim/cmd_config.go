package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"botsim/pkg/config"
	"botsim/pkg/configops"
)

func configCmd() {
	if len(os.Args) < 3 {
		configHelp()
		return
	}

	switch os.Args[2] {
	case "check":
		configCheckCmd()
	case "show":
		configShowCmd()
	case "get":
		configGetCmd()
	case "set":
		configSetCmd()
	default:
		fmt.Printf("Unknown config command: %s\n", os.Args[2])
		configHelp()
	}
}

func configHelp() {
	fmt.Println("\nConfig commands:")
	fmt.Println("  check                  Validate current config")
	fmt.Println("  show                   Print the effective config, env overrides included")
	fmt.Println("  get <path>             Get a value from the config file")
	fmt.Println("  set <path> <value>     Validate and write a value")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  botsim config set gateway.port 18900")
	fmt.Println("  botsim config set channels.telegram.allow_from alice,bob --list")
	fmt.Println("  botsim config get fleet.crash_probability")
	fmt.Println("  botsim config check")
}

func configCheckCmd() {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		fmt.Printf("Config load failed: %v\n", err)
		os.Exit(1)
	}
	validationErrors := config.Validate(cfg)
	if len(validationErrors) == 0 {
		fmt.Println("✓ Config validation passed")
		return
	}

	fmt.Println("✗ Config validation failed:")
	for _, ve := range validationErrors {
		fmt.Printf("  - %v\n", ve)
	}
	os.Exit(1)
}

func configShowCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Config load failed: %v\n", err)
		os.Exit(1)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Printf("Error serializing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func configGetCmd() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: botsim config get <path>")
		return
	}

	cfgMap, err := configops.LoadMap(getConfigPath())
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	path := configops.NormalizePath(os.Args[3])
	value, ok := configops.Get(cfgMap, path)
	if !ok {
		fmt.Printf("Path not found: %s\n", path)
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		fmt.Printf("%v\n", value)
		return
	}
	fmt.Println(string(data))
}

func configSetCmd() {
	args := parseArgs(os.Args[3:], "--list")
	if len(args.positionals) < 2 {
		fmt.Println("Usage: botsim config set <path> <value> [--list]")
		return
	}

	configPath := getConfigPath()
	cfgMap, err := configops.LoadMap(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	path := configops.NormalizePath(args.positionals[0])
	value := configops.ParseValue(strings.Join(args.positionals[1:], " "), args.has("--list"))
	if err := configops.Set(cfgMap, path, value); err != nil {
		fmt.Printf("Error setting value: %v\n", err)
		return
	}

	backupPath, err := configops.Commit(configPath, cfgMap)
	if err != nil {
		fmt.Printf("✗ Config not written: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Updated %s = %v\n", path, value)
	if backupPath != "" {
		fmt.Printf("  previous config saved to %s\n", backupPath)
	}
	fmt.Println("Restart botsim serve to apply.")
}
