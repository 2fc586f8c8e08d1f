// botsim - Telegram bot reply simulator
// License: MIT
//
// Copyright (c) 2026 botsim contributors

package main

import (
	"fmt"
	"os"

	"botsim/pkg/config"
	"botsim/pkg/logger"
)

const version = "0.1.0"
const logo = "🤖"

var globalConfigPathOverride string

func main() {
	globalConfigPathOverride = detectConfigPathFromArgs(os.Args)

	for _, arg := range os.Args {
		if arg == "--debug" || arg == "-d" {
			config.SetDebugMode(true)
			logger.SetLevel(logger.DEBUG)
			break
		}
	}

	os.Args = normalizeCLIArgs(os.Args)

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "serve":
		serveCmd()
	case "simulate":
		simulateCmd()
	case "chat":
		chatCmd()
	case "template":
		templateCmd()
	case "channel":
		channelCmd()
	case "status":
		statusCmd()
	case "config":
		configCmd()
	case "version", "--version", "-v":
		fmt.Printf("%s botsim v%s\n", logo, version)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}
