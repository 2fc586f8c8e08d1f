package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"botsim/pkg/channels"

	"github.com/mdp/qrterminal/v3"
)

func channelCmd() {
	if len(os.Args) < 3 {
		channelHelp()
		return
	}

	switch os.Args[2] {
	case "test":
		channelTestCmd(parseArgs(os.Args[3:], "--no-qr"))
	default:
		fmt.Printf("Unknown channel command: %s\n", os.Args[2])
		channelHelp()
	}
}

func channelHelp() {
	fmt.Println("\nChannel commands:")
	fmt.Println("  test        Check a bot token against the Telegram Bot API")
	fmt.Println()
	fmt.Println("Test options:")
	fmt.Println("  --token <token>   Bot token (defaults to TELEGRAM_TOKEN)")
	fmt.Println("  --no-qr           Skip the QR code for the bot link")
}

func channelTestCmd(args cliArgs) {
	if _, err := loadConfig(); err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	token := strings.TrimSpace(args.get("--token"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	}
	if token == "" {
		fmt.Println("Error: --token or TELEGRAM_TOKEN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	me, err := channels.Probe(ctx, token)
	if err != nil {
		fmt.Printf("✗ Telegram rejected the token: %v\n", err)
		os.Exit(1)
	}

	link := channels.BotLink(me.Username)
	fmt.Printf("✓ Token valid for @%s (id %d)\n", me.Username, me.ID)
	fmt.Printf("  %s\n", link)
	if !args.has("--no-qr") {
		fmt.Println()
		qrterminal.GenerateHalfBlock(link, qrterminal.L, os.Stdout)
	}
}
