package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"botsim/pkg/engine"
	"botsim/pkg/session"
	"botsim/pkg/tui"
)

const placeholderToken = "000000:LOCAL-SIMULATION"

func simulateCmd() {
	args := parseArgs(os.Args[2:], "--json", "--help", "-h")
	if args.has("--help", "-h") {
		simulateHelp()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	file := args.get("--file", "-f")
	if file == "" && len(args.positionals) > 0 {
		file = args.positionals[0]
	}
	lang := args.get("--lang", "-l")
	if lang == "" {
		lang = languageFromPath(file)
	}
	if lang == "" {
		lang = cfg.Fleet.DefaultLanguage
	}

	code := ""
	if file != "" {
		if code, err = readCode(file); err != nil {
			fmt.Printf("Error reading code: %v\n", err)
			os.Exit(1)
		}
	} else if code, err = engine.Template(lang); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	message := args.get("--message", "-m")
	if message == "" {
		message = "/start"
	}
	token := args.get("--token")
	if token == "" {
		token = placeholderToken
	}

	engines, err := buildEngines(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	reply, err := engines.Simulate(lang, code, token, message)
	if args.has("--json") {
		printSimulationJSON(reply, err)
	} else {
		printSimulation(reply, err)
	}
	if err != nil {
		os.Exit(2)
	}
}

func simulateHelp() {
	fmt.Println("Usage: botsim simulate [--lang python|javascript] [--file <path>|-] [--message <text>] [--token <token>] [--json]")
	fmt.Println()
	fmt.Println("Without --file the starter template for --lang is used. The message defaults to /start.")
}

func printSimulation(reply *engine.Reply, err error) {
	if err != nil {
		fmt.Printf("✗ %s: %v\n", simulationKind(err), err)
		return
	}
	if reply == nil {
		fmt.Println("(no reply)")
		return
	}
	fmt.Println(tui.FormatReply(&session.Message{Sender: session.SenderBot, Text: reply.Text, Buttons: reply.Buttons}))
}

func printSimulationJSON(reply *engine.Reply, err error) {
	out := map[string]interface{}{"reply": reply}
	if err != nil {
		out = map[string]interface{}{"error": err.Error(), "kind": simulationKind(err)}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func simulationKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrModuleNotAvailable):
		return "module_not_available"
	case errors.Is(err, engine.ErrNoBotInstance):
		return "no_bot_instance"
	case errors.Is(err, engine.ErrMultipleInstances):
		return "multiple_instances"
	case errors.Is(err, engine.ErrExecution):
		return "execution"
	}
	return "invalid_request"
}

func readAllStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("no code on stdin")
	}
	return data, nil
}
