package main

import (
	"fmt"
	"os"
	"path/filepath"

	"botsim/pkg/engine"
)

func templateCmd() {
	args := parseArgs(os.Args[2:], "--help", "-h")
	if args.has("--help", "-h") || len(args.positionals) == 0 {
		fmt.Println("Usage: botsim template <python|javascript> [--out <file|dir>]")
		return
	}

	lang := args.positionals[0]
	code, err := engine.Template(lang)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	out := args.get("--out", "-o")
	if out == "" {
		fmt.Print(code)
		return
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, engine.DownloadName("", lang))
	}
	if err := os.WriteFile(out, []byte(code), 0644); err != nil {
		fmt.Printf("Error writing template: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Wrote %s template to %s\n", lang, out)
}
