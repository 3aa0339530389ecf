package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"AskOllama/internal/app"
	"AskOllama/internal/config"
)

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, performs one action and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Default()

	fs := flag.NewFlagSet("askollama", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Ollama model to generate with")
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Full URL of the Ollama generate endpoint")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for log, trace and metric files")
	fs.StringVar(&cfg.HistoryPath, "history", "", "SQLite file to record exchanges in (disabled when empty)")
	fs.BoolVar(&cfg.Cache, "cache", false, "Reuse an earlier completion for the same model and prompt")
	fs.BoolVar(&cfg.ListModels, "list-models", false, "List models available on the server and exit")
	fs.IntVar(&cfg.Recent, "recent", 0, "Print the last N recorded exchanges and exit (requires -history)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: askollama [flags] [prompt...]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	prompt := strings.Join(fs.Args(), " ")
	if prompt == "" {
		prompt = config.DefaultPrompt
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx := context.Background()
	switch {
	case cfg.ListModels:
		err = a.ListModels(ctx, stdout)
	case cfg.Recent > 0:
		err = a.Recent(ctx, cfg.Recent, stdout)
	default:
		err = a.Run(ctx, prompt, stdout)
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
