package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

const (
	DefaultEndpoint = "http://localhost:11434/api/generate"
	DefaultModel    = "llama3.2"
	DefaultPrompt   = "What is machine learning?"
	DefaultLogDir   = "logs"
)

// Config holds application configuration
type Config struct {
	Endpoint string // Full URL of the generate endpoint
	Model    string
	Debug    bool
	LogDir   string

	// Both off by default; without them nothing is written besides logs
	HistoryPath string // SQLite file for completed exchanges, empty disables
	Cache       bool   // Reuse earlier completions for the same model and prompt

	ListModels bool
	Recent     int // Print this many recorded exchanges instead of asking; needs HistoryPath
}

// Default returns the built-in configuration with OLLAMA_ENDPOINT and
// OLLAMA_MODEL applied on top when set.
func Default() Config {
	cfg := Config{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
		LogDir:   DefaultLogDir,
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Model = v
	}
	return cfg
}

// LoadEnv loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks the fields a request cannot be built without
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: expected an absolute http(s) URL", c.Endpoint)
	}
	if c.Model == "" {
		return errors.New("model must not be empty")
	}
	if c.Recent < 0 {
		return errors.New("recent must not be negative")
	}
	if c.Recent > 0 && c.HistoryPath == "" {
		return errors.New("listing recent exchanges requires a history file")
	}
	return nil
}
