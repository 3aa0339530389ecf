package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"AskOllama/internal/cache"
	"AskOllama/internal/completion"
	"AskOllama/internal/config"
	"AskOllama/internal/history"
	"AskOllama/internal/telemetry"
)

// App wires configuration, telemetry, history and the requester together
type App struct {
	config    config.Config
	logger    *slog.Logger
	requester *completion.Requester
	store     *history.Store // nil unless HistoryPath is set
	memo      sync.Map
	cleanup   []func()
}

// New creates a new App instance
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &App{
		config: cfg,
		logger: logger,
	}
	a.cleanup = append(a.cleanup, func() { closeLog() })

	providers, err := telemetry.InitTelemetry(context.Background(), cfg.LogDir, cfg.Debug)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.cleanup = append(a.cleanup, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown telemetry", "error", err)
		}
	})

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize history: %w", err)
		}
		a.store = store
		a.cleanup = append(a.cleanup, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close history", "error", err)
			}
		})
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	a.requester = completion.New(cfg.Endpoint, logger, providers.Tracer, providers.Meter)

	logger.Info("app initialized",
		"endpoint", cfg.Endpoint,
		"model", cfg.Model,
		"history", cfg.HistoryPath != "",
		"cache", cfg.Cache,
	)
	return a, nil
}

// Run generates a completion for prompt and writes it to w
func (a *App) Run(ctx context.Context, prompt string, w io.Writer) error {
	response, err := a.complete(ctx, prompt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, response)
	return err
}

func (a *App) complete(ctx context.Context, prompt string) (string, error) {
	model := a.config.Model
	cacheKey := cache.GenerateCacheKey(model, prompt)

	if a.config.Cache {
		if cached, ok := a.checkCache(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	start := time.Now()
	response, err := a.requester.Generate(ctx, prompt, model)
	if err != nil {
		return "", err
	}

	if a.config.Cache {
		a.storeCache(cacheKey, response)
	}

	if a.store != nil {
		ex := &history.Exchange{
			CacheKey:   cacheKey,
			Model:      model,
			Prompt:     prompt,
			Response:   response,
			CreatedAt:  start,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if err := a.store.Save(ctx, ex); err != nil {
			a.logger.Error("failed to save exchange", "error", err)
		} else {
			a.logger.Info("exchange saved", "id", ex.ID)
		}
	}

	return response, nil
}

// checkCache looks in memory first, then in history when it is enabled
func (a *App) checkCache(ctx context.Context, cacheKey string) (string, bool) {
	if val, ok := a.memo.Load(cacheKey); ok {
		cached := val.(cache.CachedResponse)
		a.logger.Info("cache hit", "key", cacheKey[:16], "source", "memory")
		return cached.Response, true
	}

	if a.store == nil {
		return "", false
	}

	ex, err := a.store.Lookup(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			a.logger.Warn("history lookup failed", "error", err)
		}
		return "", false
	}

	a.storeCache(cacheKey, ex.Response)
	a.logger.Info("cache hit", "key", cacheKey[:16], "source", "history", "id", ex.ID)
	return ex.Response, true
}

func (a *App) storeCache(cacheKey, response string) {
	a.memo.Store(cacheKey, cache.CachedResponse{
		Response:  response,
		Timestamp: time.Now(),
	})
}

// ListModels writes the server's models to w, marking the configured one
func (a *App) ListModels(ctx context.Context, w io.Writer) error {
	models, err := a.requester.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list Ollama models: %w", err)
	}

	fmt.Fprintln(w, "Available Ollama models:")
	for i, model := range models {
		sizeGB := float64(model.Size) / (1024 * 1024 * 1024)
		current := ""
		if model.Name == a.config.Model || model.Name == a.config.Model+":latest" {
			current = " (current)"
		}
		fmt.Fprintf(w, "%d. %s - %.2f GB%s\n", i+1, model.Name, sizeGB, current)
	}
	return nil
}

// Recent writes the last n recorded exchanges to w, newest first
func (a *App) Recent(ctx context.Context, n int, w io.Writer) error {
	if a.store == nil {
		return errors.New("history is not enabled")
	}

	exchanges, err := a.store.Recent(ctx, n)
	if err != nil {
		return err
	}

	for _, ex := range exchanges {
		fmt.Fprintf(w, "[%s] %s (%d ms)\n", ex.CreatedAt.Local().Format("2006-01-02 15:04:05"), ex.Model, ex.DurationMS)
		fmt.Fprintf(w, "You: %s\n", ex.Prompt)
		fmt.Fprintf(w, "Bot: %s\n\n", ex.Response)
	}
	return nil
}

// Close flushes telemetry and releases the history store, in reverse order
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
