// Package completion sends prompts to an Ollama server's generate endpoint
// and returns the generated text.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"AskOllama/internal/backend"
	"AskOllama/internal/config"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrMissingResponse is returned when the reply has no "response" key
	ErrMissingResponse = errors.New(`reply has no "response" field`)
	// ErrInvalidResponse is returned when "response" is present but not a string
	ErrInvalidResponse = errors.New(`reply "response" field is not a string`)
	// ErrInvalidJSON is returned when the reply body is not valid JSON
	ErrInvalidJSON = errors.New("reply is not valid JSON")
)

// StatusError is returned for any non-200 reply
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Status, e.Body)
}

// Requester issues generate requests against a single endpoint.
// It holds no mutable state and is safe for concurrent use.
type Requester struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// New creates a Requester for endpoint, the full URL of /api/generate.
// Nil logger, tracer or meter fall back to the process-wide defaults.
// The HTTP client has no timeout; bound a call with ctx instead.
func New(endpoint string, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Requester {
	if endpoint == "" {
		endpoint = config.DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer("askollama")
	}
	if meter == nil {
		meter = otel.Meter("askollama")
	}
	return &Requester{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// Ask generates a completion for prompt with the default model
func (r *Requester) Ask(ctx context.Context, prompt string) (string, error) {
	return r.Generate(ctx, prompt, "")
}

// Generate sends prompt to model and returns the completion text.
// An empty model means config.DefaultModel.
func (r *Requester) Generate(ctx context.Context, prompt, model string) (string, error) {
	resp, err := r.GenerateResponse(ctx, prompt, model)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// GenerateResponse is Generate returning the whole parsed reply
func (r *Requester) GenerateResponse(ctx context.Context, prompt, model string) (*backend.GenerateResponse, error) {
	if model == "" {
		model = config.DefaultModel
	}

	ctx, span := r.tracer.Start(ctx, "ollama_generate",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Int("llm.prompt.length", len(prompt)),
		),
	)
	defer span.End()

	resp, err := r.generate(ctx, prompt, model)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("generate request failed", "model", model, "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("llm.response.length", len(resp.Response)))
	return resp, nil
}

func (r *Requester) generate(ctx context.Context, prompt, model string) (*backend.GenerateResponse, error) {
	start := time.Now()

	reqBody := backend.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	r.logger.Debug("sending generate request", "endpoint", r.endpoint, "model", model, "prompt_length", len(prompt))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	out, err := parseGenerateResponse(body)
	if err != nil {
		return nil, err
	}

	duration := time.Since(start)
	r.recordMetrics(ctx, model, duration, out)
	r.logger.Info("completion received",
		"model", model,
		"duration_ms", duration.Milliseconds(),
		"eval_count", out.EvalCount,
		"done", out.Done,
	)

	return out, nil
}

// parseGenerateResponse requires the "response" key and reads the optional
// metadata fields when they are present.
func parseGenerateResponse(body []byte) (*backend.GenerateResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to parse response: %w", ErrInvalidJSON)
	}

	fields := gjson.GetManyBytes(body,
		"response", "model", "created_at", "done", "done_reason",
		"total_duration", "prompt_eval_count", "eval_count",
	)
	if !fields[0].Exists() {
		return nil, fmt.Errorf("failed to parse response: %w", ErrMissingResponse)
	}
	if fields[0].Type != gjson.String {
		return nil, fmt.Errorf("failed to parse response: got %s: %w", fields[0].Type, ErrInvalidResponse)
	}

	return &backend.GenerateResponse{
		Response:        fields[0].String(),
		Model:           fields[1].String(),
		CreatedAt:       fields[2].String(),
		Done:            fields[3].Bool(),
		DoneReason:      fields[4].String(),
		TotalDuration:   fields[5].Int(),
		PromptEvalCount: fields[6].Int(),
		EvalCount:       fields[7].Int(),
	}, nil
}

// recordMetrics records request duration and token counts
func (r *Requester) recordMetrics(ctx context.Context, model string, duration time.Duration, resp *backend.GenerateResponse) {
	attrs := metric.WithAttributes(attribute.String("llm.model", model))

	histogram, err := r.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()), attrs)
	}

	usage := map[string]int64{
		"prompt_eval_count": resp.PromptEvalCount,
		"eval_count":        resp.EvalCount,
	}
	for key, value := range usage {
		if value == 0 {
			continue
		}
		counter, err := r.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			r.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, value, attrs)
	}
}

// ListModels fetches the models available on the server behind the endpoint
func (r *Requester) ListModels(ctx context.Context) ([]backend.Model, error) {
	tagsURL, err := r.tagsURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tagsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	var tagsResp backend.TagsResponse
	if err := json.Unmarshal(body, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w: %w", ErrInvalidJSON, err)
	}

	return tagsResp.Models, nil
}

// tagsURL swaps the endpoint path for /api/tags on the same host
func (r *Requester) tagsURL() (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", r.endpoint, err)
	}
	u.Path = "/api/tags"
	u.RawQuery = ""
	return u.String(), nil
}
