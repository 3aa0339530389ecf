package backend

// GenerateRequest represents the request body for the Ollama /api/generate endpoint
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"` // always serialised; false disables streaming
}

// GenerateResponse represents the fields read from an /api/generate reply.
// Only Response is required to be present.
type GenerateResponse struct {
	Model           string `json:"model"`
	CreatedAt       string `json:"created_at"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
	PromptEvalCount int64  `json:"prompt_eval_count,omitempty"`
	EvalCount       int64  `json:"eval_count,omitempty"`
}

// TagsResponse represents the response from Ollama /api/tags endpoint
type TagsResponse struct {
	Models []Model `json:"models"`
}

// Model represents a single model in the Ollama tags response
type Model struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}
