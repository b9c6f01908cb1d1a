package llm

import "context"

// Request is one completion request.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float32
	MaxTokens    int
}

// Response is the assistant text plus token usage when the provider reports it.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Backend performs the raw provider call. Implementations return *APIError
// for non-2xx answers and wrap network-level failures with NewRetryableError.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}
