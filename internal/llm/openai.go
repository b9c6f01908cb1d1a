package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend calls the chat completions endpoint.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates a backend. An empty baseURL uses the public API.
func NewOpenAIBackend(apiKey, baseURL string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg)}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := b.client.CreateChatCompletion(ctx, buildChatRequest(req))
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices in openai response", ErrAPIFailure)
	}

	return Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// isReasoningModel detects models (o1, o3, o4, gpt-5) that reject temperature
// and system messages.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") ||
		strings.HasPrefix(m, "gpt-5")
}

func buildChatRequest(req Request) openai.ChatCompletionRequest {
	if isReasoningModel(req.Model) {
		// Merge system prompt into user message
		chat := openai.ChatCompletionRequest{
			Model: req.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: req.SystemPrompt + "\n\n" + req.Prompt},
			},
		}
		if req.MaxTokens > 0 {
			chat.MaxCompletionTokens = req.MaxTokens
		}
		return chat
	}

	chat := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		chat.MaxTokens = req.MaxTokens
	}
	return chat
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		body := string(reqErr.Body)
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Body: body}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	// No HTTP status: the request never completed.
	return NewRetryableError(fmt.Errorf("openai request failed: %w", err))
}
