package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 2000

// AnthropicBackend calls the messages endpoint.
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend creates a backend. The SDK's own retries are disabled so
// the client's retry policy and 429 handling are the only ones in play.
func NewAnthropicBackend(apiKey, baseURL string) *AnthropicBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classifyAnthropicError(err)
	}

	if len(message.Content) == 0 {
		return Response{}, fmt.Errorf("%w: no content in anthropic response", ErrAPIFailure)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return Response{
		Text:         text,
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return &APIError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	return NewRetryableError(fmt.Errorf("anthropic request failed: %w", err))
}
