package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ClientConfig holds per-request parameters.
type ClientConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryPolicy
}

// Call describes one finished outbound call for recorders.
type Call struct {
	Provider     string
	Model        string
	Operation    string
	CorrectionID string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
	Err          error
}

// Outcome buckets a call as success, throttled or error.
func (c Call) Outcome() string {
	switch {
	case c.Err == nil:
		return "success"
	case errors.Is(c.Err, ErrThrottled):
		return "throttled"
	default:
		return "error"
	}
}

// CallRecorder observes finished calls. Implementations must not block.
type CallRecorder interface {
	RecordCall(ctx context.Context, call Call)
}

// CallOption annotates a call for recorders and logs.
type CallOption func(*Call)

// WithOperation tags the call with the operation and correction it serves.
func WithOperation(operation, correctionID string) CallOption {
	return func(c *Call) {
		c.Operation = operation
		c.CorrectionID = correctionID
	}
}

// Client is the rate-limited generative API client.
type Client struct {
	backend   Backend
	gate      *Gate
	clock     Clock
	config    ClientConfig
	recorders []CallRecorder
	logger    *slog.Logger
}

// NewClient wires a backend behind a gate.
func NewClient(backend Backend, gate *Gate, clock Clock, config ClientConfig, logger *slog.Logger, recorders ...CallRecorder) *Client {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:   backend,
		gate:      gate,
		clock:     clock,
		config:    config,
		recorders: recorders,
		logger:    logger,
	}
}

// CanMakeRequest reports whether the gate would let a request through now.
func (c *Client) CanMakeRequest(ctx context.Context) bool {
	return c.gate.CanMakeRequest(ctx)
}

// WaitTime estimates the remaining wait before the next request.
func (c *Client) WaitTime(ctx context.Context) time.Duration {
	return c.gate.WaitTime(ctx)
}

// Complete waits for the gate, sends one completion request and returns the
// raw assistant text. A 429 starts the gate cool-down and returns an error
// matching ErrThrottled; any other failure matches ErrAPIFailure.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string, opts ...CallOption) (string, error) {
	call := Call{Provider: c.backend.Name(), Model: c.config.Model}
	for _, opt := range opts {
		opt(&call)
	}

	if err := c.gate.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limit window: %w", err)
	}
	if err := c.gate.Record(ctx); err != nil {
		c.logger.Warn("failed to record request time", "error", err)
	}

	req := Request{
		Model:        c.config.Model,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Temperature:  c.config.Temperature,
		MaxTokens:    c.config.MaxTokens,
	}

	var resp Response
	start := c.clock.Now()
	err := Retry(ctx, c.config.Retry, c.clock, func() error {
		callCtx := ctx
		if c.config.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()
		}

		var err error
		resp, err = c.backend.Complete(callCtx, req)
		if err != nil && IsRetryable(err) {
			c.logger.Warn("transient generative api failure",
				"provider", call.Provider,
				"operation", call.Operation,
				"error", err)
		}
		return err
	})
	call.Latency = c.clock.Now().Sub(start)

	if err != nil && IsRetryable(err) {
		err = fmt.Errorf("%w: %w", ErrAPIFailure, err)
	}
	if errors.Is(err, ErrThrottled) {
		if terr := c.gate.Throttle(ctx); terr != nil {
			c.logger.Error("failed to start throttle cool-down", "error", terr)
		}
	}

	call.Err = err
	call.InputTokens = resp.InputTokens
	call.OutputTokens = resp.OutputTokens
	c.record(ctx, call)

	if err != nil {
		c.logger.Error("generative api call failed",
			"provider", call.Provider,
			"model", call.Model,
			"operation", call.Operation,
			"correction_id", call.CorrectionID,
			"status_code", StatusCode(err),
			"error", err)
		return "", err
	}

	c.logger.Info("generative api call succeeded",
		"provider", call.Provider,
		"model", call.Model,
		"operation", call.Operation,
		"correction_id", call.CorrectionID,
		"latency_ms", call.Latency.Milliseconds(),
		"content_length", len(resp.Text))

	return resp.Text, nil
}

func (c *Client) record(ctx context.Context, call Call) {
	for _, r := range c.recorders {
		r.RecordCall(ctx, call)
	}
}
