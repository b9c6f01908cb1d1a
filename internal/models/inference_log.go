package models

import "time"

// InferenceLog records one outbound call to the generative API.
type InferenceLog struct {
	ID           int       `json:"id"`
	Provider     string    `json:"provider"`  // 'openai' or 'anthropic'
	Model        string    `json:"model"`     // e.g. 'gpt-4o-mini'
	Operation    string    `json:"operation"` // correction type the call served
	CorrectionID string    `json:"correction_id,omitempty"`
	InputTokens  *int      `json:"input_tokens,omitempty"`
	OutputTokens *int      `json:"output_tokens,omitempty"`
	CostUSD      *float64  `json:"cost_usd,omitempty"` // Estimated from token counts
	LatencyMs    int       `json:"latency_ms"`
	Status       string    `json:"status"` // 'success', 'throttled', 'error'
	StatusCode   *int      `json:"status_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	InferenceStatusSuccess   = "success"
	InferenceStatusThrottled = "throttled"
	InferenceStatusError     = "error"
)

// InferenceLogStats aggregates inference logs over a window.
type InferenceLogStats struct {
	TotalCalls     int     `json:"total_calls"`
	SuccessCalls   int     `json:"success_calls"`
	ThrottledCalls int     `json:"throttled_calls"`
	FailedCalls    int     `json:"failed_calls"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

// InferenceLogQuery filters inference log listings.
type InferenceLogQuery struct {
	Status    string
	Operation string
	Since     *time.Time
	Limit     int
}
