package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrThrottled is returned when the provider answered 429.
	ErrThrottled = errors.New("generative api throttled")
	// ErrAPIFailure covers every other non-2xx answer and network exhaustion.
	ErrAPIFailure = errors.New("generative api failure")
)

// APIError is a non-2xx answer from the provider. It matches ErrThrottled for
// 429 and ErrAPIFailure for everything else.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generative api returned status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrThrottled:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrAPIFailure:
		return e.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0 when there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
