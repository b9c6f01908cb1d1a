package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type scriptedBackend struct {
	clock   Clock
	results []error
	calls   []time.Time
}

func (b *scriptedBackend) Name() string { return "fake" }

func (b *scriptedBackend) Complete(ctx context.Context, req Request) (Response, error) {
	b.calls = append(b.calls, b.clock.Now())
	if len(b.results) > 0 {
		err := b.results[0]
		b.results = b.results[1:]
		if err != nil {
			return Response{}, err
		}
	}
	return Response{Text: `{"needs_update": false}`, InputTokens: 10, OutputTokens: 4}, nil
}

type captureRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *captureRecorder) RecordCall(ctx context.Context, call Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func newTestClient(backend *scriptedBackend, clock *ManualClock, recorders ...CallRecorder) (*Client, *Gate) {
	gate := newTestGate(clock)
	client := NewClient(backend, gate, clock, ClientConfig{
		Model: "gpt-4o-mini",
		Retry: RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second},
	}, nil, recorders...)
	return client, gate
}

func TestClientSpacesConsecutiveCalls(t *testing.T) {
	clock := NewManualClock(testEpoch)
	backend := &scriptedBackend{clock: clock}
	client, _ := newTestClient(backend, clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := client.Complete(ctx, "prompt", "system"); err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
		clock.Advance(5 * time.Second)
	}

	if len(backend.calls) != 4 {
		t.Fatalf("expected 4 backend calls, got %d", len(backend.calls))
	}
	for i := 1; i < len(backend.calls); i++ {
		if gap := backend.calls[i].Sub(backend.calls[i-1]); gap < 60*time.Second {
			t.Errorf("calls %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestClientThrottledStartsCooldown(t *testing.T) {
	clock := NewManualClock(testEpoch)
	backend := &scriptedBackend{clock: clock, results: []error{
		&APIError{StatusCode: http.StatusTooManyRequests, Body: "slow down"},
	}}
	recorder := &captureRecorder{}
	client, gate := newTestClient(backend, clock, recorder)
	ctx := context.Background()

	_, err := client.Complete(ctx, "prompt", "system", WithOperation("pressure_fix", "rec-1"))
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if errors.Is(err, ErrAPIFailure) {
		t.Error("throttle must not be reported as generic failure")
	}
	if len(backend.calls) != 1 {
		t.Errorf("expected 429 not to be retried, got %d calls", len(backend.calls))
	}

	clock.Advance(2 * time.Minute)
	if gate.CanMakeRequest(ctx) {
		t.Error("expected cool-down to block requests two minutes later")
	}
	if wait := client.WaitTime(ctx); wait != 3*time.Minute {
		t.Errorf("expected 3m remaining, got %v", wait)
	}

	if len(recorder.calls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(recorder.calls))
	}
	if recorder.calls[0].Outcome() != "throttled" || recorder.calls[0].CorrectionID != "rec-1" {
		t.Errorf("unexpected recorded call: %+v", recorder.calls[0])
	}
}

func TestClientSurfacesFailureBody(t *testing.T) {
	clock := NewManualClock(testEpoch)
	backend := &scriptedBackend{clock: clock, results: []error{
		&APIError{StatusCode: http.StatusBadRequest, Body: "invalid model"},
	}}
	client, _ := newTestClient(backend, clock)

	_, err := client.Complete(context.Background(), "prompt", "system")
	if !errors.Is(err, ErrAPIFailure) {
		t.Fatalf("expected ErrAPIFailure, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Body != "invalid model" {
		t.Errorf("expected body in error, got %v", err)
	}
	if len(backend.calls) != 1 {
		t.Errorf("expected 4xx not to be retried, got %d calls", len(backend.calls))
	}
}

func TestClientRetriesNetworkFailures(t *testing.T) {
	clock := NewManualClock(testEpoch)
	backend := &scriptedBackend{clock: clock, results: []error{
		NewRetryableError(errors.New("connection reset")),
		nil,
	}}
	client, _ := newTestClient(backend, clock)

	text, err := client.Complete(context.Background(), "prompt", "system")
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if text == "" {
		t.Error("expected response text")
	}
	if len(backend.calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(backend.calls))
	}
	if gap := backend.calls[1].Sub(backend.calls[0]); gap != 2*time.Second {
		t.Errorf("expected fixed 2s retry delay, got %v", gap)
	}
}

func TestClientNetworkExhaustionIsAPIFailure(t *testing.T) {
	clock := NewManualClock(testEpoch)
	netErr := NewRetryableError(errors.New("no route to host"))
	backend := &scriptedBackend{clock: clock, results: []error{netErr, netErr, netErr}}
	client, _ := newTestClient(backend, clock)

	_, err := client.Complete(context.Background(), "prompt", "system")
	if !errors.Is(err, ErrAPIFailure) {
		t.Fatalf("expected ErrAPIFailure, got %v", err)
	}
	if len(backend.calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(backend.calls))
	}
}
