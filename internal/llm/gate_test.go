package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(clock *ManualClock) *Gate {
	return NewGate(NewMemoryState(clock), clock, GateConfig{
		MinInterval:      60 * time.Second,
		ThrottleCooldown: 5 * time.Minute,
	}, nil)
}

func TestGateAllowsFirstRequest(t *testing.T) {
	clock := NewManualClock(testEpoch)
	gate := newTestGate(clock)
	ctx := context.Background()

	if !gate.CanMakeRequest(ctx) {
		t.Fatal("expected first request to be allowed")
	}
	if wait := gate.WaitTime(ctx); wait != 0 {
		t.Errorf("expected no wait, got %v", wait)
	}
}

func TestGateEnforcesInterval(t *testing.T) {
	clock := NewManualClock(testEpoch)
	gate := newTestGate(clock)
	ctx := context.Background()

	if err := gate.Record(ctx); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	clock.Advance(20 * time.Second)
	if gate.CanMakeRequest(ctx) {
		t.Fatal("expected request to be blocked inside interval")
	}
	if wait := gate.WaitTime(ctx); wait != 40*time.Second {
		t.Errorf("expected 40s wait, got %v", wait)
	}

	clock.Advance(40 * time.Second)
	if !gate.CanMakeRequest(ctx) {
		t.Fatal("expected request to be allowed once interval elapsed")
	}
}

func TestGateThrottleCooldown(t *testing.T) {
	clock := NewManualClock(testEpoch)
	gate := newTestGate(clock)
	ctx := context.Background()

	if err := gate.Record(ctx); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := gate.Throttle(ctx); err != nil {
		t.Fatalf("Throttle returned error: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if gate.CanMakeRequest(ctx) {
		t.Fatal("expected cool-down to outlast the normal interval")
	}
	if wait := gate.WaitTime(ctx); wait != 3*time.Minute {
		t.Errorf("expected 3m wait, got %v", wait)
	}

	clock.Advance(3 * time.Minute)
	if !gate.CanMakeRequest(ctx) {
		t.Fatal("expected request allowed after cool-down")
	}
}

func TestGateWaitAdvancesToWindow(t *testing.T) {
	clock := NewManualClock(testEpoch)
	gate := newTestGate(clock)
	ctx := context.Background()

	if err := gate.Record(ctx); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	if elapsed := clock.Now().Sub(testEpoch); elapsed < 60*time.Second {
		t.Errorf("expected wait of at least 60s, got %v", elapsed)
	}
}

func TestGateWaitCancelled(t *testing.T) {
	state := NewMemoryState(nil)
	gate := NewGate(state, nil, GateConfig{MinInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := gate.Record(ctx); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- gate.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}

func TestMemoryStateExpires(t *testing.T) {
	clock := NewManualClock(testEpoch)
	state := NewMemoryState(clock)
	ctx := context.Background()

	if err := state.RecordRequest(ctx, clock.Now(), time.Minute); err != nil {
		t.Fatalf("RecordRequest returned error: %v", err)
	}
	st, _ := state.Get(ctx)
	if !st.LastRequest.Equal(testEpoch) {
		t.Fatalf("expected last request %v, got %v", testEpoch, st.LastRequest)
	}

	clock.Advance(time.Minute)
	st, _ = state.Get(ctx)
	if !st.LastRequest.IsZero() {
		t.Errorf("expected last request to expire, got %v", st.LastRequest)
	}
}

type failingState struct{}

func (failingState) Get(context.Context) (GateState, error) {
	return GateState{}, errors.New("connection refused")
}
func (failingState) RecordRequest(context.Context, time.Time, time.Duration) error { return nil }
func (failingState) SetCooldown(context.Context, time.Time, time.Duration) error   { return nil }

func TestGateUnavailableStateBlocks(t *testing.T) {
	gate := NewGate(failingState{}, NewManualClock(testEpoch), GateConfig{MinInterval: time.Minute}, nil)

	if gate.CanMakeRequest(context.Background()) {
		t.Error("expected unreadable state to block requests")
	}
	if wait := gate.WaitTime(context.Background()); wait != time.Minute {
		t.Errorf("expected full interval wait, got %v", wait)
	}
}
