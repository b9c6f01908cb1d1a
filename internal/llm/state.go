package llm

import (
	"context"
	"sync"
	"time"
)

// GateState is the shared rate-limit state. Zero times mean "not recorded"
// (never set, or expired).
type GateState struct {
	LastRequest   time.Time
	CooldownUntil time.Time
}

// StateStore persists gate state with a time-to-live. Implementations must be
// safe for concurrent use.
type StateStore interface {
	Get(ctx context.Context) (GateState, error)
	RecordRequest(ctx context.Context, at time.Time, ttl time.Duration) error
	SetCooldown(ctx context.Context, until time.Time, ttl time.Duration) error
}

type expiringTime struct {
	value     time.Time
	expiresAt time.Time
}

func (e expiringTime) get(now time.Time) time.Time {
	if e.value.IsZero() || !now.Before(e.expiresAt) {
		return time.Time{}
	}
	return e.value
}

// MemoryState keeps gate state in process memory.
type MemoryState struct {
	mu       sync.Mutex
	clock    Clock
	last     expiringTime
	cooldown expiringTime
}

// NewMemoryState creates an in-process state store.
func NewMemoryState(clock Clock) *MemoryState {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryState{clock: clock}
}

func (s *MemoryState) Get(ctx context.Context) (GateState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	return GateState{
		LastRequest:   s.last.get(now),
		CooldownUntil: s.cooldown.get(now),
	}, nil
}

func (s *MemoryState) RecordRequest(ctx context.Context, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = expiringTime{value: at, expiresAt: at.Add(ttl)}
	return nil
}

func (s *MemoryState) SetCooldown(ctx context.Context, until time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldown = expiringTime{value: until, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}
