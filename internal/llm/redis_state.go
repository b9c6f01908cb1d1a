package llm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisState shares gate state between processes through Redis keys that
// expire on their own, so a crashed process never leaves a stale gate behind.
type RedisState struct {
	client      redis.UniversalClient
	lastKey     string
	cooldownKey string
}

// NewRedisState creates a Redis-backed state store under the given key prefix.
func NewRedisState(client redis.UniversalClient, prefix string) *RedisState {
	return &RedisState{
		client:      client,
		lastKey:     prefix + ":last_request",
		cooldownKey: prefix + ":cooldown_until",
	}
}

func (s *RedisState) Get(ctx context.Context) (GateState, error) {
	values, err := s.client.MGet(ctx, s.lastKey, s.cooldownKey).Result()
	if err != nil {
		return GateState{}, fmt.Errorf("failed to read gate state: %w", err)
	}

	var state GateState
	if state.LastRequest, err = parseUnixNano(values[0]); err != nil {
		return GateState{}, fmt.Errorf("invalid %s: %w", s.lastKey, err)
	}
	if state.CooldownUntil, err = parseUnixNano(values[1]); err != nil {
		return GateState{}, fmt.Errorf("invalid %s: %w", s.cooldownKey, err)
	}
	return state, nil
}

func (s *RedisState) RecordRequest(ctx context.Context, at time.Time, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.lastKey, at.UnixNano(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to record request time: %w", err)
	}
	return nil
}

func (s *RedisState) SetCooldown(ctx context.Context, until time.Time, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.cooldownKey, until.UnixNano(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

func parseUnixNano(v interface{}) (time.Time, error) {
	if v == nil {
		return time.Time{}, nil
	}
	raw, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected value type %T", v)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos), nil
}
