package llm

import (
	"context"
	"log/slog"
	"time"
)

// Gate enforces a minimum spacing between outbound generative API calls and
// an extended cool-down after the provider throttles us. A single Gate is
// shared by every correction type so the interval holds process-wide.
type Gate struct {
	state    StateStore
	clock    Clock
	interval time.Duration
	cooldown time.Duration
	logger   *slog.Logger
}

// GateConfig holds the spacing rules.
type GateConfig struct {
	MinInterval      time.Duration
	ThrottleCooldown time.Duration
}

// NewGate creates a gate over the given state store. A nil clock means the
// wall clock.
func NewGate(state StateStore, clock Clock, cfg GateConfig, logger *slog.Logger) *Gate {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		state:    state,
		clock:    clock,
		interval: cfg.MinInterval,
		cooldown: cfg.ThrottleCooldown,
		logger:   logger,
	}
}

// nextAllowed returns the earliest instant a request may be sent.
func (g *Gate) nextAllowed(ctx context.Context) (time.Time, error) {
	st, err := g.state.Get(ctx)
	if err != nil {
		return time.Time{}, err
	}

	var next time.Time
	if !st.LastRequest.IsZero() {
		next = st.LastRequest.Add(g.interval)
	}
	if st.CooldownUntil.After(next) {
		next = st.CooldownUntil
	}
	return next, nil
}

// CanMakeRequest reports whether a request could be sent right now. When the
// state cannot be read the answer is no; sending blind risks a 429.
func (g *Gate) CanMakeRequest(ctx context.Context) bool {
	next, err := g.nextAllowed(ctx)
	if err != nil {
		g.logger.Warn("rate limit state unavailable", "error", err)
		return false
	}
	return !g.clock.Now().Before(next)
}

// WaitTime estimates how long until CanMakeRequest turns true. It returns the
// full interval when the state cannot be read.
func (g *Gate) WaitTime(ctx context.Context) time.Duration {
	next, err := g.nextAllowed(ctx)
	if err != nil {
		return g.interval
	}
	if d := next.Sub(g.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until a request may be sent or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		next, err := g.nextAllowed(ctx)
		if err != nil {
			return err
		}
		d := next.Sub(g.clock.Now())
		if d <= 0 {
			return nil
		}

		g.logger.Debug("waiting for rate limit window", "wait", d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.clock.After(d):
		}
	}
}

// Record marks a request as sent now.
func (g *Gate) Record(ctx context.Context) error {
	return g.state.RecordRequest(ctx, g.clock.Now(), g.interval)
}

// Throttle starts the extended cool-down.
func (g *Gate) Throttle(ctx context.Context) error {
	until := g.clock.Now().Add(g.cooldown)
	g.logger.Warn("generative api throttled, cooling down", "until", until, "cooldown", g.cooldown)
	return g.state.SetCooldown(ctx, until, g.cooldown)
}
