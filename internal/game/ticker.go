package game

import (
	"context"
	"log/slog"
	"time"
)

// TickPeriod is the default cadence of the match clock.
const TickPeriod = 100 * time.Millisecond

// Ticker periodically advances the engine's timers. It is the only
// caller of Engine.Tick during a match.
type Ticker struct {
	engine *Engine
	period time.Duration
}

func NewTicker(engine *Engine, period time.Duration) *Ticker {
	if period <= 0 {
		period = TickPeriod
	}
	return &Ticker{engine: engine, period: period}
}

// Run ticks until the context is cancelled. If a tick overruns the
// cadence the next one fires immediately once, then the cadence
// resumes.
func (t *Ticker) Run(ctx context.Context) error {
	timer := time.NewTimer(t.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("tick loop stopped")
			return nil
		case <-timer.C:
		}

		start := time.Now()
		t.engine.Tick(start)

		if elapsed := time.Since(start); elapsed >= t.period {
			slog.Warn("tick overran cadence", "elapsed", elapsed, "period", t.period)
			timer.Reset(0)
		} else {
			timer.Reset(t.period - elapsed)
		}
	}
}
