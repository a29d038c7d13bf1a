package session

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically evicts idle sessions and sessions whose shell has
// exited.
type Reaper struct {
	m *Manager
}

// NewReaper creates a reaper for m. The interval is read from the
// configuration when Run starts and again after every tick, so a reloaded
// interval takes effect from the next tick on.
func NewReaper(m *Manager) *Reaper {
	return &Reaper{m: m}
}

func (r *Reaper) interval() time.Duration {
	if d := r.m.Config().Reaper.Interval; d > 0 {
		return d
	}
	return time.Minute
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	interval := r.interval()
	ticker := r.m.clock.NewTicker(interval)
	defer func() { ticker.Stop() }()

	r.m.logger.Debug("reaper started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if r.m.Config().Reaper.Enabled {
				if n := r.Sweep(); n > 0 {
					r.m.logger.Info("reaper removed sessions", slog.Int("count", n))
				}
			}
			if next := r.interval(); next != interval {
				ticker.Stop()
				interval = next
				ticker = r.m.clock.NewTicker(interval)
				r.m.logger.Info("reaper interval changed", slog.Duration("interval", interval))
			}
		}
	}
}

// Sweep runs one pass and returns the number of sessions removed. A zero
// max_idle disables idle eviction.
func (r *Reaper) Sweep() int {
	n := r.m.CleanupExited()
	if maxIdle := r.m.Config().Reaper.MaxIdle; maxIdle > 0 {
		n += r.m.CleanupInactive(maxIdle)
	}
	return n
}
