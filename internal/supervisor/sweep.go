package supervisor

import (
	"context"
	"time"
)

// Run drives the periodic idle/crash/recycle sweep until ctx is cancelled.
// It is meant to be run in its own goroutine, typically under an errgroup
// alongside the HTTP server.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.policy.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce performs one sweep tick. Ticks never overlap: Run calls
// sweepOnce synchronously, and the ticker drops ticks that a slow sweep
// misses. A tick that finds the supervisor lock held (by a spawn, stop,
// touch or other holder) is skipped rather than waiting for it.
func (s *Supervisor) sweepOnce(ctx context.Context) {
	select {
	case <-s.guard:
	default:
		s.log.Debug("sweep tick skipped, supervisor lock busy")
		return
	}

	var toStop []string
	now := time.Now()
	for alias, rec := range s.records.byAlias {
		switch {
		case !s.childAlive(alias):
			s.log.WithField("alias", alias).Warn("worker died unexpectedly, cleaning up")
			toStop = append(toStop, alias)
		case now.Sub(rec.LastUsed) > s.policy.IdleTimeout:
			s.log.WithField("alias", alias).Info("worker idle timeout exceeded, reaping")
			toStop = append(toStop, alias)
		case rec.RequestCount >= s.policy.MaxRequestsBeforeRestart:
			s.log.WithField("alias", alias).Info("worker request count exceeded, recycling")
			toStop = append(toStop, alias)
		}
	}

	for _, alias := range toStop {
		s.stopLocked(alias, s.drainFor(alias))
	}

	s.unlock()
}
