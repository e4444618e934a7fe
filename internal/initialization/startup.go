package initialization

import (
	"context"
	"time"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
)

// Backoff shapes the startup probing schedule
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
}

// DefaultBackoff returns the standard startup probing schedule
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  1 * time.Second,
		Max:      10 * time.Second,
		Factor:   2.0,
	}
}

// ProbeFunc checks the data plane, reporting failures as failover error kinds
type ProbeFunc func(ctx context.Context) *failover.Error

// WaitForDataPlane probes the data plane with backoff until it answers or
// the schedule is exhausted. Only transient kinds (endpoints or quorum not
// yet up) are retried; kinds that retrying cannot fix, like a misconfigured
// region, are surfaced immediately. Failover steps themselves are never
// retried; this runs once, at startup, before the control API is useful.
func WaitForDataPlane(ctx context.Context, logger *logging.Logger, backoff Backoff, probe ProbeFunc) *failover.Error {
	delay := backoff.Initial

	var lastErr *failover.Error
	for attempt := 1; attempt <= backoff.Attempts; attempt++ {
		lastErr = probe(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("Data plane reachable", map[string]interface{}{"attempt": attempt})
			}
			return nil
		}

		if !retryable(lastErr.Kind) {
			return lastErr
		}

		logger.Warn("Data plane not reachable yet", map[string]interface{}{
			"attempt":  attempt,
			"attempts": backoff.Attempts,
			"kind":     string(lastErr.Kind),
			"error":    lastErr.Message,
		})

		if attempt < backoff.Attempts {
			select {
			case <-ctx.Done():
				return failover.NewError(lastErr.Kind, "startup probing cancelled: %s", lastErr.Message)
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * backoff.Factor)
				if delay > backoff.Max {
					delay = backoff.Max
				}
			}
		}
	}

	return lastErr
}

// retryable reports whether waiting longer could change the outcome
func retryable(kind failover.ErrorKind) bool {
	switch kind {
	case failover.KindUnreachable, failover.KindQuorumUnavailable, failover.KindDeadlineExceeded:
		return true
	default:
		return false
	}
}
