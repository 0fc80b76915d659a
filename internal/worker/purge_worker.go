package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger drops idempotency keys older than the retention window.
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", expr, err)
	}
	return sched, nil
}

// RunLedgerPurge purges at every activation of sched until ctx is done. It
// runs outside the request path; a failed purge is logged and retried at the
// next activation.
func RunLedgerPurge(ctx context.Context, p Purger, retention time.Duration, sched cron.Schedule, logger *zap.Logger) {
	if p == nil || sched == nil || retention <= 0 {
		return
	}
	for {
		now := time.Now()
		timer := time.NewTimer(sched.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		n, err := p.Purge(ctx, retention)
		if err != nil {
			logger.Warn("purge idempotency keys", zap.Error(err))
			continue
		}
		if n > 0 {
			logger.Info("purged idempotency keys", zap.Int64("count", n))
		}
	}
}
