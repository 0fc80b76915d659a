package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) Purge(context.Context, time.Duration) (int64, error) {
	p.calls.Add(1)
	return 1, nil
}

type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func TestRunLedgerPurgeStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunLedgerPurge(ctx, p, time.Hour, every(5*time.Millisecond), zap.NewNop())
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunLedgerPurgeIgnoresDisabledRetention(t *testing.T) {
	p := &countingPurger{}
	RunLedgerPurge(context.Background(), p, 0, every(time.Millisecond), zap.NewNop())
	assert.Zero(t, p.calls.Load())
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("*/15 * * * *")
	require.NoError(t, err)
	from := time.Date(2026, 10, 14, 9, 1, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 15, 0, 0, time.UTC), sched.Next(from))

	_, err = ParseSchedule("every fifteen minutes")
	assert.Error(t, err)
}
