package queue

import (
	"context"
	"errors"
	"log"
	"time"
)

const defaultPollInterval = 30 * time.Second

// RunnerConfig controls the background drain loop.
type RunnerConfig struct {
	// PollInterval bounds how long a deferred record waits for its next
	// delivery attempt when no enqueue wakes the runner earlier.
	PollInterval time.Duration
}

func (c RunnerConfig) normalized() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Run drains the queue until ctx is done: once at startup (replaying writes
// queued before the last shutdown), then on every enqueue signal and poll
// tick. Drain failures are logged, not fatal; the deferred record is simply
// retried on the next trigger.
func (q *Queue) Run(ctx context.Context, cfg RunnerConfig) error {
	cfg = cfg.normalized()

	q.drainLogged(ctx)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
			q.drainLogged(ctx)
		case <-ticker.C:
			q.drainLogged(ctx)
		}
	}
}

func (q *Queue) drainLogged(ctx context.Context) {
	if err := q.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("drain pending writes: %v", err)
	}
}
