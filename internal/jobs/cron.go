package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// OutboxRetrier re-sends notifications parked after a failed delivery.
type OutboxRetrier interface {
	RetryDue(ctx context.Context) (int, error)
}

const (
	DefaultOutboxSchedule = "@every 1m"
	outboxRunTimeout      = 50 * time.Second
)

// InitCronJobs registers the background jobs on c and starts it. A run that
// is still going when the next one is due is skipped.
func InitCronJobs(c *cron.Cron, schedule string, retrier OutboxRetrier, logger *slog.Logger) error {
	if schedule == "" {
		schedule = DefaultOutboxSchedule
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		RunOutbox(context.Background(), retrier, logger)
	}))
	if _, err := c.AddJob(schedule, job); err != nil {
		return err
	}

	c.Start()
	logger.Info("Cron jobs initialized", "outbox_schedule", schedule)
	return nil
}

// RunOutbox performs one retry pass.
func RunOutbox(ctx context.Context, retrier OutboxRetrier, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, outboxRunTimeout)
	defer cancel()

	sent, err := retrier.RetryDue(ctx)
	if err != nil {
		logger.Error("Notification retry pass failed", "error", err)
		return
	}
	if sent > 0 {
		logger.Info("Retried notifications delivered", "count", sent)
	}
}
