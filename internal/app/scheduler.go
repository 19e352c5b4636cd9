/**
 * @description
 * Cron scheduler for background jobs. Billing itself is webhook-driven; the
 * only scheduled job is the upcoming-transfer reminder, which warns users
 * whose recurring transfer is due within the lookahead window.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
)

// reminderLookahead is how far ahead of a subscription's next transfer date
// the reminder fires.
const reminderLookahead = 48 * time.Hour

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	repo     store.Repository
	notifier *Notifier
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates the scheduler. schedule is a cron spec for the
// reminder job.
func NewScheduler(repo store.Repository, notifier *Notifier, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.SendUpcomingTransferReminders); err != nil {
		s.logger.Error("failed to schedule upcoming transfer reminder job", "error", err)
	} else {
		s.logger.Info("scheduled upcoming transfer reminder job", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// SendUpcomingTransferReminders notifies users whose active subscription bills
// within the lookahead window. Reminders are best-effort: a failed one is
// logged and the rest of the batch still runs.
func (s *Scheduler) SendUpcomingTransferReminders() {
	s.logger.Info("starting upcoming transfer reminder job")
	ctx := context.Background()

	subs, err := s.repo.ListSubscriptionsDueWithin(ctx, reminderLookahead)
	if err != nil {
		s.logger.Error("failed to list upcoming subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		s.notifier.Dispatch(ctx, sub.UserID, domain.NotificationSubscriptionUpcoming,
			"Upcoming recurring transfer",
			fmt.Sprintf("Your recurring transfer of %s is scheduled for %s.",
				formatCAD(sub.AmountCADCents), sub.NextTransferDate.Format("January 2, 2006")))
	}

	s.logger.Info("upcoming transfer reminder job finished", "reminders", len(subs))
}
