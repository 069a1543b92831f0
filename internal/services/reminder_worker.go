package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sicklecare/internal/models"
	"sicklecare/internal/scheduler"
	"sicklecare/internal/store"
)

// Notifier delivers reminder text to a user's address
type Notifier interface {
	SendText(ctx context.Context, to, body string) error
}

// SweepReport summarizes one sweep
type SweepReport struct {
	TimeOfDay string `json:"time_of_day"`
	Matched   int    `json:"matched"`
	Claimed   int    `json:"claimed"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
}

type ReminderWorker struct {
	reminders store.ReminderStore
	notifier  Notifier
	location  *time.Location
	interval  time.Duration
	logger    *zap.Logger
}

func NewReminderWorker(reminders store.ReminderStore, notifier Notifier, location *time.Location, interval time.Duration, logger *zap.Logger) *ReminderWorker {
	if location == nil {
		location = time.UTC
	}
	if interval <= 0 {
		interval = time.Minute // Check every minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderWorker{
		reminders: reminders,
		notifier:  notifier,
		location:  location,
		interval:  interval,
		logger:    logger,
	}
}

// Register hooks the sweep onto a scheduler
func (w *ReminderWorker) Register(s scheduler.Scheduler) {
	s.Register(w.interval, "reminder_sweep", func(ctx context.Context) {
		w.Sweep(ctx, time.Now())
	})
}

// Sweep sends every reminder due at now's minute. Each reminder is claimed
// before it is sent, so overlapping sweeps deliver an occurrence at most once.
func (w *ReminderWorker) Sweep(ctx context.Context, now time.Time) SweepReport {
	now = now.In(w.location)
	report := SweepReport{TimeOfDay: now.Format(models.TimeOfDayLayout)}

	due, err := w.reminders.Due(ctx, report.TimeOfDay, now)
	if err != nil {
		w.logger.Error("[Sweep] err reminders.Due", zap.String("time_of_day", report.TimeOfDay), zap.Error(err))
		return report
	}

	for i := range due {
		reminder := &due[i]
		if !reminder.DueOn(now) {
			continue
		}
		report.Matched++

		claimed, err := w.claim(ctx, reminder, now)
		if err != nil {
			report.Failed++
			w.logger.Error("[Sweep] err claim", zap.Uint("reminder_id", reminder.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		report.Claimed++

		if err := w.notifier.SendText(ctx, reminder.User.Address, reminder.NotificationText()); err != nil {
			report.Failed++
			w.logger.Error("[Sweep] err notifier.SendText",
				zap.Uint("reminder_id", reminder.ID),
				zap.String("address", reminder.User.Address),
				zap.Error(err))
			continue
		}
		report.Sent++
	}

	if report.Matched > 0 {
		w.logger.Info("Reminder sweep finished",
			zap.String("time_of_day", report.TimeOfDay),
			zap.Int("matched", report.Matched),
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed))
	}
	return report
}

func (w *ReminderWorker) claim(ctx context.Context, reminder *models.Reminder, now time.Time) (bool, error) {
	if reminder.Recurring {
		return w.reminders.ClaimOccurrence(ctx, reminder.ID, models.FireKey(now), now)
	}
	return w.reminders.ClaimOnce(ctx, reminder.ID)
}
