package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"sicklecare/internal/dispatch"
	"sicklecare/internal/models"
	"sicklecare/internal/store"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, nairobi)
}

func seedReminder(t *testing.T, stores store.Stores, address string, r models.Reminder) models.Reminder {
	t.Helper()
	user, _, err := stores.Users.GetOrCreate(context.Background(), address)
	require.NoError(t, err)
	r.UserID = user.ID
	r.Active = true
	if r.CreatedAt.IsZero() {
		r.CreatedAt = at(1, 0, 0)
	}
	require.NoError(t, stores.Reminders.Create(context.Background(), &r))
	return r
}

func TestSweep_MatchesExactMinute(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	seedReminder(t, stores, "+254700000001", models.Reminder{Message: "Take medication", TimeOfDay: "08:00", Recurring: true})

	report := w.Sweep(context.Background(), at(17, 8, 0))
	assert.Equal(t, 1, report.Sent)
	sent := rec.SentTo("+254700000001")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Body, "Take medication")

	report = w.Sweep(context.Background(), at(17, 8, 1))
	assert.Equal(t, 0, report.Matched)
	assert.Len(t, rec.Sent(), 1)
}

func TestSweep_UsesConfiguredTimezone(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	seedReminder(t, stores, "+254700000001", models.Reminder{Message: "Drink water", TimeOfDay: "08:00", Recurring: true})

	// 05:00 UTC is 08:00 in Nairobi
	report := w.Sweep(context.Background(), time.Date(2026, time.October, 17, 5, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, report.Sent)
}

func TestSweep_RecurringFiresEachDay(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	r := seedReminder(t, stores, "+254700000001", models.Reminder{Message: "Folic acid", TimeOfDay: "08:00", Recurring: true})

	w.Sweep(context.Background(), at(17, 8, 0))
	w.Sweep(context.Background(), at(17, 8, 0))
	w.Sweep(context.Background(), at(18, 8, 0))

	assert.Len(t, rec.Sent(), 2)

	active, err := stores.Reminders.ListActiveByUser(context.Background(), r.UserID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSweep_NonRecurringFiresOnce(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	r := seedReminder(t, stores, "+254700000001", models.Reminder{Message: "Clinic visit", TimeOfDay: "09:30"})

	for day := 17; day < 20; day++ {
		w.Sweep(context.Background(), at(day, 9, 30))
	}
	assert.Len(t, rec.Sent(), 1)

	active, err := stores.Reminders.ListActiveByUser(context.Background(), r.UserID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSweep_DatedReminderWaitsForItsDay(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	date := datatypes.Date(time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC))
	seedReminder(t, stores, "+254700000001", models.Reminder{Message: "Transfusion", TimeOfDay: "10:00", Date: &date})

	w.Sweep(context.Background(), at(19, 10, 0))
	assert.Empty(t, rec.Sent())

	w.Sweep(context.Background(), at(20, 10, 0))
	assert.Len(t, rec.Sent(), 1)
}

func TestSweep_SkipsRemindersCreatedLater(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	seedReminder(t, stores, "+254700000001", models.Reminder{Message: "Later", TimeOfDay: "08:00", Recurring: true, CreatedAt: at(17, 8, 30)})

	w.Sweep(context.Background(), at(17, 8, 0))
	assert.Empty(t, rec.Sent())
}

func TestSweep_ConcurrentSweepsFireOnce(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	seedReminder(t, stores, "+254700000001", models.Reminder{Message: "Recurring", TimeOfDay: "08:00", Recurring: true})
	seedReminder(t, stores, "+254700000002", models.Reminder{Message: "Once", TimeOfDay: "08:00"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Sweep(context.Background(), at(17, 8, 0))
		}()
	}
	wg.Wait()

	assert.Len(t, rec.SentTo("+254700000001"), 1)
	assert.Len(t, rec.SentTo("+254700000002"), 1)
}

func TestSweep_FailureIsIsolated(t *testing.T) {
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{Fail: func(to string) error {
		if to == "+254700000001" {
			return errors.New("undeliverable")
		}
		return nil
	}}
	w := NewReminderWorker(stores.Reminders, rec, nairobi, time.Minute, nil)

	seedReminder(t, stores, "+254700000001", models.Reminder{Message: "A", TimeOfDay: "08:00", Recurring: true})
	seedReminder(t, stores, "+254700000002", models.Reminder{Message: "B", TimeOfDay: "08:00", Recurring: true})

	report := w.Sweep(context.Background(), at(17, 8, 0))
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, rec.SentTo("+254700000002"), 1)
}
