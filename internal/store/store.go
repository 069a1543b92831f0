// Package store persists users, chat history, reminders and resources.
package store

import (
	"context"
	"errors"
	"time"

	"sicklecare/internal/models"
)

var ErrNotFound = errors.New("record not found")

// UserStore holds one record per end user, keyed by address
type UserStore interface {
	// GetOrCreate returns the user for address, creating it if absent.
	// created is true when this call inserted the row.
	GetOrCreate(ctx context.Context, address string) (user *models.User, created bool, err error)
	GetByAddress(ctx context.Context, address string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
}

// ChatStore is the append-only assistant history
type ChatStore interface {
	Append(ctx context.Context, entry *models.ChatEntry) error
	// Recent returns the newest limit entries in chronological order
	Recent(ctx context.Context, userID uint, limit int) ([]models.ChatEntry, error)
	Clear(ctx context.Context, userID uint) error
}

// ReminderStore holds scheduled reminders and their fire claims
type ReminderStore interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	ListActiveByUser(ctx context.Context, userID uint) ([]models.Reminder, error)
	// Due returns active reminders scheduled at timeOfDay and created no later
	// than now, with their owning user loaded
	Due(ctx context.Context, timeOfDay string, now time.Time) ([]models.Reminder, error)
	// ClaimOnce atomically deactivates a non-recurring reminder.
	// Only the caller that flips it from active gets true.
	ClaimOnce(ctx context.Context, reminderID uint) (bool, error)
	// ClaimOccurrence records a fire of a recurring reminder for fireKey.
	// Only the first caller for a given (reminder, key) gets true.
	ClaimOccurrence(ctx context.Context, reminderID uint, fireKey string, firedAt time.Time) (bool, error)
}

// ResourceStore is the educational resource library
type ResourceStore interface {
	Create(ctx context.Context, resource *models.Resource) error
	ByCategory(ctx context.Context, category, language string) ([]models.Resource, error)
}

// Stores bundles every store the application needs
type Stores struct {
	Users     UserStore
	Chats     ChatStore
	Reminders ReminderStore
	Resources ResourceStore
}
