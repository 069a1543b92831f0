package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TimeOfDayLayout is the 24-hour clock format reminders are scheduled in
const TimeOfDayLayout = "15:04"

// Reminder is a scheduled notification owned by a user
type Reminder struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index" json:"user_id"`
	Message   string          `gorm:"type:text;not null" json:"message"`
	TimeOfDay string          `gorm:"size:5;not null;index:idx_reminder_due" json:"time"`
	Date      *datatypes.Date `json:"date,omitempty"`
	Recurring bool            `gorm:"not null" json:"recurring"`
	Active    bool            `gorm:"not null;index:idx_reminder_due" json:"active"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// BeforeCreate hook is called before creating a new reminder
func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// TableName specifies the table name for the Reminder model
func (Reminder) TableName() string {
	return "reminder"
}

// ParseTimeOfDay validates a strict 24-hour HH:MM string and returns it normalized
func ParseTimeOfDay(input string) (string, error) {
	t, err := time.Parse(TimeOfDayLayout, input)
	if err != nil {
		return "", fmt.Errorf("invalid time of day %q: %w", input, err)
	}
	return t.Format(TimeOfDayLayout), nil
}

// DueOn reports whether the reminder's optional date matches day.
// Recurring reminders ignore the date.
func (r *Reminder) DueOn(day time.Time) bool {
	if r.Recurring || r.Date == nil {
		return true
	}
	d := time.Time(*r.Date)
	y1, m1, d1 := d.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// NotificationText is the body delivered when the reminder fires
func (r *Reminder) NotificationText() string {
	return fmt.Sprintf("⏰ Reminder: %s", r.Message)
}

// ReminderFire tracks which minute a recurring reminder has been fired for,
// so that overlapping sweeps never send the same occurrence twice
type ReminderFire struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ReminderID uint      `gorm:"not null;uniqueIndex:idx_reminder_fire_key" json:"reminder_id"`
	FireKey    string    `gorm:"size:16;not null;uniqueIndex:idx_reminder_fire_key" json:"fire_key"`
	FiredAt    time.Time `gorm:"not null" json:"fired_at"`
}

// TableName specifies the table name for the ReminderFire model
func (ReminderFire) TableName() string {
	return "reminder_fire"
}

// FireKey identifies one matching minute, e.g. "2026-10-17T08:00"
func FireKey(now time.Time) string {
	return now.Format("2006-01-02T15:04")
}

// CreateReminderRequest is the admin payload for scheduling a reminder
type CreateReminderRequest struct {
	Address   string `json:"address" binding:"required"`
	Message   string `json:"message" binding:"required,max=1000"`
	Time      string `json:"time" binding:"required"`
	Date      string `json:"date"`
	Recurring bool   `json:"recurring"`
}
