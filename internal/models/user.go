package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role is the self-declared relationship of a user to sickle cell disease
type Role string

const (
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
	RoleDonor     Role = "donor"
)

// ParseRole matches input case-insensitively against the known roles
func ParseRole(input string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(input))); r {
	case RolePatient, RoleCaregiver, RoleDonor:
		return r, true
	}
	return "", false
}

// PendingAction names the multi-step sub-dialogue a user is currently inside
type PendingAction string

const (
	PendingNone                      PendingAction = ""
	PendingAwaitingName              PendingAction = "awaiting_name"
	PendingAwaitingRole              PendingAction = "awaiting_role"
	PendingAwaitingLocationForCrisis PendingAction = "awaiting_location_for_crisis"
	PendingAwaitingEmergencyContact  PendingAction = "awaiting_emergency_contact"
	PendingAwaitingReminderText      PendingAction = "awaiting_reminder_text"
	PendingAwaitingReminderTime      PendingAction = "awaiting_reminder_time"
)

// PendingActions lists every defined pending action, including none
var PendingActions = []PendingAction{
	PendingNone,
	PendingAwaitingName,
	PendingAwaitingRole,
	PendingAwaitingLocationForCrisis,
	PendingAwaitingEmergencyContact,
	PendingAwaitingReminderText,
	PendingAwaitingReminderTime,
}

// Valid reports whether p is one of the defined pending actions
func (p PendingAction) Valid() bool {
	for _, a := range PendingActions {
		if a == p {
			return true
		}
	}
	return false
}

const DefaultLanguage = "English"

// User is one end user, keyed by their messaging address
type User struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	Address           string        `gorm:"uniqueIndex;size:32;not null" json:"address"`
	Name              string        `gorm:"size:100" json:"name"`
	Role              Role          `gorm:"size:20" json:"role"`
	Registered        bool          `gorm:"not null;default:false" json:"registered"`
	PreferredLanguage string        `gorm:"size:30;not null;default:'English'" json:"preferred_language"`
	Location          string        `gorm:"size:255" json:"location"`
	EmergencyContacts ContactList   `gorm:"type:jsonb;not null;default:'[]'" json:"emergency_contacts"`
	PendingAction     PendingAction `gorm:"size:40" json:"pending_action"`
	ScratchText       string        `gorm:"type:text" json:"-"`
	LastInteraction   time.Time     `gorm:"not null" json:"last_interaction"`
	CreatedAt         time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null" json:"updated_at"`

	ChatEntries []ChatEntry `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Reminders   []Reminder  `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate hook is called before creating a new user
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastInteraction.IsZero() {
		u.LastInteraction = now
	}
	if u.PreferredLanguage == "" {
		u.PreferredLanguage = DefaultLanguage
	}
	return nil
}

// BeforeSave hook is called before saving the user
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "user_profile"
}

// HasLocation reports whether a usable location string is stored
func (u *User) HasLocation() bool {
	return strings.TrimSpace(u.Location) != ""
}

// ClearPending ends any in-progress sub-dialogue
func (u *User) ClearPending() {
	u.PendingAction = PendingNone
	u.ScratchText = ""
}
