package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sicklecare/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewGorm returns the gorm-backed stores sharing one connection
func NewGorm(db *gorm.DB) Stores {
	return Stores{
		Users:     &GormUserStore{db: db},
		Chats:     &GormChatStore{db: db},
		Reminders: &GormReminderStore{db: db},
		Resources: &GormResourceStore{db: db},
	}
}

type GormUserStore struct {
	db *gorm.DB
}

func (s *GormUserStore) GetOrCreate(ctx context.Context, address string) (*models.User, bool, error) {
	user := models.User{
		Address:           address,
		PreferredLanguage: models.DefaultLanguage,
		EmergencyContacts: models.ContactList{},
	}
	// Concurrent first contacts from the same address race on the unique index;
	// the loser simply reads the winner's row.
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "address"}}, DoNothing: true}).
		Create(&user)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &user, true, nil
	}

	existing, err := s.GetByAddress(ctx, address)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *GormUserStore) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (s *GormUserStore) Save(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

type GormChatStore struct {
	db *gorm.DB
}

func (s *GormChatStore) Append(ctx context.Context, entry *models.ChatEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append chat entry: %w", err)
	}
	return nil
}

func (s *GormChatStore) Recent(ctx context.Context, userID uint, limit int) ([]models.ChatEntry, error) {
	var entries []models.ChatEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *GormChatStore) Clear(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.ChatEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear chat history: %w", err)
	}
	return nil
}

// DueReminderQueryPrefix is the start of the sweep query, filtered out of SQL logs
const DueReminderQueryPrefix = `SELECT * FROM "reminder" WHERE active = true AND time_of_day =`

const (
	claimOnceQuery       = `UPDATE reminder SET active = false WHERE id = ? AND active = true`
	claimOccurrenceQuery = `INSERT INTO reminder_fire (reminder_id, fire_key, fired_at) VALUES (?, ?, ?) ON CONFLICT (reminder_id, fire_key) DO NOTHING`
)

type GormReminderStore struct {
	db *gorm.DB
}

func (s *GormReminderStore) Create(ctx context.Context, reminder *models.Reminder) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(reminder).Error; err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (s *GormReminderStore) ListActiveByUser(ctx context.Context, userID uint) ([]models.Reminder, error) {
	var reminders []models.Reminder
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("time_of_day, id").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}

func (s *GormReminderStore) Due(ctx context.Context, timeOfDay string, now time.Time) ([]models.Reminder, error) {
	var reminders []models.Reminder
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("active = true AND time_of_day = ? AND created_at <= ?", timeOfDay, now).
		Order("id").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch due reminders: %w", err)
	}
	return reminders, nil
}

func (s *GormReminderStore) ClaimOnce(ctx context.Context, reminderID uint) (bool, error) {
	res := s.db.WithContext(ctx).Exec(claimOnceQuery, reminderID)
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim reminder %d: %w", reminderID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormReminderStore) ClaimOccurrence(ctx context.Context, reminderID uint, fireKey string, firedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Exec(claimOccurrenceQuery, reminderID, fireKey, firedAt)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record fire of reminder %d: %w", reminderID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

type GormResourceStore struct {
	db *gorm.DB
}

func (s *GormResourceStore) Create(ctx context.Context, resource *models.Resource) error {
	if err := s.db.WithContext(ctx).Create(resource).Error; err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

func (s *GormResourceStore) ByCategory(ctx context.Context, category, language string) ([]models.Resource, error) {
	var resources []models.Resource
	if err := s.db.WithContext(ctx).
		Where("LOWER(category) LIKE ? AND LOWER(language) = ?",
			"%"+strings.ToLower(category)+"%", strings.ToLower(language)).
		Order("id").
		Find(&resources).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch resources: %w", err)
	}
	return resources, nil
}
