package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sicklecare/internal/models"
)

// Memory is an in-process implementation of every store interface.
// It backs STORE_DRIVER=memory and the package tests.
type Memory struct {
	mu        sync.Mutex
	nextID    uint
	users     map[string]*models.User
	chats     []models.ChatEntry
	reminders map[uint]*models.Reminder
	fires     map[string]struct{}
	resources []models.Resource
	now       func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]*models.User),
		reminders: make(map[uint]*models.Reminder),
		fires:     make(map[string]struct{}),
		now:       time.Now,
	}
}

// WithClock overrides the clock used for created timestamps
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Stores exposes the memory store through the Stores bundle
func (m *Memory) Stores() Stores {
	return Stores{
		Users:     memoryUsers{m},
		Chats:     memoryChats{m},
		Reminders: memoryReminders{m},
		Resources: memoryResources{m},
	}
}

func (m *Memory) id() uint {
	m.nextID++
	return m.nextID
}

type memoryUsers struct{ m *Memory }

func (s memoryUsers) GetOrCreate(ctx context.Context, address string) (*models.User, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if u, ok := s.m.users[address]; ok {
		cp := copyUser(u)
		return &cp, false, nil
	}
	now := s.m.now()
	u := &models.User{
		ID:                s.m.id(),
		Address:           address,
		PreferredLanguage: models.DefaultLanguage,
		EmergencyContacts: models.ContactList{},
		LastInteraction:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.m.users[address] = u
	cp := copyUser(u)
	return &cp, true, nil
}

func (s memoryUsers) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u, ok := s.m.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyUser(u)
	return &cp, nil
}

func (s memoryUsers) Save(ctx context.Context, user *models.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	if _, ok := s.m.users[user.Address]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = s.m.now()
	cp := copyUser(user)
	s.m.users[user.Address] = &cp
	return nil
}

func copyUser(u *models.User) models.User {
	cp := *u
	cp.EmergencyContacts = append(models.ContactList{}, u.EmergencyContacts...)
	cp.ChatEntries = nil
	cp.Reminders = nil
	return cp
}

type memoryChats struct{ m *Memory }

func (s memoryChats) Append(ctx context.Context, entry *models.ChatEntry) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	entry.ID = s.m.id()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.m.now()
	}
	s.m.chats = append(s.m.chats, *entry)
	return nil
}

func (s memoryChats) Recent(ctx context.Context, userID uint, limit int) ([]models.ChatEntry, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []models.ChatEntry
	for i := len(s.m.chats) - 1; i >= 0 && len(out) < limit; i-- {
		if s.m.chats[i].UserID == userID {
			out = append(out, s.m.chats[i])
		}
	}
	// newest-first window, replayed oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s memoryChats) Clear(ctx context.Context, userID uint) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	kept := s.m.chats[:0]
	for _, c := range s.m.chats {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	s.m.chats = kept
	return nil
}

type memoryReminders struct{ m *Memory }

func (s memoryReminders) Create(ctx context.Context, reminder *models.Reminder) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	reminder.ID = s.m.id()
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = s.m.now()
	}
	cp := *reminder
	cp.User = models.User{}
	s.m.reminders[cp.ID] = &cp
	return nil
}

func (s memoryReminders) ListActiveByUser(ctx context.Context, userID uint) ([]models.Reminder, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []models.Reminder
	for _, r := range s.m.reminders {
		if r.UserID == userID && r.Active {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimeOfDay != out[j].TimeOfDay {
			return out[i].TimeOfDay < out[j].TimeOfDay
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s memoryReminders) Due(ctx context.Context, timeOfDay string, now time.Time) ([]models.Reminder, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []models.Reminder
	for _, r := range s.m.reminders {
		if !r.Active || r.TimeOfDay != timeOfDay || r.CreatedAt.After(now) {
			continue
		}
		cp := *r
		for _, u := range s.m.users {
			if u.ID == r.UserID {
				cp.User = copyUser(u)
				break
			}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memoryReminders) ClaimOnce(ctx context.Context, reminderID uint) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	r, ok := s.m.reminders[reminderID]
	if !ok || !r.Active {
		return false, nil
	}
	r.Active = false
	return true, nil
}

func (s memoryReminders) ClaimOccurrence(ctx context.Context, reminderID uint, fireKey string, firedAt time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	key := fmt.Sprintf("%d#%s", reminderID, fireKey)
	if _, ok := s.m.fires[key]; ok {
		return false, nil
	}
	s.m.fires[key] = struct{}{}
	return true, nil
}

type memoryResources struct{ m *Memory }

func (s memoryResources) Create(ctx context.Context, resource *models.Resource) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	resource.ID = s.m.id()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = s.m.now()
	}
	s.m.resources = append(s.m.resources, *resource)
	return nil
}

func (s memoryResources) ByCategory(ctx context.Context, category, language string) ([]models.Resource, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	var out []models.Resource
	for _, r := range s.m.resources {
		if strings.Contains(strings.ToLower(r.Category), strings.ToLower(category)) &&
			strings.EqualFold(r.Language, language) {
			out = append(out, r)
		}
	}
	return out, nil
}
