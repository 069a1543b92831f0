package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sicklecare/internal/models"
)

type commandHandler func(ctx context.Context, user *models.User) []Message

// commandHandlers maps every exact-match command, lowercased, to its handler
func (m *Machine) commandHandlers() map[string]commandHandler {
	reply := func(text string) commandHandler {
		return func(context.Context, *models.User) []Message { return textMessages(text) }
	}

	commands := map[string]commandHandler{
		"menu":         reply(replyMenu),
		"1":            reply(replyInfo),
		"2":            m.resourceCategories,
		"3":            reply(replyCrisisGuide),
		"reset":        m.clearHistory,
		"resources":    m.resourceCategories,
		"my reminders": m.listReminders,
	}
	for _, c := range []string{"clear location", "reset location"} {
		commands[c] = m.clearLocation
	}
	for _, c := range []string{"clear contacts", "reset contacts", "delete contacts"} {
		commands[c] = m.clearContacts
	}
	for _, c := range []string{"reminder", "set reminder", "remind me"} {
		commands[c] = m.startReminder
	}
	for _, c := range []string{"add contact", "add emergency contact"} {
		commands[c] = m.addContact
	}
	return commands
}

// clearHistory drops the assistant history only; reminders and profile stay
func (m *Machine) clearHistory(ctx context.Context, user *models.User) []Message {
	if err := m.chats.Clear(ctx, user.ID); err != nil {
		m.logger.Error("[clearHistory] err chats.Clear", zap.String("address", user.Address), zap.Error(err))
		return textMessages(replyError)
	}
	return textMessages(replyHistoryCleared)
}

func (m *Machine) clearLocation(ctx context.Context, user *models.User) []Message {
	user.Location = ""
	return textMessages(replyLocationCleared)
}

func (m *Machine) clearContacts(ctx context.Context, user *models.User) []Message {
	user.EmergencyContacts = models.ContactList{}
	return textMessages(replyContactsCleared)
}

func (m *Machine) addContact(ctx context.Context, user *models.User) []Message {
	return textMessages(m.crisis.StartAddContact(user)...)
}

func (m *Machine) listReminders(ctx context.Context, user *models.User) []Message {
	reminders, err := m.reminders.ListActiveByUser(ctx, user.ID)
	if err != nil {
		m.logger.Error("[listReminders] err reminders.ListActiveByUser", zap.String("address", user.Address), zap.Error(err))
		return textMessages(replyUnavailable)
	}
	if len(reminders) == 0 {
		return textMessages(replyNoReminders)
	}

	var b strings.Builder
	b.WriteString("⏰ *Your reminders:*")
	for _, r := range reminders {
		schedule := "daily"
		if !r.Recurring {
			schedule = "once"
			if r.Date != nil {
				schedule = "on " + time.Time(*r.Date).Format("2006-01-02")
			}
		}
		fmt.Fprintf(&b, "\n• %s, %s: %s", r.TimeOfDay, schedule, r.Message)
	}
	return textMessages(b.String())
}

func (m *Machine) resourceCategories(ctx context.Context, user *models.User) []Message {
	var b strings.Builder
	b.WriteString(replyResourceCategoriesHeader)
	for i, c := range models.ResourceCategories {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c)
	}
	return textMessages(b.String())
}

// resourcesFor lists a category's resources in the user's language: links
// inline, files as separate media messages
func (m *Machine) resourcesFor(ctx context.Context, user *models.User, topic string) []Message {
	if n, err := strconv.Atoi(topic); err == nil && n >= 1 && n <= len(models.ResourceCategories) {
		topic = models.ResourceCategories[n-1]
	}
	if !models.IsResourceCategory(topic) {
		return m.resourceCategories(ctx, user)
	}
	title := strings.ToUpper(topic[:1]) + topic[1:]

	language := user.PreferredLanguage
	if language == "" {
		language = models.DefaultLanguage
	}

	resources, err := m.resources.ByCategory(ctx, topic, language)
	if err != nil {
		m.logger.Error("[resourcesFor] err resources.ByCategory", zap.String("category", topic), zap.Error(err))
		return textMessages(replyResourcesUnavailable)
	}
	if len(resources) == 0 {
		return textMessages(fmt.Sprintf(replyNoResourcesFormat, title))
	}

	var b strings.Builder
	fmt.Fprintf(&b, replyResourcesHeaderFormat, title)
	var media []Message
	for _, r := range resources {
		if r.Link != "" {
			fmt.Fprintf(&b, "\n\n🔗 *%s*\n%s", r.Title, r.Link)
		}
		if r.MediaURL != "" {
			media = append(media, Message{Text: r.Title, MediaURL: r.MediaURL})
		}
	}
	b.WriteString("\n\n")
	b.WriteString(replyResourcesFooter)

	return append([]Message{{Text: b.String()}}, media...)
}
