package conversation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sicklecare/internal/models"
)

// stepHandler continues a multi-step dialogue. handled=false lets routing
// fall through to commands and keywords.
type stepHandler func(ctx context.Context, user *models.User, text string) (out []Message, handled bool)

func (m *Machine) pendingHandlers() map[models.PendingAction]stepHandler {
	return map[models.PendingAction]stepHandler{
		models.PendingAwaitingName:              m.stepStaleRegistration,
		models.PendingAwaitingRole:              m.stepStaleRegistration,
		models.PendingAwaitingLocationForCrisis: m.stepCrisisLocation,
		models.PendingAwaitingEmergencyContact:  m.stepEmergencyContact,
		models.PendingAwaitingReminderText:      m.stepReminderText,
		models.PendingAwaitingReminderTime:      m.stepReminderTime,
	}
}

func (m *Machine) dispatchPending(ctx context.Context, user *models.User, text string) ([]Message, bool) {
	handler, ok := m.pending[user.PendingAction]
	if !ok {
		m.logger.Warn("Resetting unknown pending action",
			zap.String("address", user.Address),
			zap.String("pending_action", string(user.PendingAction)))
		user.ClearPending()
		return nil, false
	}
	return handler(ctx, user, text)
}

// stepStaleRegistration clears a registration step whose field is already filled
func (m *Machine) stepStaleRegistration(ctx context.Context, user *models.User, text string) ([]Message, bool) {
	user.ClearPending()
	return nil, false
}

func (m *Machine) stepCrisisLocation(ctx context.Context, user *models.User, text string) ([]Message, bool) {
	return textMessages(m.crisis.ProvideLocation(ctx, user, text)...), true
}

func (m *Machine) stepEmergencyContact(ctx context.Context, user *models.User, text string) ([]Message, bool) {
	return textMessages(m.crisis.AddContact(ctx, user, text)...), true
}

// startReminder opens the reminder creation dialogue
func (m *Machine) startReminder(ctx context.Context, user *models.User) []Message {
	user.PendingAction = models.PendingAwaitingReminderText
	user.ScratchText = ""
	return textMessages(replyReminderTextPrompt)
}

func (m *Machine) stepReminderText(ctx context.Context, user *models.User, text string) ([]Message, bool) {
	if text == "" {
		return textMessages(replyReminderTextPrompt), true
	}
	user.ScratchText = text
	user.PendingAction = models.PendingAwaitingReminderTime
	return textMessages(replyReminderTimePrompt), true
}

// stepReminderTime ends the dialogue whatever the outcome; an invalid time
// is reported and the user has to start over
func (m *Machine) stepReminderTime(ctx context.Context, user *models.User, text string) ([]Message, bool) {
	message := user.ScratchText
	user.ClearPending()

	if message == "" {
		m.logger.Error("[stepReminderTime] reminder text missing from scratch", zap.String("address", user.Address))
		return textMessages(replyReminderRequestAgain), true
	}

	timeOfDay, err := models.ParseTimeOfDay(text)
	if err != nil {
		return textMessages(replyReminderInvalidTime), true
	}

	reminder := &models.Reminder{
		UserID:    user.ID,
		Message:   message,
		TimeOfDay: timeOfDay,
		Recurring: true,
		Active:    true,
		CreatedAt: m.now(),
	}
	if err := m.reminders.Create(ctx, reminder); err != nil {
		m.logger.Error("[stepReminderTime] err reminders.Create", zap.String("address", user.Address), zap.Error(err))
		return textMessages(replyReminderSaveFailed), true
	}

	m.logger.Info("Reminder created",
		zap.String("address", user.Address),
		zap.Uint("reminder_id", reminder.ID),
		zap.String("time_of_day", timeOfDay))
	return textMessages(fmt.Sprintf(replyReminderSetFormat, timeOfDay)), true
}
