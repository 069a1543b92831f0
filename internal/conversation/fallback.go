package conversation

import (
	"context"

	"go.uber.org/zap"

	"sicklecare/internal/models"
)

// recordUserMessage reads the history window and appends the new user
// message. It runs under the user's lock so entries stay in order.
func (m *Machine) recordUserMessage(ctx context.Context, user *models.User, text string) []models.ChatEntry {
	history, err := m.chats.Recent(ctx, user.ID, m.historySize)
	if err != nil {
		m.logger.Error("[recordUserMessage] err chats.Recent", zap.String("address", user.Address), zap.Error(err))
		history = nil
	}

	entry := &models.ChatEntry{UserID: user.ID, Message: text, Sender: models.SenderUser, Timestamp: m.now()}
	if err := m.chats.Append(ctx, entry); err != nil {
		m.logger.Error("[recordUserMessage] err chats.Append", zap.String("address", user.Address), zap.Error(err))
	}
	return history
}

// answer asks the assistant without holding the user's lock. In async mode
// the reply is delivered through the sender by a tracked background task.
func (m *Machine) answer(ctx context.Context, user models.User, history []models.ChatEntry, text string) []Message {
	if m.async && m.startTask(func(taskCtx context.Context) {
		reply := m.reply(taskCtx, &user, history, text)
		if err := m.sender.SendText(taskCtx, user.Address, reply); err != nil {
			m.logger.Error("[answer] err sender.SendText", zap.String("address", user.Address), zap.Error(err))
		}
	}) {
		return nil
	}

	return textMessages(m.reply(ctx, &user, history, text))
}

func (m *Machine) reply(ctx context.Context, user *models.User, history []models.ChatEntry, text string) string {
	reply := replyUnavailable
	if m.bridge != nil {
		reply = m.bridge.Reply(ctx, user, history, text)
	}

	entry := &models.ChatEntry{UserID: user.ID, Message: reply, Sender: models.SenderAssistant, Timestamp: m.now()}
	if err := m.chats.Append(ctx, entry); err != nil {
		m.logger.Error("[reply] err chats.Append", zap.String("address", user.Address), zap.Error(err))
	}
	return reply
}

// startTask runs fn in the task group; it returns false once shut down
func (m *Machine) startTask(fn func(ctx context.Context)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.tasks.Go(func() error {
		fn(m.tasksCtx)
		return nil
	})
	return true
}

// Shutdown stops accepting background replies and waits for in-flight ones.
// When ctx expires first the remaining tasks are cancelled and awaited.
func (m *Machine) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = m.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancelTasks()
		return nil
	case <-ctx.Done():
		m.cancelTasks()
		<-done
		return ctx.Err()
	}
}
