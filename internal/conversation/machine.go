// Package conversation is the per-user state machine that turns one inbound
// message into the ordered replies for that turn.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sicklecare/internal/crisis"
	"sicklecare/internal/lock"
	"sicklecare/internal/models"
	"sicklecare/internal/store"
)

// DefaultHistorySize is how many chat entries are replayed to the assistant
const DefaultHistorySize = 5

// crisisKeywords trigger escalation when found anywhere in a message
var crisisKeywords = []string{"pain", "crisis", "emergency", "can't breathe", "severe", "hospital"}

// Message is one outbound item of a turn
type Message struct {
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

func textMessages(texts ...string) []Message {
	out := make([]Message, 0, len(texts))
	for _, t := range texts {
		out = append(out, Message{Text: t})
	}
	return out
}

// Bridge produces assistant replies. It never fails.
type Bridge interface {
	Reply(ctx context.Context, user *models.User, history []models.ChatEntry, text string) string
}

// Sender delivers messages outside of the turn's own response
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

type Machine struct {
	users     store.UserStore
	chats     store.ChatStore
	reminders store.ReminderStore
	resources store.ResourceStore

	locker lock.Locker
	crisis *crisis.Workflow
	bridge Bridge
	sender Sender
	logger *zap.Logger
	now    func() time.Time

	historySize int
	async       bool

	pending  map[models.PendingAction]stepHandler
	commands map[string]commandHandler

	// background assistant replies
	tasks       errgroup.Group
	tasksCtx    context.Context
	cancelTasks context.CancelFunc
	mu          sync.Mutex
	closed      bool
}

type Option func(*Machine)

func WithHistorySize(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.historySize = n
		}
	}
}

// WithAsyncReplies delivers assistant replies through sender after the turn returns
func WithAsyncReplies(sender Sender) Option {
	return func(m *Machine) {
		m.sender = sender
		m.async = sender != nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func New(stores store.Stores, locker lock.Locker, workflow *crisis.Workflow, bridge Bridge, logger *zap.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}

	m := &Machine{
		users:       stores.Users,
		chats:       stores.Chats,
		reminders:   stores.Reminders,
		resources:   stores.Resources,
		locker:      locker,
		crisis:      workflow,
		bridge:      bridge,
		logger:      logger,
		now:         time.Now,
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tasksCtx, m.cancelTasks = context.WithCancel(context.Background())
	m.pending = m.pendingHandlers()
	m.commands = m.commandHandlers()
	return m
}

// turn carries the outcome of routing one message
type turn struct {
	messages []Message
	// fallback is set when the message goes to the assistant
	fallback bool
}

// HandleTurn processes one inbound message from address. The user is loaded
// and saved exactly once, under a lock held per address.
func (m *Machine) HandleTurn(ctx context.Context, address, rawText string) []Message {
	text := strings.TrimSpace(rawText)

	unlock, err := m.locker.Lock(ctx, address)
	if err != nil {
		m.logger.Error("[HandleTurn] err locker.Lock", zap.String("address", address), zap.Error(err))
		return textMessages(replyBusy)
	}
	locked := true
	release := func() {
		if locked {
			locked = false
			unlock()
		}
	}
	defer release()

	user, created, err := m.users.GetOrCreate(ctx, address)
	if err != nil {
		m.logger.Error("[HandleTurn] err users.GetOrCreate", zap.String("address", address), zap.Error(err))
		return textMessages(replyError)
	}

	t := m.route(ctx, user, created, text)

	var history []models.ChatEntry
	if t.fallback {
		history = m.recordUserMessage(ctx, user, text)
	}

	user.LastInteraction = m.now()
	if err := m.users.Save(ctx, user); err != nil {
		m.logger.Error("[HandleTurn] err users.Save", zap.String("address", address), zap.Error(err))
		t.messages = append(t.messages, Message{Text: replySaveFailed})
	}

	if !t.fallback {
		return t.messages
	}

	release()
	return append(m.answer(ctx, *user, history, text), t.messages...)
}

// route runs the transition order; the first step that applies ends the turn
func (m *Machine) route(ctx context.Context, user *models.User, created bool, text string) turn {
	if created || !user.Registered {
		user.Registered = true
		user.PendingAction = models.PendingAwaitingName
		return turn{messages: textMessages(replyWelcome)}
	}

	if user.Name == "" {
		if text == "" {
			user.PendingAction = models.PendingAwaitingName
			return turn{messages: textMessages(replyNamePrompt)}
		}
		user.Name = text
		user.PendingAction = models.PendingAwaitingRole
		return turn{messages: textMessages(fmt.Sprintf(replyRolePromptFormat, user.Name))}
	}

	if user.Role == "" {
		role, ok := models.ParseRole(text)
		if !ok {
			user.PendingAction = models.PendingAwaitingRole
			return turn{messages: textMessages(replyRoleInvalid)}
		}
		user.Role = role
		user.ClearPending()
		return turn{messages: textMessages(replyRegistered)}
	}

	if user.PendingAction != models.PendingNone {
		if out, handled := m.dispatchPending(ctx, user, text); handled {
			return turn{messages: out}
		}
	}

	normalized := strings.ToLower(text)
	if cmd, ok := m.commands[normalized]; ok {
		return turn{messages: cmd(ctx, user)}
	}
	if topic, ok := strings.CutPrefix(normalized, "resources "); ok {
		return turn{messages: m.resourcesFor(ctx, user, strings.TrimSpace(topic))}
	}

	if IsCrisis(text) {
		return turn{messages: textMessages(m.crisis.Escalate(ctx, user, text)...)}
	}

	return turn{fallback: true}
}

// IsCrisis reports whether text contains any crisis keyword
func IsCrisis(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range crisisKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
