package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sicklecare/internal/crisis"
	"sicklecare/internal/dispatch"
	"sicklecare/internal/models"
	"sicklecare/internal/store"
)

const addr = "+254700000001"

type echoBridge struct {
	mu      sync.Mutex
	calls   int
	history [][]models.ChatEntry
	delay   time.Duration
}

func (b *echoBridge) Reply(ctx context.Context, user *models.User, history []models.ChatEntry, text string) string {
	b.mu.Lock()
	b.calls++
	b.history = append(b.history, history)
	b.mu.Unlock()
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return "⚠️ AI service unavailable. Please try again later."
		}
	}
	return "echo: " + text
}

type staticFinder []crisis.Facility

func (f staticFinder) FindNearby(ctx context.Context, location string) ([]crisis.Facility, error) {
	return f, nil
}

type fixture struct {
	machine *Machine
	stores  store.Stores
	sent    *dispatch.Recorder
	bridge  *echoBridge
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	stores := store.NewMemory().Stores()
	rec := &dispatch.Recorder{}
	workflow := crisis.New(rec, staticFinder{{Name: "Kenyatta National Hospital", Address: "Hospital Rd"}}, nil)
	bridge := &echoBridge{}
	return &fixture{
		machine: New(stores, nil, workflow, bridge, nil, opts...),
		stores:  stores,
		sent:    rec,
		bridge:  bridge,
	}
}

func (f *fixture) say(t *testing.T, text string) []Message {
	t.Helper()
	return f.machine.HandleTurn(context.Background(), addr, text)
}

func (f *fixture) user(t *testing.T) *models.User {
	t.Helper()
	u, err := f.stores.Users.GetByAddress(context.Background(), addr)
	require.NoError(t, err)
	return u
}

func (f *fixture) register(t *testing.T) {
	t.Helper()
	f.say(t, "hi")
	f.say(t, "Amina")
	f.say(t, "patient")
}

func joined(msgs []Message) string {
	var parts []string
	for _, m := range msgs {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n")
}

func TestEveryPendingActionHasHandler(t *testing.T) {
	f := newFixture(t)
	for _, p := range models.PendingActions {
		if p == models.PendingNone {
			continue
		}
		assert.Contains(t, f.machine.pending, p, "no handler for %s", p)
	}
}

func TestRegistrationOrder(t *testing.T) {
	f := newFixture(t)

	out := f.say(t, "menu")
	assert.Equal(t, replyWelcome, joined(out))
	u := f.user(t)
	assert.True(t, u.Registered)
	assert.Equal(t, models.PendingAwaitingName, u.PendingAction)

	out = f.say(t, "Amina")
	assert.Contains(t, joined(out), "Thanks Amina!")
	assert.Equal(t, models.PendingAwaitingRole, f.user(t).PendingAction)

	// commands before the role is chosen are redirected to the role step
	out = f.say(t, "menu")
	assert.Equal(t, replyRoleInvalid, joined(out))
	assert.Empty(t, f.user(t).Role)

	out = f.say(t, "CareGiver")
	assert.Equal(t, replyRegistered, joined(out))
	u = f.user(t)
	assert.Equal(t, models.RoleCaregiver, u.Role)
	assert.Equal(t, models.PendingNone, u.PendingAction)

	assert.Equal(t, replyMenu, joined(f.say(t, "  MENU ")))
}

func TestUnknownPendingActionIsReset(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	u := f.user(t)
	u.PendingAction = models.PendingAction("ask_reminder_text")
	require.NoError(t, f.stores.Users.Save(context.Background(), u))

	out := f.say(t, "menu")
	assert.Equal(t, replyMenu, joined(out))
	assert.Equal(t, models.PendingNone, f.user(t).PendingAction)
}

func TestPendingPrecedesCommands(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	f.say(t, "reminder")
	out := f.say(t, "menu")
	assert.Equal(t, replyReminderTimePrompt, joined(out))
	assert.Equal(t, "menu", f.user(t).ScratchText)
}

func TestReminderDialogue(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	assert.Equal(t, replyReminderTextPrompt, joined(f.say(t, "Remind me")))
	assert.Equal(t, models.PendingAwaitingReminderText, f.user(t).PendingAction)

	assert.Equal(t, replyReminderTimePrompt, joined(f.say(t, "Take medication")))
	u := f.user(t)
	assert.Equal(t, models.PendingAwaitingReminderTime, u.PendingAction)
	assert.Equal(t, "Take medication", u.ScratchText)

	assert.Equal(t, "✅ Daily reminder set for *08:00*", joined(f.say(t, "08:00")))
	u = f.user(t)
	assert.Equal(t, models.PendingNone, u.PendingAction)
	assert.Empty(t, u.ScratchText)

	reminders, err := f.stores.Reminders.ListActiveByUser(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "Take medication", reminders[0].Message)
	assert.Equal(t, "08:00", reminders[0].TimeOfDay)
	assert.True(t, reminders[0].Recurring)
	assert.True(t, reminders[0].Active)

	assert.Contains(t, joined(f.say(t, "my reminders")), "08:00, daily: Take medication")
}

func TestReminderInvalidTimeEndsDialogue(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	f.say(t, "set reminder")
	f.say(t, "Drink water")
	assert.Equal(t, replyReminderInvalidTime, joined(f.say(t, "8am")))

	u := f.user(t)
	assert.Equal(t, models.PendingNone, u.PendingAction)
	assert.Empty(t, u.ScratchText)

	reminders, err := f.stores.Reminders.ListActiveByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestReminderTimeWithoutScratchResets(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	u := f.user(t)
	u.PendingAction = models.PendingAwaitingReminderTime
	require.NoError(t, f.stores.Users.Save(context.Background(), u))

	assert.Equal(t, replyReminderRequestAgain, joined(f.say(t, "08:00")))
	assert.Equal(t, models.PendingNone, f.user(t).PendingAction)
}

func TestCrisisGating(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	out := f.say(t, "I'm in pain")
	require.Len(t, out, 2)
	assert.Equal(t, crisis.CrisisGuide, out[0].Text)
	assert.Equal(t, crisis.PromptLocation, out[1].Text)
	assert.Empty(t, f.sent.Sent())

	out = f.say(t, "Nairobi")
	assert.Contains(t, joined(out), crisis.PromptContact)
	assert.NotContains(t, joined(out), crisis.CrisisGuide)
	assert.Empty(t, f.sent.Sent())

	out = f.say(t, "12345")
	assert.Equal(t, crisis.InvalidContactMessage, joined(out))
	assert.Empty(t, f.user(t).EmergencyContacts)
	assert.Equal(t, models.PendingAwaitingEmergencyContact, f.user(t).PendingAction)

	out = f.say(t, "+254712345678")
	assert.NotContains(t, joined(out), crisis.CrisisGuide)
	alerts := f.sent.SentTo("+254712345678")
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Body, "I'm in pain")
	assert.Contains(t, joined(out), "Kenyatta National Hospital")

	u := f.user(t)
	assert.Equal(t, "Nairobi", u.Location)
	assert.Equal(t, models.ContactList{"+254712345678"}, u.EmergencyContacts)
	assert.Equal(t, models.PendingNone, u.PendingAction)
	assert.Empty(t, u.ScratchText)

	// gates satisfied: the next crisis message alerts straight away
	f.say(t, "severe crisis again")
	assert.Len(t, f.sent.SentTo("+254712345678"), 2)
}

func TestClearLocationAndContactsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	assert.Equal(t, replyLocationCleared, joined(f.say(t, "clear location")))
	assert.Equal(t, replyContactsCleared, joined(f.say(t, "delete contacts")))

	f.say(t, "add contact")
	assert.Contains(t, joined(f.say(t, "+254712345678")), "saved")
	assert.Empty(t, f.sent.Sent())
	assert.Len(t, f.user(t).EmergencyContacts, 1)

	assert.Equal(t, replyContactsCleared, joined(f.say(t, "Reset Contacts")))
	assert.Empty(t, f.user(t).EmergencyContacts)
	assert.Equal(t, replyContactsCleared, joined(f.say(t, "clear contacts")))
}

func TestResetClearsHistoryOnly(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	f.say(t, "reminder")
	f.say(t, "Folic acid")
	f.say(t, "07:30")
	f.say(t, "what is sickle cell?")

	u := f.user(t)
	history, err := f.stores.Chats.Recent(context.Background(), u.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, replyHistoryCleared, joined(f.say(t, "reset")))

	history, err = f.stores.Chats.Recent(context.Background(), u.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	reminders, err := f.stores.Reminders.ListActiveByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, reminders, 1)
	assert.Equal(t, "Amina", f.user(t).Name)
}

func TestFallbackSync(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	out := f.say(t, "what causes sickle cell?")
	assert.Equal(t, "echo: what causes sickle cell?", joined(out))

	history, err := f.stores.Chats.Recent(context.Background(), f.user(t).ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.SenderUser, history[0].Sender)
	assert.Equal(t, models.SenderAssistant, history[1].Sender)
}

func TestFallbackHistoryWindow(t *testing.T) {
	f := newFixture(t, WithHistorySize(3))
	f.register(t)

	for _, q := range []string{"q1", "q2", "q3"} {
		f.say(t, q)
	}

	f.bridge.mu.Lock()
	defer f.bridge.mu.Unlock()
	last := f.bridge.history[len(f.bridge.history)-1]
	require.Len(t, last, 3)
	assert.Equal(t, "echo: q1", last[0].Message)
	assert.Equal(t, "q2", last[1].Message)
	assert.Equal(t, "echo: q2", last[2].Message)
}

func TestFallbackAsync(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &dispatch.Recorder{}
	f := newFixture(t, WithAsyncReplies(rec))
	f.register(t)

	out := f.say(t, "tell me about hydration")
	assert.Empty(t, out)

	require.NoError(t, f.machine.Shutdown(context.Background()))
	sent := rec.SentTo(addr)
	require.Len(t, sent, 1)
	assert.Equal(t, "echo: tell me about hydration", sent[0].Body)

	// after shutdown replies come back in the turn
	assert.Equal(t, "echo: again", joined(f.say(t, "again")))
}

func TestShutdownCancelsSlowReplies(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &dispatch.Recorder{}
	f := newFixture(t, WithAsyncReplies(rec))
	f.bridge.delay = time.Minute
	f.register(t)

	f.say(t, "slow question")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.machine.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsyncReplyDoesNotHoldLock(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &dispatch.Recorder{}
	f := newFixture(t, WithAsyncReplies(rec))
	f.register(t)
	f.bridge.delay = 200 * time.Millisecond

	f.say(t, "long question")

	start := time.Now()
	assert.Equal(t, replyMenu, joined(f.say(t, "menu")))
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	require.NoError(t, f.machine.Shutdown(context.Background()))
	assert.Len(t, rec.SentTo(addr), 1)
}

func TestResources(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	ctx := context.Background()
	require.NoError(t, f.stores.Resources.Create(ctx, &models.Resource{Category: "hydration", Language: "English", Title: "Water guide", Link: "https://example.org/water"}))
	require.NoError(t, f.stores.Resources.Create(ctx, &models.Resource{Category: "hydration", Language: "English", Title: "Poster", MediaURL: "https://res.cloudinary.com/poster.png"}))
	require.NoError(t, f.stores.Resources.Create(ctx, &models.Resource{Category: "hydration", Language: "Swahili", Title: "Maji", Link: "https://example.org/maji"}))

	assert.Contains(t, joined(f.say(t, "2")), "hydration")

	out := f.say(t, "Resources Hydration")
	require.Len(t, out, 2)
	assert.Contains(t, out[0].Text, "Water guide")
	assert.NotContains(t, out[0].Text, "Maji")
	assert.Equal(t, "https://res.cloudinary.com/poster.png", out[1].MediaURL)

	assert.Equal(t, "⚠️ Sorry, no resources available for *Pain* yet.", joined(f.say(t, "resources pain")))
	assert.Contains(t, joined(f.say(t, "resources unicorns")), replyResourceCategoriesHeader)

	// numbered entries of the category list select the same category
	out = f.say(t, "resources 1")
	require.Len(t, out, 2)
	assert.Contains(t, out[0].Text, "Water guide")
	assert.Equal(t, "⚠️ Sorry, no resources available for *Pain* yet.", joined(f.say(t, "resources 2")))
	assert.Contains(t, joined(f.say(t, "resources 7")), replyResourceCategoriesHeader)
	assert.Contains(t, joined(f.say(t, "resources 0")), replyResourceCategoriesHeader)
}

func TestStaticMenuReplies(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	assert.Equal(t, replyInfo, joined(f.say(t, "1")))
	assert.Equal(t, replyCrisisGuide, joined(f.say(t, "3")))
	assert.Equal(t, replyNoReminders, joined(f.say(t, "my reminders")))
}

// failingSaveUsers refuses to persist users once armed
type failingSaveUsers struct {
	store.UserStore
	fail bool
}

func (u *failingSaveUsers) Save(ctx context.Context, user *models.User) error {
	if u.fail {
		return errors.New("db down")
	}
	return u.UserStore.Save(ctx, user)
}

func TestSaveFailureReportedOnEveryPath(t *testing.T) {
	stores := store.NewMemory().Stores()
	users := &failingSaveUsers{UserStore: stores.Users}
	stores.Users = users
	m := New(stores, nil, crisis.New(&dispatch.Recorder{}, nil, nil), &echoBridge{}, nil)
	say := func(text string) []Message { return m.HandleTurn(context.Background(), addr, text) }

	say("hi")
	say("Amina")
	say("patient")
	users.fail = true

	out := say("menu")
	require.Len(t, out, 2)
	assert.Equal(t, replyMenu, out[0].Text)
	assert.Equal(t, replySaveFailed, out[1].Text)

	out = say("what is sickle cell?")
	require.Len(t, out, 2)
	assert.Equal(t, "echo: what is sickle cell?", out[0].Text)
	assert.Equal(t, replySaveFailed, out[1].Text)
}

type failingLocker struct{}

func (failingLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, errors.New("lock timeout")
}

func TestLockFailureStillReplies(t *testing.T) {
	stores := store.NewMemory().Stores()
	m := New(stores, failingLocker{}, crisis.New(&dispatch.Recorder{}, nil, nil), &echoBridge{}, nil)

	assert.Equal(t, replyBusy, joined(m.HandleTurn(context.Background(), addr, "hi")))
}

func TestConcurrentTurnsSameUser(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.say(t, "add contact")
		}()
	}
	wg.Wait()

	u := f.user(t)
	assert.Equal(t, models.PendingAwaitingEmergencyContact, u.PendingAction)
	assert.Equal(t, "Amina", u.Name)
}

func TestIsCrisis(t *testing.T) {
	assert.True(t, IsCrisis("I CAN'T BREATHE"))
	assert.True(t, IsCrisis("going to the Hospital"))
	assert.False(t, IsCrisis("how do I stay hydrated?"))
}
