package crisis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sicklecare/internal/dispatch"
	"sicklecare/internal/models"
)

type fakeFinder struct {
	facilities []Facility
	err        error
	calls      int
}

func (f *fakeFinder) FindNearby(ctx context.Context, location string) ([]Facility, error) {
	f.calls++
	return f.facilities, f.err
}

type fakeSideChannel struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeSideChannel) NotifyCrisis(ctx context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeSideChannel) PublishCrisis(ctx context.Context, e Event) error {
	return f.NotifyCrisis(ctx, e)
}

func newUser() *models.User {
	return &models.User{
		ID:                1,
		Address:           "+254700000001",
		Name:              "Amina",
		Role:              models.RolePatient,
		Registered:        true,
		EmergencyContacts: models.ContactList{},
	}
}

func TestValidateContact(t *testing.T) {
	_, err := ValidateContact("12345")
	assert.ErrorIs(t, err, ErrInvalidContact)

	_, err = ValidateContact("+2547")
	assert.ErrorIs(t, err, ErrInvalidContact)

	addr, err := ValidateContact("  +254712345678 ")
	require.NoError(t, err)
	assert.Equal(t, "+254712345678", addr)
}

func TestEscalate_GateSequence(t *testing.T) {
	ctx := context.Background()
	rec := &dispatch.Recorder{}
	finder := &fakeFinder{facilities: []Facility{{Name: "Kenyatta Hospital", Address: "Nairobi", Phone: "+254 20 2726300"}}}
	w := New(rec, finder, nil)
	user := newUser()

	out := w.Escalate(ctx, user, "I'm in pain")
	assert.Equal(t, []string{CrisisGuide, PromptLocation}, out)
	assert.Equal(t, models.PendingAwaitingLocationForCrisis, user.PendingAction)
	assert.Empty(t, rec.Sent())

	out = w.ProvideLocation(ctx, user, "Nairobi")
	require.Len(t, out, 2)
	assert.Contains(t, out[1], PromptContact)
	assert.Equal(t, models.PendingAwaitingEmergencyContact, user.PendingAction)
	assert.Equal(t, "I'm in pain", user.ScratchText)
	assert.Empty(t, rec.Sent())

	out = w.AddContact(ctx, user, "+254712345678")
	require.Len(t, out, 2)
	assert.NotContains(t, out, CrisisGuide)
	assert.Equal(t, models.PendingNone, user.PendingAction)
	assert.Empty(t, user.ScratchText)
	assert.Equal(t, models.ContactList{"+254712345678"}, user.EmergencyContacts)

	alerts := rec.SentTo("+254712345678")
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Body, "Amina")
	assert.Contains(t, alerts[0].Body, "I'm in pain")

	joined := strings.Join(out, "\n")
	assert.Contains(t, joined, "Kenyatta Hospital")
	assert.Contains(t, joined, "notified")
	assert.Equal(t, 1, finder.calls)
}

func TestAddContact_InvalidKeepsPending(t *testing.T) {
	w := New(&dispatch.Recorder{}, nil, nil)
	user := newUser()
	w.StartAddContact(user)

	out := w.AddContact(context.Background(), user, "12345")
	assert.Equal(t, []string{InvalidContactMessage}, out)
	assert.Equal(t, models.PendingAwaitingEmergencyContact, user.PendingAction)
	assert.Empty(t, user.EmergencyContacts)

	out = w.AddContact(context.Background(), user, "+254712345678")
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "saved")
	assert.Equal(t, models.PendingNone, user.PendingAction)
	assert.Equal(t, models.ContactList{"+254712345678"}, user.EmergencyContacts)
}

func TestProvideLocation_Empty(t *testing.T) {
	w := New(&dispatch.Recorder{}, nil, nil)
	user := newUser()
	user.PendingAction = models.PendingAwaitingLocationForCrisis

	out := w.ProvideLocation(context.Background(), user, "   ")
	assert.Equal(t, []string{EmptyLocationMessage}, out)
	assert.Equal(t, models.PendingAwaitingLocationForCrisis, user.PendingAction)
}

func TestEscalate_LookupFailureStillAlerts(t *testing.T) {
	rec := &dispatch.Recorder{}
	w := New(rec, &fakeFinder{err: errors.New("maps down")}, nil)
	user := newUser()
	user.Location = "Mombasa"
	user.EmergencyContacts = models.ContactList{"+254711111111", "+254722222222"}

	out := w.Escalate(context.Background(), user, "severe crisis")
	assert.Len(t, rec.Sent(), 2)
	require.Len(t, out, 2)
	assert.Contains(t, out[1], "notified (2)")
	assert.Contains(t, out[1], LookupUnavailableMessage)
}

func TestEscalate_NoFacilities(t *testing.T) {
	w := New(&dispatch.Recorder{}, &fakeFinder{}, nil)
	user := newUser()
	user.Location = "Kisumu"
	user.EmergencyContacts = models.ContactList{"+254711111111"}

	out := w.Escalate(context.Background(), user, "emergency")
	require.Len(t, out, 2)
	assert.Equal(t, CrisisGuide, out[0])
	assert.Contains(t, out[1], NoFacilitiesMessage)
}

func TestEscalate_PartialAlertFailure(t *testing.T) {
	rec := &dispatch.Recorder{Fail: func(to string) error {
		if to == "+254722222222" {
			return errors.New("undeliverable")
		}
		return nil
	}}
	side := &fakeSideChannel{}
	w := New(rec, &fakeFinder{}, nil, WithCareTeam(side), WithPublisher(side))
	user := newUser()
	user.Location = "Nakuru"
	user.EmergencyContacts = models.ContactList{"+254711111111", "+254722222222"}

	out := w.Escalate(context.Background(), user, "hospital now")
	assert.Len(t, rec.SentTo("+254711111111"), 1)
	assert.Contains(t, out[1], "Notified 1 of 2")

	require.Len(t, side.events, 2)
	assert.Equal(t, 1, side.events[0].Notified)
	assert.Equal(t, "hospital now", side.events[0].Text)
}

func TestEscalate_SideChannelFailureIgnored(t *testing.T) {
	rec := &dispatch.Recorder{}
	side := &fakeSideChannel{err: errors.New("smtp down")}
	w := New(rec, &fakeFinder{}, nil, WithCareTeam(side))
	user := newUser()
	user.Location = "Eldoret"
	user.EmergencyContacts = models.ContactList{"+254711111111"}

	out := w.Escalate(context.Background(), user, "pain")
	assert.Len(t, rec.Sent(), 1)
	assert.Contains(t, out[1], "notified (1)")
}

func TestFormatFacilities_CapsAtThree(t *testing.T) {
	out := FormatFacilities([]Facility{
		{Name: "A", Address: "a"},
		{Name: "B", Address: "b", Phone: "1"},
		{Name: "C", Address: "c"},
		{Name: "D", Address: "d"},
	})
	assert.Contains(t, out, "3. *C*")
	assert.NotContains(t, out, "*D*")
	assert.Contains(t, out, "📞 1")
}

func TestEscalate_GuideWithEveryGatePrompt(t *testing.T) {
	w := New(&dispatch.Recorder{}, &fakeFinder{}, nil)
	user := newUser()
	user.Location = "Kisumu"

	out := w.Escalate(context.Background(), user, "severe pain")
	assert.Equal(t, []string{CrisisGuide, PromptContact}, out)
	assert.Equal(t, models.PendingAwaitingEmergencyContact, user.PendingAction)
}
