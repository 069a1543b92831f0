// Package crisis runs the emergency escalation path: it gates on a stored
// location and at least one emergency contact, alerts every contact and
// points the user at nearby facilities.
package crisis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sicklecare/internal/models"
)

// MaxFacilities caps how many facilities are listed in the escalation reply
const MaxFacilities = 3

// maxParallelAlerts bounds the contact fan-out
const maxParallelAlerts = 8

var ErrInvalidContact = errors.New("emergency contact must start with + and have at least 10 characters")

const (
	PromptLocation = "📍 To help you quickly, please reply with your current *location* (town or area)."
	PromptContact  = "📞 Please reply with an *emergency contact* number in international format (e.g. +254712345678)."

	InvalidContactMessage = "❌ Invalid number. Use international format starting with + (e.g. +254712345678)."
	EmptyLocationMessage  = "❌ Location cannot be empty. " + PromptLocation

	CrisisGuide = "🚨 *Crisis Detected!*\n" +
		"If you are in pain:\n" +
		"1️⃣ Stay hydrated.\n" +
		"2️⃣ Use a warm compress.\n" +
		"3️⃣ Contact your doctor or go to the nearest hospital.\n\n" +
		"If severe or life-threatening, call emergency services immediately."

	NoFacilitiesMessage      = "🏥 No facilities found near your location. Go to the nearest hospital or call emergency services."
	LookupUnavailableMessage = "⚠️ Facility search is unavailable right now. Go to the nearest hospital or call emergency services."
)

// Facility is one nearby healthcare facility
type Facility struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone,omitempty"`
}

// Sender delivers alert text to an address
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// FacilityFinder searches for facilities near a free-form location.
// An empty result is not an error.
type FacilityFinder interface {
	FindNearby(ctx context.Context, location string) ([]Facility, error)
}

// CareTeamNotifier informs the clinical team about an escalation
type CareTeamNotifier interface {
	NotifyCrisis(ctx context.Context, event Event) error
}

// EventPublisher emits escalation events to downstream consumers
type EventPublisher interface {
	PublishCrisis(ctx context.Context, event Event) error
}

// Event describes one fired escalation
type Event struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Location  string    `json:"location"`
	Text      string    `json:"text"`
	Contacts  []string  `json:"contacts"`
	Notified  int       `json:"notified"`
	Escalated time.Time `json:"escalated_at"`
}

// Workflow is the crisis escalation state machine. It mutates the user it is
// given; persisting the user is the caller's job.
type Workflow struct {
	sender    Sender
	finder    FacilityFinder
	careTeam  CareTeamNotifier
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Workflow)

func WithCareTeam(n CareTeamNotifier) Option {
	return func(w *Workflow) { w.careTeam = n }
}

func WithPublisher(p EventPublisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func New(sender Sender, finder FacilityFinder, logger *zap.Logger, opts ...Option) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workflow{
		sender: sender,
		finder: finder,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ValidateContact checks an emergency-contact address and returns it trimmed
func ValidateContact(input string) (string, error) {
	addr := strings.TrimSpace(input)
	if !strings.HasPrefix(addr, "+") || len(addr) < 10 {
		return "", ErrInvalidContact
	}
	return addr, nil
}

// Escalate runs the gate sequence for a crisis message. The safety guide is
// always sent first. An unmet gate prompts for the missing detail and parks
// text in the user's scratch slot so the escalation resumes once the gate is
// satisfied.
func (w *Workflow) Escalate(ctx context.Context, user *models.User, text string) []string {
	return append([]string{CrisisGuide}, w.escalate(ctx, user, text)...)
}

// escalate is the gate sequence without the guide; resumed escalations use it
// directly since the guide went out with the original trigger
func (w *Workflow) escalate(ctx context.Context, user *models.User, text string) []string {
	if !user.HasLocation() {
		user.PendingAction = models.PendingAwaitingLocationForCrisis
		user.ScratchText = text
		return []string{PromptLocation}
	}
	if len(user.EmergencyContacts) == 0 {
		user.PendingAction = models.PendingAwaitingEmergencyContact
		user.ScratchText = text
		return []string{PromptContact}
	}
	user.ClearPending()
	return []string{w.fire(ctx, user, text)}
}

// StartAddContact opens the emergency-contact dialogue outside of a crisis
func (w *Workflow) StartAddContact(user *models.User) []string {
	user.PendingAction = models.PendingAwaitingEmergencyContact
	user.ScratchText = ""
	return []string{PromptContact}
}

// ProvideLocation handles the reply to the location gate
func (w *Workflow) ProvideLocation(ctx context.Context, user *models.User, input string) []string {
	location := strings.TrimSpace(input)
	if location == "" {
		return []string{EmptyLocationMessage}
	}

	user.Location = location
	trigger := user.ScratchText
	user.ClearPending()

	saved := fmt.Sprintf("📍 Location saved: *%s*", location)
	if trigger == "" {
		return []string{saved}
	}
	return append([]string{saved}, w.escalate(ctx, user, trigger)...)
}

// AddContact handles the reply to the emergency-contact gate. Invalid input
// keeps the dialogue open and leaves the contact list untouched.
func (w *Workflow) AddContact(ctx context.Context, user *models.User, input string) []string {
	addr, err := ValidateContact(input)
	if err != nil {
		return []string{InvalidContactMessage}
	}

	if !user.EmergencyContacts.Contains(addr) {
		user.EmergencyContacts = append(user.EmergencyContacts, addr)
	}
	trigger := user.ScratchText
	user.ClearPending()

	saved := fmt.Sprintf("✅ Emergency contact %s saved.", addr)
	if trigger == "" {
		return []string{saved}
	}
	return append([]string{saved}, w.escalate(ctx, user, trigger)...)
}

// fire alerts every contact first, then looks up facilities and informs the
// side channels concurrently. It returns the consolidated summary.
func (w *Workflow) fire(ctx context.Context, user *models.User, text string) string {
	contacts := append([]string(nil), user.EmergencyContacts...)
	notified := w.alertContacts(ctx, user, text, contacts)

	w.logger.Info("Crisis escalated",
		zap.String("address", user.Address),
		zap.Int("contacts", len(contacts)),
		zap.Int("notified", notified))

	event := Event{
		Address:   user.Address,
		Name:      user.Name,
		Role:      string(user.Role),
		Location:  user.Location,
		Text:      text,
		Contacts:  contacts,
		Notified:  notified,
		Escalated: w.now(),
	}

	var (
		facilities []Facility
		lookupErr  error
		g          errgroup.Group
	)
	g.Go(func() error {
		facilities, lookupErr = w.lookup(ctx, user.Location)
		return nil
	})
	if w.careTeam != nil {
		g.Go(func() error {
			if err := w.careTeam.NotifyCrisis(ctx, event); err != nil {
				w.logger.Error("[Escalate] err careTeam.NotifyCrisis", zap.String("address", user.Address), zap.Error(err))
			}
			return nil
		})
	}
	if w.publisher != nil {
		g.Go(func() error {
			if err := w.publisher.PublishCrisis(ctx, event); err != nil {
				w.logger.Error("[Escalate] err publisher.PublishCrisis", zap.String("address", user.Address), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	b.WriteString(contactsSummary(notified, len(contacts)))
	switch {
	case lookupErr != nil:
		w.logger.Error("[Escalate] err finder.FindNearby", zap.String("location", user.Location), zap.Error(lookupErr))
		b.WriteString("\n\n")
		b.WriteString(LookupUnavailableMessage)
	case len(facilities) == 0:
		b.WriteString("\n\n")
		b.WriteString(NoFacilitiesMessage)
	default:
		b.WriteString("\n\n")
		b.WriteString(FormatFacilities(facilities))
	}

	return b.String()
}

func (w *Workflow) alertContacts(ctx context.Context, user *models.User, text string, contacts []string) int {
	body := AlertText(user, text)

	var (
		notified int32
		g        errgroup.Group
	)
	g.SetLimit(maxParallelAlerts)
	for _, contact := range contacts {
		g.Go(func() error {
			if err := w.sender.SendText(ctx, contact, body); err != nil {
				w.logger.Error("[Escalate] err sender.SendText",
					zap.String("address", user.Address),
					zap.String("contact", contact),
					zap.Error(err))
				return nil
			}
			atomic.AddInt32(&notified, 1)
			return nil
		})
	}
	_ = g.Wait()
	return int(notified)
}

func (w *Workflow) lookup(ctx context.Context, location string) ([]Facility, error) {
	if w.finder == nil {
		return nil, errors.New("facility lookup not configured")
	}
	facilities, err := w.finder.FindNearby(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(facilities) > MaxFacilities {
		facilities = facilities[:MaxFacilities]
	}
	return facilities, nil
}

// AlertText is the message sent to each emergency contact
func AlertText(user *models.User, text string) string {
	name := user.Name
	if name == "" {
		name = user.Address
	}
	return fmt.Sprintf(
		"🚨 *SickleCare Alert*\n%s (%s) may be having a sickle cell crisis.\n📍 Location: %s\n💬 \"%s\"\nPlease check on them as soon as possible.",
		name, user.Address, user.Location, text)
}

func contactsSummary(notified, total int) string {
	switch {
	case notified == total:
		return fmt.Sprintf("✅ Your emergency contacts have been notified (%d).", notified)
	case notified == 0:
		return "⚠️ We could not reach your emergency contacts. If severe, call emergency services immediately."
	default:
		return fmt.Sprintf("⚠️ Notified %d of %d emergency contacts.", notified, total)
	}
}

// FormatFacilities renders up to MaxFacilities entries
func FormatFacilities(facilities []Facility) string {
	var b strings.Builder
	b.WriteString("🏥 *Nearby facilities:*")
	for i, f := range facilities {
		if i == MaxFacilities {
			break
		}
		fmt.Fprintf(&b, "\n%d. *%s*\n   %s", i+1, f.Name, f.Address)
		if f.Phone != "" {
			fmt.Fprintf(&b, "\n   📞 %s", f.Phone)
		}
	}
	return b.String()
}
