package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"sicklecare/internal/config"
	"sicklecare/internal/crisis"
)

// mailClient is the part of the SendGrid client the service uses
type mailClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailService emails the care team when a crisis is escalated
type EmailService struct {
	client        mailClient
	fromEmail     string
	fromName      string
	careTeamEmail string
}

func NewEmailService(cfg config.SendGridConfig) (*EmailService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid: %w", ErrNoAPIKey)
	}
	if cfg.CareTeamEmail == "" || cfg.FromEmail == "" {
		return nil, fmt.Errorf("sendgrid sender or care team address: %w", ErrNotConfigured)
	}

	return &EmailService{
		client:        sendgrid.NewSendClient(cfg.APIKey),
		fromEmail:     cfg.FromEmail,
		fromName:      cfg.FromName,
		careTeamEmail: cfg.CareTeamEmail,
	}, nil
}

// NotifyCrisis sends the escalation summary to the care team inbox
func (s *EmailService) NotifyCrisis(ctx context.Context, event crisis.Event) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("Care Team", s.careTeamEmail)

	name := event.Name
	if name == "" {
		name = event.Address
	}
	subject := fmt.Sprintf("Crisis alert: %s", name)

	plainContent := fmt.Sprintf(
		"%s (%s, %s) reported a possible crisis at %s.\nLocation: %s\nMessage: %s\nEmergency contacts notified: %d of %d (%s)",
		name, event.Address, event.Role, event.Escalated.Format("Mon Jan 2, 15:04"),
		event.Location, event.Text, event.Notified, len(event.Contacts), strings.Join(event.Contacts, ", "))

	htmlContent := fmt.Sprintf(
		"<p><strong>%s</strong> (%s, %s) reported a possible crisis at %s.</p><p>Location: %s</p><p>Message: <em>%s</em></p><p>Emergency contacts notified: %d of %d</p>",
		html.EscapeString(name), html.EscapeString(event.Address), html.EscapeString(event.Role),
		event.Escalated.Format("Mon Jan 2, 15:04"), html.EscapeString(event.Location),
		html.EscapeString(event.Text), event.Notified, len(event.Contacts))

	message := mail.NewSingleEmail(from, subject, to, plainContent, htmlContent)

	response, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send crisis email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send crisis email to %s: %d", s.careTeamEmail, response.StatusCode)
	}
	return nil
}
