package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"sicklecare/internal/config"
)

const whatsAppPrefix = "whatsapp:"

// messageCreator is the part of the Twilio REST client the transport uses
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// WhatsAppService sends WhatsApp messages through Twilio
type WhatsAppService struct {
	api    messageCreator
	from   string
	logger *zap.Logger
}

func NewWhatsAppService(cfg config.TwilioConfig, logger *zap.Logger) (*WhatsAppService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio credentials: %w", ErrNotConfigured)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &WhatsAppService{
		api:    client.Api,
		from:   WhatsAppAddress(cfg.WhatsAppNumber),
		logger: logger,
	}, nil
}

// WhatsAppAddress adds the channel prefix Twilio expects
func WhatsAppAddress(number string) string {
	if strings.HasPrefix(number, whatsAppPrefix) {
		return number
	}
	return whatsAppPrefix + number
}

// StripWhatsAppPrefix returns the bare phone number of a Twilio address
func StripWhatsAppPrefix(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), whatsAppPrefix)
}

func (s *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(s.from)
	params.SetBody(body)
	return s.create(ctx, to, params)
}

func (s *WhatsAppService) SendMedia(ctx context.Context, to, mediaURL, caption string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(WhatsAppAddress(to))
	params.SetFrom(s.from)
	params.SetMediaUrl([]string{mediaURL})
	if caption != "" {
		params.SetBody(caption)
	}
	return s.create(ctx, to, params)
}

func (s *WhatsAppService) create(ctx context.Context, to string, params *openapi.CreateMessageParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send WhatsApp message to %s: %w", to, err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	s.logger.Debug("WhatsApp message sent", zap.String("to", to), zap.String("sid", sid))
	return nil
}

// SignatureValidator checks the X-Twilio-Signature header of inbound webhooks
type SignatureValidator struct {
	validator twilioclient.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: twilioclient.NewRequestValidator(authToken)}
}

// Valid reports whether signature matches url and the posted form params
func (v *SignatureValidator) Valid(url string, params map[string]string, signature string) bool {
	return v.validator.Validate(url, params, signature)
}
