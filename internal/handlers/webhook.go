package handlers

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sicklecare/internal/conversation"
	"sicklecare/internal/dispatch"
	"sicklecare/internal/services"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// TurnHandler runs one inbound message through the conversation engine
type TurnHandler interface {
	HandleTurn(ctx context.Context, address, text string) []conversation.Message
}

// SignatureChecker verifies that a webhook request came from the provider
type SignatureChecker interface {
	Valid(url string, params map[string]string, signature string) bool
}

// twimlResponse is the messaging response document returned to Twilio
type twimlResponse struct {
	XMLName  xml.Name       `xml:"Response"`
	Messages []twimlMessage `xml:"Message"`
}

type twimlMessage struct {
	Body  string `xml:"Body,omitempty"`
	Media string `xml:"Media,omitempty"`
}

type WebhookHandler struct {
	turns     TurnHandler
	signature SignatureChecker
	publicURL string
	maxChunk  int
	log       *zap.Logger
}

// NewWebhookHandler builds the inbound WhatsApp handler. A nil checker skips
// signature validation.
func NewWebhookHandler(turns TurnHandler, checker SignatureChecker, publicURL string, maxChunk int, log *zap.Logger) *WebhookHandler {
	if maxChunk <= 0 {
		maxChunk = dispatch.DefaultMaxChunk
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{
		turns:     turns,
		signature: checker,
		publicURL: publicURL,
		maxChunk:  maxChunk,
		log:       log,
	}
}

// Receive handles POST /webhook/whatsapp
func (h *WebhookHandler) Receive(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		handleError(c, h.log, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	if h.signature != nil && !h.validSignature(c) {
		h.log.Warn("Rejected webhook with invalid signature",
			zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	from := services.StripWhatsAppPrefix(strings.TrimSpace(c.PostForm("From")))
	if from == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "From is required"})
		return
	}
	body := c.PostForm("Body")

	replies := h.turns.HandleTurn(c.Request.Context(), from, body)
	c.XML(http.StatusOK, h.twiml(replies))
}

func (h *WebhookHandler) validSignature(c *gin.Context) bool {
	url := h.publicURL
	if url == "" {
		scheme := "https"
		if c.Request.TLS == nil && c.GetHeader("X-Forwarded-Proto") == "" {
			scheme = "http"
		}
		url = scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
	}

	params := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return h.signature.Valid(url, params, c.GetHeader(twilioSignatureHeader))
}

// twiml converts a turn's replies into the response document. Text longer
// than the provider limit becomes several consecutive messages.
func (h *WebhookHandler) twiml(replies []conversation.Message) twimlResponse {
	resp := twimlResponse{}
	for _, r := range replies {
		if r.MediaURL != "" {
			resp.Messages = append(resp.Messages, twimlMessage{Body: r.Text, Media: r.MediaURL})
			continue
		}
		if r.Text == "" {
			continue
		}
		for _, part := range dispatch.Chunk(r.Text, h.maxChunk) {
			resp.Messages = append(resp.Messages, twimlMessage{Body: part})
		}
	}
	return resp
}
