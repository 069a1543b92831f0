package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"sicklecare/internal/config"
	"sicklecare/internal/models"
)

// FallbackReply is sent whenever the assistant cannot answer
const FallbackReply = "⚠️ AI service unavailable. Please try again later."

const (
	defaultDeepSeekURL   = "https://api.deepseek.com/v1"
	defaultDeepSeekModel = "deepseek-chat"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// Assistant generates a reply to text given the user's recent history,
// oldest entry first
type Assistant interface {
	Ask(ctx context.Context, user *models.User, history []models.ChatEntry, text string) (string, error)
}

// NewAssistant builds the provider selected in cfg
func NewAssistant(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (Assistant, error) {
	switch strings.ToLower(cfg.Provider) {
	case "deepseek", "":
		return NewDeepSeekAssistant(cfg, logger)
	case "gemini":
		return NewGeminiAssistant(ctx, cfg, logger)
	case "stub":
		return StubAssistant{}, nil
	default:
		return nil, fmt.Errorf("unknown assistant provider %q", cfg.Provider)
	}
}

// AssistantBridge bounds every assistant call by a timeout and turns any
// failure into FallbackReply
type AssistantBridge struct {
	assistant Assistant
	timeout   time.Duration
	logger    *zap.Logger
}

func NewAssistantBridge(assistant Assistant, timeout time.Duration, logger *zap.Logger) *AssistantBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantBridge{assistant: assistant, timeout: timeout, logger: logger}
}

// Reply never fails; errors and timeouts yield FallbackReply
func (b *AssistantBridge) Reply(ctx context.Context, user *models.User, history []models.ChatEntry, text string) string {
	if b.assistant == nil {
		return FallbackReply
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := b.assistant.Ask(ctx, user, history, text)
		done <- result{reply, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			b.logger.Error("[Reply] err assistant.Ask", zap.String("address", user.Address), zap.Error(r.err))
			return FallbackReply
		}
		reply := strings.TrimSpace(r.reply)
		if reply == "" {
			return FallbackReply
		}
		return reply
	case <-ctx.Done():
		b.logger.Error("[Reply] assistant timed out", zap.String("address", user.Address), zap.Error(ctx.Err()))
		return FallbackReply
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatCompletionError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// DeepSeekAssistant calls an OpenAI-compatible chat completions endpoint
type DeepSeekAssistant struct {
	httpClient   *resty.Client
	model        string
	systemPrompt string
	logger       *zap.Logger
}

func NewDeepSeekAssistant(cfg config.AssistantConfig, logger *zap.Logger) (*DeepSeekAssistant, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepseek: %w", ErrNoAPIKey)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultDeepSeekURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultDeepSeekModel
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &DeepSeekAssistant{
		httpClient:   client,
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger,
	}, nil
}

func (a *DeepSeekAssistant) Ask(ctx context.Context, user *models.User, history []models.ChatEntry, text string) (string, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	if a.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: a.systemPrompt})
	}
	for _, entry := range history {
		role := "user"
		if entry.Sender == models.SenderAssistant {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: entry.Message})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	var (
		response chatCompletionResponse
		apiErr   chatCompletionError
	)
	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetBody(chatCompletionRequest{Model: a.model, Messages: messages}).
		SetResult(&response).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("failed to call DeepSeek API: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("DeepSeek API error: %s (status: %d)", apiErr.Error.Message, resp.StatusCode())
	}
	if len(response.Choices) == 0 {
		return "", errors.New("DeepSeek API returned no choices")
	}

	a.logger.Debug("DeepSeek reply received", zap.String("address", user.Address), zap.Int("history", len(history)))
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// GeminiAssistant calls the Gemini API through the genai SDK
type GeminiAssistant struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

func NewGeminiAssistant(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (*GeminiAssistant, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNoAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiAssistant{client: client, model: model, systemPrompt: cfg.SystemPrompt}, nil
}

func (a *GeminiAssistant) Ask(ctx context.Context, user *models.User, history []models.ChatEntry, text string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, entry := range history {
		role := genai.Role(genai.RoleUser)
		if entry.Sender == models.SenderAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Message, role))
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	var gcc *genai.GenerateContentConfig
	if a.systemPrompt != "" {
		gcc = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(a.systemPrompt, genai.RoleUser),
		}
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, gcc)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// StubAssistant answers without a model; used for local development
type StubAssistant struct{}

func (StubAssistant) Ask(ctx context.Context, user *models.User, history []models.ChatEntry, text string) (string, error) {
	return fmt.Sprintf("🧬 Thanks for your question about \"%s\". A health worker will follow up; type *menu* for options.", text), nil
}

// UnavailableAssistant always fails, so every reply is FallbackReply
type UnavailableAssistant struct{}

func (UnavailableAssistant) Ask(ctx context.Context, user *models.User, history []models.ChatEntry, text string) (string, error) {
	return "", ErrNotConfigured
}
