package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env      string
	Port     string
	LogLevel string
	// LogFormat is "json" or "console"
	LogFormat string
	Timezone  string

	// StoreDriver selects "postgres" or "memory"
	StoreDriver string
	// RedisURL enables the Redis backed per-user lock when set
	RedisURL string

	AdminAPIKey      string
	AdminCORSOrigins []string
	// TrustedProxies are the proxy addresses gin accepts forwarded headers from
	TrustedProxies   []string

	Twilio    TwilioConfig
	Assistant AssistantConfig
	Dispatch  DispatchConfig
	Reminders ReminderConfig

	GoogleMapsAPIKey string
	SendGrid         SendGridConfig
	Cloudinary       CloudinaryConfig
	RabbitMQURL      string
}

type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	WhatsAppNumber    string
	ValidateSignature bool
	// PublicURL is the externally visible webhook URL used for signature checks
	PublicURL string
}

type AssistantConfig struct {
	// Provider is "deepseek", "gemini" or "stub"
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	HistorySize  int
	// Async delivers assistant replies through the dispatcher instead of the webhook response
	Async bool
}

type DispatchConfig struct {
	Timeout  time.Duration
	MaxChunk int
}

type ReminderConfig struct {
	Interval time.Duration
}

type SendGridConfig struct {
	APIKey        string
	FromEmail     string
	FromName      string
	CareTeamEmail string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

const defaultSystemPrompt = "You are SickleCare, a friendly WhatsApp assistant for sickle cell awareness."

// Load reads configuration from a .env file (if present) and environment variables
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: could not load .env file: %v", err)
	}

	cfg := &Config{
		Env:         getEnvWithDefault("ENV", "development"),
		Port:        getEnvWithDefault("PORT", "8080"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvWithDefault("LOG_FORMAT", "json"),
		Timezone:    getEnvWithDefault("APP_TIMEZONE", "Africa/Nairobi"),
		StoreDriver: getEnvWithDefault("STORE_DRIVER", "postgres"),
		RedisURL:    os.Getenv("REDIS_URL"),

		AdminAPIKey:      os.Getenv("ADMIN_API_KEY"),
		AdminCORSOrigins: getEnvList("ADMIN_CORS_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies:   getEnvList("TRUSTED_PROXIES", []string{"127.0.0.1"}),

		Twilio: TwilioConfig{
			AccountSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:         os.Getenv("TWILIO_AUTH_TOKEN"),
			WhatsAppNumber:    getEnvWithDefault("TWILIO_WHATSAPP_NUMBER", "whatsapp:+14155238886"),
			ValidateSignature: getEnvBool("TWILIO_VALIDATE_SIGNATURE", false),
			PublicURL:         os.Getenv("TWILIO_WEBHOOK_URL"),
		},
		Assistant: AssistantConfig{
			Provider:     getEnvWithDefault("ASSISTANT_PROVIDER", "deepseek"),
			APIKey:       os.Getenv("ASSISTANT_API_KEY"),
			BaseURL:      getEnvWithDefault("ASSISTANT_BASE_URL", "https://api.deepseek.com/v1"),
			Model:        getEnvWithDefault("ASSISTANT_MODEL", "deepseek-chat"),
			SystemPrompt: getEnvWithDefault("ASSISTANT_SYSTEM_PROMPT", defaultSystemPrompt),
			Timeout:      getEnvDuration("ASSISTANT_TIMEOUT", 20*time.Second),
			HistorySize:  getEnvInt("ASSISTANT_HISTORY_SIZE", 5),
			Async:        getEnvBool("ASSISTANT_ASYNC", true),
		},
		Dispatch: DispatchConfig{
			Timeout:  getEnvDuration("DISPATCH_TIMEOUT", 10*time.Second),
			MaxChunk: getEnvInt("DISPATCH_MAX_CHUNK", 1600),
		},
		Reminders: ReminderConfig{
			Interval: getEnvDuration("REMINDER_SWEEP_INTERVAL", time.Minute),
		},

		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		SendGrid: SendGridConfig{
			APIKey:        os.Getenv("SENDGRID_API_KEY"),
			FromEmail:     os.Getenv("SENDGRID_NOTIFICATIONS_FROM_EMAIL"),
			FromName:      getEnvWithDefault("SENDGRID_FROM_NAME", "SickleCare"),
			CareTeamEmail: os.Getenv("CARE_TEAM_EMAIL"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		},
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
	}

	if cfg.AdminAPIKey == "" {
		log.Println("WARNING: ADMIN_API_KEY is not set, admin endpoints are disabled")
	}

	return cfg
}

// Location returns the configured timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("WARNING: invalid timezone %q, using UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("WARNING: invalid integer for %s: %q", key, value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("WARNING: invalid boolean for %s: %q", key, value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("WARNING: invalid duration for %s: %q", key, value)
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
