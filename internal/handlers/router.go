package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sicklecare/internal/auth"
	"sicklecare/internal/utils"
)

// RouterConfig carries what NewRouter needs beyond the handlers themselves
type RouterConfig struct {
	AdminAPIKey    string
	CORSOrigins    []string
	TrustedProxies []string
}

// NewRouter wires every route onto a gin engine
func NewRouter(cfg RouterConfig, webhook *WebhookHandler, admin *AdminHandler, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(log))

	// Configure trusted proxies
	if len(cfg.TrustedProxies) == 0 {
		cfg.TrustedProxies = []string{"127.0.0.1"}
	}
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies", zap.Error(err))
	}

	// CORS runs on the engine so browser preflights are answered before routing
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", auth.APIKeyHeader, utils.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))

	// Basic routes
	router.GET("/", HomeHandler)
	router.GET("/health", HealthHandler)

	router.POST("/webhook/whatsapp", webhook.Receive)

	// Operator routes (API key required)
	protected := router.Group("/admin")
	protected.Use(auth.APIKeyMiddleware(cfg.AdminAPIKey))
	{
		protected.POST("/sweep", admin.RunSweep)
		protected.POST("/reminders", admin.CreateReminder)
		protected.GET("/users/:address/reminders", admin.ListUserReminders)
		protected.POST("/resources", admin.CreateResource)
	}

	return router
}
