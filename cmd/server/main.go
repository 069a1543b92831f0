package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sicklecare/internal/config"
	"sicklecare/internal/conversation"
	"sicklecare/internal/crisis"
	"sicklecare/internal/database"
	"sicklecare/internal/dispatch"
	"sicklecare/internal/handlers"
	"sicklecare/internal/lock"
	"sicklecare/internal/logger"
	"sicklecare/internal/scheduler"
	"sicklecare/internal/services"
	"sicklecare/internal/store"
)

const shutdownTimeout = 15 * time.Second

// This is our main function - the entry point of our application
func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat, "sicklecare"); err != nil {
		panic(err)
	}
	defer logger.Close()
	log := logger.Get()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := initStores(cfg, log)
	location := cfg.Location()

	// Per-user turn lock
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, 30*time.Second)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisLocker.Close()
		locker = redisLocker
	}

	// Outbound transport
	var transport dispatch.Transport
	whatsapp, err := services.NewWhatsAppService(cfg.Twilio, log)
	if err != nil {
		log.Warn("WhatsApp transport not configured, outbound messages are only recorded", zap.Error(err))
		transport = &dispatch.Recorder{}
	} else {
		transport = whatsapp
	}
	dispatcher := dispatch.New(transport, cfg.Dispatch.Timeout, cfg.Dispatch.MaxChunk, log)

	// Crisis escalation
	var finder crisis.FacilityFinder
	if mapsService, err := services.NewMapsService(cfg.GoogleMapsAPIKey, log); err != nil {
		log.Warn("Facility lookup disabled", zap.Error(err))
	} else {
		finder = mapsService
	}

	var crisisOpts []crisis.Option
	if email, err := services.NewEmailService(cfg.SendGrid); err != nil {
		log.Info("Care team email disabled", zap.Error(err))
	} else {
		crisisOpts = append(crisisOpts, crisis.WithCareTeam(email))
	}
	if cfg.RabbitMQURL != "" {
		publisher, err := services.NewEventPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Error("Failed to connect to RabbitMQ, crisis events will not be published", zap.Error(err))
		} else {
			defer publisher.Close()
			crisisOpts = append(crisisOpts, crisis.WithPublisher(publisher))
		}
	}
	workflow := crisis.New(dispatcher, finder, log, crisisOpts...)

	// Assistant
	assistant, err := services.NewAssistant(ctx, cfg.Assistant, log)
	if err != nil {
		log.Warn("Assistant not available, fallback replies will be sent", zap.Error(err))
		assistant = services.UnavailableAssistant{}
	}
	bridge := services.NewAssistantBridge(assistant, cfg.Assistant.Timeout, log)

	machineOpts := []conversation.Option{conversation.WithHistorySize(cfg.Assistant.HistorySize)}
	if cfg.Assistant.Async {
		machineOpts = append(machineOpts, conversation.WithAsyncReplies(dispatcher))
	}
	machine := conversation.New(stores, locker, workflow, bridge, log, machineOpts...)

	// Reminders
	worker := services.NewReminderWorker(stores.Reminders, dispatcher, location, cfg.Reminders.Interval, log)
	ticker := scheduler.NewTicker(log)
	worker.Register(ticker)
	ticker.Start(ctx)

	// HTTP
	var checker handlers.SignatureChecker
	if cfg.Twilio.ValidateSignature {
		checker = services.NewSignatureValidator(cfg.Twilio.AuthToken)
	}
	var uploader handlers.MediaUploader
	if images, err := services.NewImageService(cfg.Cloudinary); err != nil {
		log.Info("Media uploads disabled", zap.Error(err))
	} else {
		uploader = images
	}

	webhook := handlers.NewWebhookHandler(machine, checker, cfg.Twilio.PublicURL, cfg.Dispatch.MaxChunk, log)
	admin := handlers.NewAdminHandler(stores, worker, uploader, location, log)
	router := handlers.NewRouter(handlers.RouterConfig{
		AdminAPIKey:    cfg.AdminAPIKey,
		CORSOrigins:    cfg.AdminCORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
	}, webhook, admin, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	ticker.Stop()
	if err := machine.Shutdown(shutdownCtx); err != nil {
		log.Warn("Pending assistant replies were cancelled", zap.Error(err))
	}
}

func initStores(cfg *config.Config, log *zap.Logger) store.Stores {
	if cfg.StoreDriver == "memory" {
		log.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemory().Stores()
	}

	db, err := database.InitDB(log)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	return store.NewGorm(db)
}
