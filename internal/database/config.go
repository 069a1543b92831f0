package database

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"sicklecare/internal/models"
	"sicklecare/internal/store"
	"sicklecare/internal/utils"
)

const (
	maxRetries = 5
	retryDelay = time.Second * 5
)

// DSN builds the connection string. In release mode DATABASE_URL is used,
// otherwise the individual DB_* parameters.
func DSN() (string, error) {
	if os.Getenv("GIN_MODE") == "release" {
		return getEnvRequired("DATABASE_URL")
	}

	params := make(map[string]string)
	for _, key := range []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_PORT"} {
		value, err := getEnvRequired(key)
		if err != nil {
			return "", err
		}
		params[key] = value
	}
	sslMode := os.Getenv("DB_SSL_MODE")
	if sslMode == "" {
		sslMode = "disable" // Default to disable for local development
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		params["DB_HOST"], params["DB_USER"], params["DB_PASSWORD"], params["DB_NAME"], params["DB_PORT"], sslMode), nil
}

// InitDB opens the database connection, configures the pool and migrates the schema
func InitDB(log *zap.Logger) (*gorm.DB, error) {
	dsn, err := DSN()
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if os.Getenv("GIN_MODE") != "release" {
		logLevel = logger.Info
	}

	baseLogger := logger.New(
		utils.NewZapGormWriter(log),
		logger.Config{
			SlowThreshold:             time.Second, // Log queries slower than 1 second
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// The reminder sweep runs every minute; keep it out of the SQL log
	customLogger := utils.NewCustomGormLogger(baseLogger, store.DueReminderQueryPrefix)

	gormConfig := &gorm.Config{
		Logger: customLogger,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true, // Use singular table names
		},
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   false,
		DisableForeignKeyConstraintWhenMigrating: false,
	}

	var db *gorm.DB
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		log.Warn("Database connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < maxRetries-1 {
			log.Info("Retrying database connection", zap.Duration("delay", retryDelay))
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("Database connection established and migrations completed")
	return db, nil
}

// Migrate creates or updates every table the service uses
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.ChatEntry{},
		&models.Reminder{},
		&models.ReminderFire{},
		&models.Resource{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func getEnvRequired(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("required environment variable %s is not set", key)
}
