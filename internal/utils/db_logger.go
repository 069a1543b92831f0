package utils

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// CustomGormLogger is a custom logger for GORM that filters out specific queries
type CustomGormLogger struct {
	logger.Interface
	ignoredQueryPatterns []string
}

// NewCustomGormLogger creates a new custom logger with the given ignored query patterns
func NewCustomGormLogger(l logger.Interface, ignoredPatterns ...string) *CustomGormLogger {
	return &CustomGormLogger{
		Interface:            l,
		ignoredQueryPatterns: ignoredPatterns,
	}
}

// LogMode implements logger.Interface
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &CustomGormLogger{
		Interface:            l.Interface.LogMode(level),
		ignoredQueryPatterns: l.ignoredQueryPatterns,
	}
}

// Trace implements logger.Interface
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()

	if l.Ignored(sql) {
		return
	}

	callerInfo := findCaller()
	wrappedFC := func() (string, int64) {
		if callerInfo != "" {
			return fmt.Sprintf("[Caller: %s] %s", callerInfo, sql), rows
		}
		return sql, rows
	}

	l.Interface.Trace(ctx, begin, wrappedFC, err)
}

// Ignored reports whether sql matches one of the ignored patterns
func (l *CustomGormLogger) Ignored(sql string) bool {
	for _, pattern := range l.ignoredQueryPatterns {
		if strings.Contains(sql, pattern) {
			return true
		}
	}
	return false
}

// findCaller looks through the call stack to find the first application caller
// outside of GORM and the store/database packages
func findCaller() string {
	for i := 2; i < 12; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if strings.Contains(file, "gorm.io") ||
			strings.Contains(file, "internal/database") ||
			strings.Contains(file, "internal/store/gorm.go") ||
			strings.Contains(file, "internal/utils/db_logger.go") {
			continue
		}

		funcName := ""
		if fn := runtime.FuncForPC(pc); fn != nil {
			funcName = fn.Name()
			if idx := strings.LastIndexByte(funcName, '.'); idx != -1 {
				funcName = funcName[idx+1:]
			}
		}

		if funcName != "" {
			return fmt.Sprintf("%s() at %s:%d", funcName, file, line)
		}
		return fmt.Sprintf("%s:%d", file, line)
	}

	return ""
}

// zapGormWriter adapts a zap logger to gorm's logger.Writer
type zapGormWriter struct {
	sugar *zap.SugaredLogger
}

// NewZapGormWriter routes GORM's log output through log under the "gorm" name
func NewZapGormWriter(log *zap.Logger) logger.Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return zapGormWriter{sugar: log.Named("gorm").WithOptions(zap.AddCallerSkip(3)).Sugar()}
}

func (w zapGormWriter) Printf(format string, args ...interface{}) {
	w.sugar.Infof(strings.TrimSpace(format), args...)
}
