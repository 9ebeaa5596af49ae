package logging

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goalforge/entitlement/internal/infrastructure/config"
)

var Logger *zap.Logger

// Init initializes the global logger and, when a DSN is configured, Sentry.
func Init(cfg *config.SentryConfig) error {
	var err error
	var zapConfig zap.Config

	environment := "production"
	if cfg != nil && cfg.Environment != "" {
		environment = cfg.Environment
	}

	if environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	Logger, err = zapConfig.Build()
	if err != nil {
		return err
	}

	if cfg != nil && cfg.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.DSN,
			Environment: cfg.Environment,
			Release:     cfg.Release,
		}); err != nil {
			Logger.Warn("Sentry initialization failed", zap.Error(err))
		} else {
			Logger.Info("Sentry error capture enabled")
		}
	}

	return nil
}

// Sync flushes buffered log entries and pending Sentry events
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
	sentry.Flush(2 * time.Second)
}

// CaptureError reports an error to Sentry and logs it
func CaptureError(err error, msg string, fields ...zap.Field) {
	sentry.CaptureException(err)
	Logger.Error(msg, append(fields, zap.Error(err))...)
}

// WithComponent creates a child logger with a component field
func WithComponent(component string) *zap.Logger {
	return Logger.With(zap.String("component", component))
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Logger.Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Logger.Error(msg, fields...)
}
