// Package server implements the reference chat backend the sync core talks
// to: REST handlers, the per-user websocket hub, and persistence.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flatmate/internal/config"
	"flatmate/internal/models"
	"flatmate/internal/observability"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormSlogLogger integrates GORM with slog.
type gormSlogLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

func (l *gormSlogLogger) LogMode(level logger.LogLevel) logger.Interface {
	out := *l
	out.level = level
	return &out
}

func (l *gormSlogLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormSlogLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormSlogLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormSlogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	if err != nil && err != gorm.ErrRecordNotFound {
		l.logger.ErrorContext(ctx, "query error",
			slog.String("sql", sql), slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed), slog.String("error", err.Error()))
	}
}

// Connect opens the database per configuration: postgres for deployments,
// in-memory sqlite when no DB host is configured (tests and local demos).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := &gormSlogLogger{
		logger: observability.GlobalLogger.Logger,
		level:  logger.Warn,
	}

	var dialector gorm.Dialector
	if cfg.DBHost == "" || cfg.Env == "test" {
		dialector = sqlite.Open("file::memory:?cache=shared")
	} else {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate creates the schema for the chat models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Profile{},
		&models.Conversation{},
		&models.Message{},
	)
}
