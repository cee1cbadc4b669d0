// Package database owns the Postgres pool shared by the server, the
// reconciliation worker, and the admin CLI.
package database

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	applog "github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/logger"
)

type Config struct {
	DSN             string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        gormlogger.LogLevel
}

// Connect opens the pool and verifies it with a ping. Migration is a
// separate call so read-mostly consumers (the admin CLI) can skip it.
func Connect(cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 100
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = time.Hour
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = gormlogger.Warn
	}

	gl := gormlogger.New(applog.NewGormLogger(log), gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  cfg.LogLevel,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:      gl,
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate brings the schema up to date and adds the indexes the listing
// queries lean on. AutoMigrate never drops columns, so this is safe to run
// from every binary at startup.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_usage_sessions_started_at ON usage_sessions(started_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_coding_sessions_started_at ON coding_sessions(started_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged_at ON alerts(acknowledged_at)")

	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsHealthy reports whether the pool still answers a ping. Readiness checks
// call this per request.
func IsHealthy(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}
