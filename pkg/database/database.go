package database

import (
	"fmt"
	"time"

	"tenant-service/pkg/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to PostgreSQL, configures the pool and migrates the given models
func Open(cfg *config.DBConfig, log *zap.Logger, models ...interface{}) (*gorm.DB, error) {
	pgConfig := postgres.Config{
		DSN:                  cfg.GetDSN(),
		PreferSimpleProtocol: true, // Disables implicit prepared statement usage
	}

	db, err := gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.GormLogLevel()),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	start := time.Now()
	log.Info("Starting database migration...")
	if err := db.AutoMigrate(models...); err != nil {
		log.Error("Database migration failed", zap.Error(err))
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	log.Info("Database migration completed successfully", zap.Duration("duration", time.Since(start)))

	return db, nil
}

// Ping checks that the underlying connection pool is reachable
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
