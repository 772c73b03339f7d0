package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/confessio/confessio/internal/models"
)

// Init opens a GORM connection from a DATABASE_URL-style string and runs
// migrations for every engine entity. An empty URL falls back to a local
// SQLite file so the service runs without configuration.
func Init(dbURL string, log *zap.Logger) (*gorm.DB, error) {
	if dbURL == "" {
		dbURL = "sqlite://confessio.db"
		log.Info("DATABASE_URL not set, defaulting to local sqlite", zap.String("url", dbURL))
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dbURL, "postgres://"):
		dialector = postgres.Open(strings.TrimPrefix(dbURL, "postgres://"))
		log.Info("connecting to postgres")
	case strings.HasPrefix(dbURL, "sqlite://"):
		dsn := strings.TrimPrefix(dbURL, "sqlite://")
		dialector = sqlite.Open(dsn)
		log.Info("connecting to sqlite", zap.String("dsn", dsn))
	default:
		return nil, fmt.Errorf("invalid DATABASE_URL prefix: must start with postgres:// or sqlite://")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("database ready")
	return db, nil
}
