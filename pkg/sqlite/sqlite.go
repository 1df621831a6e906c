package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"golang-stockbot/config"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/postgres"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens the single-file database used for local runs. The parent
// directory is created when missing. Schema setup is left to the caller.
func NewDB(cfg config.Database, log *logger.Logger) (*gorm.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(postgres.GormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	// one writer at a time avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	log.Info("Opened SQLite database", logger.StringField("path", cfg.Path))
	return db, nil
}
