package repository

import (
	"golang-stockbot/config"
	"golang-stockbot/pkg/logger"

	goValidator "github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Repository struct {
	StockDatabase      StockDatabase
	ChatPreferenceRepo ChatModelPreferenceRepository
}

func NewRepository(cfg *config.Config, db *gorm.DB, redisClient goredis.UniversalClient, validator *goValidator.Validate, log *logger.Logger) *Repository {
	return &Repository{
		StockDatabase:      NewStockDatabaseRepository(db, log, validator, cfg.DB.TablePrefix),
		ChatPreferenceRepo: NewChatPreferenceRepository(redisClient, cfg.Redis.KeyPrefix, log),
	}
}
