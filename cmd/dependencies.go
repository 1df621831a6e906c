package cmd

import (
	"context"
	"fmt"
	"os"

	"golang-stockbot/config"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/cache"
	"golang-stockbot/pkg/deployment"
	"golang-stockbot/pkg/httpclient"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/postgres"
	"golang-stockbot/pkg/redis"
	"golang-stockbot/pkg/sqlite"
	"golang-stockbot/pkg/telegram"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/telebot.v3"
	"gorm.io/gorm"
)

const telegramAPIURL = "https://api.telegram.org"

type AppDependency struct {
	db          *gorm.DB
	closeDB     func() error
	redis       *goredis.Client
	cfg         *config.Config
	log         *logger.Logger
	mode        deployment.Mode
	validator   *goValidator.Validate
	echo        *echo.Echo
	cache       cache.Cache
	telegram    *telegram.TelegramRateLimiter
	telegramBot *telebot.Bot
}

func NewAppDependency(ctx context.Context) (*AppDependency, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	mode, err := deployment.Resolve(cfg.Deployment.Mode, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	var logOpts []logger.Option
	if cfg.Telegram.AlertChatID != "" {
		alertClient := httpclient.New(telegramAPIURL, cfg.Telegram.TimeoutDuration, "")
		logOpts = append(logOpts, logger.WithAlertSender(logger.NewTelegramAlertSender(alertClient, cfg.Telegram.BotToken, cfg.Telegram.AlertChatID)))
	}
	log, err := logger.New(cfg.Log, logOpts...)
	if err != nil {
		return nil, err
	}
	log.Info("Resolved deployment mode", logger.StringField("mode", string(mode)))

	db, closeDB, err := openDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to open database", logger.ErrorField(err))
		return nil, err
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("Failed to connect to redis", logger.ErrorField(err))
		_ = closeDB()
		return nil, err
	}

	pref := telebot.Settings{
		Token: cfg.Telegram.BotToken,
		// Lambda returns as soon as the handler does, so updates must be
		// handled before ProcessUpdate returns.
		Synchronous: mode == deployment.ModeLambda,
		OnError: func(err error, c telebot.Context) {
			log.Error("Telegram bot error", logger.ErrorField(err))
		},
	}
	if mode == deployment.ModePolling {
		pref.Poller = &telebot.LongPoller{Timeout: cfg.Telegram.PollerTimeout}
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.Error("Failed to create telegram bot", logger.ErrorField(err))
		_ = redisClient.Close()
		_ = closeDB()
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	return &AppDependency{
		db:          db,
		closeDB:     closeDB,
		redis:       redisClient,
		cfg:         cfg,
		log:         log,
		mode:        mode,
		validator:   goValidator.New(),
		echo:        e,
		cache:       cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval),
		telegram:    telegram.NewTelegramRateLimiter(&cfg.Telegram, log, bot),
		telegramBot: bot,
	}, nil
}

// openDatabase connects to PostgreSQL, whose schema comes from the migrate
// command, or to a local SQLite file that is migrated in place.
func openDatabase(cfg *config.Config, log *logger.Logger) (*gorm.DB, func() error, error) {
	switch cfg.DB.Driver {
	case "", "postgres":
		db, err := postgres.NewDB(cfg.DB, log)
		if err != nil {
			return nil, nil, err
		}
		return db.DB, db.Close, nil
	case "sqlite":
		db, err := sqlite.NewDB(cfg.DB, log)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		if err := repository.AutoMigrate(db, cfg.DB.TablePrefix); err != nil {
			_ = closeDB()
			return nil, nil, err
		}
		return db, closeDB, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.DB.Driver)
	}
}

func (d *AppDependency) Close() error {
	d.log.Info("Closing app dependency")
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.log.Warn("Failed to close redis client", logger.ErrorField(err))
		}
	}
	if d.closeDB != nil {
		return d.closeDB()
	}
	return nil
}
