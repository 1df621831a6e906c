package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log        Logger         `mapstructure:"logger"`
	DB         Database       `mapstructure:"database"`
	Redis      Redis          `mapstructure:"redis"`
	API        API            `mapstructure:"api"`
	Scheduler  Scheduler      `mapstructure:"scheduler"`
	Cache      Cache          `mapstructure:"cache"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Stock      Stock          `mapstructure:"stock"`
	AI         AI             `mapstructure:"ai"`
	Deployment Deployment     `mapstructure:"deployment"`
}

type Logger struct {
	Level      string `mapstructure:"level"`
	Encoding   string `mapstructure:"encoding"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	AlertLevel string `mapstructure:"alert_level"`
}

type Database struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
	TablePrefix     string `mapstructure:"table_prefix"`
}

// DefaultTablePrefix is the prefix the SQL migrations create tables under.
const DefaultTablePrefix = "stockbot"

// Validate rejects a table prefix the postgres schema does not have. Only
// the sqlite driver, which migrates itself, can use another prefix.
func (d Database) Validate() error {
	switch d.Driver {
	case "", "postgres":
		if d.TablePrefix != DefaultTablePrefix {
			return fmt.Errorf("database.table_prefix %q is not supported by the postgres driver: the migrations create %q tables, use the sqlite driver for a custom prefix", d.TablePrefix, DefaultTablePrefix)
		}
	case "sqlite":
		if d.TablePrefix == "" {
			return fmt.Errorf("database.table_prefix must not be empty")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", d.Driver)
	}
	return nil
}

type Redis struct {
	URL         string        `mapstructure:"url"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type Scheduler struct {
	Enabled          bool          `mapstructure:"enabled"`
	NotificationCron string        `mapstructure:"notification_cron"`
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	TimeoutDuration  time.Duration `mapstructure:"timeout_duration"`
}

type API struct {
	Port               int     `mapstructure:"port"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type TelegramConfig struct {
	BotToken                  string        `mapstructure:"bot_token"`
	AlertChatID               string        `mapstructure:"alert_chat_id"`
	WebhookURL                string        `mapstructure:"webhook_url"`
	PollerTimeout             time.Duration `mapstructure:"poller_timeout"`
	TimeoutDuration           time.Duration `mapstructure:"timeout_duration"`
	MaxGlobalRequestPerSecond int           `mapstructure:"max_global_request_per_second"`
	MaxUserRequestPerSecond   int           `mapstructure:"max_user_request_per_second"`
	MaxChatRequestPerSecond   int           `mapstructure:"max_chat_request_per_second"`
	RatelimitExpireDuration   time.Duration `mapstructure:"ratelimit_expire_duration"`
	RateLimitCleanupDuration  time.Duration `mapstructure:"rate_limit_cleanup_duration"`
}

type Stock struct {
	Provider          string        `mapstructure:"provider"`
	APIKey            string        `mapstructure:"api_key"`
	FinnhubAPIKey     string        `mapstructure:"finnhub_api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CacheTTLHours     int           `mapstructure:"cache_ttl_hours"`
}

// APIKeyFor returns the key configured for the named provider.
func (s Stock) APIKeyFor(provider string) string {
	if strings.EqualFold(provider, "finnhub") && s.FinnhubAPIKey != "" {
		return s.FinnhubAPIKey
	}
	return s.APIKey
}

type AI struct {
	DefaultModel       string        `mapstructure:"default_model"`
	OpenAIAPIKey       string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL      string        `mapstructure:"openai_base_url"`
	GeminiAPIKey       string        `mapstructure:"gemini_api_key"`
	GeminiBaseURL      string        `mapstructure:"gemini_base_url"`
	AnthropicAPIKey    string        `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL   string        `mapstructure:"anthropic_base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ModelCacheDuration time.Duration `mapstructure:"model_cache_duration"`
	MaxRequestPerMin   int           `mapstructure:"max_request_per_min"`
	ChatRequestPerMin  int           `mapstructure:"chat_request_per_min"`
}

type Deployment struct {
	Mode string `mapstructure:"mode"`
}

// legacyEnv maps config keys to the environment names older deployments use.
var legacyEnv = map[string][]string{
	"telegram.bot_token":    {"TELEGRAM_BOT_TOKEN", "TELOXIDE_TOKEN"},
	"telegram.webhook_url":  {"TELEGRAM_WEBHOOK_URL", "WEBHOOK_URL"},
	"stock.api_key":         {"STOCK_API_KEY", "ALPHA_VANTAGE_API_KEY"},
	"stock.finnhub_api_key": {"STOCK_FINNHUB_API_KEY", "FINNHUB_API_KEY"},
	"ai.default_model":      {"AI_DEFAULT_MODEL", "AI_MODEL"},
	"ai.openai_api_key":     {"AI_OPENAI_API_KEY", "OPENAI_API_KEY"},
	"ai.gemini_api_key":     {"AI_GEMINI_API_KEY", "GEMINI_API_KEY"},
	"ai.anthropic_api_key":  {"AI_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
	"api.port":              {"API_PORT", "PORT"},
	"redis.url":             {"REDIS_URL"},
	"database.driver":       {"DATABASE_DRIVER"},
	"database.table_prefix": {"DATABASE_TABLE_PREFIX", "DYNAMODB_TABLE_NAME", "TABLE_PREFIX"},
	"deployment.mode":       {"DEPLOYMENT_MODE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)
	v.SetDefault("logger.alert_level", "error")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "data/stockbot.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.log_level", "Warn")
	v.SetDefault("database.table_prefix", DefaultTablePrefix)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "stockbot")
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.rate_limit_per_second", 10)
	v.SetDefault("api.rate_limit_burst", 30)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.notification_cron", "* * * * *")
	v.SetDefault("scheduler.max_concurrency", 4)
	v.SetDefault("scheduler.timeout_duration", 2*time.Minute)

	v.SetDefault("cache.default_expiration", 10*time.Minute)
	v.SetDefault("cache.cleanup_interval", 15*time.Minute)

	v.SetDefault("telegram.poller_timeout", 10*time.Second)
	v.SetDefault("telegram.timeout_duration", 10*time.Second)
	v.SetDefault("telegram.max_global_request_per_second", 30)
	v.SetDefault("telegram.max_user_request_per_second", 1)
	v.SetDefault("telegram.max_chat_request_per_second", 1)
	v.SetDefault("telegram.ratelimit_expire_duration", 10*time.Minute)
	v.SetDefault("telegram.rate_limit_cleanup_duration", 5*time.Minute)

	v.SetDefault("stock.provider", "alpha_vantage")
	v.SetDefault("stock.timeout", 10*time.Second)
	v.SetDefault("stock.cache_ttl_hours", 1)

	v.SetDefault("ai.default_model", "gpt-4o")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.model_cache_duration", 5*time.Minute)
	v.SetDefault("ai.max_request_per_min", 10)
	v.SetDefault("ai.chat_request_per_min", 6)
}

// Load reads config.yaml from the working directory, then overlays the
// environment. A missing config file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file loaded:", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	for key, envs := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.DB.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	return &cfg, nil
}
