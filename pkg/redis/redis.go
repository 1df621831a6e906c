package redis

import (
	"context"
	"fmt"

	"golang-stockbot/config"
	"golang-stockbot/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to redis.url. Bare host:port values are accepted as
// well as redis:// URLs.
func NewClient(ctx context.Context, cfg config.Redis, log *logger.Logger) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		opt = &goredis.Options{Addr: cfg.URL}
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}

	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opt.Addr, err)
	}

	log.Info("Connected to Redis", logger.StringField("addr", opt.Addr))
	return client, nil
}
