package middleware

import (
	"context"
	"time"

	"golang-stockbot/pkg/logger"

	"gopkg.in/telebot.v3"
)

// DefaultHandlerTimeout bounds a single update.
const DefaultHandlerTimeout = 5 * time.Minute

// WithContext gives each update its own deadline and a logger carrying the
// chat and sender ids.
func WithContext(rootCtx context.Context, log *logger.Logger, timeout time.Duration, handler func(ctx context.Context, c telebot.Context) error) func(c telebot.Context) error {
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	return func(c telebot.Context) error {
		ctx, cancel := context.WithTimeout(rootCtx, timeout)
		defer cancel()

		reqLog := log
		if chat := c.Chat(); chat != nil {
			reqLog = reqLog.With(logger.Int64Field("chat_id", chat.ID))
		}
		if sender := c.Sender(); sender != nil {
			reqLog = reqLog.With(logger.Int64Field("user_id", sender.ID))
		}

		return handler(logger.NewContext(ctx, reqLog), c)
	}
}
