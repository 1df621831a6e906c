package telegram

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang-stockbot/config"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/utils"

	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// maxMessageLength is Telegram's limit for a single text message.
const maxMessageLength = 4096

// Bot is the part of *telebot.Bot the limiter sends through.
type Bot interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
	Notify(to telebot.Recipient, action telebot.ChatAction, threadID ...int) error
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// TelegramRateLimiter throttles outgoing messages globally, per sender and
// per chat so the bot stays under the Bot API flood limits.
type TelegramRateLimiter struct {
	cfg           *config.TelegramConfig
	log           *logger.Logger
	bot           Bot
	globalLimiter *rate.Limiter
	userLimiters  map[int64]*limiterEntry
	chatLimiters  map[int64]*limiterEntry
	mu            sync.Mutex
	wg            sync.WaitGroup
}

func NewTelegramRateLimiter(cfg *config.TelegramConfig, log *logger.Logger, bot Bot) *TelegramRateLimiter {
	return &TelegramRateLimiter{
		cfg:           cfg,
		log:           log,
		bot:           bot,
		globalLimiter: newLimiter(cfg.MaxGlobalRequestPerSecond),
		userLimiters:  make(map[int64]*limiterEntry),
		chatLimiters:  make(map[int64]*limiterEntry),
	}
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

// Send replies in the chat of c.
func (t *TelegramRateLimiter) Send(ctx context.Context, c telebot.Context, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	var senderID int64
	if c.Sender() != nil {
		senderID = c.Sender().ID
	}
	if err := t.checkRateLimit(ctx, senderID, c.Chat().ID); err != nil {
		return nil, err
	}
	return t.bot.Send(c.Chat(), clip(what), opts...)
}

func (t *TelegramRateLimiter) SendWithoutMsg(ctx context.Context, c telebot.Context, what interface{}, opts ...interface{}) error {
	_, err := t.Send(ctx, c, what, opts...)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to send message", logger.ErrorField(err))
		return err
	}
	return nil
}

// SendToChat delivers text to a chat the bot is not currently replying in,
// such as a scheduled group update.
func (t *TelegramRateLimiter) SendToChat(ctx context.Context, chatID int64, text string, opts ...interface{}) error {
	if err := t.checkRateLimit(ctx, 0, chatID); err != nil {
		return err
	}
	if _, err := t.bot.Send(chatRecipient(chatID), clip(text), opts...); err != nil {
		t.log.ErrorContext(ctx, "Failed to send message to chat", logger.ErrorField(err), logger.Int64Field("chat_id", chatID))
		return err
	}
	return nil
}

// SendAlert satisfies logger.AlertSender for deployments that route alerts
// through the bot itself.
func (t *TelegramRateLimiter) SendAlert(ctx context.Context, text string) error {
	chatID, err := strconv.ParseInt(t.cfg.AlertChatID, 10, 64)
	if err != nil {
		return err
	}
	return t.SendToChat(ctx, chatID, text)
}

// Typing shows the typing indicator. Failures are only logged.
func (t *TelegramRateLimiter) Typing(ctx context.Context, c telebot.Context) {
	if err := t.bot.Notify(c.Chat(), telebot.Typing); err != nil {
		t.log.WarnContext(ctx, "Failed to send typing action", logger.ErrorField(err))
	}
}

type chatRecipient int64

func (c chatRecipient) Recipient() string {
	return strconv.FormatInt(int64(c), 10)
}

func clip(what interface{}) interface{} {
	if text, ok := what.(string); ok {
		// Telegram rejects invalid UTF-8, which AI replies occasionally contain
		return utils.Truncate(utils.CleanToValidUTF8(text), maxMessageLength)
	}
	return what
}

func (t *TelegramRateLimiter) entry(limiters map[int64]*limiterEntry, id int64, perSecond int) *limiterEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, exists := limiters[id]; exists {
		e.lastAccess = time.Now()
		return e
	}

	e := &limiterEntry{
		limiter:    newLimiter(perSecond),
		lastAccess: time.Now(),
	}
	limiters[id] = e
	return e
}

func (t *TelegramRateLimiter) checkRateLimit(ctx context.Context, senderID int64, chatID int64) error {
	chatLimiter := t.entry(t.chatLimiters, chatID, t.cfg.MaxChatRequestPerSecond)
	if err := chatLimiter.limiter.Wait(ctx); err != nil {
		t.log.ErrorContext(ctx, "Failed to wait for chat rate limit", logger.ErrorField(err))
		return err
	}
	if err := t.globalLimiter.Wait(ctx); err != nil {
		t.log.ErrorContext(ctx, "Failed to wait for global rate limit", logger.ErrorField(err))
		return err
	}
	if senderID == 0 {
		return nil
	}
	userLimiter := t.entry(t.userLimiters, senderID, t.cfg.MaxUserRequestPerSecond)
	if err := userLimiter.limiter.Wait(ctx); err != nil {
		t.log.ErrorContext(ctx, "Failed to wait for user rate limit", logger.ErrorField(err))
		return err
	}
	return nil
}

// cleanupExpired drops limiters idle for longer than the configured expiry.
func (t *TelegramRateLimiter) cleanupExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, limiters := range []map[int64]*limiterEntry{t.userLimiters, t.chatLimiters} {
		for id, e := range limiters {
			if now.Sub(e.lastAccess) > t.cfg.RatelimitExpireDuration {
				delete(limiters, id)
				removed++
			}
		}
	}
	return removed
}

func (t *TelegramRateLimiter) StartCleanupExpired(ctx context.Context) {
	if t.cfg.RateLimitCleanupDuration <= 0 {
		return
	}
	t.wg.Add(1)
	utils.GoSafe(t.log, func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.RateLimitCleanupDuration)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				t.log.Info("Received signal to stop Telegram rate limiter cleanup")
				return
			case now := <-ticker.C:
				if removed := t.cleanupExpired(now); removed > 0 {
					t.log.Debug("Removed idle Telegram limiters", logger.IntField("count", removed))
				}
			}
		}
	})
}

func (t *TelegramRateLimiter) StopCleanupExpired() {
	t.wg.Wait()
	t.log.Info("Telegram rate limiter stopped")
}
