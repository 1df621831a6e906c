package telegram

import (
	"context"
	"time"

	"golang-stockbot/config"
	"golang-stockbot/internal/service"
	"golang-stockbot/pkg/deployment"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/telegram"

	"github.com/labstack/echo/v4"
	"gopkg.in/telebot.v3"
)

// WebhookPath is where Telegram posts updates in webhook mode.
const WebhookPath = "/api/v1/telegram/webhook"

type TelegramBotHandler struct {
	ctx      context.Context
	cfg      *config.Config
	bot      *telebot.Bot
	log      *logger.Logger
	telegram *telegram.TelegramRateLimiter
	echo     *echo.Echo
	service  *service.Service
	mode     deployment.Mode
	commands map[string]commandFunc
}

func NewTelegramBotHandler(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	bot *telebot.Bot,
	telegram *telegram.TelegramRateLimiter,
	echo *echo.Echo,
	service *service.Service,
	mode deployment.Mode) *TelegramBotHandler {
	return &TelegramBotHandler{
		ctx:      ctx,
		cfg:      cfg,
		log:      log,
		bot:      bot,
		telegram: telegram,
		echo:     echo,
		service:  service,
		mode:     mode,
	}
}

// Start registers the handlers and connects the bot the way the deployment
// mode needs. It does not block; polling runs until Stop is called.
func (t *TelegramBotHandler) Start() {
	t.log.Info("Starting Telegram bot...", logger.StringField("mode", string(t.mode)))
	t.RegisterHandlers()
	if t.mode == deployment.ModeLambda {
		return
	}

	if err := t.bot.SetCommands(telebotCommands()); err != nil {
		t.log.Warn("Failed to publish bot commands", logger.ErrorField(err))
	}

	switch t.mode {
	case deployment.ModeWebhook:
		if t.cfg.Telegram.WebhookURL == "" {
			t.log.Error("Webhook mode needs telegram.webhook_url")
			return
		}
		t.log.Info("Setting webhook URL", logger.StringField("webhook_url", t.cfg.Telegram.WebhookURL))
		err := t.bot.SetWebhook(&telebot.Webhook{
			Endpoint: &telebot.WebhookEndpoint{
				PublicURL: t.cfg.Telegram.WebhookURL,
			},
		})
		if err != nil {
			t.log.Error("Failed to set webhook", logger.ErrorField(err))
		}
	case deployment.ModePolling:
		if err := t.bot.RemoveWebhook(); err != nil {
			t.log.Warn("Failed to remove webhook before polling", logger.ErrorField(err))
		}
		go t.bot.Start()
	}
}

func (t *TelegramBotHandler) Stop() {
	if t.mode != deployment.ModePolling {
		return
	}
	t.log.Info("Stopping Telegram bot...")

	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()

	stopDone := make(chan struct{})
	go func() {
		t.bot.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.log.Info("Telegram bot stopped successfully")
	case <-ctx.Done():
		t.log.Warn("Timeout while stopping bot, forcing shutdown")
	}
}

// ProcessUpdate handles a single update delivered outside the poller or the
// webhook route, such as a Lambda invocation.
func (t *TelegramBotHandler) ProcessUpdate(update telebot.Update) {
	t.bot.ProcessUpdate(update)
}
