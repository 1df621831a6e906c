package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang-stockbot/internal/model"
	"golang-stockbot/internal/service"
	"golang-stockbot/pkg/logger"

	"gopkg.in/telebot.v3"
)

const groupOnlyText = "This command only works in groups. Add me to a group first."

// groupOf returns the chat id and title for group chats.
func groupOf(c telebot.Context) (string, *string, bool) {
	chat := c.Chat()
	if chat == nil {
		return "", nil, false
	}
	switch chat.Type {
	case telebot.ChatGroup, telebot.ChatSuperGroup:
	default:
		return "", nil, false
	}

	var title *string
	if chat.Title != "" {
		title = &chat.Title
	}
	return chatKey(c), title, true
}

func senderID(c telebot.Context) int64 {
	if c.Sender() == nil {
		return 0
	}
	return c.Sender().ID
}

func (t *TelegramBotHandler) handleSubscribe(ctx context.Context, c telebot.Context, in incoming) error {
	groupID, title, ok := groupOf(c)
	if !ok {
		return t.reply(ctx, c, groupOnlyText)
	}
	symbol := firstArg(in.args)
	if symbol == "" {
		return t.reply(ctx, c, "Please provide a stock symbol. Example: /subscribe AAPL")
	}

	sub, err := t.service.SubscriptionService.Subscribe(ctx, groupID, title, senderID(c), symbol)
	switch {
	case err == nil:
		return t.reply(ctx, c, fmt.Sprintf("✅ %s added to this group's daily update. See /subscriptions.", sub.StockSymbol))
	case errors.Is(err, model.ErrAlreadySubscribed):
		return t.reply(ctx, c, fmt.Sprintf("ℹ️ This group already follows %s.", strings.ToUpper(symbol)))
	case errors.Is(err, model.ErrSubscriptionLimit):
		return t.reply(ctx, c, "⚠️ This group reached its subscription limit. Use /unsubscribe to make room.")
	}

	if _, isStockErr := model.StockErrorKindOf(err); isStockErr {
		return t.reply(ctx, c, service.FormatStockError(err, symbol))
	}
	t.log.ErrorContext(ctx, "Failed to subscribe", logger.StringField("symbol", symbol), logger.ErrorField(err))
	return t.reply(ctx, c, "❌ Failed to subscribe. Please try again later.")
}

func (t *TelegramBotHandler) handleUnsubscribe(ctx context.Context, c telebot.Context, in incoming) error {
	groupID, _, ok := groupOf(c)
	if !ok {
		return t.reply(ctx, c, groupOnlyText)
	}
	symbol := firstArg(in.args)
	if symbol == "" {
		return t.reply(ctx, c, "Please provide a stock symbol. Example: /unsubscribe AAPL")
	}

	err := t.service.SubscriptionService.Unsubscribe(ctx, groupID, symbol)
	switch {
	case err == nil:
		return t.reply(ctx, c, fmt.Sprintf("✅ %s removed from this group's daily update.", strings.ToUpper(symbol)))
	case errors.Is(err, model.ErrNotSubscribed):
		return t.reply(ctx, c, fmt.Sprintf("ℹ️ This group does not follow %s.", strings.ToUpper(symbol)))
	}
	t.log.ErrorContext(ctx, "Failed to unsubscribe", logger.StringField("symbol", symbol), logger.ErrorField(err))
	return t.reply(ctx, c, "❌ Failed to unsubscribe. Please try again later.")
}

func (t *TelegramBotHandler) handleSubscriptions(ctx context.Context, c telebot.Context, _ incoming) error {
	groupID, title, ok := groupOf(c)
	if !ok {
		return t.reply(ctx, c, groupOnlyText)
	}

	subscriptionService := t.service.SubscriptionService
	cfg, err := subscriptionService.EnsureGroupConfig(ctx, groupID, title, senderID(c))
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to load group config", logger.ErrorField(err))
		return t.reply(ctx, c, "❌ Failed to load subscriptions. Please try again later.")
	}
	subs, err := subscriptionService.ListSubscriptions(ctx, groupID)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to list subscriptions", logger.ErrorField(err))
		return t.reply(ctx, c, "❌ Failed to load subscriptions. Please try again later.")
	}

	return t.reply(ctx, c, formatSubscriptions(cfg, subs))
}

func formatSubscriptions(cfg *model.GroupConfig, subs []model.StockSubscription) string {
	if len(subs) == 0 {
		return "📭 This group has no subscriptions yet. Use /subscribe <symbol> to add one."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Subscriptions (%d/%d):", len(subs), cfg.MaxSubscriptions))
	for i := range subs {
		sb.WriteString("\n- " + subs[i].StockSymbol)
		if at, ok := subs[i].NotificationTime(); ok {
			sb.WriteString(" at " + at)
		}
	}
	sb.WriteString(fmt.Sprintf("\n\n⏰ Daily update at %s (%s)", cfg.DefaultNotificationTime, cfg.Timezone))
	return sb.String()
}

func (t *TelegramBotHandler) handleSetTime(ctx context.Context, c telebot.Context, in incoming) error {
	groupID, _, ok := groupOf(c)
	if !ok {
		return t.reply(ctx, c, groupOnlyText)
	}

	cfg, err := t.service.SubscriptionService.SetNotificationTime(ctx, groupID, senderID(c), firstArg(in.args))
	if err != nil {
		return t.replySettingError(ctx, c, err, "❌ Invalid time. Use HH:MM, for example /settime 09:30")
	}
	return t.reply(ctx, c, fmt.Sprintf("✅ Daily update time set to %s (%s).", cfg.DefaultNotificationTime, cfg.Timezone))
}

func (t *TelegramBotHandler) handleSetTimezone(ctx context.Context, c telebot.Context, in incoming) error {
	groupID, _, ok := groupOf(c)
	if !ok {
		return t.reply(ctx, c, groupOnlyText)
	}

	cfg, err := t.service.SubscriptionService.SetTimezone(ctx, groupID, senderID(c), firstArg(in.args))
	if err != nil {
		return t.replySettingError(ctx, c, err, "❌ Unknown timezone. Use an IANA name, for example /settimezone America/New_York")
	}
	return t.reply(ctx, c, fmt.Sprintf("✅ Timezone set to %s. Daily update at %s.", cfg.Timezone, cfg.DefaultNotificationTime))
}

func (t *TelegramBotHandler) replySettingError(ctx context.Context, c telebot.Context, err error, invalidText string) error {
	switch {
	case errors.Is(err, model.ErrNotGroupAdmin):
		return t.reply(ctx, c, "🔒 Only group admins can change settings.")
	case errors.Is(err, model.ErrInvalidSetting):
		return t.reply(ctx, c, invalidText)
	}
	t.log.ErrorContext(ctx, "Failed to update group settings", logger.ErrorField(err))
	return t.reply(ctx, c, "❌ Failed to update settings. Please try again later.")
}
