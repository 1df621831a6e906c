package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	"gopkg.in/telebot.v3"
)

const emptyGeneralText = "Please provide a message. You can either use /general <message> or just mention me with your message."

func (t *TelegramBotHandler) handleGeneral(ctx context.Context, c telebot.Context, in incoming) error {
	if in.args == "" {
		return t.reply(ctx, c, emptyGeneralText)
	}
	return t.chatWithAI(ctx, c, in.args)
}

func (t *TelegramBotHandler) chatWithAI(ctx context.Context, c telebot.Context, message string) error {
	t.telegram.Typing(ctx, c)

	answer, err := t.service.AIService.Chat(ctx, chatKey(c), message)
	if err != nil {
		t.log.ErrorContext(ctx, "AI chat failed", logger.ErrorField(err))
		if errors.Is(err, model.ErrAIConfig) {
			return t.reply(ctx, c, fmt.Sprintf("Configuration Error: %v", err))
		}
		return t.reply(ctx, c, fmt.Sprintf("AI Error: %v", err))
	}
	return t.reply(ctx, c, answer)
}

func (t *TelegramBotHandler) handleModel(ctx context.Context, c telebot.Context, in incoming) error {
	aiService := t.service.AIService
	name := firstArg(in.args)

	if name == "" {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("🤖 Current AI model: %s\n\nAvailable models:", aiService.GetCurrentModel(ctx, chatKey(c))))
		for _, m := range aiService.AvailableModels() {
			sb.WriteString("\n- " + m)
		}
		sb.WriteString("\n\nUse /model <name> to switch.")
		return t.reply(ctx, c, sb.String())
	}

	if err := aiService.SetCurrentModel(ctx, chatKey(c), name); err != nil {
		if errors.Is(err, model.ErrUnsupportedModel) {
			return t.reply(ctx, c, "❌ "+err.Error())
		}
		t.log.ErrorContext(ctx, "Failed to set AI model", logger.ErrorField(err))
		return t.reply(ctx, c, "❌ Failed to update the AI model. Please try again later.")
	}
	return t.reply(ctx, c, fmt.Sprintf("✅ AI model for this chat set to %s.", name))
}
