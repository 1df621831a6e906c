package telegram

import (
	"context"

	"golang-stockbot/internal/service"
	"golang-stockbot/pkg/logger"

	"gopkg.in/telebot.v3"
)

func (t *TelegramBotHandler) handlePrice(ctx context.Context, c telebot.Context, in incoming) error {
	symbol := firstArg(in.args)
	if symbol == "" {
		return t.reply(ctx, c, "Please provide a stock symbol. Example: /price AAPL")
	}

	stockService := t.service.StockService
	quote, err := stockService.GetQuote(ctx, symbol)
	if err != nil {
		t.log.WarnContext(ctx, "Failed to get quote", logger.StringField("symbol", symbol), logger.ErrorField(err))
		return t.reply(ctx, c, service.FormatStockError(err, symbol))
	}
	return t.reply(ctx, c, service.FormatStockQuote(quote, stockService.ProviderName()))
}

func (t *TelegramBotHandler) handleNews(ctx context.Context, c telebot.Context, in incoming) error {
	symbol := firstArg(in.args)
	if symbol == "" {
		return t.reply(ctx, c, "Please provide a stock symbol. Example: /news AAPL")
	}

	news, err := t.service.StockService.GetNews(ctx, symbol)
	if err != nil {
		t.log.WarnContext(ctx, "Failed to get news", logger.StringField("symbol", symbol), logger.ErrorField(err))
		return t.reply(ctx, c, service.FormatStockError(err, symbol))
	}
	return t.reply(ctx, c, news)
}
