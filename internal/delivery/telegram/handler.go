package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang-stockbot/internal/dto"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/middleware"

	"github.com/labstack/echo/v4"
	"gopkg.in/telebot.v3"
)

type commandFunc func(ctx context.Context, c telebot.Context, in incoming) error

func (t *TelegramBotHandler) RegisterHandlers() {
	t.echo.POST(WebhookPath, func(c echo.Context) error {
		var update telebot.Update
		if err := c.Bind(&update); err != nil {
			t.log.ErrorContext(t.ctx, "Cannot bind JSON", logger.ErrorField(err))
			badRequest := dto.NewBadRequestResponse(err.Error())
			return c.JSON(http.StatusBadRequest, badRequest)
		}
		t.bot.ProcessUpdate(update)
		return c.JSON(http.StatusOK, dto.NewBaseResponse(http.StatusOK, "ok", nil))
	})

	t.commands = map[string]commandFunc{
		"start":          t.handleStart,
		"help":           t.handleHelp,
		"username":       t.handleUsername,
		"usernameandage": t.handleUsernameAndAge,
		"general":        t.handleGeneral,
		"price":          t.handlePrice,
		"news":           t.handleNews,
		"model":          t.handleModel,
		"subscribe":      t.handleSubscribe,
		"unsubscribe":    t.handleUnsubscribe,
		"subscriptions":  t.handleSubscriptions,
		"settime":        t.handleSetTime,
		"settimezone":    t.handleSetTimezone,
	}

	// Commands are routed here too so group mentions such as
	// "@bot /price AAPL" reach the same handlers.
	t.bot.Handle(telebot.OnText, middleware.WithContext(t.ctx, t.log, middleware.DefaultHandlerTimeout, t.handleText))
}

func (t *TelegramBotHandler) botUsername() string {
	if t.bot.Me == nil {
		return ""
	}
	return t.bot.Me.Username
}

func isPrivate(c telebot.Context) bool {
	return c.Chat() != nil && c.Chat().Type == telebot.ChatPrivate
}

func chatKey(c telebot.Context) string {
	return strconv.FormatInt(c.Chat().ID, 10)
}

func (t *TelegramBotHandler) handleText(ctx context.Context, c telebot.Context) error {
	log := t.log.FromContext(ctx)

	in := parseIncoming(c.Text(), t.botUsername(), isPrivate(c))
	switch in.route {
	case routeIgnore:
		return nil
	case routeHello:
		return t.reply(ctx, c, helloText(t.botUsername(), isPrivate(c)))
	case routeUnknown:
		log.DebugContext(ctx, "Unknown command", logger.StringField("text", in.text))
		return t.reply(ctx, c, unknownCommandText(in.text))
	case routeChat:
		return t.chatWithAI(ctx, c, in.text)
	}

	handler, ok := t.commands[in.command]
	if !ok {
		return t.reply(ctx, c, unknownCommandText(in.text))
	}
	log.DebugContext(ctx, "Handling command", logger.StringField("command", in.command))
	return handler(ctx, c, in)
}

func (t *TelegramBotHandler) reply(ctx context.Context, c telebot.Context, text string) error {
	return t.telegram.SendWithoutMsg(ctx, c, text)
}

func (t *TelegramBotHandler) handleStart(ctx context.Context, c telebot.Context, _ incoming) error {
	if sender := c.Sender(); sender != nil {
		if _, err := t.service.SubscriptionService.RegisterUser(ctx, sender.ID, sender.Username); err != nil {
			t.log.ErrorContext(ctx, "Failed to register user", logger.ErrorField(err))
		}
	}
	welcome := "👋 Welcome to the stock bot!\n" +
		"Ask for quotes with /price, chat with the AI by sending any message, " +
		"or add me to a group and /subscribe to get a daily update.\n\n"
	return t.reply(ctx, c, welcome+commandDescriptions())
}

func (t *TelegramBotHandler) handleHelp(ctx context.Context, c telebot.Context, _ incoming) error {
	return t.reply(ctx, c, commandDescriptions())
}

func (t *TelegramBotHandler) handleUsername(ctx context.Context, c telebot.Context, in incoming) error {
	if in.args == "" {
		return t.reply(ctx, c, unknownCommandText(in.text))
	}
	return t.reply(ctx, c, fmt.Sprintf("Your username is @%s.", in.args))
}

func (t *TelegramBotHandler) handleUsernameAndAge(ctx context.Context, c telebot.Context, in incoming) error {
	username, age, err := parseUsernameAndAge(in.args)
	if err != nil {
		return t.reply(ctx, c, unknownCommandText(in.text))
	}
	return t.reply(ctx, c, fmt.Sprintf("Your username is @%s and age is %d.", username, age))
}
