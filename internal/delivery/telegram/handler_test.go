package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang-stockbot/config"
	"golang-stockbot/internal/model"
	"golang-stockbot/internal/repository"
	"golang-stockbot/internal/service"
	"golang-stockbot/pkg/deployment"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/sqlite"
	"golang-stockbot/pkg/telegram"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

// botAPI records what the handler sends to the Bot API.
type botAPI struct {
	mu      sync.Mutex
	texts   []string
	actions []string
}

func (a *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&params)

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		a.texts = append(a.texts, fmt.Sprint(params["text"]))
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`)
	default:
		a.actions = append(a.actions, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (a *botAPI) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

func (a *botAPI) lastSent(t *testing.T) string {
	t.Helper()
	texts := a.sent()
	require.NotEmpty(t, texts)
	return texts[len(texts)-1]
}

type fakeStockService struct {
	prices map[string]float64
}

func (s *fakeStockService) GetQuote(_ context.Context, symbol string) (*model.StockQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	price, ok := s.prices[symbol]
	if !ok {
		return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", symbol)
	}
	return &model.StockQuote{Symbol: symbol, Price: price, Change: 1, ChangePercent: 0.5}, nil
}

func (s *fakeStockService) GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error) {
	var quotes []model.StockQuote
	for _, sym := range symbols {
		if q, err := s.GetQuote(ctx, sym); err == nil {
			quotes = append(quotes, *q)
		}
	}
	return quotes, nil
}

func (s *fakeStockService) GetNews(_ context.Context, symbol string) (string, error) {
	return "📰 " + strings.ToUpper(symbol) + " News", nil
}

func (s *fakeStockService) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	_, err := s.GetQuote(ctx, symbol)
	return err == nil, nil
}

func (s *fakeStockService) HealthCheck(context.Context) error   { return nil }
func (s *fakeStockService) ProviderName() string                { return "Fake Market" }
func (s *fakeStockService) RateLimitInfo() *model.RateLimitInfo { return &model.RateLimitInfo{} }

type fakeAIService struct {
	mu      sync.Mutex
	current string
	reply   string
	err     error
	asked   []string
}

func (s *fakeAIService) GetCurrentModel(context.Context, string) string { return s.current }

func (s *fakeAIService) SetCurrentModel(_ context.Context, _ string, name string) error {
	if name != "gpt-4o" && name != "gpt-4o-mini" {
		return fmt.Errorf("%w: %s. Available models: gpt-4o, gpt-4o-mini", model.ErrUnsupportedModel, name)
	}
	s.current = name
	return nil
}

func (s *fakeAIService) AvailableModels() []string { return []string{"gpt-4o", "gpt-4o-mini"} }

func (s *fakeAIService) ListPreferences(context.Context) ([]model.ChatModelPreference, error) {
	return nil, nil
}

func (s *fakeAIService) Chat(_ context.Context, _ string, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, message)
	return s.reply, s.err
}

func (s *fakeAIService) Complete(ctx context.Context, _ string, prompt string) (string, error) {
	return s.Chat(ctx, "", prompt)
}

type handlerFixture struct {
	api     *botAPI
	ai      *fakeAIService
	bot     *telebot.Bot
	handler *TelegramBotHandler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	api := &botAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	bot, err := telebot.NewBot(telebot.Settings{URL: srv.URL, Token: "test-token", Offline: true, Synchronous: true})
	require.NoError(t, err)
	bot.Me = &telebot.User{ID: 1, IsBot: true, Username: "stockbot"}

	log := logger.NewNop()
	gormDB, err := sqlite.NewDB(config.Database{Path: filepath.Join(t.TempDir(), "bot.db"), LogLevel: "Silent"}, log)
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(gormDB, "test"))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	db := repository.NewStockDatabaseRepository(gormDB, log, goValidator.New(), "test")

	stock := &fakeStockService{prices: map[string]float64{"AAPL": 190.5, "MSFT": 400}}
	ai := &fakeAIService{current: "gpt-4o", reply: "Markets look calm."}
	services := &service.Service{
		StockService:        stock,
		AIService:           ai,
		SubscriptionService: service.NewSubscriptionService(log, db, stock),
	}

	cfg := &config.Config{}
	limiter := telegram.NewTelegramRateLimiter(&cfg.Telegram, log, bot)
	handler := NewTelegramBotHandler(context.Background(), cfg, log, bot, limiter, echo.New(), services, deployment.ModeLambda)
	handler.RegisterHandlers()

	return &handlerFixture{api: api, ai: ai, bot: bot, handler: handler}
}

var (
	privateChat = &telebot.Chat{ID: 7, Type: telebot.ChatPrivate}
	groupChat   = &telebot.Chat{ID: -100, Type: telebot.ChatGroup, Title: "Traders"}
	alice       = &telebot.User{ID: 7, Username: "alice"}
	bob         = &telebot.User{ID: 8, Username: "bob"}
)

func (f *handlerFixture) send(chat *telebot.Chat, from *telebot.User, text string) {
	f.handler.ProcessUpdate(telebot.Update{
		ID:      1,
		Message: &telebot.Message{ID: 1, Text: text, Chat: chat, Sender: from},
	})
}

func TestHandler_PrivateMessages(t *testing.T) {
	f := newHandlerFixture(t)

	f.send(privateChat, alice, "/username alice")
	assert.Equal(t, "Your username is @alice.", f.api.lastSent(t))

	f.send(privateChat, alice, "/usernameandage alice 30")
	assert.Equal(t, "Your username is @alice and age is 30.", f.api.lastSent(t))

	f.send(privateChat, alice, "/usernameandage alice 300")
	assert.True(t, strings.HasPrefix(f.api.lastSent(t), "Unknown command: /usernameandage alice 300\n\nAvailable commands:"))

	f.send(privateChat, alice, "/nope")
	assert.True(t, strings.HasPrefix(f.api.lastSent(t), "Unknown command: /nope"))

	f.send(privateChat, alice, "/general")
	assert.Equal(t, emptyGeneralText, f.api.lastSent(t))

	f.send(privateChat, alice, "what about tech?")
	assert.Equal(t, "Markets look calm.", f.api.lastSent(t))
	assert.Equal(t, []string{"what about tech?"}, f.ai.asked)
	assert.Contains(t, f.api.actions, "sendChatAction")
}

func TestHandler_GroupMentions(t *testing.T) {
	f := newHandlerFixture(t)

	f.send(groupChat, alice, "nobody asked the bot")
	assert.Empty(t, f.api.sent())

	f.send(groupChat, alice, "@stockbot")
	assert.True(t, strings.HasPrefix(f.api.lastSent(t), "Hello! You mentioned me. Send a command or message after @stockbot."))

	f.send(groupChat, alice, "@stockbot /price aapl")
	out := f.api.lastSent(t)
	assert.Contains(t, out, "AAPL Stock Quote")
	assert.Contains(t, out, "$190.50")
	assert.Contains(t, out, "Data provided by Fake Market")

	f.send(groupChat, alice, "@stockbot /price appl")
	assert.Contains(t, f.api.lastSent(t), "Did you mean AAPL")

	f.send(groupChat, alice, "@stockbot summarize the day")
	assert.Equal(t, []string{"summarize the day"}, f.ai.asked)
}

func TestHandler_AIErrors(t *testing.T) {
	f := newHandlerFixture(t)

	f.ai.err = fmt.Errorf("%w: OPENAI_API_KEY is not set", model.ErrAIConfig)
	f.send(privateChat, alice, "/general hi")
	assert.True(t, strings.HasPrefix(f.api.lastSent(t), "Configuration Error: "))

	f.ai.err = model.ErrEmptyAIResponse
	f.send(privateChat, alice, "/general hi")
	assert.Equal(t, "AI Error: AI returned no content", f.api.lastSent(t))
}

func TestHandler_Model(t *testing.T) {
	f := newHandlerFixture(t)

	f.send(privateChat, alice, "/model")
	out := f.api.lastSent(t)
	assert.Contains(t, out, "Current AI model: gpt-4o")
	assert.Contains(t, out, "- gpt-4o-mini")

	f.send(privateChat, alice, "/model gpt-9")
	assert.Contains(t, f.api.lastSent(t), "Available models: gpt-4o, gpt-4o-mini")

	f.send(privateChat, alice, "/model gpt-4o-mini")
	assert.Equal(t, "✅ AI model for this chat set to gpt-4o-mini.", f.api.lastSent(t))
	assert.Equal(t, "gpt-4o-mini", f.ai.current)
}

func TestHandler_Subscriptions(t *testing.T) {
	f := newHandlerFixture(t)

	f.send(privateChat, alice, "/subscribe AAPL")
	assert.Equal(t, groupOnlyText, f.api.lastSent(t))

	f.send(groupChat, alice, "/subscribe@stockbot aapl")
	assert.Equal(t, "✅ AAPL added to this group's daily update. See /subscriptions.", f.api.lastSent(t))

	f.send(groupChat, bob, "@stockbot /subscribe AAPL")
	assert.Equal(t, "ℹ️ This group already follows AAPL.", f.api.lastSent(t))

	f.send(groupChat, bob, "@stockbot /subscribe ZZZZ")
	assert.Contains(t, f.api.lastSent(t), "Stock symbol not found")

	f.send(groupChat, alice, "@stockbot /subscriptions")
	out := f.api.lastSent(t)
	assert.Contains(t, out, "Subscriptions (1/10)")
	assert.Contains(t, out, "- AAPL")
	assert.Contains(t, out, "Daily update at 10:00")

	f.send(groupChat, bob, "@stockbot /settime 09:30")
	assert.Equal(t, "🔒 Only group admins can change settings.", f.api.lastSent(t))

	f.send(groupChat, alice, "@stockbot /settime 9h")
	assert.Contains(t, f.api.lastSent(t), "Invalid time")

	f.send(groupChat, alice, "@stockbot /settime 09:30")
	assert.Contains(t, f.api.lastSent(t), "Daily update time set to 09:30")

	f.send(groupChat, alice, "@stockbot /settimezone America/New_York")
	assert.Equal(t, "✅ Timezone set to America/New_York. Daily update at 09:30.", f.api.lastSent(t))

	f.send(groupChat, alice, "@stockbot /unsubscribe aapl")
	assert.Equal(t, "✅ AAPL removed from this group's daily update.", f.api.lastSent(t))

	f.send(groupChat, alice, "@stockbot /unsubscribe aapl")
	assert.Equal(t, "ℹ️ This group does not follow AAPL.", f.api.lastSent(t))
}

func TestHandler_WebhookRoute(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"update_id":5,"message":{"message_id":3,"date":0,"text":"/help","chat":{"id":7,"type":"private"},"from":{"id":7}}}`
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.handler.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, commandDescriptions(), f.api.lastSent(t))

	req = httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	f.handler.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
