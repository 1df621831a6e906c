package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang-stockbot/config"
	"golang-stockbot/internal/model"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/logger"

	"github.com/glebarez/sqlite"
	goValidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestDatabase(t *testing.T) repository.StockDatabase {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "service.db")), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db, "test"))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewStockDatabaseRepository(db, logger.NewNop(), goValidator.New(), "test")
}

func testConfig() *config.Config {
	return &config.Config{
		AI: config.AI{
			DefaultModel:       "gpt-4o-mini",
			ModelCacheDuration: time.Minute,
		},
		Scheduler: config.Scheduler{
			NotificationCron: "* * * * *",
			MaxConcurrency:   2,
			TimeoutDuration:  time.Minute,
		},
		Stock: config.Stock{CacheTTLHours: 1},
	}
}

// fakeProvider quotes every symbol in prices and reports the rest as unknown.
type fakeProvider struct {
	mu        sync.Mutex
	prices    map[string]float64
	calls     []string
	err       error
	news      []model.StockNews
	newsCalls int
}

func (p *fakeProvider) Name() string                          { return "Fake Market" }
func (p *fakeProvider) Initialize(model.ProviderConfig) error { return nil }

func (p *fakeProvider) GetQuote(_ context.Context, symbol string) (*model.StockQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, symbol)
	if p.err != nil {
		return nil, p.err
	}
	price, ok := p.prices[symbol]
	if !ok {
		return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", symbol)
	}
	return &model.StockQuote{Symbol: symbol, Price: price, Change: 1, ChangePercent: 0.5, Timestamp: time.Now().UTC()}, nil
}

func (p *fakeProvider) GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error) {
	var quotes []model.StockQuote
	var lastErr error
	for _, s := range symbols {
		q, err := p.GetQuote(ctx, s)
		if err != nil {
			lastErr = err
			continue
		}
		quotes = append(quotes, *q)
	}
	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}

func (p *fakeProvider) GetNews(context.Context, string, int) ([]model.StockNews, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newsCalls++
	return p.news, nil
}

func (p *fakeProvider) GetMarketNews(context.Context, int) ([]model.StockNews, error) {
	return nil, nil
}

func (p *fakeProvider) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	_, err := p.GetQuote(ctx, symbol)
	if errors.Is(err, model.ErrSymbolNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *fakeProvider) GetRateLimitInfo() *model.RateLimitInfo {
	return &model.RateLimitInfo{RequestsPerMinute: 5, RequestsRemaining: 5}
}

func (p *fakeProvider) HealthCheck(context.Context) error { return p.err }

func (p *fakeProvider) quoted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeBackend struct {
	name  string
	reply string
	err   error

	mu       sync.Mutex
	messages []string
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Chat(_ context.Context, message string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message)
	return b.reply, b.err
}

type fakePreferenceRepo struct {
	mu    sync.Mutex
	prefs map[string]model.ChatModelPreference
	err   error
}

func newFakePreferenceRepo() *fakePreferenceRepo {
	return &fakePreferenceRepo{prefs: map[string]model.ChatModelPreference{}}
}

func (r *fakePreferenceRepo) GetPreference(_ context.Context, chatID string) (*model.ChatModelPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.prefs[chatID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakePreferenceRepo) SetPreference(_ context.Context, pref *model.ChatModelPreference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.prefs[pref.ChatID] = *pref
	return nil
}

func (r *fakePreferenceRepo) ListPreferences(context.Context) ([]model.ChatModelPreference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ChatModelPreference, 0, len(r.prefs))
	for _, p := range r.prefs {
		out = append(out, p)
	}
	return out, r.err
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) SendToChat(_ context.Context, chatID int64, text string, _ ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (s *fakeSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

// backendFactory serves backend for any model and records the names asked for.
func backendFactory(backend *fakeBackend, asked *[]string) AIBackendFactory {
	var mu sync.Mutex
	return func(_ context.Context, modelName string) (repository.AIBackend, error) {
		mu.Lock()
		defer mu.Unlock()
		if asked != nil {
			*asked = append(*asked, modelName)
		}
		if strings.HasPrefix(modelName, "claude-") {
			return nil, model.ErrAIConfig
		}
		return backend, nil
	}
}
