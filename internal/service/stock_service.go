package service

import (
	"context"
	"fmt"
	"strings"

	"golang-stockbot/config"
	"golang-stockbot/internal/model"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/logger"
)

// StockService fronts exactly one market data provider. Symbols are
// normalized before they reach the provider.
type StockService interface {
	GetQuote(ctx context.Context, symbol string) (*model.StockQuote, error)
	GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error)
	// GetNews returns a ready-to-send message for symbol.
	GetNews(ctx context.Context, symbol string) (string, error)
	ValidateSymbol(ctx context.Context, symbol string) (bool, error)
	HealthCheck(ctx context.Context) error
	ProviderName() string
	RateLimitInfo() *model.RateLimitInfo
}

type stockService struct {
	log      *logger.Logger
	provider repository.StockProvider
}

// NewStockService builds and initializes the configured provider. A missing
// API key fails here, before any request is made.
func NewStockService(cfg *config.Config, log *logger.Logger) (StockService, error) {
	provider, err := repository.CreateStockProvider(cfg.Stock.Provider, log)
	if err != nil {
		log.Error("Failed to create stock provider", logger.ErrorField(err), logger.StringField("provider", cfg.Stock.Provider))
		return nil, fmt.Errorf("failed to create stock provider: %w", err)
	}

	err = provider.Initialize(model.ProviderConfig{
		APIKey:    strings.TrimSpace(cfg.Stock.APIKeyFor(cfg.Stock.Provider)),
		BaseURL:   cfg.Stock.BaseURL,
		Timeout:   cfg.Stock.Timeout,
		RateLimit: cfg.Stock.RequestsPerMinute,
	})
	if err != nil {
		log.Error("Failed to initialize stock provider", logger.ErrorField(err), logger.StringField("provider", provider.Name()))
		return nil, fmt.Errorf("failed to initialize stock provider: %w", err)
	}

	return NewStockServiceWithProvider(provider, log), nil
}

// NewStockServiceWithProvider wraps an already initialized provider.
func NewStockServiceWithProvider(provider repository.StockProvider, log *logger.Logger) StockService {
	return &stockService{
		log:      log,
		provider: provider,
	}
}

func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", model.NewStockError(model.StockErrInvalidSymbol, "Symbol cannot be empty")
	}
	return s, nil
}

func (s *stockService) GetQuote(ctx context.Context, symbol string) (*model.StockQuote, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	s.log.DebugContext(ctx, "Fetching quote", logger.StringField("symbol", sym), logger.StringField("provider", s.provider.Name()))
	return s.provider.GetQuote(ctx, sym)
}

func (s *stockService) GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error) {
	normalized := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		sym, err := normalizeSymbol(symbol)
		if err != nil {
			continue
		}
		normalized = append(normalized, sym)
	}
	if len(normalized) == 0 {
		return nil, model.NewStockError(model.StockErrInvalidSymbol, "No valid symbols")
	}
	return s.provider.GetQuotes(ctx, normalized)
}

func (s *stockService) GetNews(ctx context.Context, symbol string) (string, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return "", err
	}

	// the provider is not asked; a news call would spend a quote slot
	return newsPlaceholder(sym, s.provider.Name()), nil
}

func (s *stockService) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return false, err
	}
	return s.provider.ValidateSymbol(ctx, sym)
}

func (s *stockService) HealthCheck(ctx context.Context) error {
	return s.provider.HealthCheck(ctx)
}

func (s *stockService) ProviderName() string {
	return s.provider.Name()
}

func (s *stockService) RateLimitInfo() *model.RateLimitInfo {
	return s.provider.GetRateLimitInfo()
}
