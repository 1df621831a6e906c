package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/common"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/ratelimit"
)

// StockProvider is a market data source. Implementations must be
// initialized before use and enforce their own request budget.
type StockProvider interface {
	Name() string
	Initialize(cfg model.ProviderConfig) error
	GetQuote(ctx context.Context, symbol string) (*model.StockQuote, error)
	// GetQuotes fetches symbols one after another. It only fails when every
	// symbol failed.
	GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error)
	GetNews(ctx context.Context, symbol string, limit int) ([]model.StockNews, error)
	GetMarketNews(ctx context.Context, limit int) ([]model.StockNews, error)
	// ValidateSymbol reports false for unknown symbols. Other failures are
	// returned as errors.
	ValidateSymbol(ctx context.Context, symbol string) (bool, error)
	GetRateLimitInfo() *model.RateLimitInfo
	HealthCheck(ctx context.Context) error
}

// checkLimit consumes one request from limiter.
func checkLimit(ctx context.Context, log *logger.Logger, provider string, limiter *ratelimit.FixedWindowLimiter) error {
	wait, err := limiter.AllowWithWait()
	if err != nil {
		log.WarnContext(ctx, "Provider rate limit exceeded",
			logger.StringField("provider", provider),
			logger.IntField("requests_per_minute", limiter.Limit()),
			logger.StringField("wait", wait.String()),
		)
		return model.NewStockError(model.StockErrRateLimitExceeded, "")
	}
	return nil
}

func rateLimitInfo(limiter *ratelimit.FixedWindowLimiter, now time.Time) *model.RateLimitInfo {
	info := limiter.Info()
	remaining := info.Limit - info.RequestsMade
	if !now.Before(info.ResetAt) {
		remaining = info.Limit
	}
	if remaining < 0 {
		remaining = 0
	}
	return &model.RateLimitInfo{
		RequestsPerMinute: info.Limit,
		RequestsRemaining: remaining,
		ResetTime:         info.ResetAt,
	}
}

func getQuotesSequential(ctx context.Context, p StockProvider, log *logger.Logger, symbols []string) ([]model.StockQuote, error) {
	quotes := make([]model.StockQuote, 0, len(symbols))
	var lastErr error
	for _, symbol := range symbols {
		quote, err := p.GetQuote(ctx, symbol)
		if err != nil {
			log.WarnContext(ctx, "Failed to get quote",
				logger.StringField("provider", p.Name()),
				logger.StringField("symbol", symbol),
				logger.ErrorField(err),
			)
			lastErr = err
			continue
		}
		quotes = append(quotes, *quote)
	}

	if len(symbols) > 0 && len(quotes) == 0 {
		return nil, model.WrapStockError(model.StockErrProvider, lastErr, "failed to get quotes for all symbols")
	}
	return quotes, nil
}

func validateSymbolWith(ctx context.Context, p StockProvider, symbol string) (bool, error) {
	if _, err := p.GetQuote(ctx, symbol); err != nil {
		if errors.Is(err, model.ErrSymbolNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func healthCheckWith(ctx context.Context, p StockProvider) error {
	_, err := p.GetQuote(ctx, common.HEALTH_CHECK_SYMBOL)
	return err
}

// mapProviderError classifies upstream error text. Matching is on
// lowercase substrings and the first matching row wins.
func mapProviderError(message string) *model.StockError {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "invalid api call", "symbol", "invalid data"):
		return model.NewStockError(model.StockErrSymbolNotFound, "%s", message)
	case strings.Contains(lower, "api key"):
		return model.NewStockError(model.StockErrInvalidAPIKey, "%s", message)
	case containsAny(lower, "call frequency", "premium"):
		return model.NewStockError(model.StockErrRateLimitExceeded, "%s", message)
	case containsAny(lower, "network", "connection"):
		return model.NewStockError(model.StockErrNetwork, "%s", message)
	default:
		return model.NewStockError(model.StockErrProvider, "%s", message)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
