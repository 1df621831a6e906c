package repository

import (
	"strings"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"
)

const (
	ProviderAlphaVantage = "alpha_vantage"
	ProviderFinnhub      = "finnhub"
	ProviderYahooFinance = "yahoo_finance"
)

var providerRegistry = []string{ProviderAlphaVantage, ProviderFinnhub, ProviderYahooFinance}

// CreateStockProvider returns an uninitialized provider for name.
func CreateStockProvider(name string, log *logger.Logger) (StockProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderAlphaVantage, "alphavantage":
		return NewAlphaVantageRepository(log), nil
	case ProviderFinnhub:
		return NewFinnhubRepository(log), nil
	case ProviderYahooFinance, "yahoo":
		return NewYahooFinanceRepository(log), nil
	default:
		return nil, model.NewStockError(model.StockErrConfig, "Unknown provider: %s", name)
	}
}

func AvailableProviders() []string {
	return append([]string(nil), providerRegistry...)
}
