package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/httpclient"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/ratelimit"
)

const (
	YahooFinanceDefaultBaseURL = "https://query1.finance.yahoo.com"
	// unofficial endpoint, keep well under the point where it starts answering 429
	yahooFinanceRequestsPerMinute = 60
	yahooFinanceDefaultTimeout    = 15 * time.Second
)

var yahooFinanceHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://finance.yahoo.com/",
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				PreviousClose        float64 `json:"previousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  uint64  `json:"regularMarketVolume"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open []float64 `json:"open"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooFinanceRepository struct {
	log     *logger.Logger
	limiter *ratelimit.FixedWindowLimiter

	mu         sync.RWMutex
	httpClient httpclient.HTTPClient
}

// NewYahooFinanceRepository returns a provider backed by the public chart
// endpoint. It needs no API key and has no news feed.
func NewYahooFinanceRepository(log *logger.Logger) StockProvider {
	return &yahooFinanceRepository{
		log:     log,
		limiter: ratelimit.NewFixedWindowLimiter(yahooFinanceRequestsPerMinute),
	}
}

func (r *yahooFinanceRepository) Name() string {
	return "Yahoo Finance"
}

func (r *yahooFinanceRepository) Initialize(cfg model.ProviderConfig) error {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = YahooFinanceDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = yahooFinanceDefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.RateLimit > 0 {
		r.limiter = ratelimit.NewFixedWindowLimiter(cfg.RateLimit)
	}
	r.httpClient = httpclient.New(baseURL, timeout, "")

	r.log.Info("Yahoo Finance provider initialized", logger.IntField("requests_per_minute", r.limiter.Limit()))
	return nil
}

func (r *yahooFinanceRepository) client() (httpclient.HTTPClient, *ratelimit.FixedWindowLimiter) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.httpClient, r.limiter
}

func (r *yahooFinanceRepository) GetQuote(ctx context.Context, symbol string) (*model.StockQuote, error) {
	httpClient, limiter := r.client()
	if err := checkLimit(ctx, r.log, r.Name(), limiter); err != nil {
		return nil, err
	}
	if httpClient == nil {
		return nil, model.NewStockError(model.StockErrConfig, "Provider not initialized")
	}

	symbol = strings.ToUpper(symbol)
	r.log.DebugContext(ctx, "Fetching quote", logger.StringField("symbol", symbol))

	queryParams := map[string]string{
		"range":          "1d",
		"interval":       "1d",
		"includePrePost": "false",
	}
	resp, err := httpClient.Get(ctx, "/v8/finance/chart/"+symbol, queryParams, yahooFinanceHeaders, nil)
	if err != nil {
		return nil, model.WrapStockError(model.StockErrNetwork, err, err.Error())
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, model.NewStockError(model.StockErrRateLimitExceeded, "Yahoo Finance is throttling requests")
	}

	var payload yahooChartResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			r.log.ErrorContext(ctx, "Yahoo Finance returned non-OK status",
				logger.IntField("status_code", resp.StatusCode),
				logger.StringField("body", string(resp.Body)))
			return nil, mapProviderError(fmt.Sprintf("status %d: %s", resp.StatusCode, string(resp.Body)))
		}
		return nil, model.WrapStockError(model.StockErrParse, err, "decode chart response")
	}

	return parseYahooChart(symbol, &payload)
}

func parseYahooChart(symbol string, payload *yahooChartResponse) (*model.StockQuote, error) {
	if e := payload.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", symbol)
		}
		return nil, mapProviderError(e.Code + ": " + e.Description)
	}
	if len(payload.Chart.Result) == 0 || payload.Chart.Result[0].Meta.RegularMarketPrice == 0 {
		return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", symbol)
	}

	result := payload.Chart.Result[0]
	meta := result.Meta
	previousClose := meta.ChartPreviousClose
	if previousClose == 0 {
		previousClose = meta.PreviousClose
	}

	quote := &model.StockQuote{
		Symbol:        strings.ToUpper(meta.Symbol),
		Price:         meta.RegularMarketPrice,
		PreviousClose: previousClose,
		High:          meta.RegularMarketDayHigh,
		Low:           meta.RegularMarketDayLow,
		Volume:        meta.RegularMarketVolume,
		Timestamp:     time.Now().UTC(),
	}
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	if previousClose > 0 {
		quote.Change = meta.RegularMarketPrice - previousClose
		quote.ChangePercent = quote.Change / previousClose * 100
	}
	// nulls in the series decode as zero
	if len(result.Indicators.Quote) > 0 {
		for _, open := range result.Indicators.Quote[0].Open {
			if open > 0 {
				quote.Open = open
			}
		}
	}
	return quote, nil
}

func (r *yahooFinanceRepository) GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error) {
	return getQuotesSequential(ctx, r, r.log, symbols)
}

func (r *yahooFinanceRepository) GetNews(ctx context.Context, symbol string, limit int) ([]model.StockNews, error) {
	return []model.StockNews{}, nil
}

func (r *yahooFinanceRepository) GetMarketNews(ctx context.Context, limit int) ([]model.StockNews, error) {
	return []model.StockNews{}, nil
}

func (r *yahooFinanceRepository) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return validateSymbolWith(ctx, r, symbol)
}

func (r *yahooFinanceRepository) GetRateLimitInfo() *model.RateLimitInfo {
	_, limiter := r.client()
	return rateLimitInfo(limiter, time.Now())
}

func (r *yahooFinanceRepository) HealthCheck(ctx context.Context) error {
	return healthCheckWith(ctx, r)
}
