package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/httpclient"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/ratelimit"
)

const (
	AlphaVantageDefaultBaseURL = "https://www.alphavantage.co"
	// free tier budget
	alphaVantageRequestsPerMinute = 5
	alphaVantageDefaultTimeout    = 30 * time.Second
)

// alphaVantageGlobalQuote is the GLOBAL_QUOTE payload. Every value is a string.
type alphaVantageGlobalQuote struct {
	Symbol           string `json:"01. symbol"`
	Open             string `json:"02. open"`
	High             string `json:"03. high"`
	Low              string `json:"04. low"`
	Price            string `json:"05. price"`
	Volume           string `json:"06. volume"`
	LatestTradingDay string `json:"07. latest trading day"`
	PreviousClose    string `json:"08. previous close"`
	Change           string `json:"09. change"`
	ChangePercent    string `json:"10. change percent"`
}

type alphaVantageQuoteResponse struct {
	GlobalQuote  *alphaVantageGlobalQuote `json:"Global Quote"`
	ErrorMessage string                   `json:"Error Message"`
	Note         string                   `json:"Note"`
	Information  string                   `json:"Information"`
}

type alphaVantageRepository struct {
	log     *logger.Logger
	limiter *ratelimit.FixedWindowLimiter

	mu         sync.RWMutex
	httpClient httpclient.HTTPClient
	apiKey     string
}

func NewAlphaVantageRepository(log *logger.Logger) StockProvider {
	return &alphaVantageRepository{
		log:     log,
		limiter: ratelimit.NewFixedWindowLimiter(alphaVantageRequestsPerMinute),
	}
}

func (r *alphaVantageRepository) Name() string {
	return "Alpha Vantage"
}

func (r *alphaVantageRepository) Initialize(cfg model.ProviderConfig) error {
	if cfg.APIKey == "" {
		return model.NewStockError(model.StockErrInvalidAPIKey, "API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = AlphaVantageDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = alphaVantageDefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.RateLimit > 0 {
		r.limiter = ratelimit.NewFixedWindowLimiter(cfg.RateLimit)
	}
	r.httpClient = httpclient.New(baseURL, timeout, "")
	r.apiKey = cfg.APIKey

	r.log.Info("Alpha Vantage provider initialized", logger.IntField("requests_per_minute", r.limiter.Limit()))
	return nil
}

func (r *alphaVantageRepository) client() (httpclient.HTTPClient, string, *ratelimit.FixedWindowLimiter) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.httpClient, r.apiKey, r.limiter
}

func (r *alphaVantageRepository) GetQuote(ctx context.Context, symbol string) (*model.StockQuote, error) {
	httpClient, apiKey, limiter := r.client()
	if err := checkLimit(ctx, r.log, r.Name(), limiter); err != nil {
		return nil, err
	}
	if httpClient == nil {
		return nil, model.NewStockError(model.StockErrConfig, "Provider not initialized")
	}

	r.log.DebugContext(ctx, "Fetching quote", logger.StringField("symbol", symbol))

	queryParams := map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
		"apikey":   apiKey,
	}
	resp, err := httpClient.Get(ctx, "/query", queryParams, nil, nil)
	if err != nil {
		return nil, model.WrapStockError(model.StockErrNetwork, err, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		r.log.ErrorContext(ctx, "Alpha Vantage returned non-OK status",
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("body", string(resp.Body)))
		return nil, mapProviderError(fmt.Sprintf("status %d: %s", resp.StatusCode, string(resp.Body)))
	}

	var payload alphaVantageQuoteResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, model.WrapStockError(model.StockErrParse, err, "decode GLOBAL_QUOTE response")
	}

	return parseAlphaVantageQuote(symbol, &payload)
}

func parseAlphaVantageQuote(symbol string, payload *alphaVantageQuoteResponse) (*model.StockQuote, error) {
	for _, msg := range []string{payload.ErrorMessage, payload.Note, payload.Information} {
		if msg != "" {
			return nil, mapProviderError(msg)
		}
	}
	q := payload.GlobalQuote
	if q == nil || q.Symbol == "" {
		return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", strings.ToUpper(symbol))
	}

	p := &numberParser{}
	quote := &model.StockQuote{
		Symbol:        strings.ToUpper(q.Symbol),
		Price:         p.float("price", q.Price),
		Change:        p.float("change", q.Change),
		ChangePercent: p.float("change percent", strings.TrimSuffix(q.ChangePercent, "%")),
		PreviousClose: p.float("previous close", q.PreviousClose),
		Open:          p.float("open", q.Open),
		High:          p.float("high", q.High),
		Low:           p.float("low", q.Low),
		Volume:        p.uint("volume", q.Volume),
		Timestamp:     time.Now().UTC(),
	}
	if p.err != nil {
		return nil, p.err
	}
	return quote, nil
}

// numberParser keeps the first conversion failure.
type numberParser struct {
	err error
}

func (p *numberParser) float(field, s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil && p.err == nil {
		p.err = model.WrapStockError(model.StockErrParse, err, fmt.Sprintf("invalid %s %q", field, s))
	}
	return v
}

func (p *numberParser) uint(field, s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil && p.err == nil {
		p.err = model.WrapStockError(model.StockErrParse, err, fmt.Sprintf("invalid %s %q", field, s))
	}
	return v
}

func (r *alphaVantageRepository) GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error) {
	return getQuotesSequential(ctx, r, r.log, symbols)
}

func (r *alphaVantageRepository) GetNews(ctx context.Context, symbol string, limit int) ([]model.StockNews, error) {
	return []model.StockNews{}, nil
}

func (r *alphaVantageRepository) GetMarketNews(ctx context.Context, limit int) ([]model.StockNews, error) {
	return []model.StockNews{}, nil
}

func (r *alphaVantageRepository) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return validateSymbolWith(ctx, r, symbol)
}

func (r *alphaVantageRepository) GetRateLimitInfo() *model.RateLimitInfo {
	_, _, limiter := r.client()
	return rateLimitInfo(limiter, time.Now())
}

func (r *alphaVantageRepository) HealthCheck(ctx context.Context) error {
	return healthCheckWith(ctx, r)
}
