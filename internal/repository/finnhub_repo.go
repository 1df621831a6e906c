package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/ratelimit"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"
)

const (
	FinnhubDefaultBaseURL    = "https://finnhub.io/api/v1"
	finnhubRequestsPerMinute = 60
	finnhubDefaultTimeout    = 30 * time.Second
	finnhubCompanyNewsDays   = 7
)

type finnhubRepository struct {
	log     *logger.Logger
	limiter *ratelimit.FixedWindowLimiter

	mu     sync.RWMutex
	client *finnhub.DefaultApiService
}

func NewFinnhubRepository(log *logger.Logger) StockProvider {
	return &finnhubRepository{
		log:     log,
		limiter: ratelimit.NewFixedWindowLimiter(finnhubRequestsPerMinute),
	}
}

func (r *finnhubRepository) Name() string {
	return "Finnhub"
}

func (r *finnhubRepository) Initialize(cfg model.ProviderConfig) error {
	if cfg.APIKey == "" {
		return model.NewStockError(model.StockErrInvalidAPIKey, "API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = finnhubDefaultTimeout
	}

	fhCfg := finnhub.NewConfiguration()
	fhCfg.AddDefaultHeader("X-Finnhub-Token", cfg.APIKey)
	fhCfg.HTTPClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL != "" {
		fhCfg.Servers = finnhub.ServerConfigurations{{URL: cfg.BaseURL}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg.RateLimit > 0 {
		r.limiter = ratelimit.NewFixedWindowLimiter(cfg.RateLimit)
	}
	r.client = finnhub.NewAPIClient(fhCfg).DefaultApi

	r.log.Info("Finnhub provider initialized", logger.IntField("requests_per_minute", r.limiter.Limit()))
	return nil
}

func (r *finnhubRepository) state() (*finnhub.DefaultApiService, *ratelimit.FixedWindowLimiter) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client, r.limiter
}

// ready consumes one request and returns the client.
func (r *finnhubRepository) ready(ctx context.Context) (*finnhub.DefaultApiService, error) {
	client, limiter := r.state()
	if err := checkLimit(ctx, r.log, r.Name(), limiter); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, model.NewStockError(model.StockErrConfig, "Provider not initialized")
	}
	return client, nil
}

func (r *finnhubRepository) GetQuote(ctx context.Context, symbol string) (*model.StockQuote, error) {
	client, err := r.ready(ctx)
	if err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	res, httpResp, err := client.Quote(ctx).Symbol(symbol).Execute()
	if err != nil {
		return nil, r.mapError(ctx, httpResp, err)
	}

	// unknown symbols come back as an all-zero quote
	if res.GetC() == 0 {
		return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", symbol)
	}

	return &model.StockQuote{
		Symbol:        symbol,
		Price:         float64(res.GetC()),
		Change:        float64(res.GetD()),
		ChangePercent: float64(res.GetDp()),
		PreviousClose: float64(res.GetPc()),
		Open:          float64(res.GetO()),
		High:          float64(res.GetH()),
		Low:           float64(res.GetL()),
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (r *finnhubRepository) mapError(ctx context.Context, httpResp *http.Response, err error) error {
	if httpResp == nil {
		return model.WrapStockError(model.StockErrNetwork, err, err.Error())
	}

	body := err.Error()
	// finnhub.GenericOpenAPIError carries the raw response body
	var apiErr interface{ Body() []byte }
	if errors.As(err, &apiErr) && len(apiErr.Body()) > 0 {
		body = string(apiErr.Body())
	}

	r.log.ErrorContext(ctx, "Finnhub returned non-OK status",
		logger.IntField("status_code", httpResp.StatusCode),
		logger.StringField("body", body))

	switch httpResp.StatusCode {
	case http.StatusTooManyRequests:
		return model.NewStockError(model.StockErrRateLimitExceeded, "%s", body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.NewStockError(model.StockErrInvalidAPIKey, "%s", body)
	}
	return mapProviderError(fmt.Sprintf("status %d: %s", httpResp.StatusCode, body))
}

func (r *finnhubRepository) GetQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, error) {
	return getQuotesSequential(ctx, r, r.log, symbols)
}

// GetNews returns company news from the last week, newest first as
// delivered upstream.
func (r *finnhubRepository) GetNews(ctx context.Context, symbol string, limit int) ([]model.StockNews, error) {
	client, err := r.ready(ctx)
	if err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -finnhubCompanyNewsDays)
	res, httpResp, err := client.CompanyNews(ctx).
		Symbol(symbol).
		From(from.Format(time.DateOnly)).
		To(to.Format(time.DateOnly)).
		Execute()
	if err != nil {
		return nil, r.mapError(ctx, httpResp, err)
	}

	news := make([]model.StockNews, 0, len(res))
	for _, item := range res {
		if limit > 0 && len(news) >= limit {
			break
		}
		news = append(news, finnhubNews(item.Headline, item.Summary, item.Source, item.Url, item.Related, item.Datetime))
	}
	return news, nil
}

func (r *finnhubRepository) GetMarketNews(ctx context.Context, limit int) ([]model.StockNews, error) {
	client, err := r.ready(ctx)
	if err != nil {
		return nil, err
	}

	res, httpResp, err := client.MarketNews(ctx).Category("general").Execute()
	if err != nil {
		return nil, r.mapError(ctx, httpResp, err)
	}

	news := make([]model.StockNews, 0, len(res))
	for _, item := range res {
		if limit > 0 && len(news) >= limit {
			break
		}
		news = append(news, finnhubNews(item.Headline, item.Summary, item.Source, item.Url, item.Related, item.Datetime))
	}
	return news, nil
}

func finnhubNews(headline, summary, source, url, related *string, datetime *int64) model.StockNews {
	n := model.StockNews{Symbols: []string{}}
	if headline != nil {
		n.Title = *headline
	}
	if summary != nil {
		n.Summary = *summary
	}
	if source != nil {
		n.Source = *source
	}
	if url != nil {
		n.URL = *url
	}
	if datetime != nil {
		n.PublishedAt = time.Unix(*datetime, 0).UTC()
	}
	if related != nil && *related != "" {
		n.Symbols = strings.Split(*related, ",")
	}
	return n
}

func (r *finnhubRepository) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return validateSymbolWith(ctx, r, symbol)
}

func (r *finnhubRepository) GetRateLimitInfo() *model.RateLimitInfo {
	_, limiter := r.state()
	return rateLimitInfo(limiter, time.Now())
}

func (r *finnhubRepository) HealthCheck(ctx context.Context) error {
	return healthCheckWith(ctx, r)
}
