package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/internal/service"
	"golang-stockbot/pkg/logger"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStockService struct {
	healthErr error
}

func (s *fakeStockService) GetQuote(_ context.Context, symbol string) (*model.StockQuote, error) {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case "AAPL":
		return &model.StockQuote{Symbol: "AAPL", Price: 190.5}, nil
	case "BUSY":
		return nil, model.NewStockError(model.StockErrRateLimitExceeded, "slow down")
	default:
		return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", symbol)
	}
}

func (s *fakeStockService) GetQuotes(context.Context, []string) ([]model.StockQuote, error) {
	return nil, nil
}

func (s *fakeStockService) GetNews(context.Context, string) (string, error) { return "", nil }

func (s *fakeStockService) ValidateSymbol(context.Context, string) (bool, error) { return true, nil }

func (s *fakeStockService) HealthCheck(context.Context) error { return s.healthErr }

func (s *fakeStockService) ProviderName() string { return "Fake Market" }

func (s *fakeStockService) RateLimitInfo() *model.RateLimitInfo {
	return &model.RateLimitInfo{RequestsPerMinute: 5, RequestsRemaining: 4}
}

type fakeNotificationService struct {
	asked []string
}

func (s *fakeNotificationService) DispatchDue(context.Context, time.Time) (service.DispatchResult, error) {
	return service.DispatchResult{}, nil
}

func (s *fakeNotificationService) CachedQuotes(_ context.Context, symbols []string) ([]model.StockQuote, []string, error) {
	s.asked = symbols
	var quotes []model.StockQuote
	var missing []string
	for _, sym := range symbols {
		if sym == "AAPL" {
			quotes = append(quotes, model.StockQuote{Symbol: sym, Price: 190.5})
			continue
		}
		missing = append(missing, sym)
	}
	if len(quotes) == 0 {
		return nil, missing, model.ErrSymbolNotFound
	}
	return quotes, missing, nil
}

type fakeScheduler struct {
	result service.DispatchResult
	err    error
}

func (s *fakeScheduler) Execute(context.Context) (service.DispatchResult, error) { return s.result, s.err }
func (s *fakeScheduler) Start(context.Context) error                            { return nil }
func (s *fakeScheduler) Stop()                                                  {}

type response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(stock *fakeStockService, scheduler *fakeScheduler) (*echo.Echo, *fakeNotificationService) {
	e := echo.New()
	notifications := &fakeNotificationService{}
	svc := &service.Service{
		StockService:        stock,
		NotificationService: notifications,
		SchedulerService:    scheduler,
	}
	NewHttpAPIHandler(context.Background(), e, logger.NewNop(), goValidator.New(), svc).SetupRoutes()
	return e, notifications
}

func do(t *testing.T, e *echo.Echo, method, target string) (int, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestGetQuote(t *testing.T) {
	e, _ := newTestServer(&fakeStockService{}, &fakeScheduler{})

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "found", target: "/api/v1/stocks/aapl", want: http.StatusOK},
		{name: "not found", target: "/api/v1/stocks/ZZZZ", want: http.StatusNotFound},
		{name: "rate limited", target: "/api/v1/stocks/BUSY", want: http.StatusTooManyRequests},
		{name: "too long", target: "/api/v1/stocks/ABCDEFGHIJKLMNOP", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, e, http.MethodGet, tt.target)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, tt.want, body.Code)
		})
	}

	_, body := do(t, e, http.MethodGet, "/api/v1/stocks/aapl")
	var quote model.StockQuote
	require.NoError(t, json.Unmarshal(body.Data, &quote))
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 190.5, quote.Price)
}

func TestGetQuotes(t *testing.T) {
	e, notifications := newTestServer(&fakeStockService{}, &fakeScheduler{})

	code, body := do(t, e, http.MethodGet, "/api/v1/stocks?symbols=aapl,%20zzzz,,")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"AAPL", "ZZZZ"}, notifications.asked)
	assert.JSONEq(t, `{"quotes":[{"symbol":"AAPL","price":190.5,"change":0,"change_percent":0,"previous_close":0,"open":0,"high":0,"low":0,"volume":0,"timestamp":"0001-01-01T00:00:00Z"}],"missing":["ZZZZ"]}`, string(body.Data))

	code, _ = do(t, e, http.MethodGet, "/api/v1/stocks?symbols=ZZZZ")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, e, http.MethodGet, "/api/v1/stocks")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodGet, "/api/v1/stocks?symbols=,,")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetProviders(t *testing.T) {
	stock := &fakeStockService{}
	e, _ := newTestServer(stock, &fakeScheduler{})

	_, body := do(t, e, http.MethodGet, "/api/v1/providers")
	assert.JSONEq(t, `[{"name":"Fake Market","healthy":true,"rate_limit":{"requests_per_minute":5,"requests_remaining":4,"reset_time":"0001-01-01T00:00:00Z"}}]`, string(body.Data))

	stock.healthErr = errors.New("upstream down")
	_, body = do(t, e, http.MethodGet, "/api/v1/providers")
	assert.Contains(t, string(body.Data), `"healthy":false`)
	assert.Contains(t, string(body.Data), `"error":"upstream down"`)
}

func TestHealthAndJobs(t *testing.T) {
	scheduler := &fakeScheduler{result: service.DispatchResult{GroupsChecked: 2, Sent: 1}}
	e, _ := newTestServer(&fakeStockService{}, scheduler)

	code, body := do(t, e, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","provider":"Fake Market"}`, string(body.Data))

	code, body = do(t, e, http.MethodPost, "/api/v1/jobs/run")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"groups_checked":2,"sent":1,"failed":0}`, string(body.Data))

	scheduler.err = errors.New("database is locked")
	code, body = do(t, e, http.MethodPost, "/api/v1/jobs/run")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "database is locked", body.Message)
}
