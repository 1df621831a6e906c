package http

import (
	"errors"
	"net/http"
	"strings"

	"golang-stockbot/internal/dto"
	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupStocks(base *echo.Group) {
	v1 := base.Group("/v1")
	{
		v1.GET("/stocks", h.GetQuotes)
		v1.GET("/stocks/:symbol", h.GetQuote)
		v1.GET("/providers", h.GetProviders)
	}
}

func (h *HttpAPIHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", dto.HealthResponse{
		Status:   "ok",
		Provider: h.service.StockService.ProviderName(),
	}))
}

func (h *HttpAPIHandler) GetQuote(c echo.Context) error {
	var req dto.QuoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	ctx := c.Request().Context()
	quote, err := h.service.StockService.GetQuote(ctx, req.Symbol)
	if err != nil {
		h.log.WarnContext(ctx, "Quote request failed", logger.StringField("symbol", req.Symbol), logger.ErrorField(err))
		response := dto.NewBaseResponse(statusForStockError(err), err.Error(), nil)
		return c.JSON(response.Code, response)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", quote))
}

// GetQuotes serves ?symbols=AAPL,MSFT through the quote cache.
func (h *HttpAPIHandler) GetQuotes(c echo.Context) error {
	var req dto.QuotesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}

	var symbols []string
	for _, s := range strings.Split(req.Symbols, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("no symbols given"))
	}

	ctx := c.Request().Context()
	quotes, missing, err := h.service.NotificationService.CachedQuotes(ctx, symbols)
	if err != nil && len(quotes) == 0 {
		h.log.WarnContext(ctx, "Quotes request failed", logger.ErrorField(err))
		response := dto.NewBaseResponse(statusForStockError(err), err.Error(), dto.QuotesResponse{Missing: missing})
		return c.JSON(response.Code, response)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", dto.QuotesResponse{Quotes: quotes, Missing: missing}))
}

func (h *HttpAPIHandler) GetProviders(c echo.Context) error {
	stockService := h.service.StockService
	status := dto.ProviderStatus{
		Name:      stockService.ProviderName(),
		Healthy:   true,
		RateLimit: stockService.RateLimitInfo(),
	}
	if err := stockService.HealthCheck(c.Request().Context()); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", []dto.ProviderStatus{status}))
}

func statusForStockError(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
