package dto

import "golang-stockbot/internal/model"

type QuoteRequest struct {
	Symbol string `param:"symbol" validate:"required,max=12"`
}

type QuotesRequest struct {
	Symbols string `query:"symbols" validate:"required"`
}

type QuotesResponse struct {
	Quotes  []model.StockQuote `json:"quotes"`
	Missing []string           `json:"missing,omitempty"`
}

type ProviderStatus struct {
	Name      string               `json:"name"`
	Healthy   bool                 `json:"healthy"`
	Error     string               `json:"error,omitempty"`
	RateLimit *model.RateLimitInfo `json:"rate_limit,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}
