package model

import "time"

// StockQuote is a point-in-time price snapshot. Timestamp is when the bot
// fetched it, not when the exchange printed it.
type StockQuote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	PreviousClose float64   `json:"previous_close"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        uint64    `json:"volume"`
	MarketCap     *uint64   `json:"market_cap,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type StockNews struct {
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	Source      string     `json:"source"`
	PublishedAt time.Time  `json:"published_at"`
	URL         string     `json:"url"`
	Symbols     []string   `json:"symbols"`
	Sentiment   *Sentiment `json:"sentiment,omitempty"`
	AISummary   *string    `json:"ai_summary,omitempty"`
}

// ProviderConfig is passed to StockProvider.Initialize.
type ProviderConfig struct {
	APIKey string
	// BaseURL overrides the upstream endpoint when set.
	BaseURL string
	Timeout time.Duration
	// RateLimit overrides the provider's default requests per minute when > 0.
	RateLimit int
}

type RateLimitInfo struct {
	RequestsPerMinute int       `json:"requests_per_minute"`
	RequestsRemaining int       `json:"requests_remaining"`
	ResetTime         time.Time `json:"reset_time"`
}
