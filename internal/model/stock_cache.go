package model

import (
	"strings"
	"time"
)

const DefaultCacheTTLHours = 24

type StockCache struct {
	StockSymbol  string    `json:"stock_symbol"`
	QuoteData    string    `json:"quote_data"`
	NewsData     string    `json:"news_data"`
	CachedAt     time.Time `json:"cached_at"`
	ExpiresAt    int64     `json:"expires_at"`
	Provider     string    `json:"provider"`
	CacheVersion int       `json:"cache_version"`
}

// NewStockCache stamps the entry with now and expires it ttlHours later.
func NewStockCache(symbol, quoteData, newsData, provider string, ttlHours int) *StockCache {
	now := time.Now().UTC()
	return &StockCache{
		StockSymbol:  strings.ToUpper(symbol),
		QuoteData:    quoteData,
		NewsData:     newsData,
		CachedAt:     now,
		ExpiresAt:    now.Unix() + int64(ttlHours)*3600,
		Provider:     provider,
		CacheVersion: 1,
	}
}

func (c *StockCache) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

func (c *StockCache) IsExpiredAt(now time.Time) bool {
	return now.Unix() >= c.ExpiresAt
}
