package model

import (
	"strings"
	"time"
)

type SubscriptionSettings struct {
	// NotificationTime is "HH:MM" in the group's timezone.
	NotificationTime *string          `json:"notification_time,omitempty"`
	IncludeAISummary bool             `json:"include_ai_summary"`
	Metadata         map[string]string `json:"metadata"`
}

type StockSubscription struct {
	GroupID         string                `json:"group_id" validate:"required"`
	StockSymbol     string                `json:"stock_symbol" validate:"required,max=16"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	IsActive        bool                  `json:"is_active"`
	CreatedByUserID int64                 `json:"created_by_user_id"`
	Settings        *SubscriptionSettings `json:"settings,omitempty"`
}

func NewStockSubscription(groupID, stockSymbol string, createdBy int64) *StockSubscription {
	now := time.Now().UTC()
	return &StockSubscription{
		GroupID:         groupID,
		StockSymbol:     strings.ToUpper(strings.TrimSpace(stockSymbol)),
		CreatedAt:       now,
		UpdatedAt:       now,
		IsActive:        true,
		CreatedByUserID: createdBy,
	}
}

func (s *StockSubscription) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// NotificationTime returns the per-subscription override, if any.
func (s *StockSubscription) NotificationTime() (string, bool) {
	if s.Settings == nil || s.Settings.NotificationTime == nil {
		return "", false
	}
	return *s.Settings.NotificationTime, true
}
