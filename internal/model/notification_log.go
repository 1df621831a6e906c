package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const NotificationLogTTL = 30 * 24 * time.Hour

type NotificationType string

const (
	NotificationTypeDailyUpdate NotificationType = "daily_update"
)

type NotificationLog struct {
	LogID            string           `json:"log_id"`
	GroupID          string           `json:"group_id"`
	StockSymbol      string           `json:"stock_symbol"`
	Timestamp        time.Time        `json:"timestamp"`
	Success          bool             `json:"success"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
	NotificationType NotificationType `json:"notification_type"`
	MessageContent   string           `json:"message_content"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	ExpiresAt        int64            `json:"expires_at"`
}

func NewNotificationLog(groupID, stockSymbol string, notificationType NotificationType, content string, processingTime time.Duration) *NotificationLog {
	now := time.Now().UTC()
	return &NotificationLog{
		LogID:            uuid.NewString(),
		GroupID:          groupID,
		StockSymbol:      strings.ToUpper(stockSymbol),
		Timestamp:        now,
		Success:          true,
		NotificationType: notificationType,
		MessageContent:   content,
		ProcessingTimeMs: processingTime.Milliseconds(),
		ExpiresAt:        now.Add(NotificationLogTTL).Unix(),
	}
}

// WithError marks the log as failed.
func (l *NotificationLog) WithError(msg string) *NotificationLog {
	l.Success = false
	l.ErrorMessage = &msg
	return l
}
