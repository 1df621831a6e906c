package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"golang-stockbot/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Rows keep a flat key/value layout. Timestamps are fixed-width RFC3339
// strings, TTLs are unix seconds and nested maps are stored as JSON text.
// Absent optionals are NULL.

// timestampLayout is RFC3339 with a fixed nanosecond width so that string
// ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	tableSubscriptions   = "stock_subscriptions"
	tableGroupConfig     = "group_config"
	tableUserPreferences = "user_preferences"
	tableStockCache      = "stock_cache"
	tableNotificationLog = "notification_logs"
)

// TableNames resolves the physical table names for a prefix.
type TableNames struct {
	Subscriptions   string
	GroupConfig     string
	UserPreferences string
	StockCache      string
	NotificationLog string
}

func NewTableNames(prefix string) TableNames {
	name := func(base string) string {
		if prefix == "" {
			return base
		}
		return prefix + "_" + base
	}
	return TableNames{
		Subscriptions:   name(tableSubscriptions),
		GroupConfig:     name(tableGroupConfig),
		UserPreferences: name(tableUserPreferences),
		StockCache:      name(tableStockCache),
		NotificationLog: name(tableNotificationLog),
	}
}

// AutoMigrate creates the tables for prefix from the row structs. Postgres
// deployments run the SQL migrations instead.
func AutoMigrate(db *gorm.DB, prefix string) error {
	tables := NewTableNames(prefix)
	rows := []struct {
		table string
		item  interface{}
	}{
		{tables.Subscriptions, &stockSubscriptionItem{}},
		{tables.GroupConfig, &groupConfigItem{}},
		{tables.UserPreferences, &userPreferencesItem{}},
		{tables.StockCache, &stockCacheItem{}},
		{tables.NotificationLog, &notificationLogItem{}},
	}
	for _, r := range rows {
		if err := db.Table(r.table).AutoMigrate(r.item); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", r.table, err)
		}
	}
	return nil
}

type stockSubscriptionItem struct {
	GroupID         string  `gorm:"column:group_id;primaryKey"`
	StockSymbol     string  `gorm:"column:stock_symbol;primaryKey"`
	CreatedAt       string  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt       string  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	IsActive        bool    `gorm:"column:is_active;not null"`
	CreatedByUserID int64   `gorm:"column:created_by_user_id;not null"`
	Settings        *string `gorm:"column:settings"`
}

type groupConfigItem struct {
	GroupID                 string         `gorm:"column:group_id;primaryKey"`
	GroupTitle              *string        `gorm:"column:group_title"`
	MaxSubscriptions        int            `gorm:"column:max_subscriptions;not null"`
	DefaultNotificationTime string         `gorm:"column:default_notification_time;not null"`
	Timezone                string         `gorm:"column:timezone;not null"`
	AISummariesEnabled      bool           `gorm:"column:ai_summaries_enabled;not null"`
	AdminUserIDs            datatypes.JSON `gorm:"column:admin_user_ids;not null"`
	CreatedAt               string         `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt               string         `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	IsActive                bool           `gorm:"column:is_active;not null"`
	Settings                *string        `gorm:"column:settings"`
}

type userPreferencesItem struct {
	UserID                      int64   `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username                    *string `gorm:"column:username"`
	Timezone                    string  `gorm:"column:timezone;not null"`
	PrivateNotificationsEnabled bool    `gorm:"column:private_notifications_enabled;not null"`
	PreferredAIModel            *string `gorm:"column:preferred_ai_model"`
	CreatedAt                   string  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt                   string  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	Settings                    *string `gorm:"column:settings"`
}

type stockCacheItem struct {
	StockSymbol  string `gorm:"column:stock_symbol;primaryKey"`
	QuoteData    string `gorm:"column:quote_data;not null"`
	NewsData     string `gorm:"column:news_data;not null"`
	CachedAt     string `gorm:"column:cached_at;not null"`
	ExpiresAt    int64  `gorm:"column:expires_at;not null"`
	Provider     string `gorm:"column:provider;not null"`
	CacheVersion int    `gorm:"column:cache_version;not null"`
}

type notificationLogItem struct {
	LogID            string  `gorm:"column:log_id;primaryKey"`
	GroupID          string  `gorm:"column:group_id;not null"`
	StockSymbol      string  `gorm:"column:stock_symbol;not null"`
	Timestamp        string  `gorm:"column:logged_at;not null"`
	Success          bool    `gorm:"column:success;not null"`
	ErrorMessage     *string `gorm:"column:error_message"`
	NotificationType string  `gorm:"column:notification_type;not null"`
	MessageContent   string  `gorm:"column:message_content;not null"`
	ProcessingTimeMs int64   `gorm:"column:processing_time_ms;not null"`
	ExpiresAt        int64   `gorm:"column:expires_at;not null"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, model.NewDatabaseError(model.DBErrSerialization, err, "invalid %s %q", field, s)
	}
	return t.UTC(), nil
}

// encodeText renders v as embedded JSON text.
func encodeText(field string, v interface{}) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, model.NewDatabaseError(model.DBErrSerialization, err, "encode %s", field)
	}
	s := string(b)
	return &s, nil
}

func decodeText(field string, s *string, dest interface{}) error {
	if s == nil || *s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(*s), dest); err != nil {
		return model.NewDatabaseError(model.DBErrSerialization, err, "decode %s", field)
	}
	return nil
}

func subscriptionToItem(s *model.StockSubscription) (*stockSubscriptionItem, error) {
	item := &stockSubscriptionItem{
		GroupID:         s.GroupID,
		StockSymbol:     s.StockSymbol,
		CreatedAt:       formatTimestamp(s.CreatedAt),
		UpdatedAt:       formatTimestamp(s.UpdatedAt),
		IsActive:        s.IsActive,
		CreatedByUserID: s.CreatedByUserID,
	}
	if s.Settings != nil {
		settings, err := encodeText("settings", s.Settings)
		if err != nil {
			return nil, err
		}
		item.Settings = settings
	}
	return item, nil
}

func itemToSubscription(item *stockSubscriptionItem) (*model.StockSubscription, error) {
	createdAt, err := parseTimestamp("created_at", item.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp("updated_at", item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s := &model.StockSubscription{
		GroupID:         item.GroupID,
		StockSymbol:     item.StockSymbol,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		IsActive:        item.IsActive,
		CreatedByUserID: item.CreatedByUserID,
	}
	if item.Settings != nil {
		var settings model.SubscriptionSettings
		if err := decodeText("settings", item.Settings, &settings); err != nil {
			return nil, err
		}
		s.Settings = &settings
	}
	return s, nil
}

func groupConfigToItem(g *model.GroupConfig) (*groupConfigItem, error) {
	admins := g.AdminUserIDs
	if admins == nil {
		admins = []int64{}
	}
	adminJSON, err := json.Marshal(admins)
	if err != nil {
		return nil, model.NewDatabaseError(model.DBErrSerialization, err, "encode admin_user_ids")
	}

	item := &groupConfigItem{
		GroupID:                 g.GroupID,
		GroupTitle:              g.GroupTitle,
		MaxSubscriptions:        g.MaxSubscriptions,
		DefaultNotificationTime: g.DefaultNotificationTime,
		Timezone:                g.Timezone,
		AISummariesEnabled:      g.AISummariesEnabled,
		AdminUserIDs:            datatypes.JSON(adminJSON),
		CreatedAt:               formatTimestamp(g.CreatedAt),
		UpdatedAt:               formatTimestamp(g.UpdatedAt),
		IsActive:                g.IsActive,
	}
	if len(g.Settings) > 0 {
		settings, err := encodeText("settings", g.Settings)
		if err != nil {
			return nil, err
		}
		item.Settings = settings
	}
	return item, nil
}

func itemToGroupConfig(item *groupConfigItem) (*model.GroupConfig, error) {
	createdAt, err := parseTimestamp("created_at", item.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp("updated_at", item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	admins := []int64{}
	if len(item.AdminUserIDs) > 0 {
		if err := json.Unmarshal(item.AdminUserIDs, &admins); err != nil {
			return nil, model.NewDatabaseError(model.DBErrSerialization, err, "decode admin_user_ids")
		}
	}

	settings := map[string]string{}
	if err := decodeText("settings", item.Settings, &settings); err != nil {
		return nil, err
	}

	return &model.GroupConfig{
		GroupID:                 item.GroupID,
		GroupTitle:              item.GroupTitle,
		MaxSubscriptions:        item.MaxSubscriptions,
		DefaultNotificationTime: item.DefaultNotificationTime,
		Timezone:                item.Timezone,
		AISummariesEnabled:      item.AISummariesEnabled,
		AdminUserIDs:            admins,
		CreatedAt:               createdAt,
		UpdatedAt:               updatedAt,
		IsActive:                item.IsActive,
		Settings:                settings,
	}, nil
}

func userPreferencesToItem(p *model.StockUserPreferences) (*userPreferencesItem, error) {
	item := &userPreferencesItem{
		UserID:                      p.UserID,
		Username:                    p.Username,
		Timezone:                    p.Timezone,
		PrivateNotificationsEnabled: p.PrivateNotificationsEnabled,
		PreferredAIModel:            p.PreferredAIModel,
		CreatedAt:                   formatTimestamp(p.CreatedAt),
		UpdatedAt:                   formatTimestamp(p.UpdatedAt),
	}
	if len(p.Settings) > 0 {
		settings, err := encodeText("settings", p.Settings)
		if err != nil {
			return nil, err
		}
		item.Settings = settings
	}
	return item, nil
}

func itemToUserPreferences(item *userPreferencesItem) (*model.StockUserPreferences, error) {
	createdAt, err := parseTimestamp("created_at", item.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp("updated_at", item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	settings := map[string]string{}
	if err := decodeText("settings", item.Settings, &settings); err != nil {
		return nil, err
	}

	return &model.StockUserPreferences{
		UserID:                      item.UserID,
		Username:                    item.Username,
		Timezone:                    item.Timezone,
		PrivateNotificationsEnabled: item.PrivateNotificationsEnabled,
		PreferredAIModel:            item.PreferredAIModel,
		CreatedAt:                   createdAt,
		UpdatedAt:                   updatedAt,
		Settings:                    settings,
	}, nil
}

func stockCacheToItem(c *model.StockCache) *stockCacheItem {
	return &stockCacheItem{
		StockSymbol:  c.StockSymbol,
		QuoteData:    c.QuoteData,
		NewsData:     c.NewsData,
		CachedAt:     formatTimestamp(c.CachedAt),
		ExpiresAt:    c.ExpiresAt,
		Provider:     c.Provider,
		CacheVersion: c.CacheVersion,
	}
}

func itemToStockCache(item *stockCacheItem) (*model.StockCache, error) {
	cachedAt, err := parseTimestamp("cached_at", item.CachedAt)
	if err != nil {
		return nil, err
	}
	return &model.StockCache{
		StockSymbol:  item.StockSymbol,
		QuoteData:    item.QuoteData,
		NewsData:     item.NewsData,
		CachedAt:     cachedAt,
		ExpiresAt:    item.ExpiresAt,
		Provider:     item.Provider,
		CacheVersion: item.CacheVersion,
	}, nil
}

func notificationLogToItem(l *model.NotificationLog) *notificationLogItem {
	return &notificationLogItem{
		LogID:            l.LogID,
		GroupID:          l.GroupID,
		StockSymbol:      l.StockSymbol,
		Timestamp:        formatTimestamp(l.Timestamp),
		Success:          l.Success,
		ErrorMessage:     l.ErrorMessage,
		NotificationType: string(l.NotificationType),
		MessageContent:   l.MessageContent,
		ProcessingTimeMs: l.ProcessingTimeMs,
		ExpiresAt:        l.ExpiresAt,
	}
}

func itemToNotificationLog(item *notificationLogItem) (*model.NotificationLog, error) {
	ts, err := parseTimestamp("timestamp", item.Timestamp)
	if err != nil {
		return nil, err
	}
	return &model.NotificationLog{
		LogID:            item.LogID,
		GroupID:          item.GroupID,
		StockSymbol:      item.StockSymbol,
		Timestamp:        ts,
		Success:          item.Success,
		ErrorMessage:     item.ErrorMessage,
		NotificationType: model.NotificationType(item.NotificationType),
		MessageContent:   item.MessageContent,
		ProcessingTimeMs: item.ProcessingTimeMs,
		ExpiresAt:        item.ExpiresAt,
	}, nil
}
