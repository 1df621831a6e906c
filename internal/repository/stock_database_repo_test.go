package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	"github.com/glebarez/sqlite"
	goValidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestStockDatabase(t *testing.T) StockDatabase {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "stock.db")), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db, "test"))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return NewStockDatabaseRepository(db, logger.NewNop(), goValidator.New(), "test")
}

func TestNewTableNames(t *testing.T) {
	assert.Equal(t, "stockbot_stock_cache", NewTableNames("stockbot").StockCache)
	assert.Equal(t, "group_config", NewTableNames("").GroupConfig)
}

func TestStockDatabase_SubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	sub := model.NewStockSubscription("-100", "aapl", 7)
	require.NoError(t, repo.CreateSubscription(ctx, sub))

	err := repo.CreateSubscription(ctx, model.NewStockSubscription("-100", "AAPL", 8))
	assert.ErrorIs(t, err, model.ErrDBConflict)

	got, err := repo.GetSubscription(ctx, "-100", "aapl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.StockSymbol)
	assert.Equal(t, int64(7), got.CreatedByUserID)
	assert.Nil(t, got.Settings)
	assert.True(t, sub.CreatedAt.Equal(got.CreatedAt))

	missing, err := repo.GetSubscription(ctx, "-100", "MSFT")
	require.NoError(t, err)
	assert.Nil(t, missing)

	at := "08:15"
	got.Settings = &model.SubscriptionSettings{NotificationTime: &at, IncludeAISummary: true}
	got.Touch()
	require.NoError(t, repo.UpdateSubscription(ctx, got))

	updated, err := repo.GetSubscription(ctx, "-100", "AAPL")
	require.NoError(t, err)
	notifyAt, ok := updated.NotificationTime()
	assert.True(t, ok)
	assert.Equal(t, "08:15", notifyAt)
	assert.True(t, updated.Settings.IncludeAISummary)

	require.NoError(t, repo.DeleteSubscription(ctx, "-100", "AAPL"))
	gone, err := repo.GetSubscription(ctx, "-100", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// deleting twice is fine
	assert.NoError(t, repo.DeleteSubscription(ctx, "-100", "AAPL"))
}

func TestStockDatabase_ListAndCountOnlyActive(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	for _, symbol := range []string{"MSFT", "AAPL", "TSLA"} {
		require.NoError(t, repo.CreateSubscription(ctx, model.NewStockSubscription("-100", symbol, 1)))
	}
	require.NoError(t, repo.CreateSubscription(ctx, model.NewStockSubscription("-200", "NVDA", 1)))

	paused := model.NewStockSubscription("-100", "AMZN", 1)
	paused.IsActive = false
	require.NoError(t, repo.CreateSubscription(ctx, paused))

	subs, err := repo.ListSubscriptions(ctx, "-100")
	require.NoError(t, err)
	symbols := make([]string, 0, len(subs))
	for _, s := range subs {
		symbols = append(symbols, s.StockSymbol)
	}
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, symbols)

	count, err := repo.CountSubscriptions(ctx, "-100")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	empty, err := repo.ListSubscriptions(ctx, "-999")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStockDatabase_GroupConfig(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	title := "Traders"
	cfg := model.NewGroupConfig("-100", &title, 42)
	require.NoError(t, repo.CreateGroupConfig(ctx, cfg))
	assert.ErrorIs(t, repo.CreateGroupConfig(ctx, model.NewGroupConfig("-100", nil, 1)), model.ErrDBConflict)

	got, err := repo.GetGroupConfig(ctx, "-100")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []int64{42}, got.AdminUserIDs)
	require.NotNil(t, got.GroupTitle)
	assert.Equal(t, "Traders", *got.GroupTitle)
	assert.NotNil(t, got.Settings)
	assert.Equal(t, model.DefaultTimezone, got.Timezone)

	got.AddAdmin(7)
	got.AddAdmin(7)
	got.Settings["language"] = "en"
	require.NoError(t, repo.UpdateGroupConfig(ctx, got))

	reloaded, err := repo.GetGroupConfig(ctx, "-100")
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 7}, reloaded.AdminUserIDs)
	assert.Equal(t, "en", reloaded.Settings["language"])

	inactive := model.NewGroupConfig("-200", nil, 1)
	inactive.IsActive = false
	require.NoError(t, repo.CreateGroupConfig(ctx, inactive))

	groups, err := repo.ListActiveGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "-100", groups[0].GroupID)

	missing, err := repo.GetGroupConfig(ctx, "-300")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStockDatabase_GroupConfigValidation(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	cfg := model.NewGroupConfig("-100", nil, 1)
	cfg.Timezone = "Mars/Olympus_Mons"
	assert.ErrorIs(t, repo.CreateGroupConfig(ctx, cfg), model.ErrDBValidation)

	cfg = model.NewGroupConfig("-100", nil, 1)
	cfg.DefaultNotificationTime = "25:99"
	assert.ErrorIs(t, repo.CreateGroupConfig(ctx, cfg), model.ErrDBValidation)
}

func TestStockDatabase_UserPreferences(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	name := "alice"
	prefs := model.NewStockUserPreferences(99, &name)
	require.NoError(t, repo.CreateUserPreferences(ctx, prefs))
	assert.ErrorIs(t, repo.CreateUserPreferences(ctx, model.NewStockUserPreferences(99, nil)), model.ErrDBConflict)

	got, err := repo.GetUserPreferences(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", *got.Username)
	assert.Nil(t, got.PreferredAIModel)
	assert.False(t, got.PrivateNotificationsEnabled)

	aiModel := "gpt-4o-mini"
	got.PreferredAIModel = &aiModel
	got.PrivateNotificationsEnabled = true
	require.NoError(t, repo.UpdateUserPreferences(ctx, got))

	reloaded, err := repo.GetUserPreferences(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", *reloaded.PreferredAIModel)
	assert.True(t, reloaded.PrivateNotificationsEnabled)

	missing, err := repo.GetUserPreferences(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStockDatabase_CacheVersionAndExpiry(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	entry := model.NewStockCache("aapl", `{"price":1}`, "[]", "alpha_vantage", 24)
	require.NoError(t, repo.SetCache(ctx, entry))
	assert.Equal(t, 1, entry.CacheVersion)

	second := model.NewStockCache("AAPL", `{"price":2}`, "[]", "alpha_vantage", 24)
	require.NoError(t, repo.SetCache(ctx, second))
	assert.Equal(t, 2, second.CacheVersion)

	got, err := repo.GetCache(ctx, "aapl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"price":2}`, got.QuoteData)
	assert.Equal(t, 2, got.CacheVersion)

	stale := model.NewStockCache("MSFT", "{}", "[]", "alpha_vantage", 0)
	require.NoError(t, repo.SetCache(ctx, stale))
	expired, err := repo.GetCache(ctx, "MSFT")
	require.NoError(t, err)
	assert.Nil(t, expired)

	removed, err := repo.CleanupExpiredCache(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, repo.InvalidateCache(ctx, "AAPL"))
	gone, err := repo.GetCache(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStockDatabase_RecentNotifications(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	old := model.NewNotificationLog("-100", "AAPL", model.NotificationTypeDailyUpdate, "old", 0)
	old.Timestamp = old.Timestamp.Add(-48 * time.Hour)
	require.NoError(t, repo.LogNotification(ctx, old))

	first := model.NewNotificationLog("-100", "AAPL", model.NotificationTypeDailyUpdate, "first", 120*time.Millisecond)
	first.Timestamp = first.Timestamp.Add(-time.Hour)
	require.NoError(t, repo.LogNotification(ctx, first))

	failed := model.NewNotificationLog("-100", "MSFT", model.NotificationTypeDailyUpdate, "second", 0).WithError("blocked")
	require.NoError(t, repo.LogNotification(ctx, failed))

	require.NoError(t, repo.LogNotification(ctx, model.NewNotificationLog("-200", "AAPL", model.NotificationTypeDailyUpdate, "other", 0)))

	logs, err := repo.GetRecentNotifications(ctx, "-100", 24)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].MessageContent)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "blocked", *logs[0].ErrorMessage)
	assert.Equal(t, "first", logs[1].MessageContent)
	assert.Equal(t, int64(120), logs[1].ProcessingTimeMs)
	assert.Nil(t, logs[1].ErrorMessage)
}

func TestStockDatabase_HealthCheck(t *testing.T) {
	repo := newTestStockDatabase(t)
	assert.NoError(t, repo.HealthCheck(context.Background()))
}

func TestTimestampLayoutSortsLexically(t *testing.T) {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := formatTimestamp(base)
	b := formatTimestamp(base.Add(500 * time.Millisecond))
	c := formatTimestamp(base.Add(time.Second))

	assert.Less(t, a, b)
	assert.Less(t, b, c)

	parsed, err := parseTimestamp("ts", b)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(base.Add(500*time.Millisecond)))

	_, err = parseTimestamp("ts", "yesterday")
	assert.ErrorIs(t, err, model.ErrDBSerialization)
}

func TestItemConversionKeepsAbsentOptionals(t *testing.T) {
	sub := model.NewStockSubscription("-1", "AAPL", 1)
	item, err := subscriptionToItem(sub)
	require.NoError(t, err)
	assert.Nil(t, item.Settings)

	cfg := model.NewGroupConfig("-1", nil, 1)
	cfgItem, err := groupConfigToItem(cfg)
	require.NoError(t, err)
	assert.Nil(t, cfgItem.Settings)
	assert.Nil(t, cfgItem.GroupTitle)
	assert.JSONEq(t, "[1]", string(cfgItem.AdminUserIDs))

	bad := "{not json"
	cfgItem.Settings = &bad
	_, err = itemToGroupConfig(cfgItem)
	assert.ErrorIs(t, err, model.ErrDBSerialization)
}

func TestStockDatabase_SubscriptionRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 15, 123456789, time.UTC)
	at := "08:15"

	tests := []struct {
		name string
		sub  model.StockSubscription
	}{
		{name: "no settings", sub: model.StockSubscription{
			GroupID: "-100", StockSymbol: "AAPL", CreatedAt: created, UpdatedAt: created, IsActive: true, CreatedByUserID: 7,
		}},
		{name: "settings without optionals", sub: model.StockSubscription{
			GroupID: "-100", StockSymbol: "MSFT", CreatedAt: created, UpdatedAt: created.Add(time.Hour), IsActive: false, CreatedByUserID: 8,
			Settings: &model.SubscriptionSettings{},
		}},
		{name: "all settings", sub: model.StockSubscription{
			GroupID: "-200", StockSymbol: "TSLA", CreatedAt: created, UpdatedAt: created, IsActive: true, CreatedByUserID: 9,
			Settings: &model.SubscriptionSettings{
				NotificationTime: &at,
				IncludeAISummary: true,
				Metadata:         map[string]string{"source": "web", "note": "earnings week"},
			},
		}},
	}

	ctx := context.Background()
	repo := newTestStockDatabase(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.sub
			require.NoError(t, repo.CreateSubscription(ctx, &original))

			reloaded, err := repo.GetSubscription(ctx, original.GroupID, original.StockSymbol)
			require.NoError(t, err)
			require.NotNil(t, reloaded)
			assert.Equal(t, tt.sub, *reloaded)
		})
	}
}

func TestStockDatabase_GroupConfigRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 15, 5, time.UTC)
	title := "Traders"

	tests := []struct {
		name string
		cfg  model.GroupConfig
	}{
		{name: "optionals absent", cfg: model.GroupConfig{
			GroupID: "-100", MaxSubscriptions: 10, DefaultNotificationTime: "10:00", Timezone: "Asia/Shanghai",
			AISummariesEnabled: true, AdminUserIDs: []int64{}, CreatedAt: created, UpdatedAt: created, IsActive: true,
			Settings: map[string]string{},
		}},
		{name: "optionals set", cfg: model.GroupConfig{
			GroupID: "-200", GroupTitle: &title, MaxSubscriptions: 3, DefaultNotificationTime: "16:45", Timezone: "America/New_York",
			AISummariesEnabled: false, AdminUserIDs: []int64{42, 7, 9007199254740993}, CreatedAt: created, UpdatedAt: created.Add(time.Minute),
			IsActive: false, Settings: map[string]string{"language": "en"},
		}},
	}

	ctx := context.Background()
	repo := newTestStockDatabase(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.cfg
			require.NoError(t, repo.CreateGroupConfig(ctx, &original))

			reloaded, err := repo.GetGroupConfig(ctx, original.GroupID)
			require.NoError(t, err)
			require.NotNil(t, reloaded)
			assert.Equal(t, tt.cfg, *reloaded)
		})
	}
}

func TestStockDatabase_UserPreferencesRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)
	name := "alice"
	aiModel := "claude-sonnet-4-0"

	tests := []struct {
		name  string
		prefs model.StockUserPreferences
	}{
		{name: "optionals absent", prefs: model.StockUserPreferences{
			UserID: 1, Timezone: "Asia/Shanghai", CreatedAt: created, UpdatedAt: created, Settings: map[string]string{},
		}},
		{name: "optionals set", prefs: model.StockUserPreferences{
			UserID: 2, Username: &name, Timezone: "Europe/London", PrivateNotificationsEnabled: true, PreferredAIModel: &aiModel,
			CreatedAt: created, UpdatedAt: created.Add(time.Second), Settings: map[string]string{"digest": "weekly"},
		}},
	}

	ctx := context.Background()
	repo := newTestStockDatabase(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.prefs
			require.NoError(t, repo.CreateUserPreferences(ctx, &original))

			reloaded, err := repo.GetUserPreferences(ctx, original.UserID)
			require.NoError(t, err)
			require.NotNil(t, reloaded)
			assert.Equal(t, tt.prefs, *reloaded)
		})
	}
}

func TestStockDatabase_StockCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	cachedAt := time.Now().UTC()
	tests := []struct {
		name  string
		entry model.StockCache
	}{
		{name: "quote only", entry: model.StockCache{
			StockSymbol: "AAPL", QuoteData: `{"symbol":"AAPL","price":190.5}`, CachedAt: cachedAt,
			ExpiresAt: cachedAt.Unix() + 3600, Provider: "alpha_vantage", CacheVersion: 1,
		}},
		{name: "quote and news", entry: model.StockCache{
			StockSymbol: "MSFT", QuoteData: `{"symbol":"MSFT"}`, NewsData: `[{"title":"Earnings"}]`, CachedAt: cachedAt,
			ExpiresAt: cachedAt.Unix() + 86400, Provider: "finnhub", CacheVersion: 1,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.entry
			require.NoError(t, repo.SetCache(ctx, &original))

			reloaded, err := repo.GetCache(ctx, original.StockSymbol)
			require.NoError(t, err)
			require.NotNil(t, reloaded)
			assert.Equal(t, tt.entry, *reloaded)
		})
	}
}

func TestStockDatabase_NotificationLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestStockDatabase(t)

	sent := model.NewNotificationLog("-100", "AAPL", model.NotificationTypeDailyUpdate, "📈 AAPL $190.50", 250*time.Millisecond)
	sent.Timestamp = sent.Timestamp.Add(-time.Minute)
	failed := model.NewNotificationLog("-200", "MSFT", model.NotificationTypeDailyUpdate, "📉 MSFT $400.00", 0).WithError("bot was kicked")

	for _, original := range []*model.NotificationLog{sent, failed} {
		want := *original
		require.NoError(t, repo.LogNotification(ctx, original))

		logs, err := repo.GetRecentNotifications(ctx, original.GroupID, 1)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, want, logs[0])
	}
}
