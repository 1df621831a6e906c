package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/cache"
	"golang-stockbot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notificationFixture struct {
	db       repository.StockDatabase
	provider *fakeProvider
	backend  *fakeBackend
	sender   *fakeSender
	svc      NotificationService
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()

	f := &notificationFixture{
		db:       newTestDatabase(t),
		provider: &fakeProvider{prices: map[string]float64{"AAPL": 190, "MSFT": 400}},
		backend:  &fakeBackend{name: "fake", reply: "Tech rallied."},
		sender:   &fakeSender{},
	}

	cfg := testConfig()
	stock := NewStockServiceWithProvider(f.provider, logger.NewNop())
	ai := NewAIService(cfg, logger.NewNop(), cache.NewCache(time.Minute, time.Minute), newFakePreferenceRepo(), backendFactory(f.backend, nil))
	f.svc = NewNotificationService(cfg, logger.NewNop(), f.db, stock, ai, f.sender)
	return f
}

// seedGroup creates a UTC group notified at clock, following AAPL at the group
// time and MSFT at msftClock.
func (f *notificationFixture) seedGroup(t *testing.T, groupID, clock, msftClock string) {
	t.Helper()
	ctx := context.Background()

	groupTitle := "Traders"
	group := model.NewGroupConfig(groupID, &groupTitle, 7)
	group.Timezone = "UTC"
	group.DefaultNotificationTime = clock
	require.NoError(t, f.db.CreateGroupConfig(ctx, group))

	require.NoError(t, f.db.CreateSubscription(ctx, model.NewStockSubscription(groupID, "AAPL", 7)))

	msft := model.NewStockSubscription(groupID, "MSFT", 7)
	msft.Settings = &model.SubscriptionSettings{NotificationTime: &msftClock}
	require.NoError(t, f.db.CreateSubscription(ctx, msft))
}

func TestNotificationService_DispatchDue(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)

	now := time.Now().UTC()
	later := now.Add(time.Hour)
	f.seedGroup(t, "-100", now.Format("15:04"), later.Format("15:04"))

	result, err := f.svc.DispatchDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{GroupsChecked: 1, Sent: 1}, result)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(-100), sent[0].chatID)
	assert.Contains(t, sent[0].text, "Daily Stock Update for Traders")
	assert.Contains(t, sent[0].text, "AAPL $190.00")
	assert.NotContains(t, sent[0].text, "MSFT")
	assert.Contains(t, sent[0].text, "🤖 AI Summary\nTech rallied.")
	require.Len(t, f.backend.messages, 1)
	assert.Contains(t, f.backend.messages[0], "- AAPL: price 190.00")

	logs, err := f.db.GetRecentNotifications(ctx, "-100", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "AAPL", logs[0].StockSymbol)

	cached, err := f.db.GetCache(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Fake Market", cached.Provider)

	// same minute again is a no-op
	result, err = f.svc.DispatchDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Len(t, f.sender.messages(), 1)

	result, err = f.svc.DispatchDue(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	sent = f.sender.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].text, "MSFT $400.00")
	assert.NotContains(t, sent[1].text, "AAPL")
}

func TestNotificationService_NothingDue(t *testing.T) {
	f := newNotificationFixture(t)
	now := time.Now().UTC()
	f.seedGroup(t, "-100", now.Add(2*time.Hour).Format("15:04"), now.Add(3*time.Hour).Format("15:04"))

	result, err := f.svc.DispatchDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{GroupsChecked: 1}, result)
	assert.Empty(t, f.sender.messages())
	assert.Empty(t, f.provider.quoted())
}

func TestNotificationService_AIFailureStillSends(t *testing.T) {
	f := newNotificationFixture(t)
	f.backend.err = errors.New("model overloaded")
	now := time.Now().UTC()
	f.seedGroup(t, "-100", now.Format("15:04"), now.Format("15:04"))

	result, err := f.svc.DispatchDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].text, "AAPL")
	assert.Contains(t, sent[0].text, "MSFT")
	assert.NotContains(t, sent[0].text, "AI Summary")
}

func TestNotificationService_SendFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	f.sender.err = errors.New("chat not found")
	now := time.Now().UTC()
	f.seedGroup(t, "-100", now.Format("15:04"), now.Format("15:04"))

	result, err := f.svc.DispatchDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{GroupsChecked: 1, Failed: 1}, result)

	logs, err := f.db.GetRecentNotifications(ctx, "-100", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Equal(t, "chat not found", *logs[0].ErrorMessage)
}

func TestNotificationService_CachedQuotes(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)

	quotes, missing, err := f.svc.CachedQuotes(ctx, []string{"MSFT", "ZZZZ", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ZZZZ"}, missing)
	require.Len(t, quotes, 2)
	assert.Equal(t, "MSFT", quotes[0].Symbol)
	assert.Equal(t, "AAPL", quotes[1].Symbol)

	calls := len(f.provider.quoted())
	quotes, _, err = f.svc.CachedQuotes(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Len(t, f.provider.quoted(), calls, "fresh cache rows are not refetched")

	_, missing, err = f.svc.CachedQuotes(ctx, []string{"NOPE"})
	assert.ErrorIs(t, err, model.ErrSymbolNotFound)
	assert.Equal(t, []string{"NOPE"}, missing)
}

func TestDueSymbols(t *testing.T) {
	group := model.GroupConfig{DefaultNotificationTime: "10:00"}
	at := "09:15"
	subs := []model.StockSubscription{
		{StockSymbol: "AAPL"},
		{StockSymbol: "MSFT", Settings: &model.SubscriptionSettings{NotificationTime: &at}},
	}

	assert.Equal(t, []string{"AAPL"}, dueSymbols(group, subs, "10:00"))
	assert.Equal(t, []string{"MSFT"}, dueSymbols(group, subs, "09:15"))
	assert.Empty(t, dueSymbols(group, subs, "12:00"))
}

func TestSchedulerService_Execute(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	now := time.Now().UTC()
	f.seedGroup(t, "-100", now.Format("15:04"), now.Add(time.Hour).Format("15:04"))

	stale := model.NewStockCache("OLD", "{}", "[]", "Fake Market", 1)
	stale.ExpiresAt = now.Add(-time.Hour).Unix()
	require.NoError(t, f.db.SetCache(ctx, stale))

	scheduler := NewSchedulerService(testConfig(), logger.NewNop(), f.db, f.svc)
	scheduler.(*schedulerService).now = func() time.Time { return now }

	result, err := scheduler.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	removed, err := f.db.CleanupExpiredCache(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, removed, "the tick already removed the stale row")
}

func TestSchedulerService_SkipsOverlappingTick(t *testing.T) {
	f := newNotificationFixture(t)
	now := time.Now().UTC()
	f.seedGroup(t, "-100", now.Format("15:04"), now.Format("15:04"))

	scheduler := NewSchedulerService(testConfig(), logger.NewNop(), f.db, f.svc).(*schedulerService)
	scheduler.now = func() time.Time { return now }
	scheduler.semaphore <- struct{}{}

	result, err := scheduler.Execute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.GroupsChecked)
	assert.Empty(t, f.sender.messages())
}

func TestSchedulerService_StartValidatesCron(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.NotificationCron = "every minute"
	f := newNotificationFixture(t)

	scheduler := NewSchedulerService(cfg, logger.NewNop(), f.db, f.svc)
	err := scheduler.Start(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cron"))

	cfg.Scheduler.NotificationCron = "@every 1h"
	scheduler = NewSchedulerService(cfg, logger.NewNop(), f.db, f.svc)
	require.NoError(t, scheduler.Start(context.Background()))
	scheduler.Stop()
}
