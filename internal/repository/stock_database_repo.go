package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/utils"

	goValidator "github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockDatabase persists subscriptions, group settings, user preferences,
// the quote cache and the notification log.
type StockDatabase interface {
	CreateSubscription(ctx context.Context, subscription *model.StockSubscription) error
	GetSubscription(ctx context.Context, groupID, stockSymbol string) (*model.StockSubscription, error)
	ListSubscriptions(ctx context.Context, groupID string) ([]model.StockSubscription, error)
	UpdateSubscription(ctx context.Context, subscription *model.StockSubscription) error
	DeleteSubscription(ctx context.Context, groupID, stockSymbol string) error
	CountSubscriptions(ctx context.Context, groupID string) (int, error)

	CreateGroupConfig(ctx context.Context, config *model.GroupConfig) error
	GetGroupConfig(ctx context.Context, groupID string) (*model.GroupConfig, error)
	UpdateGroupConfig(ctx context.Context, config *model.GroupConfig) error
	ListActiveGroups(ctx context.Context) ([]model.GroupConfig, error)

	CreateUserPreferences(ctx context.Context, preferences *model.StockUserPreferences) error
	GetUserPreferences(ctx context.Context, userID int64) (*model.StockUserPreferences, error)
	UpdateUserPreferences(ctx context.Context, preferences *model.StockUserPreferences) error

	SetCache(ctx context.Context, cache *model.StockCache) error
	GetCache(ctx context.Context, stockSymbol string) (*model.StockCache, error)
	InvalidateCache(ctx context.Context, stockSymbol string) error
	CleanupExpiredCache(ctx context.Context, now time.Time) (int64, error)

	LogNotification(ctx context.Context, log *model.NotificationLog) error
	GetRecentNotifications(ctx context.Context, groupID string, hours int) ([]model.NotificationLog, error)

	HealthCheck(ctx context.Context) error
}

type stockDatabaseRepository struct {
	db        *gorm.DB
	log       *logger.Logger
	validator *goValidator.Validate
	tables    TableNames
}

func NewStockDatabaseRepository(db *gorm.DB, log *logger.Logger, validator *goValidator.Validate, tablePrefix string) StockDatabase {
	return &stockDatabaseRepository{
		db:        db,
		log:       log,
		validator: validator,
		tables:    NewTableNames(tablePrefix),
	}
}

func (r *stockDatabaseRepository) table(ctx context.Context, name string, opts ...utils.DBOption) *gorm.DB {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Table(name)
}

func (r *stockDatabaseRepository) validate(ctx context.Context, v interface{}) error {
	if err := r.validator.StructCtx(ctx, v); err != nil {
		return model.NewDatabaseError(model.DBErrValidation, err, "invalid %T", v)
	}
	return nil
}

// wrapError classifies driver failures. Errors that are already a
// DatabaseError pass through untouched.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *model.DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.NewDatabaseError(model.DBErrNotFound, err, "%s", op)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return model.NewDatabaseError(model.DBErrConflict, err, "%s", op)
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return model.NewDatabaseError(model.DBErrConnection, err, "%s", op)
	default:
		return model.NewDatabaseError(model.DBErrUnknown, err, "%s", op)
	}
}

// insertIfAbsent performs the conditional insert. Zero affected rows means
// the key was taken.
func (r *stockDatabaseRepository) insertIfAbsent(ctx context.Context, table string, row interface{}, what string) error {
	result := r.table(ctx, table).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		r.log.ErrorContext(ctx, "Failed to insert row", logger.StringField("table", table), logger.ErrorField(result.Error))
		return wrapError("insert "+what, result.Error)
	}
	if result.RowsAffected == 0 {
		return model.NewDatabaseError(model.DBErrConflict, nil, "%s already exists", what)
	}
	return nil
}

func (r *stockDatabaseRepository) CreateSubscription(ctx context.Context, subscription *model.StockSubscription) error {
	subscription.StockSymbol = strings.ToUpper(subscription.StockSymbol)
	if err := r.validate(ctx, subscription); err != nil {
		return err
	}

	item, err := subscriptionToItem(subscription)
	if err != nil {
		return err
	}

	return r.insertIfAbsent(ctx, r.tables.Subscriptions, item,
		fmt.Sprintf("subscription %s/%s", subscription.GroupID, subscription.StockSymbol))
}

func (r *stockDatabaseRepository) GetSubscription(ctx context.Context, groupID, stockSymbol string) (*model.StockSubscription, error) {
	var item stockSubscriptionItem
	err := r.table(ctx, r.tables.Subscriptions).
		Where("group_id = ? AND stock_symbol = ?", groupID, strings.ToUpper(stockSymbol)).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.ErrorContext(ctx, "Failed to get subscription", logger.ErrorField(err), logger.StringField("group_id", groupID))
		return nil, wrapError("get subscription", err)
	}
	return itemToSubscription(&item)
}

func (r *stockDatabaseRepository) ListSubscriptions(ctx context.Context, groupID string) ([]model.StockSubscription, error) {
	var items []stockSubscriptionItem
	err := r.table(ctx, r.tables.Subscriptions, utils.WithOrder("stock_symbol")).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Find(&items).Error
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to list subscriptions", logger.ErrorField(err), logger.StringField("group_id", groupID))
		return nil, wrapError("list subscriptions", err)
	}

	subscriptions := make([]model.StockSubscription, 0, len(items))
	for i := range items {
		sub, err := itemToSubscription(&items[i])
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, *sub)
	}
	return subscriptions, nil
}

// UpdateSubscription overwrites the row. Concurrent edits are last-writer-wins.
func (r *stockDatabaseRepository) UpdateSubscription(ctx context.Context, subscription *model.StockSubscription) error {
	subscription.StockSymbol = strings.ToUpper(subscription.StockSymbol)
	if err := r.validate(ctx, subscription); err != nil {
		return err
	}

	item, err := subscriptionToItem(subscription)
	if err != nil {
		return err
	}
	if err := r.table(ctx, r.tables.Subscriptions).Save(item).Error; err != nil {
		r.log.ErrorContext(ctx, "Failed to update subscription", logger.ErrorField(err), logger.StringField("group_id", subscription.GroupID))
		return wrapError("update subscription", err)
	}
	return nil
}

func (r *stockDatabaseRepository) DeleteSubscription(ctx context.Context, groupID, stockSymbol string) error {
	err := r.table(ctx, r.tables.Subscriptions).
		Where("group_id = ? AND stock_symbol = ?", groupID, strings.ToUpper(stockSymbol)).
		Delete(&stockSubscriptionItem{}).Error
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to delete subscription", logger.ErrorField(err), logger.StringField("group_id", groupID))
		return wrapError("delete subscription", err)
	}
	return nil
}

func (r *stockDatabaseRepository) CountSubscriptions(ctx context.Context, groupID string) (int, error) {
	var count int64
	err := r.table(ctx, r.tables.Subscriptions).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Count(&count).Error
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to count subscriptions", logger.ErrorField(err), logger.StringField("group_id", groupID))
		return 0, wrapError("count subscriptions", err)
	}
	return int(count), nil
}

func (r *stockDatabaseRepository) CreateGroupConfig(ctx context.Context, config *model.GroupConfig) error {
	if err := r.validate(ctx, config); err != nil {
		return err
	}

	item, err := groupConfigToItem(config)
	if err != nil {
		return err
	}

	return r.insertIfAbsent(ctx, r.tables.GroupConfig, item, "group config "+config.GroupID)
}

func (r *stockDatabaseRepository) GetGroupConfig(ctx context.Context, groupID string) (*model.GroupConfig, error) {
	var item groupConfigItem
	err := r.table(ctx, r.tables.GroupConfig).Where("group_id = ?", groupID).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.ErrorContext(ctx, "Failed to get group config", logger.ErrorField(err), logger.StringField("group_id", groupID))
		return nil, wrapError("get group config", err)
	}
	return itemToGroupConfig(&item)
}

// UpdateGroupConfig overwrites the row. Concurrent edits are last-writer-wins.
func (r *stockDatabaseRepository) UpdateGroupConfig(ctx context.Context, config *model.GroupConfig) error {
	if err := r.validate(ctx, config); err != nil {
		return err
	}

	item, err := groupConfigToItem(config)
	if err != nil {
		return err
	}
	if err := r.table(ctx, r.tables.GroupConfig).Save(item).Error; err != nil {
		r.log.ErrorContext(ctx, "Failed to update group config", logger.ErrorField(err), logger.StringField("group_id", config.GroupID))
		return wrapError("update group config", err)
	}
	return nil
}

func (r *stockDatabaseRepository) ListActiveGroups(ctx context.Context) ([]model.GroupConfig, error) {
	var items []groupConfigItem
	if err := r.table(ctx, r.tables.GroupConfig).Where("is_active = ?", true).Order("group_id").Find(&items).Error; err != nil {
		r.log.ErrorContext(ctx, "Failed to list active groups", logger.ErrorField(err))
		return nil, wrapError("list active groups", err)
	}

	groups := make([]model.GroupConfig, 0, len(items))
	for i := range items {
		group, err := itemToGroupConfig(&items[i])
		if err != nil {
			return nil, err
		}
		groups = append(groups, *group)
	}
	return groups, nil
}

func (r *stockDatabaseRepository) CreateUserPreferences(ctx context.Context, preferences *model.StockUserPreferences) error {
	if err := r.validate(ctx, preferences); err != nil {
		return err
	}

	item, err := userPreferencesToItem(preferences)
	if err != nil {
		return err
	}

	return r.insertIfAbsent(ctx, r.tables.UserPreferences, item, fmt.Sprintf("user preferences %d", preferences.UserID))
}

func (r *stockDatabaseRepository) GetUserPreferences(ctx context.Context, userID int64) (*model.StockUserPreferences, error) {
	var item userPreferencesItem
	err := r.table(ctx, r.tables.UserPreferences).Where("user_id = ?", userID).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.ErrorContext(ctx, "Failed to get user preferences", logger.ErrorField(err), logger.Int64Field("user_id", userID))
		return nil, wrapError("get user preferences", err)
	}
	return itemToUserPreferences(&item)
}

func (r *stockDatabaseRepository) UpdateUserPreferences(ctx context.Context, preferences *model.StockUserPreferences) error {
	if err := r.validate(ctx, preferences); err != nil {
		return err
	}

	item, err := userPreferencesToItem(preferences)
	if err != nil {
		return err
	}
	if err := r.table(ctx, r.tables.UserPreferences).Save(item).Error; err != nil {
		r.log.ErrorContext(ctx, "Failed to update user preferences", logger.ErrorField(err), logger.Int64Field("user_id", preferences.UserID))
		return wrapError("update user preferences", err)
	}
	return nil
}

// SetCache upserts the entry. An existing entry keeps counting its version
// up; cache.CacheVersion is updated to the stored value.
func (r *stockDatabaseRepository) SetCache(ctx context.Context, cache *model.StockCache) error {
	cache.StockSymbol = strings.ToUpper(cache.StockSymbol)
	item := stockCacheToItem(cache)
	table := r.tables.StockCache

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{
			Columns: []clause.Column{{Name: "stock_symbol"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quote_data":    item.QuoteData,
				"news_data":     item.NewsData,
				"cached_at":     item.CachedAt,
				"expires_at":    item.ExpiresAt,
				"provider":      item.Provider,
				"cache_version": gorm.Expr(table + ".cache_version + 1"),
			}),
		}
		if err := tx.Table(table).Clauses(upsert).Create(item).Error; err != nil {
			return err
		}

		var version int
		if err := tx.Table(table).Select("cache_version").Where("stock_symbol = ?", item.StockSymbol).Scan(&version).Error; err != nil {
			return err
		}
		cache.CacheVersion = version
		return nil
	})
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to set cache", logger.ErrorField(err), logger.StringField("symbol", cache.StockSymbol))
		return wrapError("set cache", err)
	}
	return nil
}

// GetCache returns nil for missing and expired entries alike.
func (r *stockDatabaseRepository) GetCache(ctx context.Context, stockSymbol string) (*model.StockCache, error) {
	var item stockCacheItem
	err := r.table(ctx, r.tables.StockCache).Where("stock_symbol = ?", strings.ToUpper(stockSymbol)).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.ErrorContext(ctx, "Failed to get cache", logger.ErrorField(err), logger.StringField("symbol", stockSymbol))
		return nil, wrapError("get cache", err)
	}

	cache, err := itemToStockCache(&item)
	if err != nil {
		return nil, err
	}
	if cache.IsExpired() {
		return nil, nil
	}
	return cache, nil
}

func (r *stockDatabaseRepository) InvalidateCache(ctx context.Context, stockSymbol string) error {
	err := r.table(ctx, r.tables.StockCache).
		Where("stock_symbol = ?", strings.ToUpper(stockSymbol)).
		Delete(&stockCacheItem{}).Error
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to invalidate cache", logger.ErrorField(err), logger.StringField("symbol", stockSymbol))
		return wrapError("invalidate cache", err)
	}
	return nil
}

// CleanupExpiredCache deletes cache rows and notification logs whose TTL
// has passed and returns how many rows went away.
func (r *stockDatabaseRepository) CleanupExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := r.table(ctx, r.tables.StockCache, utils.WithTx(tx)).Where("expires_at <= ?", now.Unix()).Delete(&stockCacheItem{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		res = r.table(ctx, r.tables.NotificationLog, utils.WithTx(tx)).Where("expires_at <= ?", now.Unix()).Delete(&notificationLogItem{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		return nil
	})
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to clean up expired rows", logger.ErrorField(err))
		return 0, wrapError("cleanup expired", err)
	}
	return removed, nil
}

func (r *stockDatabaseRepository) LogNotification(ctx context.Context, log *model.NotificationLog) error {
	if err := r.table(ctx, r.tables.NotificationLog).Create(notificationLogToItem(log)).Error; err != nil {
		r.log.ErrorContext(ctx, "Failed to log notification", logger.ErrorField(err), logger.StringField("group_id", log.GroupID))
		return wrapError("log notification", err)
	}
	return nil
}

// GetRecentNotifications lists the group's logs from the last hours, newest first.
func (r *stockDatabaseRepository) GetRecentNotifications(ctx context.Context, groupID string, hours int) ([]model.NotificationLog, error) {
	since := formatTimestamp(time.Now().Add(-time.Duration(hours) * time.Hour))

	var items []notificationLogItem
	err := r.table(ctx, r.tables.NotificationLog, utils.WithOrder("logged_at DESC")).
		Where("group_id = ? AND logged_at >= ?", groupID, since).
		Find(&items).Error
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to get recent notifications", logger.ErrorField(err), logger.StringField("group_id", groupID))
		return nil, wrapError("get recent notifications", err)
	}

	logs := make([]model.NotificationLog, 0, len(items))
	for i := range items {
		l, err := itemToNotificationLog(&items[i])
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, nil
}

func (r *stockDatabaseRepository) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return model.NewDatabaseError(model.DBErrConnection, err, "get sql.DB")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return model.NewDatabaseError(model.DBErrConnection, err, "ping")
	}
	return nil
}
