package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang-stockbot/internal/model"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/utils"
)

// SubscriptionService manages the symbols a group follows and the group's
// notification settings.
type SubscriptionService interface {
	Subscribe(ctx context.Context, groupID string, groupTitle *string, userID int64, symbol string) (*model.StockSubscription, error)
	Unsubscribe(ctx context.Context, groupID, symbol string) error
	ListSubscriptions(ctx context.Context, groupID string) ([]model.StockSubscription, error)
	// EnsureGroupConfig returns the group's config, creating it with userID
	// as the first admin when missing.
	EnsureGroupConfig(ctx context.Context, groupID string, groupTitle *string, userID int64) (*model.GroupConfig, error)
	SetNotificationTime(ctx context.Context, groupID string, userID int64, clock string) (*model.GroupConfig, error)
	SetTimezone(ctx context.Context, groupID string, userID int64, timezone string) (*model.GroupConfig, error)
	// RegisterUser stores default preferences for a user seen for the first time.
	RegisterUser(ctx context.Context, userID int64, username string) (*model.StockUserPreferences, error)
}

type subscriptionService struct {
	log          *logger.Logger
	db           repository.StockDatabase
	stockService StockService
}

func NewSubscriptionService(log *logger.Logger, db repository.StockDatabase, stockService StockService) SubscriptionService {
	return &subscriptionService{
		log:          log,
		db:           db,
		stockService: stockService,
	}
}

func (s *subscriptionService) EnsureGroupConfig(ctx context.Context, groupID string, groupTitle *string, userID int64) (*model.GroupConfig, error) {
	cfg, err := s.db.GetGroupConfig(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group config: %w", err)
	}
	if cfg != nil {
		return cfg, nil
	}

	cfg = model.NewGroupConfig(groupID, groupTitle, userID)
	err = s.db.CreateGroupConfig(ctx, cfg)
	if errors.Is(err, model.ErrDBConflict) {
		// another handler created it first
		return s.db.GetGroupConfig(ctx, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create group config: %w", err)
	}

	s.log.InfoContext(ctx, "Group config created", logger.StringField("group_id", groupID), logger.Int64Field("admin", userID))
	return cfg, nil
}

func (s *subscriptionService) Subscribe(ctx context.Context, groupID string, groupTitle *string, userID int64, symbol string) (*model.StockSubscription, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	cfg, err := s.EnsureGroupConfig(ctx, groupID, groupTitle, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.db.GetSubscription(ctx, groupID, sym)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if existing != nil && existing.IsActive {
		return nil, model.ErrAlreadySubscribed
	}

	count, err := s.db.CountSubscriptions(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	if count >= cfg.MaxSubscriptions {
		return nil, fmt.Errorf("%w: %d of %d", model.ErrSubscriptionLimit, count, cfg.MaxSubscriptions)
	}

	valid, err := s.stockService.ValidateSymbol(ctx, sym)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, model.NewStockError(model.StockErrSymbolNotFound, "%s", sym)
	}

	if existing != nil {
		existing.IsActive = true
		existing.CreatedByUserID = userID
		existing.Touch()
		if err := s.db.UpdateSubscription(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
		}
		return existing, nil
	}

	sub := model.NewStockSubscription(groupID, sym, userID)
	err = s.db.CreateSubscription(ctx, sub)
	if errors.Is(err, model.ErrDBConflict) {
		return nil, model.ErrAlreadySubscribed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.log.InfoContext(ctx, "Subscription created",
		logger.StringField("group_id", groupID),
		logger.StringField("symbol", sym),
		logger.Int64Field("user_id", userID),
	)
	return sub, nil
}

func (s *subscriptionService) Unsubscribe(ctx context.Context, groupID, symbol string) error {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}

	existing, err := s.db.GetSubscription(ctx, groupID, sym)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if existing == nil || !existing.IsActive {
		return model.ErrNotSubscribed
	}

	if err := s.db.DeleteSubscription(ctx, groupID, sym); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	s.log.InfoContext(ctx, "Subscription deleted", logger.StringField("group_id", groupID), logger.StringField("symbol", sym))
	return nil
}

func (s *subscriptionService) ListSubscriptions(ctx context.Context, groupID string) ([]model.StockSubscription, error) {
	return s.db.ListSubscriptions(ctx, groupID)
}

func (s *subscriptionService) updateAsAdmin(ctx context.Context, groupID string, userID int64, apply func(cfg *model.GroupConfig)) (*model.GroupConfig, error) {
	cfg, err := s.EnsureGroupConfig(ctx, groupID, nil, userID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsAdmin(userID) {
		return nil, model.ErrNotGroupAdmin
	}

	apply(cfg)
	cfg.Touch()
	if err := s.db.UpdateGroupConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to update group config: %w", err)
	}
	return cfg, nil
}

func (s *subscriptionService) SetNotificationTime(ctx context.Context, groupID string, userID int64, clock string) (*model.GroupConfig, error) {
	normalized, err := utils.ParseClock(strings.TrimSpace(clock))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidSetting, err)
	}
	return s.updateAsAdmin(ctx, groupID, userID, func(cfg *model.GroupConfig) {
		cfg.DefaultNotificationTime = normalized
	})
}

func (s *subscriptionService) SetTimezone(ctx context.Context, groupID string, userID int64, timezone string) (*model.GroupConfig, error) {
	timezone = strings.TrimSpace(timezone)
	if _, err := utils.LoadLocation(timezone); err != nil || timezone == "" {
		return nil, fmt.Errorf("%w: unknown timezone %q", model.ErrInvalidSetting, timezone)
	}
	return s.updateAsAdmin(ctx, groupID, userID, func(cfg *model.GroupConfig) {
		cfg.Timezone = timezone
	})
}

func (s *subscriptionService) RegisterUser(ctx context.Context, userID int64, username string) (*model.StockUserPreferences, error) {
	prefs, err := s.db.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user preferences: %w", err)
	}

	var name *string
	if username != "" {
		name = &username
	}

	if prefs != nil {
		if name != nil && (prefs.Username == nil || *prefs.Username != username) {
			prefs.Username = name
			prefs.Touch()
			if err := s.db.UpdateUserPreferences(ctx, prefs); err != nil {
				return nil, fmt.Errorf("failed to update user preferences: %w", err)
			}
		}
		return prefs, nil
	}

	prefs = model.NewStockUserPreferences(userID, name)
	err = s.db.CreateUserPreferences(ctx, prefs)
	if errors.Is(err, model.ErrDBConflict) {
		return s.db.GetUserPreferences(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user preferences: %w", err)
	}
	return prefs, nil
}
