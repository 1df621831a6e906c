package service

import (
	"fmt"

	"golang-stockbot/config"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/cache"
	"golang-stockbot/pkg/logger"
)

type Service struct {
	StockService        StockService
	AIService           AIService
	SubscriptionService SubscriptionService
	NotificationService NotificationService
	SchedulerService    SchedulerService
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	inmemoryCache cache.Cache,
	sender MessageSender,
) (*Service, error) {
	stockService, err := NewStockService(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create stock service: %w", err)
	}

	aiService := NewAIService(cfg, log, inmemoryCache, repo.ChatPreferenceRepo, nil)
	subscriptionService := NewSubscriptionService(log, repo.StockDatabase, stockService)
	notificationService := NewNotificationService(cfg, log, repo.StockDatabase, stockService, aiService, sender)
	schedulerService := NewSchedulerService(cfg, log, repo.StockDatabase, notificationService)

	return &Service{
		StockService:        stockService,
		AIService:           aiService,
		SubscriptionService: subscriptionService,
		NotificationService: notificationService,
		SchedulerService:    schedulerService,
	}, nil
}
