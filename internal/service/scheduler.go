package service

import (
	"context"
	"fmt"
	"time"

	"golang-stockbot/config"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/utils"

	"github.com/robfig/cron/v3"
)

// SchedulerService runs the notification tick. Start drives it from the
// configured cron spec; Execute runs a single tick and can be called from
// outside, e.g. by an HTTP trigger when no long-running process exists.
type SchedulerService interface {
	Execute(ctx context.Context) (DispatchResult, error)
	Start(ctx context.Context) error
	Stop()
}

type schedulerService struct {
	cfg                 *config.Config
	log                 *logger.Logger
	cronParser          cron.Parser
	cron                *cron.Cron
	db                  repository.StockDatabase
	notificationService NotificationService
	semaphore           chan struct{}
	now                 func() time.Time
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	db repository.StockDatabase,
	notificationService NotificationService,
) SchedulerService {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &schedulerService{
		cfg:                 cfg,
		log:                 log,
		cronParser:          parser,
		cron:                cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		db:                  db,
		notificationService: notificationService,
		semaphore:           make(chan struct{}, 1),
		now:                 time.Now,
	}
}

func (s *schedulerService) Execute(ctx context.Context) (DispatchResult, error) {
	select {
	case s.semaphore <- struct{}{}:
	default:
		s.log.WarnContext(ctx, "Previous tick still running, skipping")
		return DispatchResult{}, nil
	}
	defer func() { <-s.semaphore }()

	now := utils.TruncateToMinute(s.now())

	removed, err := s.db.CleanupExpiredCache(ctx, now)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to clean up expired rows", logger.ErrorField(err))
	} else if removed > 0 {
		s.log.DebugContext(ctx, "Expired rows removed", logger.Int64Field("removed", removed))
	}

	result, err := s.notificationService.DispatchDue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to dispatch notifications: %w", err)
	}
	return result, nil
}

func (s *schedulerService) Start(ctx context.Context) error {
	spec := s.cfg.Scheduler.NotificationCron
	if _, err := s.cronParser.Parse(spec); err != nil {
		s.log.ErrorContext(ctx, "Failed to parse cron expression", logger.ErrorField(err), logger.StringField("cron", spec))
		return fmt.Errorf("failed to parse cron expression: %w", err)
	}

	_, err := s.cron.AddFunc(spec, func() {
		tickCtx, cancel := context.WithTimeout(ctx, s.cfg.Scheduler.TimeoutDuration)
		defer cancel()

		if _, err := s.Execute(tickCtx); err != nil {
			s.log.ErrorContextWithAlert(tickCtx, "Scheduler tick failed", logger.ErrorField(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule notifications: %w", err)
	}

	s.cron.Start()
	s.log.InfoContext(ctx, "Scheduler started", logger.StringField("cron", spec))
	return nil
}

func (s *schedulerService) Stop() {
	<-s.cron.Stop().Done()
}
