package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang-stockbot/config"
	"golang-stockbot/internal/model"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/utils"

	"golang.org/x/sync/errgroup"
)

// MessageSender delivers text to a chat outside of an update handler.
type MessageSender interface {
	SendToChat(ctx context.Context, chatID int64, text string, opts ...interface{}) error
}

type DispatchResult struct {
	GroupsChecked int `json:"groups_checked"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
}

// NotificationService sends the daily quote digest to groups whose local
// clock matches their notification time.
type NotificationService interface {
	DispatchDue(ctx context.Context, now time.Time) (DispatchResult, error)
	// CachedQuotes returns quotes for symbols, reading fresh cache rows first.
	// Symbols with no quote are returned in missing.
	CachedQuotes(ctx context.Context, symbols []string) (quotes []model.StockQuote, missing []string, err error)
}

type notificationService struct {
	cfg          *config.Config
	log          *logger.Logger
	db           repository.StockDatabase
	stockService StockService
	aiService    AIService
	sender       MessageSender
}

func NewNotificationService(
	cfg *config.Config,
	log *logger.Logger,
	db repository.StockDatabase,
	stockService StockService,
	aiService AIService,
	sender MessageSender,
) NotificationService {
	return &notificationService{
		cfg:          cfg,
		log:          log,
		db:           db,
		stockService: stockService,
		aiService:    aiService,
		sender:       sender,
	}
}

func (s *notificationService) DispatchDue(ctx context.Context, now time.Time) (DispatchResult, error) {
	groups, err := s.db.ListActiveGroups(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list active groups", logger.ErrorField(err))
		return DispatchResult{}, fmt.Errorf("failed to list active groups: %w", err)
	}

	var sent, failed atomic.Int32
	var eg errgroup.Group
	eg.SetLimit(max(s.cfg.Scheduler.MaxConcurrency, 1))

	for _, group := range groups {
		if !utils.ShouldContinue(ctx, s.log) {
			break
		}

		eg.Go(func() error {
			delivered, err := s.dispatchGroup(ctx, group, now)
			switch {
			case err != nil:
				failed.Add(1)
				s.log.ErrorContextWithAlert(ctx, "Failed to send daily update", logger.ErrorField(err), logger.StringField("group_id", group.GroupID))
			case delivered:
				sent.Add(1)
			}
			return nil
		})
	}
	_ = eg.Wait()

	result := DispatchResult{
		GroupsChecked: len(groups),
		Sent:          int(sent.Load()),
		Failed:        int(failed.Load()),
	}
	if result.Sent > 0 || result.Failed > 0 {
		s.log.InfoContext(ctx, "Daily updates dispatched",
			logger.IntField("groups", result.GroupsChecked),
			logger.IntField("sent", result.Sent),
			logger.IntField("failed", result.Failed),
		)
	}
	return result, nil
}

// dueSymbols picks the subscriptions whose notification time is localClock.
func dueSymbols(group model.GroupConfig, subs []model.StockSubscription, localClock string) []string {
	var symbols []string
	for _, sub := range subs {
		at, ok := sub.NotificationTime()
		if !ok {
			at = group.DefaultNotificationTime
		}
		if at == localClock {
			symbols = append(symbols, sub.StockSymbol)
		}
	}
	return symbols
}

func (s *notificationService) alreadySent(ctx context.Context, groupID string, now time.Time) bool {
	logs, err := s.db.GetRecentNotifications(ctx, groupID, 1)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to read recent notifications", logger.ErrorField(err), logger.StringField("group_id", groupID))
		return false
	}
	minute := utils.TruncateToMinute(now.UTC())
	for _, l := range logs {
		if l.Success && l.NotificationType == model.NotificationTypeDailyUpdate && !l.Timestamp.Before(minute) {
			return true
		}
	}
	return false
}

func (s *notificationService) dispatchGroup(ctx context.Context, group model.GroupConfig, now time.Time) (bool, error) {
	loc, err := utils.LoadLocation(group.Timezone)
	if err != nil {
		s.log.WarnContext(ctx, "Invalid group timezone, using UTC", logger.ErrorField(err), logger.StringField("group_id", group.GroupID))
	}
	localClock := utils.LocalClock(now, loc)

	subs, err := s.db.ListSubscriptions(ctx, group.GroupID)
	if err != nil {
		return false, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	symbols := dueSymbols(group, subs, localClock)
	if len(symbols) == 0 || s.alreadySent(ctx, group.GroupID, now) {
		return false, nil
	}

	chatID, err := strconv.ParseInt(group.GroupID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid group id %q: %w", group.GroupID, err)
	}

	start := time.Now()
	quotes, missing, err := s.CachedQuotes(ctx, symbols)
	if err != nil {
		s.log.WarnContext(ctx, "No quotes for daily update", logger.ErrorField(err), logger.StringField("group_id", group.GroupID))
	}

	title := ""
	if group.GroupTitle != nil {
		title = *group.GroupTitle
	}
	message := FormatDailyUpdate(title, quotes, missing)

	if group.AISummariesEnabled && len(quotes) > 0 {
		modelName := s.aiService.GetCurrentModel(ctx, group.GroupID)
		summary, err := s.aiService.Complete(ctx, modelName, repository.PromptDailySummary(title, quotes))
		if err != nil {
			s.log.WarnContext(ctx, "AI summary skipped", logger.ErrorField(err), logger.StringField("group_id", group.GroupID))
		} else {
			message += "\n\n🤖 AI Summary\n" + strings.TrimSpace(summary)
		}
	}

	sendErr := s.sender.SendToChat(ctx, chatID, message)

	entry := model.NewNotificationLog(group.GroupID, strings.Join(symbols, ","), model.NotificationTypeDailyUpdate, message, time.Since(start))
	if sendErr != nil {
		entry.WithError(sendErr.Error())
	}
	if err := s.db.LogNotification(ctx, entry); err != nil {
		s.log.WarnContext(ctx, "Failed to log notification", logger.ErrorField(err), logger.StringField("group_id", group.GroupID))
	}

	if sendErr != nil {
		return false, fmt.Errorf("failed to send daily update: %w", sendErr)
	}
	return true, nil
}

func (s *notificationService) CachedQuotes(ctx context.Context, symbols []string) ([]model.StockQuote, []string, error) {
	quotes := make([]model.StockQuote, 0, len(symbols))
	var toFetch []string

	for _, sym := range symbols {
		entry, err := s.db.GetCache(ctx, sym)
		if err != nil {
			s.log.WarnContext(ctx, "Failed to read quote cache", logger.ErrorField(err), logger.StringField("symbol", sym))
		}
		if entry == nil || entry.IsExpired() {
			toFetch = append(toFetch, sym)
			continue
		}

		var q model.StockQuote
		if err := json.Unmarshal([]byte(entry.QuoteData), &q); err != nil {
			toFetch = append(toFetch, sym)
			continue
		}
		quotes = append(quotes, q)
	}

	var fetchErr error
	if len(toFetch) > 0 {
		fetched, err := s.stockService.GetQuotes(ctx, toFetch)
		fetchErr = err
		for _, q := range fetched {
			quotes = append(quotes, q)
			s.storeQuote(ctx, q)
		}
	}

	got := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		got[q.Symbol] = true
	}
	var missing []string
	for _, sym := range symbols {
		if !got[sym] {
			missing = append(missing, sym)
		}
	}

	if len(quotes) == 0 && fetchErr != nil {
		return nil, missing, fetchErr
	}
	return orderQuotes(quotes, symbols), missing, nil
}

func (s *notificationService) storeQuote(ctx context.Context, q model.StockQuote) {
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	entry := model.NewStockCache(q.Symbol, string(data), "[]", s.stockService.ProviderName(), s.cacheTTLHours())
	if err := s.db.SetCache(ctx, entry); err != nil {
		s.log.WarnContext(ctx, "Failed to cache quote", logger.ErrorField(err), logger.StringField("symbol", q.Symbol))
	}
}

func (s *notificationService) cacheTTLHours() int {
	if s.cfg.Stock.CacheTTLHours > 0 {
		return s.cfg.Stock.CacheTTLHours
	}
	return model.DefaultCacheTTLHours
}

// orderQuotes puts quotes back in the order symbols were asked for.
func orderQuotes(quotes []model.StockQuote, symbols []string) []model.StockQuote {
	bySymbol := make(map[string]model.StockQuote, len(quotes))
	for _, q := range quotes {
		bySymbol[q.Symbol] = q
	}
	ordered := make([]model.StockQuote, 0, len(quotes))
	for _, sym := range symbols {
		if q, ok := bySymbol[sym]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered
}
