package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang-stockbot/config"
	"golang-stockbot/internal/model"
	"golang-stockbot/internal/repository"
	"golang-stockbot/pkg/cache"
	"golang-stockbot/pkg/common"
	"golang-stockbot/pkg/logger"
	"golang-stockbot/pkg/ratelimit"

	"golang.org/x/time/rate"
)

const fallbackAIModel = "gpt-4o"

// AIBackendFactory builds the backend serving modelName.
type AIBackendFactory func(ctx context.Context, modelName string) (repository.AIBackend, error)

type AIService interface {
	// GetCurrentModel never fails. Store errors fall back to the configured
	// default model.
	GetCurrentModel(ctx context.Context, chatID string) string
	SetCurrentModel(ctx context.Context, chatID, modelName string) error
	AvailableModels() []string
	ListPreferences(ctx context.Context) ([]model.ChatModelPreference, error)
	// Chat answers message with the chat's current model.
	Chat(ctx context.Context, chatID, message string) (string, error)
	// Complete answers prompt with modelName, bypassing the per-chat limiter.
	Complete(ctx context.Context, modelName, prompt string) (string, error)
}

type aiService struct {
	cfg            *config.Config
	log            *logger.Logger
	inmemoryCache  cache.Cache
	preferenceRepo repository.ChatModelPreferenceRepository
	factory        AIBackendFactory
	chatLimiters   *ratelimit.LimiterStore

	mu       sync.Mutex
	backends map[string]repository.AIBackend
}

func NewAIService(
	cfg *config.Config,
	log *logger.Logger,
	inmemoryCache cache.Cache,
	preferenceRepo repository.ChatModelPreferenceRepository,
	factory AIBackendFactory,
) AIService {
	if factory == nil {
		factory = func(ctx context.Context, modelName string) (repository.AIBackend, error) {
			return repository.CreateAIBackend(ctx, modelName, cfg.AI, log)
		}
	}

	return &aiService{
		cfg:            cfg,
		log:            log,
		inmemoryCache:  inmemoryCache,
		preferenceRepo: preferenceRepo,
		factory:        factory,
		chatLimiters:   ratelimit.NewLimiterStore(perMinute(cfg.AI.ChatRequestPerMin), max(cfg.AI.ChatRequestPerMin, 1)),
		backends:       make(map[string]repository.AIBackend),
	}
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

func (s *aiService) defaultModel() string {
	if m := strings.TrimSpace(s.cfg.AI.DefaultModel); m != "" {
		return m
	}
	return fallbackAIModel
}

func (s *aiService) GetCurrentModel(ctx context.Context, chatID string) string {
	key := fmt.Sprintf(common.KEY_CURRENT_MODEL, chatID)
	if cached, ok := cache.GetAs[string](s.inmemoryCache, key); ok {
		return cached
	}

	pref, err := s.preferenceRepo.GetPreference(ctx, chatID)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to get model preference, using default", logger.ErrorField(err), logger.StringField("chat_id", chatID))
		return s.defaultModel()
	}
	if pref == nil || pref.AIModel == "" {
		return s.defaultModel()
	}

	s.inmemoryCache.Set(key, pref.AIModel, s.cfg.AI.ModelCacheDuration)
	return pref.AIModel
}

func (s *aiService) SetCurrentModel(ctx context.Context, chatID, modelName string) error {
	modelName = strings.TrimSpace(modelName)
	if !repository.IsSupportedModel(modelName) {
		return fmt.Errorf("%w: %s. Available models: %s", model.ErrUnsupportedModel, modelName, strings.Join(repository.SupportedModels(), ", "))
	}

	if err := s.preferenceRepo.SetPreference(ctx, model.NewChatModelPreference(chatID, modelName)); err != nil {
		s.log.ErrorContext(ctx, "Failed to save model preference", logger.ErrorField(err), logger.StringField("chat_id", chatID))
		return fmt.Errorf("failed to save model preference: %w", err)
	}

	s.inmemoryCache.Set(fmt.Sprintf(common.KEY_CURRENT_MODEL, chatID), modelName, s.cfg.AI.ModelCacheDuration)
	s.log.InfoContext(ctx, "Model preference saved", logger.StringField("chat_id", chatID), logger.StringField("model", modelName))
	return nil
}

func (s *aiService) AvailableModels() []string {
	return repository.SupportedModels()
}

func (s *aiService) ListPreferences(ctx context.Context) ([]model.ChatModelPreference, error) {
	return s.preferenceRepo.ListPreferences(ctx)
}

func (s *aiService) Chat(ctx context.Context, chatID, message string) (string, error) {
	if !s.chatLimiters.Allow(chatID) {
		s.log.WarnContext(ctx, "AI chat throttled", logger.StringField("chat_id", chatID))
		return "", model.ErrAIChatThrottled
	}
	return s.Complete(ctx, s.GetCurrentModel(ctx, chatID), message)
}

func (s *aiService) Complete(ctx context.Context, modelName, prompt string) (string, error) {
	backend, err := s.backend(ctx, modelName)
	if err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := backend.Chat(ctx, prompt)
	if err != nil {
		return "", err
	}

	s.log.DebugContext(ctx, "AI reply received",
		logger.StringField("backend", backend.Name()),
		logger.IntField("length", len(reply)),
		logger.Int64Field("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return reply, nil
}

// backend reuses one backend per model so its request budget is shared.
func (s *aiService) backend(ctx context.Context, modelName string) (repository.AIBackend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.backends[modelName]; ok {
		return b, nil
	}

	b, err := s.factory(ctx, modelName)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create AI backend", logger.ErrorField(err), logger.StringField("model", modelName))
		return nil, err
	}
	s.backends[modelName] = b
	return b, nil
}
