package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang-stockbot/config"
	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	"golang.org/x/time/rate"
)

// aiMaxTokens caps every completion.
const aiMaxTokens = 500

const (
	AIProviderOpenAI    = "openai"
	AIProviderGemini    = "gemini"
	AIProviderAnthropic = "anthropic"
)

// AIBackend answers a single user message.
type AIBackend interface {
	Chat(ctx context.Context, message string) (string, error)
	Name() string
}

// AIBackendConfig carries what a single backend needs.
type AIBackendConfig struct {
	Model            string
	APIKey           string
	BaseURL          string
	Timeout          time.Duration
	MaxRequestPerMin int
}

var supportedModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
	"o1-preview",
	"o1-mini",
	"gemini-2.0-flash",
	"gemini-1.5-pro",
	"claude-3-5-haiku-latest",
	"claude-sonnet-4-0",
}

func SupportedModels() []string {
	return append([]string(nil), supportedModels...)
}

func IsSupportedModel(name string) bool {
	for _, m := range supportedModels {
		if m == name {
			return true
		}
	}
	return false
}

// AIProviderFor maps a model name to the vendor serving it. Unrecognised
// names go to OpenAI.
func AIProviderFor(modelName string) string {
	switch {
	case strings.HasPrefix(modelName, "gemini-"):
		return AIProviderGemini
	case strings.HasPrefix(modelName, "claude-"):
		return AIProviderAnthropic
	default:
		return AIProviderOpenAI
	}
}

// CreateAIBackend builds the backend for modelName from the ai config
// section.
func CreateAIBackend(ctx context.Context, modelName string, cfg config.AI, log *logger.Logger) (AIBackend, error) {
	backendCfg := AIBackendConfig{
		Model:            modelName,
		Timeout:          cfg.Timeout,
		MaxRequestPerMin: cfg.MaxRequestPerMin,
	}

	provider := AIProviderFor(modelName)
	switch provider {
	case AIProviderGemini:
		backendCfg.APIKey, backendCfg.BaseURL = cfg.GeminiAPIKey, cfg.GeminiBaseURL
	case AIProviderAnthropic:
		backendCfg.APIKey, backendCfg.BaseURL = cfg.AnthropicAPIKey, cfg.AnthropicBaseURL
	default:
		backendCfg.APIKey, backendCfg.BaseURL = cfg.OpenAIAPIKey, cfg.OpenAIBaseURL
	}

	if backendCfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s API key is not set for model %s", model.ErrAIConfig, provider, modelName)
	}

	switch provider {
	case AIProviderGemini:
		return NewGeminiAIRepository(ctx, backendCfg, log)
	case AIProviderAnthropic:
		return NewAnthropicAIRepository(backendCfg, log), nil
	default:
		return NewOpenAIRepository(backendCfg, log), nil
	}
}

func newRequestLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// waitTurn blocks until the backend's request budget allows another call.
func waitTurn(ctx context.Context, log *logger.Logger, name string, limiter *rate.Limiter) error {
	if !limiter.Allow() {
		log.WarnContext(ctx, "AI request limit reached, waiting", logger.StringField("backend", name))
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("failed to wait for %s request limit: %w", name, err)
		}
	}
	return nil
}
