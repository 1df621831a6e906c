package repository

import (
	"context"
	"fmt"
	"strings"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

type anthropicAIRepository struct {
	client         anthropic.Client
	model          string
	logger         *logger.Logger
	requestLimiter *rate.Limiter
}

func NewAnthropicAIRepository(cfg AIBackendConfig, log *logger.Logger) AIBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &anthropicAIRepository{
		client:         anthropic.NewClient(opts...),
		model:          cfg.Model,
		logger:         log,
		requestLimiter: newRequestLimiter(cfg.MaxRequestPerMin),
	}
}

func (r *anthropicAIRepository) Name() string {
	return "Anthropic " + r.model
}

func (r *anthropicAIRepository) Chat(ctx context.Context, message string) (string, error) {
	if err := waitTurn(ctx, r.logger, r.Name(), r.requestLimiter); err != nil {
		return "", err
	}

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: aiMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
		},
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to send request to anthropic", logger.ErrorField(err), logger.StringField("model", r.model))
		return "", fmt.Errorf("failed to send request to anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("anthropic %s: %w", r.model, model.ErrEmptyAIResponse)
	}
	return sb.String(), nil
}
