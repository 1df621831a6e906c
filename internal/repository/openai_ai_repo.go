package repository

import (
	"context"
	"fmt"
	"strings"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

type openAIRepository struct {
	client         openai.Client
	model          string
	logger         *logger.Logger
	requestLimiter *rate.Limiter
}

func NewOpenAIRepository(cfg AIBackendConfig, log *logger.Logger) AIBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &openAIRepository{
		client:         openai.NewClient(opts...),
		model:          cfg.Model,
		logger:         log,
		requestLimiter: newRequestLimiter(cfg.MaxRequestPerMin),
	}
}

func (r *openAIRepository) Name() string {
	return "OpenAI " + r.model
}

func (r *openAIRepository) Chat(ctx context.Context, message string) (string, error) {
	if err := waitTurn(ctx, r.logger, r.Name(), r.requestLimiter); err != nil {
		return "", err
	}

	resp, err := r.client.Chat.Completions.New(ctx, chatParams(r.model, message))
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to send request to openai", logger.ErrorField(err), logger.StringField("model", r.model))
		return "", fmt.Errorf("failed to send request to openai: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openai %s: %w", r.model, model.ErrEmptyAIResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// chatParams caps the reply length. Reasoning models reject max_tokens and
// take max_completion_tokens instead.
func chatParams(chatModel, message string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(message)},
	}
	if strings.HasPrefix(chatModel, "o1-") {
		params.MaxCompletionTokens = openai.Int(aiMaxTokens)
	} else {
		params.MaxTokens = openai.Int(aiMaxTokens)
	}
	return params
}
