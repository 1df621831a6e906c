package repository

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// geminiAIRepository answers chat messages through the Gemini API.
type geminiAIRepository struct {
	genAiClient    *genai.Client
	model          string
	logger         *logger.Logger
	requestLimiter *rate.Limiter
}

// NewGeminiAIRepository creates a new instance of geminiAIRepository.
func NewGeminiAIRepository(ctx context.Context, cfg AIBackendConfig, log *logger.Logger) (AIBackend, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	genAiClient, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiAIRepository{
		genAiClient:    genAiClient,
		model:          cfg.Model,
		logger:         log,
		requestLimiter: newRequestLimiter(cfg.MaxRequestPerMin),
	}, nil
}

func (r *geminiAIRepository) Name() string {
	return "Gemini " + r.model
}

func (r *geminiAIRepository) Chat(ctx context.Context, message string) (string, error) {
	if err := waitTurn(ctx, r.logger, r.Name(), r.requestLimiter); err != nil {
		return "", err
	}

	resp, err := r.genAiClient.Models.GenerateContent(ctx, r.model, genai.Text(message), &genai.GenerateContentConfig{
		MaxOutputTokens: aiMaxTokens,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to send request to gemini", logger.ErrorField(err), logger.StringField("model", r.model))
		return "", fmt.Errorf("failed to send request to gemini: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini %s: %w", r.model, model.ErrEmptyAIResponse)
	}
	return text, nil
}
