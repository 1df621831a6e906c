package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang-stockbot/internal/model"
	"golang-stockbot/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

const chatModelKeySegment = "chat_model"

// ChatModelPreferenceRepository stores the AI model each chat has picked.
type ChatModelPreferenceRepository interface {
	GetPreference(ctx context.Context, chatID string) (*model.ChatModelPreference, error)
	SetPreference(ctx context.Context, pref *model.ChatModelPreference) error
	ListPreferences(ctx context.Context) ([]model.ChatModelPreference, error)
}

type chatPreferenceRepository struct {
	client    goredis.UniversalClient
	keyPrefix string
	log       *logger.Logger
	now       func() time.Time
}

func NewChatPreferenceRepository(client goredis.UniversalClient, keyPrefix string, log *logger.Logger) ChatModelPreferenceRepository {
	return &chatPreferenceRepository{
		client:    client,
		keyPrefix: keyPrefix,
		log:       log,
		now:       time.Now,
	}
}

func chatModelKey(prefix, chatID string) string {
	if prefix == "" {
		return chatModelKeySegment + ":" + chatID
	}
	return prefix + ":" + chatModelKeySegment + ":" + chatID
}

// ttlFor converts the absolute expiry to a redis TTL. Zero means no expiry.
func ttlFor(pref *model.ChatModelPreference, now time.Time) time.Duration {
	if pref.ExpiresAt == nil {
		return 0
	}
	ttl := time.Unix(*pref.ExpiresAt, 0).Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func decodePreference(raw string) (*model.ChatModelPreference, error) {
	var pref model.ChatModelPreference
	if err := json.Unmarshal([]byte(raw), &pref); err != nil {
		return nil, model.NewDatabaseError(model.DBErrSerialization, err, "decode chat model preference")
	}
	return &pref, nil
}

// GetPreference returns nil when the chat has no live preference.
func (r *chatPreferenceRepository) GetPreference(ctx context.Context, chatID string) (*model.ChatModelPreference, error) {
	raw, err := r.client.Get(ctx, chatModelKey(r.keyPrefix, chatID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		r.log.ErrorContext(ctx, "Failed to get chat model preference", logger.ErrorField(err), logger.StringField("chat_id", chatID))
		return nil, model.NewDatabaseError(model.DBErrConnection, err, "get chat model preference")
	}

	pref, err := decodePreference(raw)
	if err != nil {
		return nil, err
	}
	if pref.IsExpiredAt(r.now()) {
		return nil, nil
	}
	return pref, nil
}

func (r *chatPreferenceRepository) SetPreference(ctx context.Context, pref *model.ChatModelPreference) error {
	if strings.TrimSpace(pref.ChatID) == "" || strings.TrimSpace(pref.AIModel) == "" {
		return model.NewDatabaseError(model.DBErrValidation, nil, "chat id and model are required")
	}

	payload, err := json.Marshal(pref)
	if err != nil {
		return model.NewDatabaseError(model.DBErrSerialization, err, "encode chat model preference")
	}

	key := chatModelKey(r.keyPrefix, pref.ChatID)
	if err := r.client.Set(ctx, key, payload, ttlFor(pref, r.now())).Err(); err != nil {
		r.log.ErrorContext(ctx, "Failed to set chat model preference", logger.ErrorField(err), logger.StringField("chat_id", pref.ChatID))
		return model.NewDatabaseError(model.DBErrConnection, err, "set chat model preference")
	}
	return nil
}

func (r *chatPreferenceRepository) ListPreferences(ctx context.Context) ([]model.ChatModelPreference, error) {
	pattern := chatModelKey(r.keyPrefix, "*")
	now := r.now()

	var prefs []model.ChatModelPreference
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, model.NewDatabaseError(model.DBErrConnection, err, "get %s", iter.Val())
		}

		pref, err := decodePreference(raw)
		if err != nil {
			r.log.WarnContext(ctx, "Skipping unreadable chat model preference", logger.StringField("key", iter.Val()), logger.ErrorField(err))
			continue
		}
		if pref.IsExpiredAt(now) {
			continue
		}
		prefs = append(prefs, *pref)
	}
	if err := iter.Err(); err != nil {
		r.log.ErrorContext(ctx, "Failed to scan chat model preferences", logger.ErrorField(err))
		return nil, model.NewDatabaseError(model.DBErrConnection, err, "scan %s", pattern)
	}
	return prefs, nil
}
