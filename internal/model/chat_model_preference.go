package model

import "time"

const ChatModelPreferenceTTL = 365 * 24 * time.Hour

// ChatModelPreference records which AI model a chat has chosen.
type ChatModelPreference struct {
	ChatID    string    `json:"chat_id"`
	AIModel   string    `json:"ai_model"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt *int64    `json:"expires_at,omitempty"`
}

func NewChatModelPreference(chatID, aiModel string) *ChatModelPreference {
	now := time.Now().UTC()
	expires := now.Add(ChatModelPreferenceTTL).Unix()
	return &ChatModelPreference{
		ChatID:    chatID,
		AIModel:   aiModel,
		UpdatedAt: now,
		ExpiresAt: &expires,
	}
}

// IsExpiredAt reports whether the preference lapsed at now.
func (p *ChatModelPreference) IsExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && now.Unix() >= *p.ExpiresAt
}
