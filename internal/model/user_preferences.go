package model

import "time"

// StockUserPreferences holds per-user notification settings. It is unrelated
// to ChatModelPreference, which is keyed by chat.
type StockUserPreferences struct {
	UserID                      int64             `json:"user_id" validate:"required"`
	Username                    *string           `json:"username,omitempty"`
	Timezone                    string            `json:"timezone" validate:"required,timezone"`
	PrivateNotificationsEnabled bool              `json:"private_notifications_enabled"`
	PreferredAIModel            *string           `json:"preferred_ai_model,omitempty"`
	CreatedAt                   time.Time         `json:"created_at"`
	UpdatedAt                   time.Time         `json:"updated_at"`
	Settings                    map[string]string `json:"settings"`
}

func NewStockUserPreferences(userID int64, username *string) *StockUserPreferences {
	now := time.Now().UTC()
	return &StockUserPreferences{
		UserID:                      userID,
		Username:                    username,
		Timezone:                    DefaultTimezone,
		PrivateNotificationsEnabled: DefaultPrivateNotifications,
		CreatedAt:                   now,
		UpdatedAt:                   now,
		Settings:                    map[string]string{},
	}
}

func (p *StockUserPreferences) Touch() {
	p.UpdatedAt = time.Now().UTC()
}
