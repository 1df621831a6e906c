package model

import (
	"time"
	// the default timezone has to resolve on hosts without zoneinfo
	_ "time/tzdata"
)

const (
	DefaultMaxSubscriptions     = 10
	DefaultNotificationTime     = "10:00"
	DefaultTimezone             = "Asia/Shanghai"
	DefaultAISummariesEnabled   = true
	DefaultPrivateNotifications = false
)

type GroupConfig struct {
	GroupID                 string            `json:"group_id" validate:"required"`
	GroupTitle              *string           `json:"group_title,omitempty"`
	MaxSubscriptions        int               `json:"max_subscriptions" validate:"gte=0"`
	DefaultNotificationTime string            `json:"default_notification_time" validate:"required,datetime=15:04"`
	Timezone                string            `json:"timezone" validate:"required,timezone"`
	AISummariesEnabled      bool              `json:"ai_summaries_enabled"`
	AdminUserIDs            []int64           `json:"admin_user_ids"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
	IsActive                bool              `json:"is_active"`
	Settings                map[string]string `json:"settings"`
}

func NewGroupConfig(groupID string, groupTitle *string, createdBy int64) *GroupConfig {
	now := time.Now().UTC()
	return &GroupConfig{
		GroupID:                 groupID,
		GroupTitle:              groupTitle,
		MaxSubscriptions:        DefaultMaxSubscriptions,
		DefaultNotificationTime: DefaultNotificationTime,
		Timezone:                DefaultTimezone,
		AISummariesEnabled:      DefaultAISummariesEnabled,
		AdminUserIDs:            []int64{createdBy},
		CreatedAt:               now,
		UpdatedAt:               now,
		IsActive:                true,
		Settings:                map[string]string{},
	}
}

func (g *GroupConfig) Touch() {
	g.UpdatedAt = time.Now().UTC()
}

func (g *GroupConfig) IsAdmin(userID int64) bool {
	for _, id := range g.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddAdmin is a no-op when userID is already an admin.
func (g *GroupConfig) AddAdmin(userID int64) {
	if g.IsAdmin(userID) {
		return
	}
	g.AdminUserIDs = append(g.AdminUserIDs, userID)
	g.Touch()
}

// RemoveAdmin is a no-op when userID is not an admin.
func (g *GroupConfig) RemoveAdmin(userID int64) {
	kept := g.AdminUserIDs[:0]
	removed := false
	for _, id := range g.AdminUserIDs {
		if id == userID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	g.AdminUserIDs = kept
	if removed {
		g.Touch()
	}
}
