package models

import (
	"time"

	"gorm.io/datatypes"
)

// In-app notification types produced by the call reminder sweep.
const (
	NotificationSquadCall24h    = "squad_call_24h"
	NotificationSquadCall1h     = "squad_call_1h"
	NotificationSquadCallLive   = "squad_call_live"
	NotificationCoachingCall24h = "coaching_call_24h"
	NotificationCoachingCall1h  = "coaching_call_1h"
	NotificationCoachingLive    = "coaching_call_live"
)

// Notification is an in-app message shown in the user's inbox.
type Notification struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	UserID      string         `gorm:"size:64;not null;index" json:"user_id"`
	Type        string         `gorm:"size:32;not null" json:"type"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Message     string         `gorm:"type:text" json:"message"`
	ActionRoute string         `gorm:"size:255" json:"action_route"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	IsRead      bool           `json:"is_read"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}
