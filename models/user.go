package models

import (
	"time"

	"gorm.io/gorm"
)

// Goal lifecycle states. Only active goals count toward alignment.
const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusArchived  = "archived"
)

// Email reminder categories a user can opt out of.
const (
	ReminderSquadCall24h    = "squad_call_24h"
	ReminderSquadCall1h     = "squad_call_1h"
	ReminderCoachingCall24h = "coaching_call_24h"
	ReminderCoachingCall1h  = "coaching_call_1h"
)

// EmailOptOuts records reminder emails the user switched off. Zero value means every reminder is sent.
type EmailOptOuts struct {
	SquadCall24h    bool `json:"squad_call_24h"`
	SquadCall1h     bool `json:"squad_call_1h"`
	CoachingCall24h bool `json:"coaching_call_24h"`
	CoachingCall1h  bool `json:"coaching_call_1h"`
}

// User is a member profile keyed by the external auth subject id.
type User struct {
	ID             string       `gorm:"primaryKey;size:64" json:"id"`
	Email          string       `gorm:"size:255" json:"email"`
	FirstName      string       `gorm:"size:64" json:"first_name"`
	LastName       string       `gorm:"size:64" json:"last_name"`
	Timezone       string       `gorm:"size:64" json:"timezone"`
	SquadID        *string      `gorm:"size:64;index" json:"squad_id"`
	Goal           string       `gorm:"size:512" json:"goal"`
	GoalStatus     string       `gorm:"size:16" json:"goal_status"`
	GoalTargetDate *time.Time   `json:"goal_target_date"`
	EmailOptOuts   EmailOptOuts `gorm:"embedded;embeddedPrefix:email_optout_" json:"email_opt_outs"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// HasActiveGoal reports whether the user currently pursues a goal.
func (u *User) HasActiveGoal() bool {
	return u.Goal != "" && u.GoalStatus == GoalStatusActive
}

// DisplayName returns the first name, falling back to a generic greeting target.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return "there"
}

// WantsEmail reports whether the user still receives the given reminder category.
func (u *User) WantsEmail(category string) bool {
	switch category {
	case ReminderSquadCall24h:
		return !u.EmailOptOuts.SquadCall24h
	case ReminderSquadCall1h:
		return !u.EmailOptOuts.SquadCall1h
	case ReminderCoachingCall24h:
		return !u.EmailOptOuts.CoachingCall24h
	case ReminderCoachingCall1h:
		return !u.EmailOptOuts.CoachingCall1h
	}
	return true
}

// BeforeCreate hook fills the timezone so reminder rendering always has a zone.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	return nil
}
