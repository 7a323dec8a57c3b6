package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlignmentFlags maps a behavior key to whether it was observed for the day.
type AlignmentFlags map[string]bool

// DailyAlignment is the per-user, per-date behavior score.
type DailyAlignment struct {
	ID              string                             `gorm:"primaryKey;size:96" json:"id"`
	UserID          string                             `gorm:"size:64;not null;index" json:"user_id"`
	Date            string                             `gorm:"size:10;not null;index" json:"date"`
	Flags           datatypes.JSONType[AlignmentFlags] `json:"flags"`
	AlignmentScore  int                                `json:"alignment_score"`
	FullyAligned    bool                               `json:"fully_aligned"`
	StreakOnThisDay int                                `json:"streak_on_this_day"`
	CreatedAt       time.Time                          `json:"created_at"`
	UpdatedAt       time.Time                          `json:"updated_at"`
}

// TableName keeps the collection name used by the web client.
func (DailyAlignment) TableName() string {
	return "user_alignments"
}

// AlignmentID is the document id for a user's record on a date.
func AlignmentID(userID, date string) string {
	return userID + "_" + date
}

// AlignmentSummary carries the cross-day streak for a user.
type AlignmentSummary struct {
	UserID          string    `gorm:"primaryKey;size:64" json:"user_id"`
	CurrentStreak   int       `json:"current_streak"`
	LastAlignedDate string    `gorm:"size:10" json:"last_aligned_date"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName keeps the collection name used by the web client.
func (AlignmentSummary) TableName() string {
	return "user_alignment_summaries"
}
