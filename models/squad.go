package models

import "time"

// Squad is an accountability circle with an optional recurring group call.
type Squad struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	Name         string     `gorm:"size:128;not null" json:"name"`
	CoachID      string     `gorm:"size:64;index" json:"coach_id"`
	NextCallAt   *time.Time `json:"next_call_at"`
	CallTimezone string     `gorm:"size:64" json:"call_timezone"`
	CallLocation string     `gorm:"size:512" json:"call_location"`
	CallTitle    string     `gorm:"size:255" json:"call_title"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CoachingRelationship links a member to a coach and tracks their next 1:1 call.
type CoachingRelationship struct {
	UserID       string     `gorm:"primaryKey;size:64" json:"user_id"`
	CoachID      string     `gorm:"size:64;index;not null" json:"coach_id"`
	CoachName    string     `gorm:"size:128" json:"coach_name"`
	NextCallAt   *time.Time `json:"next_call_at"`
	CallTimezone string     `gorm:"size:64" json:"call_timezone"`
	CallLocation string     `gorm:"size:512" json:"call_location"`
	CallTitle    string     `gorm:"size:255" json:"call_title"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
