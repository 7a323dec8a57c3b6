package models

import "time"

// Check-in kinds.
const (
	CheckInMorning = "morning"
	CheckInEvening = "evening"
	CheckInWeekly  = "weekly"
)

// Task list types. Focus tasks are today's plan; the evening close-out moves leftovers to backlog.
const (
	TaskListFocus   = "focus"
	TaskListBacklog = "backlog"
)

// CheckIn records a completed check-in flow for a calendar date.
type CheckIn struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"size:64;not null;index:idx_checkin_user_date_type,unique" json:"user_id"`
	Date        string    `gorm:"size:10;not null;index:idx_checkin_user_date_type,unique" json:"date"`
	Type        string    `gorm:"size:16;not null;index:idx_checkin_user_date_type,unique" json:"type"`
	Mood        string    `gorm:"size:32" json:"mood"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task is a daily planned action.
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index:idx_task_user_date" json:"user_id"`
	Date      string    `gorm:"size:10;not null;index:idx_task_user_date" json:"date"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	ListType  string    `gorm:"size:16;not null" json:"list_type"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailyEntry stores the day's food and exercise log.
type DailyEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:64;not null;index:idx_entry_user_date,unique" json:"user_id"`
	Date           string    `gorm:"size:10;not null;index:idx_entry_user_date,unique" json:"date"`
	MealsLogged    int       `json:"meals_logged"`
	WorkoutMinutes int       `json:"workout_minutes"`
	WeightKg       *float64  `json:"weight_kg"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CircleInteraction counts squad chat messages a user sent on a date.
type CircleInteraction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;index:idx_circle_user_date,unique" json:"user_id"`
	Date      string    `gorm:"size:10;not null;index:idx_circle_user_date,unique" json:"date"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
