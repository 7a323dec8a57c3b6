package models

import "time"

// Scheduled call job tables, one per call kind.
const (
	SquadCallJobsTable    = "squad_call_scheduled_jobs"
	CoachingCallJobsTable = "coaching_call_scheduled_jobs"
)

// CallJob is a single timed reminder for an upcoming call.
type CallJob struct {
	ID            string     `gorm:"primaryKey;size:160" json:"id"`
	SubjectID     string     `gorm:"size:64;not null;index" json:"subject_id"`
	CoachID       string     `gorm:"size:64" json:"coach_id,omitempty"`
	JobType       string     `gorm:"size:16;not null" json:"job_type"`
	ScheduledTime time.Time  `gorm:"not null;index" json:"scheduled_time"`
	CallDateTime  time.Time  `gorm:"not null" json:"call_date_time"`
	SubjectName   string     `gorm:"size:128" json:"subject_name"`
	CoachName     string     `gorm:"size:128" json:"coach_name,omitempty"`
	CallTimezone  string     `gorm:"size:64" json:"call_timezone"`
	CallLocation  string     `gorm:"size:512" json:"call_location"`
	CallTitle     string     `gorm:"size:255" json:"call_title"`
	Executed      bool       `gorm:"not null" json:"executed"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	Attempts      int        `json:"attempts"`
	Abandoned     bool       `gorm:"not null" json:"abandoned"`
	Error         string     `gorm:"size:1024" json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SquadCallJob binds CallJob to the squad table for migrations.
type SquadCallJob struct {
	CallJob
}

func (SquadCallJob) TableName() string { return SquadCallJobsTable }

// CoachingCallJob binds CallJob to the coaching table for migrations.
type CoachingCallJob struct {
	CallJob
}

func (CoachingCallJob) TableName() string { return CoachingCallJobsTable }
