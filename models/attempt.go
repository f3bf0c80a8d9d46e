package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AttemptInProgress = "in_progress"
	AttemptCompleted  = "completed"
	AttemptAbandoned  = "abandoned"
)

// AbandonAfter is how long an unfinished attempt counts as in_progress.
// It matches the lifetime of the taking session in Redis.
const AbandonAfter = 2 * time.Hour

type Attempt struct {
	ID             string         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         string         `json:"user_id" gorm:"type:uuid;not null;index"`
	QuizID         string         `json:"quiz_id" gorm:"type:uuid;not null;index"`
	Score          *int           `json:"score"`           // raw correct-count, written once at submission
	TotalQuestions int            `json:"total_questions"` // snapshot at creation, never re-derived
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Responses []Response `json:"responses,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (Attempt) TableName() string {
	return "quiz_attempts"
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Status is derived, never stored. An attempt with responses but no
// completed_at is resumable, not corrupt.
func (a *Attempt) Status() string {
	if a.CompletedAt != nil {
		return AttemptCompleted
	}
	if time.Since(a.StartedAt) > AbandonAfter {
		return AttemptAbandoned
	}
	return AttemptInProgress
}
