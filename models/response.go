package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Response is one selected option for one question within an attempt.
// Multi-select questions produce one row per selected option.
type Response struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey"`
	AttemptID  string         `json:"attempt_id" gorm:"type:uuid;not null;index"`
	QuestionID string         `json:"question_id" gorm:"type:uuid;not null"`
	OptionID   string         `json:"option_id" gorm:"type:uuid;not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Response) TableName() string {
	return "attempt_answers"
}

func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
