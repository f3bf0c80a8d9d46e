package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Option struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey"`
	QuestionID string         `json:"question_id" gorm:"type:uuid;not null;index"`
	Content    string         `json:"content" gorm:"not null"`
	IsCorrect  bool           `json:"is_correct" gorm:"not null;default:false"`
	Position   int            `json:"position" gorm:"not null"` // 1-indexed, contiguous within question
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (o *Option) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
