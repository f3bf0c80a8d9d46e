package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Question struct {
	ID          string         `json:"id" gorm:"type:uuid;primaryKey"`
	QuizID      string         `json:"quiz_id" gorm:"type:uuid;not null;index"`
	Content     string         `json:"content" gorm:"not null"`
	Explanation string         `json:"explanation,omitempty"`
	Position    int            `json:"position" gorm:"not null"` // 1-indexed, contiguous within quiz
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}
