package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusDraft    = "draft"
	StatusPublic   = "public"
	StatusPrivate  = "private"
	StatusArchived = "archived"
)

const (
	SourceManual      = "manual"
	SourceAIGenerated = "ai_generated"
)

type Quiz struct {
	ID            string         `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID       string         `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title         string         `json:"title" gorm:"not null"`
	Description   string         `json:"description"`
	Status        string         `json:"status" gorm:"not null;default:'draft'"` // draft, public, private, archived
	Source        string         `json:"source" gorm:"not null;default:'manual'"`
	AIModel       string         `json:"ai_model,omitempty" gorm:"column:ai_model"`
	AIPrompt      string         `json:"ai_prompt,omitempty" gorm:"column:ai_prompt"`
	AITemperature *float64       `json:"ai_temperature,omitempty" gorm:"column:ai_temperature"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE"`
}

func (q *Quiz) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}
