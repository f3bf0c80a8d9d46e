package services

import (
	"context"
	"errors"
	"time"

	"quizdeck/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptService owns the attempt and response tables. The attempt row is
// written once at creation and once at finalization, never again.
type AttemptService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAttemptService(db *gorm.DB, logger *zap.Logger) *AttemptService {
	return &AttemptService{db: db, logger: logger}
}

// CreateAttempt snapshots total_questions at creation time so later quiz
// edits cannot change the denominator of an attempt already underway.
func (s *AttemptService) CreateAttempt(ctx context.Context, userID, quizID string, totalQuestions int) (*models.Attempt, error) {
	attempt := models.Attempt{
		UserID:         userID,
		QuizID:         quizID,
		TotalQuestions: totalQuestions,
		StartedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return nil, backendErr("attempt_create", err)
	}
	return &attempt, nil
}

// ReplaceResponses deletes and re-inserts every response row for the
// attempt, so resubmitting the same attempt can never double-count.
func (s *AttemptService) ReplaceResponses(ctx context.Context, attemptID string, answers map[string][]string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("attempt_id = ?", attemptID).Delete(&models.Response{}).Error; err != nil {
			return err
		}
		for questionID, optionIDs := range answers {
			for _, optionID := range optionIDs {
				response := models.Response{
					AttemptID:  attemptID,
					QuestionID: questionID,
					OptionID:   optionID,
				}
				if err := tx.Create(&response).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return backendErr("responses_write", err)
	}
	return nil
}

// Finalize writes score and completed_at together. A crash before this call
// leaves responses without a score, which readers must treat as resumable.
func (s *AttemptService) Finalize(ctx context.Context, attemptID string, score int) (*models.Attempt, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND completed_at IS NULL", attemptID).
		Updates(map[string]interface{}{
			"score":        score,
			"completed_at": now,
		})
	if res.Error != nil {
		return nil, backendErr("attempt_finalize", res.Error)
	}
	if res.RowsAffected == 0 {
		// already finalized or gone; re-read and let the caller decide
		s.logger.Warn("attempt finalize matched no rows", zap.String("attempt_id", attemptID))
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *AttemptService) GetAttempt(ctx context.Context, attemptID string) (*models.Attempt, error) {
	var attempt models.Attempt
	err := s.db.WithContext(ctx).
		Preload("Responses").
		First(&attempt, "id = ?", attemptID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("attempt_fetch", err)
	}
	return &attempt, nil
}

// ListUserAttempts returns the requester's attempts, newest first.
func (s *AttemptService) ListUserAttempts(ctx context.Context, userID string) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, backendErr("attempt_list", err)
	}
	return attempts, nil
}
