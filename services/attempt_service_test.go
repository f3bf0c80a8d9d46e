package services

import (
	"context"
	"testing"

	"quizdeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReplaceResponses_FullReplace(t *testing.T) {
	db := newTestDB(t)
	svc := NewAttemptService(db, zap.NewNop())
	ctx := context.Background()

	attempt, err := svc.CreateAttempt(ctx, takerID, "66666666-6666-6666-6666-666666666666", 2)
	require.NoError(t, err)

	require.NoError(t, svc.ReplaceResponses(ctx, attempt.ID, map[string][]string{
		"q1": {"o1"},
		"q2": {"o2", "o3"},
	}))

	var count int64
	require.NoError(t, db.Model(&models.Response{}).Where("attempt_id = ?", attempt.ID).Count(&count).Error)
	assert.EqualValues(t, 3, count)

	// resubmission replaces, it never accumulates
	require.NoError(t, svc.ReplaceResponses(ctx, attempt.ID, map[string][]string{
		"q1": {"o9"},
	}))
	var responses []models.Response
	require.NoError(t, db.Where("attempt_id = ?", attempt.ID).Find(&responses).Error)
	require.Len(t, responses, 1)
	assert.Equal(t, "o9", responses[0].OptionID)
}

func TestFinalize_WritesScoreAndCompletionTogether(t *testing.T) {
	db := newTestDB(t)
	svc := NewAttemptService(db, zap.NewNop())
	ctx := context.Background()

	attempt, err := svc.CreateAttempt(ctx, takerID, "66666666-6666-6666-6666-666666666666", 3)
	require.NoError(t, err)
	assert.Nil(t, attempt.Score)
	assert.Nil(t, attempt.CompletedAt)

	finalized, err := svc.Finalize(ctx, attempt.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, finalized.Score)
	assert.Equal(t, 2, *finalized.Score)
	require.NotNil(t, finalized.CompletedAt)
	assert.Equal(t, models.AttemptCompleted, finalized.Status())

	// an attempt is finalized exactly once; a second write cannot alter it
	again, err := svc.Finalize(ctx, attempt.ID, 99)
	require.NoError(t, err)
	require.NotNil(t, again.Score)
	assert.Equal(t, 2, *again.Score)
}

func TestGetAttempt_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewAttemptService(db, zap.NewNop())

	_, err := svc.GetAttempt(context.Background(), "77777777-7777-7777-7777-777777777777")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUserAttempts_ScopedToUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewAttemptService(db, zap.NewNop())
	ctx := context.Background()

	quizID := "66666666-6666-6666-6666-666666666666"
	mine, err := svc.CreateAttempt(ctx, takerID, quizID, 2)
	require.NoError(t, err)
	_, err = svc.CreateAttempt(ctx, ownerB, quizID, 2)
	require.NoError(t, err)

	attempts, err := svc.ListUserAttempts(ctx, takerID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, mine.ID, attempts[0].ID)
	assert.Equal(t, models.AttemptInProgress, attempts[0].Status())
}
