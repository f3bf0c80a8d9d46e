package services

import (
	"context"
	"errors"
	"testing"

	"quizdeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	quiz *GeneratedQuiz
	err  error
}

func (g *stubGenerator) Generate(context.Context, string, string, float64) (*GeneratedQuiz, error) {
	return g.quiz, g.err
}

func generatedFixture() *GeneratedQuiz {
	return &GeneratedQuiz{
		Title:       "Photosynthesis basics",
		Description: "Auto-generated",
		Questions: []GeneratedQuestion{
			{
				Content:     "What do plants absorb from the air?",
				Explanation: "Carbon dioxide is fixed during the Calvin cycle.",
				Options: []GeneratedOption{
					{Content: "Carbon dioxide", IsCorrect: true},
					{Content: "Nitrogen"},
					{Content: "Argon"},
				},
			},
		},
	}
}

func newGeneratorFixture(t *testing.T, generator QuizGenerator) *GeneratorService {
	t.Helper()
	quizzes, _ := newTestQuizService(t)
	return NewGeneratorService(generator, quizzes, zap.NewNop())
}

func TestGenerateQuiz_PersistsWithProvenance(t *testing.T) {
	svc := newGeneratorFixture(t, &stubGenerator{quiz: generatedFixture()})

	quiz, err := svc.GenerateQuiz(context.Background(), ownerA, &GenerateQuizRequest{
		Prompt:      "quiz me on photosynthesis",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceAIGenerated, quiz.Source)
	assert.Equal(t, models.StatusDraft, quiz.Status)
	assert.Equal(t, "gpt-4o-mini", quiz.AIModel)
	assert.Equal(t, "quiz me on photosynthesis", quiz.AIPrompt)
	require.NotNil(t, quiz.AITemperature)
	assert.InDelta(t, 0.7, *quiz.AITemperature, 1e-9)
	require.Len(t, quiz.Questions, 1)
	assert.Equal(t, "Carbon dioxide is fixed during the Calvin cycle.", quiz.Questions[0].Explanation)
}

func TestGenerateQuiz_RequiresExactlyOneCorrect(t *testing.T) {
	generated := generatedFixture()
	generated.Questions[0].Options[1].IsCorrect = true
	svc := newGeneratorFixture(t, &stubGenerator{quiz: generated})

	_, err := svc.GenerateQuiz(context.Background(), ownerA, &GenerateQuizRequest{
		Prompt: "p", Model: "m",
	})

	// AI content is held to the stricter schema; manual content is not
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Errors, "generated question 1 must have exactly one correct option")
}

func TestGenerateQuiz_CollaboratorFailureIsBackendError(t *testing.T) {
	svc := newGeneratorFixture(t, &stubGenerator{err: errors.New("provider timeout")})

	_, err := svc.GenerateQuiz(context.Background(), ownerA, &GenerateQuizRequest{
		Prompt: "p", Model: "m",
	})

	var backendFailure *BackendError
	require.ErrorAs(t, err, &backendFailure)
	assert.Equal(t, "quiz_generate", backendFailure.Code)
}
