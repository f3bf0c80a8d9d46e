package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"quizdeck/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memorySessionStore stands in for Redis. It round-trips sessions through
// JSON so the tests cover the same serialization the real store performs.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string][]byte)}
}

func (s *memorySessionStore) Save(_ context.Context, session *AttemptSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = data
	return nil
}

func (s *memorySessionStore) Load(_ context.Context, sessionID string) (*AttemptSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	var session AttemptSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *memorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// flakyAttemptWriter injects failures into the persistence collaborators.
type flakyAttemptWriter struct {
	*AttemptService
	responsesErr error
	finalizeErr  error
}

func (w *flakyAttemptWriter) ReplaceResponses(ctx context.Context, attemptID string, answers map[string][]string) error {
	if w.responsesErr != nil {
		return w.responsesErr
	}
	return w.AttemptService.ReplaceResponses(ctx, attemptID, answers)
}

func (w *flakyAttemptWriter) Finalize(ctx context.Context, attemptID string, score int) (*models.Attempt, error) {
	if w.finalizeErr != nil {
		return nil, w.finalizeErr
	}
	return w.AttemptService.Finalize(ctx, attemptID, score)
}

type engineFixture struct {
	engine   *AttemptEngine
	quizzes  *QuizService
	attempts *AttemptService
	writer   *flakyAttemptWriter
	quiz     *models.Quiz
}

const takerID = "44444444-4444-4444-4444-444444444444"

// newEngineFixture publishes a two-question quiz (Q1: 2 options, Q2: 3
// options, one correct each) and wires an engine around real sqlite-backed
// services.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db := newTestDB(t)
	logger := zap.NewNop()
	quizzes := NewQuizService(db, logger)
	attempts := NewAttemptService(db, logger)
	ctx := context.Background()

	created, err := quizzes.Create(ctx, ownerA, sampleCreateRequest("Taking flow"))
	require.NoError(t, err)
	_, err = quizzes.Publish(ctx, created.ID, ownerA)
	require.NoError(t, err)

	quiz, err := quizzes.GetByID(ctx, created.ID, takerID)
	require.NoError(t, err)

	writer := &flakyAttemptWriter{AttemptService: attempts}
	engine := NewAttemptEngine(quizzes, writer, newMemorySessionStore(), logger)
	return &engineFixture{
		engine:   engine,
		quizzes:  quizzes,
		attempts: attempts,
		writer:   writer,
		quiz:     quiz,
	}
}

func correctOption(question models.Question) string {
	for _, option := range question.Options {
		if option.IsCorrect {
			return option.ID
		}
	}
	return ""
}

func incorrectOption(question models.Question) string {
	for _, option := range question.Options {
		if !option.IsCorrect {
			return option.ID
		}
	}
	return ""
}

func TestEngine_EndToEnd(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, false)
	require.NoError(t, err)
	assert.Equal(t, PhaseTaking, state.Phase)
	assert.Equal(t, 0, state.CurrentQuestionIndex)
	assert.Equal(t, 2, state.TotalQuestions)
	require.NotEmpty(t, state.AttemptID)
	require.NotNil(t, state.CurrentQuestion)
	assert.Equal(t, f.quiz.Questions[0].ID, state.CurrentQuestion.ID)

	// the attempt row snapshots the denominator at creation
	attempt, err := f.attempts.GetAttempt(ctx, state.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, 2, attempt.TotalQuestions)
	assert.Equal(t, models.AttemptInProgress, attempt.Status())

	// correct for Q1, wrong for Q2
	state, err = f.engine.SelectOption(ctx, takerID, state.SessionID, f.quiz.Questions[0].ID, correctOption(f.quiz.Questions[0]))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Progress.Answered)

	state, err = f.engine.Next(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentQuestionIndex)

	state, err = f.engine.SelectOption(ctx, takerID, state.SessionID, f.quiz.Questions[1].ID, incorrectOption(f.quiz.Questions[1]))
	require.NoError(t, err)

	state, err = f.engine.Submit(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, state.Phase)
	require.NotNil(t, state.Result)
	assert.Equal(t, 1, state.Result.Score)
	assert.Equal(t, 2, state.Result.TotalQuestions)
	assert.Equal(t, 50, state.Result.Percentage)

	// score and completed_at were written together
	attempt, err = f.attempts.GetAttempt(ctx, state.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, attempt.Score)
	assert.Equal(t, 1, *attempt.Score)
	require.NotNil(t, attempt.CompletedAt)
	assert.Equal(t, models.AttemptCompleted, attempt.Status())
	assert.Len(t, attempt.Responses, 2)
}

func TestEngine_StartUnknownQuizEntersErrorPhase(t *testing.T) {
	f := newEngineFixture(t)

	state, err := f.engine.Start(context.Background(), takerID, "55555555-5555-5555-5555-555555555555", false)
	require.NoError(t, err)
	assert.Equal(t, PhaseError, state.Phase)
	assert.Equal(t, "Quiz not found or unavailable", state.Message)
	assert.Nil(t, state.Result)
}

func TestEngine_DemoModeSkipsPersistence(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, true)
	require.NoError(t, err)
	assert.Equal(t, PhaseTaking, state.Phase)
	assert.Empty(t, state.AttemptID)

	state, err = f.engine.SelectOption(ctx, takerID, state.SessionID, f.quiz.Questions[0].ID, correctOption(f.quiz.Questions[0]))
	require.NoError(t, err)
	state, err = f.engine.Submit(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, state.Phase)
	require.NotNil(t, state.Result)
	assert.Equal(t, 1, state.Result.Score)

	// no attempt rows, no responses
	attempts, err := f.attempts.ListUserAttempts(ctx, takerID)
	require.NoError(t, err)
	assert.Empty(t, attempts)

	// demo retry resets in place, still nothing persisted
	state, err = f.engine.Retry(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseTaking, state.Phase)
	assert.Empty(t, state.Answers)
	assert.Nil(t, state.Result)
}

func TestEngine_NavigationClampsAtBoundaries(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, true)
	require.NoError(t, err)
	assert.True(t, state.IsFirst)
	assert.False(t, state.CanGoPrevious)

	// previous at the first question is a no-op
	state, err = f.engine.Previous(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentQuestionIndex)

	state, err = f.engine.Next(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.True(t, state.IsLast)
	assert.False(t, state.CanGoNext)

	// next at the last question is a no-op
	state, err = f.engine.Next(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentQuestionIndex)
}

func TestEngine_SelectOptionReplacesPriorAnswer(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, true)
	require.NoError(t, err)

	question := f.quiz.Questions[1]
	first := question.Options[0].ID
	second := question.Options[1].ID

	state, err = f.engine.SelectOption(ctx, takerID, state.SessionID, question.ID, first)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, state.Answers[question.ID])

	// single-answer semantics: re-selecting replaces, never appends
	state, err = f.engine.SelectOption(ctx, takerID, state.SessionID, question.ID, second)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, state.Answers[question.ID])
	assert.Equal(t, 1, state.Progress.Answered)
}

func TestEngine_SelectOptionRejectsForeignIDs(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, true)
	require.NoError(t, err)

	var validationErr *ValidationError
	_, err = f.engine.SelectOption(ctx, takerID, state.SessionID, "not-a-question", "x")
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.engine.SelectOption(ctx, takerID, state.SessionID, f.quiz.Questions[0].ID, "not-an-option")
	assert.ErrorAs(t, err, &validationErr)
}

func TestEngine_SubmitPersistenceFailureEntersError(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, false)
	require.NoError(t, err)

	f.writer.responsesErr = errors.New("connection reset")
	state, err = f.engine.Submit(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseError, state.Phase)
	assert.Equal(t, "Failed to submit attempt", state.Message)

	// error is terminal: no transition resumes it
	_, err = f.engine.Submit(ctx, takerID, state.SessionID)
	var unprocessable *UnprocessableError
	assert.ErrorAs(t, err, &unprocessable)
}

func TestEngine_SubmitAuthFailurePropagatesWithoutStateChange(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, false)
	require.NoError(t, err)

	f.writer.responsesErr = ErrUnauthenticated
	_, err = f.engine.Submit(ctx, takerID, state.SessionID)
	require.ErrorIs(t, err, ErrUnauthenticated)

	// the session is still taking; re-authenticating can resume the flow
	state, err = f.engine.Get(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseTaking, state.Phase)
}

func TestEngine_CrashBetweenWritesLeavesAttemptResumable(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, false)
	require.NoError(t, err)
	attemptID := state.AttemptID

	state, err = f.engine.SelectOption(ctx, takerID, state.SessionID, f.quiz.Questions[0].ID, correctOption(f.quiz.Questions[0]))
	require.NoError(t, err)

	// responses land, the finalize write never happens
	f.writer.finalizeErr = errors.New("process killed")
	state, err = f.engine.Submit(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseError, state.Phase)

	attempt, err := f.attempts.GetAttempt(ctx, attemptID)
	require.NoError(t, err)
	assert.NotEmpty(t, attempt.Responses)
	assert.Nil(t, attempt.CompletedAt)
	assert.Equal(t, models.AttemptInProgress, attempt.Status())
}

func TestEngine_RetryCreatesFreshAttempt(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, false)
	require.NoError(t, err)
	firstAttempt := state.AttemptID

	state, err = f.engine.Submit(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, state.Phase)

	state, err = f.engine.Retry(ctx, takerID, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseTaking, state.Phase)
	assert.NotEmpty(t, state.AttemptID)
	assert.NotEqual(t, firstAttempt, state.AttemptID)
	assert.Empty(t, state.Answers)
	assert.Equal(t, 0, state.CurrentQuestionIndex)
	assert.Nil(t, state.Result)

	// the first attempt's record is untouched by the retry
	attempt, err := f.attempts.GetAttempt(ctx, firstAttempt)
	require.NoError(t, err)
	assert.NotNil(t, attempt.CompletedAt)
}

func TestEngine_SessionsAreOwnerScoped(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, true)
	require.NoError(t, err)

	_, err = f.engine.Get(ctx, ownerB, state.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.engine.Submit(ctx, ownerB, state.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_RetryRequiresCompletedPhase(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	state, err := f.engine.Start(ctx, takerID, f.quiz.ID, true)
	require.NoError(t, err)

	var unprocessable *UnprocessableError
	_, err = f.engine.Retry(ctx, takerID, state.SessionID)
	assert.ErrorAs(t, err, &unprocessable)
}
