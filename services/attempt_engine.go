package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quizdeck/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Taking-flow phases. There is no intermediate "ready": loading goes straight
// to taking once the quiz content and (for real attempts) the attempt row
// both exist. Error is reachable from anywhere and is terminal; the only way
// out is starting the flow over.
const (
	PhaseLoading    = "loading"
	PhaseTaking     = "taking"
	PhaseSubmitting = "submitting"
	PhaseCompleted  = "completed"
	PhaseError      = "error"
)

// AttemptSession is the taking state for one user working through one quiz.
// The quiz content is snapshotted in, so edits to the quiz mid-attempt do not
// shift questions under the taker.
type AttemptSession struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	QuizID       string              `json:"quiz_id"`
	AttemptID    string              `json:"attempt_id,omitempty"` // empty in demo mode
	Demo         bool                `json:"demo"`
	Phase        string              `json:"phase"`
	CurrentIndex int                 `json:"current_index"`
	Answers      map[string][]string `json:"answers"`
	Score        *int                `json:"score,omitempty"`
	Message      string              `json:"message,omitempty"`
	Quiz         *models.Quiz        `json:"quiz,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
}

type SessionStore interface {
	Save(ctx context.Context, session *AttemptSession) error
	Load(ctx context.Context, sessionID string) (*AttemptSession, error)
	Delete(ctx context.Context, sessionID string) error
}

const sessionKeyPrefix = "attempt_session:"
const sessionTTL = 2 * time.Hour

// RedisSessionStore keeps sessions as JSON values with a TTL, so abandoned
// attempts age out on their own.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Save(ctx context.Context, session *AttemptSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+session.ID, data, sessionTTL).Err()
}

func (s *RedisSessionStore) Load(ctx context.Context, sessionID string) (*AttemptSession, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendErr("session_load", err)
	}
	var session AttemptSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, backendErr("session_decode", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

// Collaborator seams: the engine never touches the database directly.
type QuizLoader interface {
	GetByID(ctx context.Context, quizID, requesterID string) (*models.Quiz, error)
}

type AttemptWriter interface {
	CreateAttempt(ctx context.Context, userID, quizID string, totalQuestions int) (*models.Attempt, error)
	ReplaceResponses(ctx context.Context, attemptID string, answers map[string][]string) error
	Finalize(ctx context.Context, attemptID string, score int) (*models.Attempt, error)
}

type AttemptEngine struct {
	quizzes  QuizLoader
	attempts AttemptWriter
	sessions SessionStore
	logger   *zap.Logger
}

func NewAttemptEngine(quizzes QuizLoader, attempts AttemptWriter, sessions SessionStore, logger *zap.Logger) *AttemptEngine {
	return &AttemptEngine{
		quizzes:  quizzes,
		attempts: attempts,
		sessions: sessions,
		logger:   logger,
	}
}

// Start runs the loading phase: fetch the quiz, create the attempt row
// unless this is a demo, then enter taking at question zero. Load failures
// land the session in the error phase; an authentication failure propagates
// instead, because the caller must re-login rather than look at an error
// screen.
func (e *AttemptEngine) Start(ctx context.Context, userID, quizID string, demo bool) (*AttemptState, error) {
	session := &AttemptSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		QuizID:    quizID,
		Demo:      demo,
		Phase:     PhaseLoading,
		Answers:   make(map[string][]string),
		StartedAt: time.Now().UTC(),
	}

	quiz, err := e.quizzes.GetByID(ctx, quizID, userID)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		e.logger.Warn("attempt start: quiz load failed", zap.String("quiz_id", quizID), zap.Error(err))
		return e.enterError(ctx, session, "Quiz not found or unavailable")
	}
	if len(quiz.Questions) == 0 {
		return e.enterError(ctx, session, "This quiz has no questions")
	}
	session.Quiz = quiz

	if !demo {
		attempt, err := e.attempts.CreateAttempt(ctx, userID, quizID, len(quiz.Questions))
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return nil, err
			}
			e.logger.Error("attempt start: attempt row creation failed", zap.String("quiz_id", quizID), zap.Error(err))
			return e.enterError(ctx, session, "Failed to start attempt")
		}
		session.AttemptID = attempt.ID
	}

	session.Phase = PhaseTaking
	session.CurrentIndex = 0
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, backendErr("session_save", err)
	}
	return buildState(session), nil
}

// SelectOption replaces the answer set for the question with exactly one
// option. The data model allows multi-select; the taking flow does not.
func (e *AttemptEngine) SelectOption(ctx context.Context, userID, sessionID, questionID, optionID string) (*AttemptState, error) {
	session, err := e.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != PhaseTaking {
		return nil, &UnprocessableError{Message: "attempt is not in progress"}
	}

	question := findQuestion(session.Quiz, questionID)
	if question == nil {
		return nil, &ValidationError{Errors: []string{"question does not belong to this quiz"}}
	}
	if !hasOption(question, optionID) {
		return nil, &ValidationError{Errors: []string{"option does not belong to this question"}}
	}

	session.Answers[questionID] = []string{optionID}
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, backendErr("session_save", err)
	}
	return buildState(session), nil
}

// Next and Previous clamp at the boundaries; walking past the edge is a
// no-op, not an error.
func (e *AttemptEngine) Next(ctx context.Context, userID, sessionID string) (*AttemptState, error) {
	return e.move(ctx, userID, sessionID, 1)
}

func (e *AttemptEngine) Previous(ctx context.Context, userID, sessionID string) (*AttemptState, error) {
	return e.move(ctx, userID, sessionID, -1)
}

func (e *AttemptEngine) move(ctx context.Context, userID, sessionID string, delta int) (*AttemptState, error) {
	session, err := e.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != PhaseTaking {
		return nil, &UnprocessableError{Message: "attempt is not in progress"}
	}

	index := session.CurrentIndex + delta
	if index < 0 {
		index = 0
	}
	if max := len(session.Quiz.Questions) - 1; index > max {
		index = max
	}
	session.CurrentIndex = index

	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, backendErr("session_save", err)
	}
	return buildState(session), nil
}

// Submit scores the attempt and, for real attempts, persists responses and
// finalizes the attempt row before entering completed. Demo attempts skip
// persistence entirely. A persistence failure lands in the error phase with
// the cause logged; an authentication failure propagates unchanged so the
// caller re-authenticates instead of losing the attempt.
func (e *AttemptEngine) Submit(ctx context.Context, userID, sessionID string) (*AttemptState, error) {
	session, err := e.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != PhaseTaking {
		return nil, &UnprocessableError{Message: "attempt is not in progress"}
	}

	session.Phase = PhaseSubmitting
	score := CalculateScore(session.Quiz, session.Answers)

	if !session.Demo {
		if err := e.attempts.ReplaceResponses(ctx, session.AttemptID, session.Answers); err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return nil, err
			}
			e.logger.Error("submit: response write failed", zap.String("attempt_id", session.AttemptID), zap.Error(err))
			return e.enterError(ctx, session, "Failed to submit attempt")
		}
		if _, err := e.attempts.Finalize(ctx, session.AttemptID, score); err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return nil, err
			}
			e.logger.Error("submit: attempt finalize failed", zap.String("attempt_id", session.AttemptID), zap.Error(err))
			return e.enterError(ctx, session, "Failed to submit attempt")
		}
	}

	session.Phase = PhaseCompleted
	session.Score = &score
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, backendErr("session_save", err)
	}
	return buildState(session), nil
}

// Retry resets a completed session. Demo mode reuses the session with a
// clean answer map; a real attempt gets a brand-new attempt row.
func (e *AttemptEngine) Retry(ctx context.Context, userID, sessionID string) (*AttemptState, error) {
	session, err := e.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != PhaseCompleted {
		return nil, &UnprocessableError{Message: "only a completed attempt can be retried"}
	}

	if !session.Demo {
		attempt, err := e.attempts.CreateAttempt(ctx, userID, session.QuizID, len(session.Quiz.Questions))
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return nil, err
			}
			e.logger.Error("retry: attempt row creation failed", zap.String("quiz_id", session.QuizID), zap.Error(err))
			return e.enterError(ctx, session, "Failed to restart attempt")
		}
		session.AttemptID = attempt.ID
	}

	session.Phase = PhaseTaking
	session.CurrentIndex = 0
	session.Answers = make(map[string][]string)
	session.Score = nil
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, backendErr("session_save", err)
	}
	return buildState(session), nil
}

func (e *AttemptEngine) Get(ctx context.Context, userID, sessionID string) (*AttemptState, error) {
	session, err := e.loadOwned(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return buildState(session), nil
}

func (e *AttemptEngine) loadOwned(ctx context.Context, userID, sessionID string) (*AttemptSession, error) {
	session, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotFound
	}
	return session, nil
}

func (e *AttemptEngine) enterError(ctx context.Context, session *AttemptSession, message string) (*AttemptState, error) {
	session.Phase = PhaseError
	session.Message = message
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, backendErr("session_save", err)
	}
	return buildState(session), nil
}

func findQuestion(quiz *models.Quiz, questionID string) *models.Question {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			return &quiz.Questions[i]
		}
	}
	return nil
}

func hasOption(question *models.Question, optionID string) bool {
	for _, option := range question.Options {
		if option.ID == optionID {
			return true
		}
	}
	return false
}
