package services

import (
	"math"
)

// AttemptState is the view handed to clients. Everything here is recomputed
// from the session; nothing is stored.
type AttemptState struct {
	SessionID            string              `json:"session_id"`
	QuizID               string              `json:"quiz_id"`
	QuizTitle            string              `json:"quiz_title,omitempty"`
	AttemptID            string              `json:"attempt_id,omitempty"`
	Demo                 bool                `json:"demo"`
	Phase                string              `json:"phase"`
	Message              string              `json:"message,omitempty"`
	CurrentQuestionIndex int                 `json:"current_question_index"`
	CurrentQuestion      *QuestionView       `json:"current_question,omitempty"`
	TotalQuestions       int                 `json:"total_questions"`
	CanGoNext            bool                `json:"can_go_next"`
	CanGoPrevious        bool                `json:"can_go_previous"`
	IsFirst              bool                `json:"is_first"`
	IsLast               bool                `json:"is_last"`
	Answers              map[string][]string `json:"answers"`
	Progress             Progress            `json:"progress"`
	Result               *QuizResult         `json:"result,omitempty"`
}

type QuestionView struct {
	ID       string       `json:"id"`
	Content  string       `json:"content"`
	Position int          `json:"position"`
	Options  []OptionView `json:"options"`
}

type OptionView struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	// is_correct is never exposed while taking
}

type Progress struct {
	Answered   int `json:"answered"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// QuizResult only materializes once the phase is completed and a score
// exists.
type QuizResult struct {
	Score          int `json:"score"`
	TotalQuestions int `json:"total_questions"`
	Percentage     int `json:"percentage"`
}

func buildState(session *AttemptSession) *AttemptState {
	state := &AttemptState{
		SessionID:            session.ID,
		QuizID:               session.QuizID,
		AttemptID:            session.AttemptID,
		Demo:                 session.Demo,
		Phase:                session.Phase,
		Message:              session.Message,
		CurrentQuestionIndex: session.CurrentIndex,
		Answers:              session.Answers,
	}
	if session.Quiz == nil {
		return state
	}

	total := len(session.Quiz.Questions)
	state.QuizTitle = session.Quiz.Title
	state.TotalQuestions = total
	state.IsFirst = session.CurrentIndex == 0
	state.IsLast = session.CurrentIndex == total-1
	state.CanGoPrevious = !state.IsFirst
	state.CanGoNext = !state.IsLast

	if session.Phase == PhaseTaking && session.CurrentIndex >= 0 && session.CurrentIndex < total {
		question := session.Quiz.Questions[session.CurrentIndex]
		view := &QuestionView{
			ID:       question.ID,
			Content:  question.Content,
			Position: question.Position,
		}
		for _, option := range question.Options {
			view.Options = append(view.Options, OptionView{ID: option.ID, Content: option.Content})
		}
		state.CurrentQuestion = view
	}

	answered := 0
	for _, selected := range session.Answers {
		if len(selected) > 0 {
			answered++
		}
	}
	state.Progress = Progress{
		Answered:   answered,
		Total:      total,
		Percentage: percentage(answered, total),
	}

	if session.Phase == PhaseCompleted && session.Score != nil {
		state.Result = &QuizResult{
			Score:          *session.Score,
			TotalQuestions: total,
			Percentage:     percentage(*session.Score, total),
		}
	}
	return state
}

func percentage(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
