package services

import (
	"fmt"
	"strings"

	"quizdeck/models"
)

type PublishValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateForPublishing collects every violation instead of stopping at the
// first one, so the editor can show all problems at once. Error strings are
// positional ("Question 2, option 1 ...").
func ValidateForPublishing(quiz *models.Quiz) PublishValidation {
	var errs []string

	if strings.TrimSpace(quiz.Title) == "" {
		errs = append(errs, "Quiz must have a title")
	}

	if len(quiz.Questions) == 0 {
		errs = append(errs, "Quiz must have at least one question")
	}

	for i, question := range quiz.Questions {
		if strings.TrimSpace(question.Content) == "" {
			errs = append(errs, fmt.Sprintf("Question %d must have content", i+1))
		}

		if len(question.Options) < 2 {
			errs = append(errs, fmt.Sprintf("Question %d must have at least 2 options", i+1))
		}

		correctCount := 0
		for j, option := range question.Options {
			if strings.TrimSpace(option.Content) == "" {
				errs = append(errs, fmt.Sprintf("Question %d, option %d must have content", i+1, j+1))
			}
			if option.IsCorrect {
				correctCount++
			}
		}
		if correctCount == 0 {
			errs = append(errs, fmt.Sprintf("Question %d must have at least one correct option", i+1))
		}
	}

	return PublishValidation{Valid: len(errs) == 0, Errors: errs}
}

// statusTransitions is the full lifecycle state machine. Anything not listed
// here, including self-transitions and unknown strings, is illegal.
var statusTransitions = map[string][]string{
	models.StatusDraft:    {models.StatusPublic, models.StatusArchived},
	models.StatusPublic:   {models.StatusDraft, models.StatusPrivate, models.StatusArchived},
	models.StatusPrivate:  {models.StatusDraft, models.StatusPublic, models.StatusArchived},
	models.StatusArchived: {models.StatusDraft},
}

// IsValidStatusTransition compares exact strings: no trimming, no case
// folding.
func IsValidStatusTransition(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
