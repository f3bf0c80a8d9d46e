package services

import "quizdeck/models"

// CalculateScore counts questions whose selected-option set exactly equals
// the correct-option set. No partial credit: a subset or superset of a
// multi-correct question's answers scores zero for that question, and an
// unanswered question never matches. The result is a raw count, not a
// percentage.
func CalculateScore(quiz *models.Quiz, answers map[string][]string) int {
	score := 0
	for _, question := range quiz.Questions {
		if questionAnsweredCorrectly(&question, answers[question.ID]) {
			score++
		}
	}
	return score
}

func questionAnsweredCorrectly(question *models.Question, selected []string) bool {
	correct := make(map[string]bool)
	for _, option := range question.Options {
		if option.IsCorrect {
			correct[option.ID] = true
		}
	}

	chosen := make(map[string]bool)
	for _, id := range selected {
		chosen[id] = true
	}

	if len(chosen) != len(correct) || len(correct) == 0 {
		return false
	}
	for id := range chosen {
		if !correct[id] {
			return false
		}
	}
	return true
}
