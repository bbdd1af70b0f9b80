// Package assessment grades quiz submissions and converts each graded
// attempt into reward points.
//
// Points follow the quiz's per-attempt schedule ("attempt1", "attempt2", ...)
// and are granted for participation, independent of the score. Attempts
// beyond the schedule earn nothing.
package assessment

import (
	"sort"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/content"
)

// Answers maps a question id to the chosen option id.
type Answers map[string]string

// QuestionResult is the outcome of one question.
type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Chosen     string `json:"chosen,omitempty"`
	Correct    bool   `json:"correct"`
}

// Result is the pure grading outcome of a submission.
type Result struct {
	Correct   int              `json:"correct"`
	Total     int              `json:"total"`
	Score     float64          `json:"score"`
	Questions []QuestionResult `json:"questions"`
}

// Score grades answers against the quiz's answer key. Unanswered questions
// are wrong. A quiz without questions scores 0. Answers naming a question
// outside the quiz, or an option outside its question, are InvalidInput.
func Score(quiz content.Quiz, answers Answers) (Result, error) {
	const op = "assessment.Score"

	// Check in a stable order so the reported id is deterministic.
	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		q, ok := quiz.Question(id)
		if !ok {
			return Result{}, apperror.Invalid(op, "question %s is not part of quiz %s", id, quiz.ID)
		}
		if !q.HasOption(answers[id]) {
			return Result{}, apperror.Invalid(op, "option %q is not an option of question %s", answers[id], id)
		}
	}

	res := Result{
		Total:     len(quiz.Questions),
		Questions: make([]QuestionResult, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		chosen, answered := answers[q.ID]
		correct := answered && q.IsCorrect(chosen)
		if correct {
			res.Correct++
		}
		res.Questions = append(res.Questions, QuestionResult{QuestionID: q.ID, Chosen: chosen, Correct: correct})
	}
	if res.Total > 0 {
		res.Score = float64(res.Correct) / float64(res.Total)
	}
	return res, nil
}
