package assessment_test

import (
	"testing"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/assessment"
	"github.com/p-n-ai/pai-learn/internal/content"
)

func sampleQuiz() content.Quiz {
	return content.Quiz{
		ID: "q1",
		Questions: []content.Question{
			{ID: "a", Options: []content.Option{{ID: "1"}, {ID: "2"}}, Correct: []string{"1"}},
			{ID: "b", Options: []content.Option{{ID: "1"}, {ID: "2"}, {ID: "3"}}, Correct: []string{"2", "3"}},
			{ID: "c", Options: []content.Option{{ID: "x"}, {ID: "y"}}, Correct: []string{"y"}},
			{ID: "d", Options: []content.Option{{ID: "t"}, {ID: "f"}}, Correct: []string{"t"}},
		},
		Rewards: map[string]int{"attempt1": 10, "attempt2": 5},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		answers     assessment.Answers
		wantCorrect int
		wantScore   float64
	}{
		{"all correct", assessment.Answers{"a": "1", "b": "2", "c": "y", "d": "t"}, 4, 1},
		{"three of four", assessment.Answers{"a": "1", "b": "3", "c": "y", "d": "f"}, 3, 0.75},
		{"unanswered count as wrong", assessment.Answers{"a": "1"}, 1, 0.25},
		{"empty submission", assessment.Answers{}, 0, 0},
		{"nil submission", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := assessment.Score(sampleQuiz(), tt.answers)
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if res.Correct != tt.wantCorrect || res.Total != 4 {
				t.Errorf("Score() = %d/%d, want %d/4", res.Correct, res.Total, tt.wantCorrect)
			}
			if res.Score != tt.wantScore {
				t.Errorf("Score() score = %v, want %v", res.Score, tt.wantScore)
			}
			if len(res.Questions) != 4 {
				t.Errorf("Score() questions = %d, want 4", len(res.Questions))
			}
		})
	}
}

func TestScore_ZeroQuestions(t *testing.T) {
	res, err := assessment.Score(content.Quiz{ID: "empty"}, assessment.Answers{})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if res.Score != 0 || res.Total != 0 {
		t.Errorf("Score() = %+v, want zero", res)
	}
}

func TestScore_InvalidAnswers(t *testing.T) {
	tests := []struct {
		name    string
		answers assessment.Answers
	}{
		{"unknown question", assessment.Answers{"zz": "1"}},
		{"option of another question", assessment.Answers{"a": "y"}},
		{"empty option", assessment.Answers{"a": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assessment.Score(sampleQuiz(), tt.answers)
			if !apperror.Is(err, apperror.KindInvalidInput) {
				t.Errorf("Score() error = %v, want invalid input", err)
			}
		})
	}
}
