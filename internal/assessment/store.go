package assessment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

// Attempt is a persisted graded attempt.
type Attempt struct {
	ID           string    `json:"id"`
	LearnerID    string    `json:"learner_id"`
	QuizID       string    `json:"quiz_id"`
	Number       int       `json:"attempt_number"`
	Correct      int       `json:"correct"`
	Total        int       `json:"total"`
	Score        float64   `json:"score"`
	RewardPoints int       `json:"reward_points"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Store persists graded attempts.
type Store interface {
	// Count returns the number of graded attempts.
	Count(ctx context.Context, learnerID, quizID string) (int, error)
	// Record stores the attempt. A reused attempt number is a Conflict.
	Record(ctx context.Context, a Attempt) error
	List(ctx context.Context, learnerID, quizID string) ([]Attempt, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
}

// NewMemoryStore creates a new in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]Attempt)}
}

func (s *MemoryStore) Count(_ context.Context, learnerID, quizID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.attempts {
		if a.LearnerID == learnerID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Record(ctx context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.attempts {
		if existing.LearnerID == a.LearnerID && existing.QuizID == a.QuizID && existing.Number == a.Number {
			return apperror.Conflict("assessment.Record", "attempt %d on quiz %s already graded", a.Number, a.QuizID)
		}
	}
	s.attempts[a.ID] = a

	txn.OnRollback(ctx, func() {
		s.mu.Lock()
		delete(s.attempts, a.ID)
		s.mu.Unlock()
	})
	return nil
}

func (s *MemoryStore) List(_ context.Context, learnerID, quizID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Attempt{}
	for _, a := range s.attempts {
		if a.LearnerID == learnerID && a.QuizID == quizID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
