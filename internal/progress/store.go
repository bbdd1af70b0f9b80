package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

type lessonKey struct {
	learnerID string
	lessonID  string
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	rows map[lessonKey]*Progress
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[lessonKey]*Progress),
	}
}

// row returns the row for the key, creating it when absent. Callers hold mu.
func (s *MemoryStore) row(learnerID, lessonID, courseID string, at time.Time) *Progress {
	key := lessonKey{learnerID, lessonID}
	p, ok := s.rows[key]
	if !ok {
		p = &Progress{LearnerID: learnerID, LessonID: lessonID, CourseID: courseID, LastViewed: at}
		s.rows[key] = p
	}
	return p
}

func (s *MemoryStore) Touch(_ context.Context, learnerID, lessonID, courseID string, at time.Time) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.row(learnerID, lessonID, courseID, at)
	p.LastViewed = at
	return *p, nil
}

func (s *MemoryStore) MarkComplete(ctx context.Context, learnerID, lessonID, courseID string, at time.Time) (Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lessonKey{learnerID, lessonID}
	prev, existed := s.rows[key]
	var saved Progress
	if existed {
		saved = *prev
	}

	p := s.row(learnerID, lessonID, courseID, at)
	was := p.Completed
	p.Completed = true
	p.LastViewed = at

	txn.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		row, ok := s.rows[key]
		switch {
		case !ok:
		case !existed && row.TimeSpent == 0:
			delete(s.rows, key)
		case !existed:
			row.Completed = false
		default:
			row.Completed = saved.Completed
			row.LastViewed = saved.LastViewed
		}
	})
	return *p, was, nil
}

func (s *MemoryStore) AddTime(_ context.Context, learnerID, lessonID, courseID string, minutes int, at time.Time) (Progress, error) {
	if minutes < 0 {
		return Progress{}, apperror.Invalid("progress.AddTime", "minutes must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.row(learnerID, lessonID, courseID, at)
	p.TimeSpent += minutes
	return *p, nil
}

func (s *MemoryStore) Get(_ context.Context, learnerID, lessonID string) (Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.rows[lessonKey{learnerID, lessonID}]
	if !ok {
		return Progress{}, apperror.NotFound("progress.Get", "no progress for learner %s on lesson %s", learnerID, lessonID)
	}
	return *p, nil
}

func (s *MemoryStore) CountCompleted(_ context.Context, learnerID, courseID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.rows {
		if p.LearnerID == learnerID && p.CourseID == courseID && p.Completed {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ClearCompleted(_ context.Context, learnerID, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.rows {
		if p.LearnerID == learnerID && p.CourseID == courseID {
			p.Completed = false
		}
	}
	return nil
}

func (s *MemoryStore) TimeSpentByLearner(_ context.Context, courseID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, p := range s.rows {
		if p.CourseID == courseID {
			out[p.LearnerID] += p.TimeSpent
		}
	}
	return out, nil
}

func (s *MemoryStore) RecentlyViewed(_ context.Context, learnerID string, limit int) ([]Progress, error) {
	s.mu.RLock()
	out := []Progress{}
	for _, p := range s.rows {
		if p.LearnerID == learnerID {
			out = append(out, *p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastViewed.Equal(out[j].LastViewed) {
			return out[i].LastViewed.After(out[j].LastViewed)
		}
		return out[i].LessonID < out[j].LessonID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
