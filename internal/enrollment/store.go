package enrollment

import (
	"context"
	"sort"
	"sync"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

type pairKey struct {
	learnerID string
	courseID  string
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	enrollments map[pairKey]Enrollment
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory enrollment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		enrollments: make(map[pairKey]Enrollment),
	}
}

func (s *MemoryStore) Create(_ context.Context, e Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{e.LearnerID, e.CourseID}
	if _, exists := s.enrollments[key]; exists {
		return apperror.Conflict("enrollment.Create", "learner %s is already enrolled in %s", e.LearnerID, e.CourseID)
	}
	s.enrollments[key] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, learnerID, courseID string) (Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[pairKey{learnerID, courseID}]
	if !ok {
		return Enrollment{}, notFound("enrollment.Get", learnerID, courseID)
	}
	return e, nil
}

func (s *MemoryStore) Update(ctx context.Context, e Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{e.LearnerID, e.CourseID}
	prev, ok := s.enrollments[key]
	if !ok {
		return notFound("enrollment.Update", e.LearnerID, e.CourseID)
	}
	s.enrollments[key] = e

	txn.OnRollback(ctx, func() {
		s.mu.Lock()
		s.enrollments[key] = prev
		s.mu.Unlock()
	})
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, e Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enrollments[pairKey{e.LearnerID, e.CourseID}] = e
	return nil
}

func (s *MemoryStore) ListByLearner(_ context.Context, learnerID string) ([]Enrollment, error) {
	return s.filter(func(e Enrollment) bool { return e.LearnerID == learnerID }), nil
}

func (s *MemoryStore) ListByCourse(_ context.Context, courseID string) ([]Enrollment, error) {
	return s.filter(func(e Enrollment) bool { return e.CourseID == courseID }), nil
}

func (s *MemoryStore) All(_ context.Context) ([]Enrollment, error) {
	return s.filter(func(Enrollment) bool { return true }), nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Enrollment, error) {
	all := s.filter(func(Enrollment) bool { return true })
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].EnrolledAt.After(all[j].EnrolledAt)
	})
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	learners := make(map[string]struct{})
	var st Stats
	for _, e := range s.enrollments {
		st.Enrollments++
		if e.Status == StatusActive {
			st.Active++
		}
		learners[e.LearnerID] = struct{}{}
	}
	st.Learners = len(learners)
	return st, nil
}

// filter returns matching enrollments ordered by learner then course.
func (s *MemoryStore) filter(match func(Enrollment) bool) []Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Enrollment{}
	for _, e := range s.enrollments {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LearnerID != out[j].LearnerID {
			return out[i].LearnerID < out[j].LearnerID
		}
		return out[i].CourseID < out[j].CourseID
	})
	return out
}

func notFound(op, learnerID, courseID string) error {
	return apperror.NotFound(op, "learner %s is not enrolled in %s", learnerID, courseID)
}
