// Package enrollment owns the learner-course relationship: its status and
// the cached completion percentage.
//
// The percentage is a materialized view over the learner's completed-lesson
// facts. It is only ever written by recomputation under the per-(learner,
// course) lock, so concurrent completions cannot store a stale value.
package enrollment

import (
	"context"
	"math"
	"time"
)

// Status is the lifecycle state of an enrollment.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusDropped   Status = "DROPPED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusDropped:
		return true
	}
	return false
}

// Enrollment binds a learner to a course.
type Enrollment struct {
	LearnerID          string     `json:"learner_id"`
	CourseID           string     `json:"course_id"`
	Status             Status     `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	EnrolledAt         time.Time  `json:"enrolled_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Stats are ledger-wide counts.
type Stats struct {
	Enrollments int
	Active      int
	Learners    int
}

// Store persists enrollments.
type Store interface {
	// Create inserts a new enrollment; an existing pair is a Conflict.
	Create(ctx context.Context, e Enrollment) error
	// Get returns NotFound when the pair has no enrollment.
	Get(ctx context.Context, learnerID, courseID string) (Enrollment, error)
	// Update overwrites an existing enrollment; NotFound when absent.
	Update(ctx context.Context, e Enrollment) error
	// Replace inserts or overwrites the enrollment for the pair.
	Replace(ctx context.Context, e Enrollment) error
	ListByLearner(ctx context.Context, learnerID string) ([]Enrollment, error)
	ListByCourse(ctx context.Context, courseID string) ([]Enrollment, error)
	// All returns every enrollment ordered by learner then course.
	All(ctx context.Context) ([]Enrollment, error)
	// Recent returns the newest enrollments, newest first.
	Recent(ctx context.Context, limit int) ([]Enrollment, error)
	Stats(ctx context.Context) (Stats, error)
}

// LessonFacts exposes the progress tracker's completion facts to the ledger.
type LessonFacts interface {
	// CountCompleted counts the learner's completed lessons in the course.
	CountCompleted(ctx context.Context, learnerID, courseID string) (int, error)
	// ClearCompleted resets the course's completion flags for the learner.
	// Time spent is kept.
	ClearCompleted(ctx context.Context, learnerID, courseID string) error
}

// Percentage is round(100 * completed / total), clamped to [0, 100].
// A course with no lessons is at 0.
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(completed) / float64(total)))
	if p > 100 {
		return 100
	}
	return p
}

// applyProgress derives the next state of e from the completion counts.
// COMPLETED is one-way and stays pinned at 100; DROPPED rows only track the
// percentage.
func applyProgress(e Enrollment, completed, total int, now time.Time) Enrollment {
	if e.Status == StatusCompleted {
		e.ProgressPercentage = 100
		return e
	}

	e.ProgressPercentage = Percentage(completed, total)
	if e.ProgressPercentage == 100 && e.Status == StatusActive {
		e.Status = StatusCompleted
		completedAt := now
		e.CompletedAt = &completedAt
	}
	return e
}
