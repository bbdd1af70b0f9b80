// Package progress records lesson consumption: views, completions and time
// spent. Completing a lesson triggers a progress recompute of the learner's
// enrollment in the lesson's course.
//
// The store also implements enrollment.LessonFacts. The ledger uses it to
// count completions and, on a fresh enrollment, to clear a course's
// completion flags.
package progress

import (
	"context"
	"time"
)

// Progress is one learner's record for one lesson. TimeSpent is in minutes
// and never decreases.
type Progress struct {
	LearnerID  string    `json:"learner_id"`
	LessonID   string    `json:"lesson_id"`
	CourseID   string    `json:"course_id"`
	Completed  bool      `json:"completed"`
	TimeSpent  int       `json:"time_spent"`
	LastViewed time.Time `json:"last_viewed"`
}

// Store persists lesson progress. Writes create the row when absent.
type Store interface {
	// Touch creates the row if needed and sets LastViewed.
	Touch(ctx context.Context, learnerID, lessonID, courseID string, at time.Time) (Progress, error)
	// MarkComplete sets Completed and LastViewed. wasCompleted reports the
	// flag before the call.
	MarkComplete(ctx context.Context, learnerID, lessonID, courseID string, at time.Time) (p Progress, wasCompleted bool, err error)
	// AddTime adds minutes to TimeSpent.
	AddTime(ctx context.Context, learnerID, lessonID, courseID string, minutes int, at time.Time) (Progress, error)
	// Get returns NotFound when the learner never touched the lesson.
	Get(ctx context.Context, learnerID, lessonID string) (Progress, error)
	CountCompleted(ctx context.Context, learnerID, courseID string) (int, error)
	ClearCompleted(ctx context.Context, learnerID, courseID string) error
	// TimeSpentByLearner sums TimeSpent per learner over the course's lessons.
	TimeSpentByLearner(ctx context.Context, courseID string) (map[string]int, error)
	// RecentlyViewed returns the learner's rows, most recently viewed first.
	RecentlyViewed(ctx context.Context, learnerID string, limit int) ([]Progress, error)
}
