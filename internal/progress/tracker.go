package progress

import (
	"context"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

// Enrollments is the tracker's view of the enrollment ledger.
type Enrollments interface {
	SyncWith(ctx context.Context, learnerID, courseID string, write func(ctx context.Context) error) (enrollment.Enrollment, error)
}

// Tracker applies lesson progress rules.
type Tracker struct {
	store  Store
	graph  content.Graph
	ledger Enrollments
	events events.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithEvents sets the event logger. Defaults to a no-op.
func WithEvents(logger events.Logger) Option {
	return func(t *Tracker) { t.events = logger }
}

// NewTracker creates a tracker.
func NewTracker(store Store, graph content.Graph, ledger Enrollments, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		graph:  graph,
		ledger: ledger,
		events: events.NopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordView notes that the learner opened the lesson. It never changes
// completion state.
func (t *Tracker) RecordView(ctx context.Context, learnerID, lessonID string) (Progress, error) {
	lesson, err := t.lesson("progress.RecordView", lessonID)
	if err != nil {
		return Progress{}, err
	}

	p, err := t.store.Touch(ctx, learnerID, lessonID, lesson.CourseID, t.now())
	if err != nil {
		return Progress{}, err
	}

	events.Emit(ctx, t.events, events.Event{
		LearnerID: learnerID,
		Type:      events.LessonViewed,
		Data:      map[string]any{"lesson_id": lessonID, "course_id": lesson.CourseID},
	})
	return p, nil
}

// MarkComplete marks the lesson completed and recomputes the learner's
// enrollment in its course, as one unit under the enrollment's lock. The
// learner must be enrolled. Completing an already completed lesson only
// refreshes LastViewed.
func (t *Tracker) MarkComplete(ctx context.Context, learnerID, lessonID string) (enrollment.Enrollment, error) {
	lesson, err := t.lesson("progress.MarkComplete", lessonID)
	if err != nil {
		return enrollment.Enrollment{}, err
	}

	return t.ledger.SyncWith(ctx, learnerID, lesson.CourseID, func(ctx context.Context) error {
		_, wasCompleted, err := t.store.MarkComplete(ctx, learnerID, lessonID, lesson.CourseID, t.now())
		if err != nil {
			return err
		}
		if !wasCompleted {
			txn.AfterCommit(ctx, func() {
				events.Emit(ctx, t.events, events.Event{
					LearnerID: learnerID,
					Type:      events.LessonCompleted,
					Data:      map[string]any{"lesson_id": lessonID, "course_id": lesson.CourseID},
				})
			})
		}
		return nil
	})
}

// AddTimeSpent accumulates minutes on the lesson.
func (t *Tracker) AddTimeSpent(ctx context.Context, learnerID, lessonID string, minutes int) (Progress, error) {
	const op = "progress.AddTimeSpent"

	if minutes < 0 {
		return Progress{}, apperror.Invalid(op, "minutes must not be negative, got %d", minutes)
	}
	lesson, err := t.lesson(op, lessonID)
	if err != nil {
		return Progress{}, err
	}
	return t.store.AddTime(ctx, learnerID, lessonID, lesson.CourseID, minutes, t.now())
}

// Get returns the learner's record for a lesson.
func (t *Tracker) Get(ctx context.Context, learnerID, lessonID string) (Progress, error) {
	return t.store.Get(ctx, learnerID, lessonID)
}

// RecentlyViewed returns the learner's most recently viewed lessons.
func (t *Tracker) RecentlyViewed(ctx context.Context, learnerID string, limit int) ([]Progress, error) {
	return t.store.RecentlyViewed(ctx, learnerID, limit)
}

// TimeSpentByLearner sums minutes per learner across the course's lessons.
func (t *Tracker) TimeSpentByLearner(ctx context.Context, courseID string) (map[string]int, error) {
	return t.store.TimeSpentByLearner(ctx, courseID)
}

func (t *Tracker) lesson(op, lessonID string) (content.Lesson, error) {
	lesson, ok := t.graph.Lesson(lessonID)
	if !ok {
		return content.Lesson{}, apperror.NotFound(op, "lesson %s not found", lessonID)
	}
	if _, ok := t.graph.Course(lesson.CourseID); !ok {
		return content.Lesson{}, apperror.NotFound(op, "course %s not found", lesson.CourseID)
	}
	return lesson, nil
}
