package enrollment

import (
	"context"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/lock"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

// Ledger applies enrollment rules. Every mutation of a pair runs under the
// pair's enrollment lock.
type Ledger struct {
	store  Store
	facts  LessonFacts
	graph  content.Graph
	locker lock.Locker
	tx     txn.Runner
	events events.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the ledger's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithEvents sets the event logger. Defaults to a no-op.
func WithEvents(logger events.Logger) Option {
	return func(l *Ledger) { l.events = logger }
}

// WithTx sets the runner that makes a lesson write and its recompute one
// unit. Defaults to txn.Memory, which suits the in-memory stores.
func WithTx(runner txn.Runner) Option {
	return func(l *Ledger) { l.tx = runner }
}

// NewLedger creates a ledger.
func NewLedger(store Store, facts LessonFacts, graph content.Graph, locker lock.Locker, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		facts:  facts,
		graph:  graph,
		locker: locker,
		tx:     txn.Memory{},
		events: events.NopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enroll creates an ACTIVE enrollment at 0%. Any existing enrollment for the
// pair, including a DROPPED one, is a Conflict.
func (l *Ledger) Enroll(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	const op = "enrollment.Enroll"

	if err := l.checkEnrollable(op, courseID); err != nil {
		return Enrollment{}, err
	}

	unlock, err := l.locker.Lock(ctx, lock.EnrollmentKey(learnerID, courseID))
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	defer unlock()

	e := Enrollment{
		LearnerID:  learnerID,
		CourseID:   courseID,
		Status:     StatusActive,
		EnrolledAt: l.now(),
	}
	if err := l.store.Create(ctx, e); err != nil {
		return Enrollment{}, err
	}

	events.Emit(ctx, l.events, events.Event{
		LearnerID: learnerID,
		Type:      events.Enrolled,
		Data:      map[string]any{"course_id": courseID},
	})
	return e, nil
}

// Drop moves the enrollment to DROPPED from any status. The percentage is
// left as is.
func (l *Ledger) Drop(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	const op = "enrollment.Drop"

	unlock, err := l.locker.Lock(ctx, lock.EnrollmentKey(learnerID, courseID))
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	defer unlock()

	e, err := l.store.Get(ctx, learnerID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if e.Status == StatusDropped {
		return e, nil
	}

	e.Status = StatusDropped
	if err := l.store.Update(ctx, e); err != nil {
		return Enrollment{}, err
	}

	events.Emit(ctx, l.events, events.Event{
		LearnerID: learnerID,
		Type:      events.Dropped,
		Data:      map[string]any{"course_id": courseID},
	})
	return e, nil
}

// Reactivate returns a DROPPED enrollment to ACTIVE. The learner's lesson
// facts are kept and progress is recomputed at once, so a course whose
// lessons are all complete comes back COMPLETED.
func (l *Ledger) Reactivate(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	const op = "enrollment.Reactivate"

	if err := l.checkEnrollable(op, courseID); err != nil {
		return Enrollment{}, err
	}

	unlock, err := l.locker.Lock(ctx, lock.EnrollmentKey(learnerID, courseID))
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	defer unlock()

	e, err := l.store.Get(ctx, learnerID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if e.Status != StatusDropped {
		return Enrollment{}, apperror.Conflict(op, "enrollment in %s is %s, not DROPPED", courseID, e.Status)
	}

	completed, err := l.facts.CountCompleted(ctx, learnerID, courseID)
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}

	firstCompleted := e.CompletedAt
	e.Status = StatusActive
	e.CompletedAt = nil
	e = applyProgress(e, completed, l.graph.LessonCount(courseID), l.now())
	if e.Status == StatusCompleted && firstCompleted != nil {
		e.CompletedAt = firstCompleted
	}
	if err := l.store.Update(ctx, e); err != nil {
		return Enrollment{}, err
	}

	events.Emit(ctx, l.events, events.Event{
		LearnerID: learnerID,
		Type:      events.Reactivated,
		Data:      map[string]any{"course_id": courseID, "progress": e.ProgressPercentage},
	})
	if e.Status == StatusCompleted {
		l.emitCompleted(ctx, e)
	}
	return e, nil
}

// EnrollFresh starts the course over: a DROPPED enrollment is replaced by a
// new ACTIVE one at 0% and the course's completion flags are cleared. With no
// existing enrollment it behaves like Enroll. ACTIVE and COMPLETED
// enrollments are a Conflict.
func (l *Ledger) EnrollFresh(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	const op = "enrollment.EnrollFresh"

	if err := l.checkEnrollable(op, courseID); err != nil {
		return Enrollment{}, err
	}

	unlock, err := l.locker.Lock(ctx, lock.EnrollmentKey(learnerID, courseID))
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	defer unlock()

	existing, err := l.store.Get(ctx, learnerID, courseID)
	switch {
	case err == nil && existing.Status != StatusDropped:
		return Enrollment{}, apperror.Conflict(op, "enrollment in %s is %s, not DROPPED", courseID, existing.Status)
	case err != nil && !apperror.Is(err, apperror.KindNotFound):
		return Enrollment{}, err
	}

	if err := l.facts.ClearCompleted(ctx, learnerID, courseID); err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}

	e := Enrollment{
		LearnerID:  learnerID,
		CourseID:   courseID,
		Status:     StatusActive,
		EnrolledAt: l.now(),
	}
	if err := l.store.Replace(ctx, e); err != nil {
		return Enrollment{}, err
	}

	events.Emit(ctx, l.events, events.Event{
		LearnerID: learnerID,
		Type:      events.EnrolledFresh,
		Data:      map[string]any{"course_id": courseID},
	})
	return e, nil
}

// RecomputeProgress sets the percentage from explicit counts. Reaching 100
// completes an ACTIVE enrollment; nothing ever reverts COMPLETED. Calling it
// twice with the same counts leaves the same state.
func (l *Ledger) RecomputeProgress(ctx context.Context, learnerID, courseID string, completed, total int) (Enrollment, error) {
	const op = "enrollment.RecomputeProgress"

	if completed < 0 || total < 0 {
		return Enrollment{}, apperror.Invalid(op, "lesson counts must not be negative")
	}

	unlock, err := l.locker.Lock(ctx, lock.EnrollmentKey(learnerID, courseID))
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	defer unlock()

	return l.recompute(ctx, learnerID, courseID, completed, total)
}

// Sync recomputes progress from the learner's current lesson facts. The
// count is read under the pair's lock, so the last writer always sees every
// completion that preceded it.
func (l *Ledger) Sync(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	const op = "enrollment.Sync"

	unlock, err := l.locker.Lock(ctx, lock.EnrollmentKey(learnerID, courseID))
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	defer unlock()

	completed, err := l.facts.CountCompleted(ctx, learnerID, courseID)
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	return l.recompute(ctx, learnerID, courseID, completed, l.graph.LessonCount(courseID))
}

// SyncWith runs write and the progress recompute as one unit under the
// pair's lock. The enrollment must exist before write runs. When any step
// fails, write's changes are not kept either.
func (l *Ledger) SyncWith(ctx context.Context, learnerID, courseID string, write func(ctx context.Context) error) (Enrollment, error) {
	const op = "enrollment.SyncWith"

	unlock, err := l.locker.Lock(ctx, lock.EnrollmentKey(learnerID, courseID))
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	defer unlock()

	var out Enrollment
	err = l.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := l.store.Get(ctx, learnerID, courseID); err != nil {
			return err
		}
		if err := write(ctx); err != nil {
			return err
		}
		completed, err := l.facts.CountCompleted(ctx, learnerID, courseID)
		if err != nil {
			return err
		}
		out, err = l.recompute(ctx, learnerID, courseID, completed, l.graph.LessonCount(courseID))
		return err
	})
	if err != nil {
		return Enrollment{}, apperror.Internal(op, err)
	}
	return out, nil
}

func (l *Ledger) recompute(ctx context.Context, learnerID, courseID string, completed, total int) (Enrollment, error) {
	e, err := l.store.Get(ctx, learnerID, courseID)
	if err != nil {
		return Enrollment{}, err
	}

	next := applyProgress(e, completed, total, l.now())
	if next.Status == e.Status && next.ProgressPercentage == e.ProgressPercentage {
		return e, nil
	}
	if err := l.store.Update(ctx, next); err != nil {
		return Enrollment{}, err
	}

	if e.Status != StatusCompleted && next.Status == StatusCompleted {
		l.emitCompleted(ctx, next)
	}
	return next, nil
}

func (l *Ledger) emitCompleted(ctx context.Context, e Enrollment) {
	txn.AfterCommit(ctx, func() {
		events.Emit(ctx, l.events, events.Event{
			LearnerID: e.LearnerID,
			Type:      events.CourseCompleted,
			Data:      map[string]any{"course_id": e.CourseID},
		})
	})
}

// Get returns the enrollment for the pair.
func (l *Ledger) Get(ctx context.Context, learnerID, courseID string) (Enrollment, error) {
	return l.store.Get(ctx, learnerID, courseID)
}

// ListByLearner returns the learner's enrollments.
func (l *Ledger) ListByLearner(ctx context.Context, learnerID string) ([]Enrollment, error) {
	return l.store.ListByLearner(ctx, learnerID)
}

// ListByCourse returns the course's enrollments.
func (l *Ledger) ListByCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	return l.store.ListByCourse(ctx, courseID)
}

// All returns every enrollment.
func (l *Ledger) All(ctx context.Context) ([]Enrollment, error) {
	return l.store.All(ctx)
}

// Recent returns the newest enrollments.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Enrollment, error) {
	return l.store.Recent(ctx, limit)
}

// Stats returns ledger-wide counts.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	return l.store.Stats(ctx)
}

func (l *Ledger) checkEnrollable(op, courseID string) error {
	course, ok := l.graph.Course(courseID)
	if !ok {
		return apperror.NotFound(op, "course %s not found", courseID)
	}
	if !course.Open() {
		return apperror.Conflict(op, "course %s is closed for enrollment", courseID)
	}
	return nil
}
