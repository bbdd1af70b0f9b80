package enrollment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/lock"
)

// fakeFacts is an in-memory LessonFacts keyed by learner and course.
type fakeFacts struct {
	mu        sync.Mutex
	completed map[string]int
	cleared   []string
}

func newFakeFacts() *fakeFacts {
	return &fakeFacts{completed: make(map[string]int)}
}

func (f *fakeFacts) set(learnerID, courseID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[learnerID+"/"+courseID] = n
}

func (f *fakeFacts) CountCompleted(_ context.Context, learnerID, courseID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed[learnerID+"/"+courseID], nil
}

func (f *fakeFacts) ClearCompleted(_ context.Context, learnerID, courseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.completed, learnerID+"/"+courseID)
	f.cleared = append(f.cleared, learnerID+"/"+courseID)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestCatalog(t *testing.T) *content.Catalog {
	t.Helper()
	catalog, err := content.New(
		content.Course{ID: "two", Lessons: []content.Lesson{{ID: "two-1"}, {ID: "two-2"}}},
		content.Course{ID: "three", Lessons: []content.Lesson{{ID: "three-1"}, {ID: "three-2"}, {ID: "three-3"}}},
		content.Course{ID: "empty"},
		content.Course{ID: "closed", Closed: true, Lessons: []content.Lesson{{ID: "closed-1"}}},
	)
	if err != nil {
		t.Fatalf("content.New() error = %v", err)
	}
	return catalog
}

type fixture struct {
	ledger *enrollment.Ledger
	store  *enrollment.MemoryStore
	facts  *fakeFacts
	log    *events.MemoryLogger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		store: enrollment.NewMemoryStore(),
		facts: newFakeFacts(),
		log:   events.NewMemoryLogger(),
	}
	f.ledger = enrollment.NewLedger(f.store, f.facts, newTestCatalog(t), lock.NewMemoryLocker(),
		enrollment.WithClock(func() time.Time { return fixedNow }),
		enrollment.WithEvents(f.log),
	)
	return f
}

func TestLedger_Enroll(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	e, err := f.ledger.Enroll(ctx, "l1", "two")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if e.Status != enrollment.StatusActive || e.ProgressPercentage != 0 {
		t.Errorf("Enroll() = %s %d%%, want ACTIVE 0%%", e.Status, e.ProgressPercentage)
	}
	if !e.EnrolledAt.Equal(fixedNow) {
		t.Errorf("EnrolledAt = %v, want %v", e.EnrolledAt, fixedNow)
	}
	if len(f.log.OfType(events.Enrolled)) != 1 {
		t.Error("expected one enrolled event")
	}
}

func TestLedger_Enroll_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	if _, err := f.ledger.Enroll(ctx, "l1", "two"); err != nil {
		t.Fatalf("first Enroll() error = %v", err)
	}

	tests := []struct {
		name     string
		courseID string
		want     apperror.Kind
	}{
		{"duplicate", "two", apperror.KindConflict},
		{"unknown course", "nope", apperror.KindNotFound},
		{"closed course", "closed", apperror.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Enroll(ctx, "l1", tt.courseID)
			if got := apperror.KindOf(err); got != tt.want {
				t.Errorf("Enroll() error kind = %q, want %q (err = %v)", got, tt.want, err)
			}
		})
	}
}

func TestLedger_Enroll_DroppedIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	mustEnroll(t, f.ledger, "l1", "two")
	if _, err := f.ledger.Drop(ctx, "l1", "two"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if _, err := f.ledger.Enroll(ctx, "l1", "two"); !apperror.Is(err, apperror.KindConflict) {
		t.Errorf("Enroll() after drop error = %v, want Conflict", err)
	}
}

func TestLedger_Enroll_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Enroll(ctx, "l1", "two")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperror.Is(err, apperror.KindConflict):
				conflicts++
			default:
				t.Errorf("Enroll() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != n-1 {
		t.Errorf("winners = %d, conflicts = %d; want 1 and %d", ok, conflicts, n-1)
	}
}

func TestLedger_Drop(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	if _, err := f.ledger.Drop(ctx, "l1", "two"); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("Drop() without enrollment error = %v, want NotFound", err)
	}

	mustEnroll(t, f.ledger, "l1", "two")
	f.facts.set("l1", "two", 2)
	if _, err := f.ledger.Sync(ctx, "l1", "two"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	// COMPLETED can be dropped; the percentage stays.
	e, err := f.ledger.Drop(ctx, "l1", "two")
	if err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if e.Status != enrollment.StatusDropped || e.ProgressPercentage != 100 {
		t.Errorf("Drop() = %s %d%%, want DROPPED 100%%", e.Status, e.ProgressPercentage)
	}
}

func TestLedger_TwoLessonScenario(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	mustEnroll(t, f.ledger, "l1", "two")

	e, err := f.ledger.RecomputeProgress(ctx, "l1", "two", 1, 2)
	if err != nil {
		t.Fatalf("RecomputeProgress(1/2) error = %v", err)
	}
	if e.ProgressPercentage != 50 || e.Status != enrollment.StatusActive {
		t.Errorf("after lesson 1 = %s %d%%, want ACTIVE 50%%", e.Status, e.ProgressPercentage)
	}

	e, err = f.ledger.RecomputeProgress(ctx, "l1", "two", 2, 2)
	if err != nil {
		t.Fatalf("RecomputeProgress(2/2) error = %v", err)
	}
	if e.ProgressPercentage != 100 || e.Status != enrollment.StatusCompleted {
		t.Errorf("after lesson 2 = %s %d%%, want COMPLETED 100%%", e.Status, e.ProgressPercentage)
	}
	if e.CompletedAt == nil || !e.CompletedAt.Equal(fixedNow) {
		t.Errorf("CompletedAt = %v, want %v", e.CompletedAt, fixedNow)
	}
	if len(f.log.OfType(events.CourseCompleted)) != 1 {
		t.Error("expected one course_completed event")
	}
}

func TestLedger_RecomputeProgress_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	mustEnroll(t, f.ledger, "l1", "three")

	first, err := f.ledger.RecomputeProgress(ctx, "l1", "three", 2, 3)
	if err != nil {
		t.Fatalf("RecomputeProgress() error = %v", err)
	}
	second, err := f.ledger.RecomputeProgress(ctx, "l1", "three", 2, 3)
	if err != nil {
		t.Fatalf("RecomputeProgress() error = %v", err)
	}
	if first.ProgressPercentage != 67 || second.ProgressPercentage != 67 || first.Status != second.Status {
		t.Errorf("recompute twice = %+v then %+v, want identical 67%%", first, second)
	}
}

func TestLedger_RecomputeProgress_NeverRevertsCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	mustEnroll(t, f.ledger, "l1", "two")

	if _, err := f.ledger.RecomputeProgress(ctx, "l1", "two", 2, 2); err != nil {
		t.Fatalf("RecomputeProgress() error = %v", err)
	}
	e, err := f.ledger.RecomputeProgress(ctx, "l1", "two", 1, 3)
	if err != nil {
		t.Fatalf("RecomputeProgress() error = %v", err)
	}
	if e.Status != enrollment.StatusCompleted || e.ProgressPercentage != 100 {
		t.Errorf("after shrink = %s %d%%, want COMPLETED 100%%", e.Status, e.ProgressPercentage)
	}
	if len(f.log.OfType(events.CourseCompleted)) != 1 {
		t.Error("course_completed should be emitted once")
	}
}

func TestLedger_RecomputeProgress_DroppedKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	mustEnroll(t, f.ledger, "l1", "two")
	if _, err := f.ledger.Drop(ctx, "l1", "two"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}

	e, err := f.ledger.RecomputeProgress(ctx, "l1", "two", 2, 2)
	if err != nil {
		t.Fatalf("RecomputeProgress() error = %v", err)
	}
	if e.Status != enrollment.StatusDropped || e.ProgressPercentage != 100 {
		t.Errorf("dropped recompute = %s %d%%, want DROPPED 100%%", e.Status, e.ProgressPercentage)
	}
}

func TestLedger_RecomputeProgress_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	if _, err := f.ledger.RecomputeProgress(ctx, "l1", "two", 1, 2); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("RecomputeProgress() without enrollment error = %v, want NotFound", err)
	}
	if _, err := f.ledger.RecomputeProgress(ctx, "l1", "two", -1, 2); !apperror.Is(err, apperror.KindInvalidInput) {
		t.Errorf("RecomputeProgress() negative error = %v, want InvalidInput", err)
	}
}

func TestLedger_Reactivate(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	if _, err := f.ledger.Reactivate(ctx, "l1", "three"); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("Reactivate() without enrollment error = %v, want NotFound", err)
	}

	mustEnroll(t, f.ledger, "l1", "three")
	if _, err := f.ledger.Reactivate(ctx, "l1", "three"); !apperror.Is(err, apperror.KindConflict) {
		t.Errorf("Reactivate() on ACTIVE error = %v, want Conflict", err)
	}

	if _, err := f.ledger.Drop(ctx, "l1", "three"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	f.facts.set("l1", "three", 1)

	e, err := f.ledger.Reactivate(ctx, "l1", "three")
	if err != nil {
		t.Fatalf("Reactivate() error = %v", err)
	}
	if e.Status != enrollment.StatusActive || e.ProgressPercentage != 33 {
		t.Errorf("Reactivate() = %s %d%%, want ACTIVE 33%%", e.Status, e.ProgressPercentage)
	}
	if !e.EnrolledAt.Equal(fixedNow) {
		t.Errorf("EnrolledAt changed: %v", e.EnrolledAt)
	}
}

func TestLedger_Reactivate_AllLessonsDone(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	mustEnroll(t, f.ledger, "l1", "two")
	if _, err := f.ledger.Drop(ctx, "l1", "two"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	f.facts.set("l1", "two", 2)

	e, err := f.ledger.Reactivate(ctx, "l1", "two")
	if err != nil {
		t.Fatalf("Reactivate() error = %v", err)
	}
	if e.Status != enrollment.StatusCompleted || e.CompletedAt == nil {
		t.Errorf("Reactivate() = %+v, want COMPLETED with completedAt", e)
	}
}

func TestLedger_EnrollFresh(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	// No prior enrollment behaves like Enroll.
	e, err := f.ledger.EnrollFresh(ctx, "l1", "two")
	if err != nil {
		t.Fatalf("EnrollFresh() error = %v", err)
	}
	if e.Status != enrollment.StatusActive {
		t.Errorf("Status = %s, want ACTIVE", e.Status)
	}

	if _, err := f.ledger.EnrollFresh(ctx, "l1", "two"); !apperror.Is(err, apperror.KindConflict) {
		t.Errorf("EnrollFresh() on ACTIVE error = %v, want Conflict", err)
	}

	f.facts.set("l1", "two", 1)
	if _, err := f.ledger.Sync(ctx, "l1", "two"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if _, err := f.ledger.Drop(ctx, "l1", "two"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}

	e, err = f.ledger.EnrollFresh(ctx, "l1", "two")
	if err != nil {
		t.Fatalf("EnrollFresh() after drop error = %v", err)
	}
	if e.Status != enrollment.StatusActive || e.ProgressPercentage != 0 {
		t.Errorf("EnrollFresh() = %s %d%%, want ACTIVE 0%%", e.Status, e.ProgressPercentage)
	}
	if n, _ := f.facts.CountCompleted(ctx, "l1", "two"); n != 0 {
		t.Errorf("completed lessons after fresh enrollment = %d, want 0", n)
	}
}

func TestLedger_EnrollFresh_Closed(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.EnrollFresh(t.Context(), "l1", "closed"); !apperror.Is(err, apperror.KindConflict) {
		t.Errorf("EnrollFresh() closed course error = %v, want Conflict", err)
	}
}

func TestLedger_Sync_EmptyCourse(t *testing.T) {
	f := newFixture(t)
	mustEnroll(t, f.ledger, "l1", "empty")

	e, err := f.ledger.Sync(t.Context(), "l1", "empty")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if e.ProgressPercentage != 0 || e.Status != enrollment.StatusActive {
		t.Errorf("Sync() on empty course = %s %d%%, want ACTIVE 0%%", e.Status, e.ProgressPercentage)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 4, 0},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{5, 3, 100},
		{-1, 3, 0},
	}
	for _, tt := range tests {
		if got := enrollment.Percentage(tt.completed, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func mustEnroll(t *testing.T, l *enrollment.Ledger, learnerID, courseID string) {
	t.Helper()
	if _, err := l.Enroll(t.Context(), learnerID, courseID); err != nil {
		t.Fatalf("Enroll(%s, %s) error = %v", learnerID, courseID, err)
	}
}

func TestLedger_Reactivate_KeepsFirstCompletion(t *testing.T) {
	now := fixedNow
	facts := newFakeFacts()
	ledger := enrollment.NewLedger(enrollment.NewMemoryStore(), facts, newTestCatalog(t), lock.NewMemoryLocker(),
		enrollment.WithClock(func() time.Time { return now }),
	)
	ctx := t.Context()
	mustEnroll(t, ledger, "l1", "two")

	facts.set("l1", "two", 2)
	done, err := ledger.Sync(ctx, "l1", "two")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("Sync() should complete the enrollment")
	}
	firstCompleted := *done.CompletedAt

	if _, err := ledger.Drop(ctx, "l1", "two"); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	now = now.Add(72 * time.Hour)

	e, err := ledger.Reactivate(ctx, "l1", "two")
	if err != nil {
		t.Fatalf("Reactivate() error = %v", err)
	}
	if e.Status != enrollment.StatusCompleted || e.CompletedAt == nil {
		t.Fatalf("Reactivate() = %+v, want COMPLETED", e)
	}
	if !e.CompletedAt.Equal(firstCompleted) {
		t.Errorf("CompletedAt = %v, want first completion %v", *e.CompletedAt, firstCompleted)
	}
}

func TestLedger_SyncWith(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	called := false
	_, err := f.ledger.SyncWith(ctx, "l1", "two", func(context.Context) error {
		called = true
		return nil
	})
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("SyncWith() without enrollment error = %v, want NotFound", err)
	}
	if called {
		t.Error("write ran without an enrollment")
	}

	mustEnroll(t, f.ledger, "l1", "two")
	e, err := f.ledger.SyncWith(ctx, "l1", "two", func(context.Context) error {
		f.facts.set("l1", "two", 2)
		return nil
	})
	if err != nil {
		t.Fatalf("SyncWith() error = %v", err)
	}
	if e.Status != enrollment.StatusCompleted || e.ProgressPercentage != 100 {
		t.Errorf("SyncWith() = %s %d%%, want COMPLETED 100%%", e.Status, e.ProgressPercentage)
	}
	if n := len(f.log.OfType(events.CourseCompleted)); n != 1 {
		t.Errorf("course_completed events = %d, want 1", n)
	}
}
