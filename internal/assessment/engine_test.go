package assessment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/assessment"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/lock"
	"github.com/p-n-ai/pai-learn/internal/rewards"
)

var fixedNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *assessment.Engine
	attempts *assessment.MemoryStore
	rewards  *rewards.Service
	log      *events.MemoryLogger
}

func newFixture(t *testing.T, crediter assessment.Crediter) *fixture {
	t.Helper()

	quiz := sampleQuiz()
	catalog, err := content.New(content.Course{
		ID:      "go",
		Lessons: []content.Lesson{{ID: "go-1"}},
		Quizzes: []content.Quiz{quiz},
	})
	if err != nil {
		t.Fatalf("content.New() error = %v", err)
	}

	f := &fixture{
		attempts: assessment.NewMemoryStore(),
		rewards:  rewards.NewService(rewards.NewMemoryStore(), rewards.DefaultLadder()),
		log:      events.NewMemoryLogger(),
	}
	if crediter == nil {
		crediter = f.rewards
	}
	f.engine = assessment.NewEngine(f.attempts, catalog, crediter, lock.NewMemoryLocker(),
		assessment.WithClock(func() time.Time { return fixedNow }),
		assessment.WithEvents(f.log),
	)
	return f
}

func TestEngine_SubmitQuiz_RewardSchedule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()
	perfect := assessment.Answers{"a": "1", "b": "2", "c": "y", "d": "t"}

	wantPoints := []struct {
		attempt int
		reward  int
		total   int64
	}{
		{1, 10, 10},
		{2, 5, 15},
		{3, 0, 15},
	}
	for _, w := range wantPoints {
		g, err := f.engine.SubmitQuiz(ctx, "l1", "q1", perfect)
		if err != nil {
			t.Fatalf("SubmitQuiz() attempt %d error = %v", w.attempt, err)
		}
		if g.AttemptNumber != w.attempt || g.RewardPoints != w.reward {
			t.Errorf("attempt %d = number %d reward %d, want reward %d", w.attempt, g.AttemptNumber, g.RewardPoints, w.reward)
		}
		if g.Account.TotalPoints != w.total {
			t.Errorf("attempt %d total points = %d, want %d", w.attempt, g.Account.TotalPoints, w.total)
		}
		if g.Score != 1 {
			t.Errorf("attempt %d score = %v, want 1", w.attempt, g.Score)
		}
		if !g.SubmittedAt.Equal(fixedNow) {
			t.Errorf("attempt %d submitted_at = %v, want %v", w.attempt, g.SubmittedAt, fixedNow)
		}
	}

	if n := len(f.log.OfType(events.QuizGraded)); n != 3 {
		t.Errorf("quiz_graded events = %d, want 3", n)
	}
}

func TestEngine_SubmitQuiz_RewardIndependentOfScore(t *testing.T) {
	f := newFixture(t, nil)

	g, err := f.engine.SubmitQuiz(t.Context(), "l1", "q1", assessment.Answers{})
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if g.Score != 0 || g.RewardPoints != 10 {
		t.Errorf("SubmitQuiz() = score %v reward %d, want 0 and 10", g.Score, g.RewardPoints)
	}
}

func TestEngine_SubmitQuiz_AttemptsArePerLearner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	if _, err := f.engine.SubmitQuiz(ctx, "l1", "q1", nil); err != nil {
		t.Fatalf("SubmitQuiz(l1) error = %v", err)
	}
	g, err := f.engine.SubmitQuiz(ctx, "l2", "q1", nil)
	if err != nil {
		t.Fatalf("SubmitQuiz(l2) error = %v", err)
	}
	if g.AttemptNumber != 1 || g.RewardPoints != 10 {
		t.Errorf("l2 first attempt = %d reward %d, want 1 and 10", g.AttemptNumber, g.RewardPoints)
	}
}

func TestEngine_SubmitQuiz_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	if _, err := f.engine.SubmitQuiz(ctx, "l1", "missing", nil); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("SubmitQuiz(unknown quiz) error = %v, want not found", err)
	}
	if _, err := f.engine.SubmitQuiz(ctx, "l1", "q1", assessment.Answers{"zz": "1"}); !apperror.Is(err, apperror.KindInvalidInput) {
		t.Errorf("SubmitQuiz(bad answers) error = %v, want invalid input", err)
	}

	// Rejected submissions do not consume an attempt.
	attempts, err := f.engine.Attempts(ctx, "l1", "q1")
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("Attempts() = %d, want 0", len(attempts))
	}
	if _, err := f.engine.Attempts(ctx, "l1", "missing"); !apperror.Is(err, apperror.KindNotFound) {
		t.Errorf("Attempts(unknown quiz) error = %v, want not found", err)
	}
}

type failingCrediter struct{}

func (failingCrediter) Credit(context.Context, string, int) (rewards.Account, error) {
	return rewards.Account{}, errors.New("rewards store unavailable")
}

func TestEngine_SubmitQuiz_CreditFailureReleasesAttempt(t *testing.T) {
	f := newFixture(t, failingCrediter{})
	ctx := t.Context()

	_, err := f.engine.SubmitQuiz(ctx, "l1", "q1", nil)
	if !apperror.Is(err, apperror.KindInternal) {
		t.Fatalf("SubmitQuiz() error = %v, want internal", err)
	}
	n, err := f.attempts.Count(ctx, "l1", "q1")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() after failed credit = %d, want 0", n)
	}
	if len(f.log.OfType(events.QuizGraded)) != 0 {
		t.Error("failed submission should not emit quiz_graded")
	}
}

// lostAckCrediter applies the credit and then reports a failure, as when a
// commit succeeds but its acknowledgement times out. It fails the first
// failures calls only.
type lostAckCrediter struct {
	inner    assessment.Crediter
	failures int
}

func (c *lostAckCrediter) Credit(ctx context.Context, learnerID string, points int) (rewards.Account, error) {
	acct, err := c.inner.Credit(ctx, learnerID, points)
	if err != nil {
		return rewards.Account{}, err
	}
	if c.failures > 0 {
		c.failures--
		return rewards.Account{}, context.DeadlineExceeded
	}
	return acct, nil
}

func TestEngine_SubmitQuiz_FailedCreditIsNotKept(t *testing.T) {
	log := events.NewMemoryLogger()
	svc := rewards.NewService(rewards.NewMemoryStore(), rewards.DefaultLadder(), rewards.WithEvents(log))
	f := newFixture(t, &lostAckCrediter{inner: svc, failures: 3})
	ctx := t.Context()

	for range 3 {
		if _, err := f.engine.SubmitQuiz(ctx, "l1", "q1", nil); err == nil {
			t.Fatal("SubmitQuiz() should fail when the credit fails")
		}
	}

	n, err := f.attempts.Count(ctx, "l1", "q1")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
	acct, err := svc.Get(ctx, "l1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if acct.TotalPoints != 0 {
		t.Errorf("TotalPoints = %d, want 0 after failed submissions", acct.TotalPoints)
	}
	if got := len(log.OfType(events.PointsCredited)); got != 0 {
		t.Errorf("points_credited events = %d, want 0", got)
	}

	// The next healthy submission is still attempt 1 and pays it once.
	g, err := f.engine.SubmitQuiz(ctx, "l1", "q1", nil)
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if g.AttemptNumber != 1 || g.Account.TotalPoints != 10 {
		t.Errorf("SubmitQuiz() = attempt %d total %d, want 1 and 10", g.AttemptNumber, g.Account.TotalPoints)
	}
}

func TestEngine_SubmitQuiz_ConcurrentSubmissions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.SubmitQuiz(ctx, "l1", "q1", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("SubmitQuiz() error = %v", err)
	}

	attempts, err := f.engine.Attempts(ctx, "l1", "q1")
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != n {
		t.Fatalf("Attempts() = %d, want %d", len(attempts), n)
	}
	for i, a := range attempts {
		if a.Number != i+1 {
			t.Errorf("attempts[%d].Number = %d, want %d", i, a.Number, i+1)
		}
	}

	// Only attempt 1 and 2 pay out, regardless of interleaving.
	acct, err := f.rewards.Get(ctx, "l1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if acct.TotalPoints != 15 {
		t.Errorf("TotalPoints = %d, want 15", acct.TotalPoints)
	}
}
