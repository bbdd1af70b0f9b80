package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/lock"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
	"github.com/p-n-ai/pai-learn/internal/rewards"
)

// Crediter credits reward points to a learner.
type Crediter interface {
	Credit(ctx context.Context, learnerID string, points int) (rewards.Account, error)
}

// Grade is the outcome of a graded attempt.
type Grade struct {
	Result
	AttemptID     string          `json:"attempt_id"`
	QuizID        string          `json:"quiz_id"`
	AttemptNumber int             `json:"attempt_number"`
	RewardPoints  int             `json:"reward_points"`
	Account       rewards.Account `json:"rewards"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// Engine grades submissions. Submissions by one learner to one quiz are
// serialized, so each attempt number is used and credited exactly once.
type Engine struct {
	store    Store
	graph    content.Graph
	crediter Crediter
	locker   lock.Locker
	tx       txn.Runner
	events   events.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEvents sets the event logger. Defaults to a no-op.
func WithEvents(logger events.Logger) Option {
	return func(e *Engine) { e.events = logger }
}

// WithTx sets the runner that makes recording and crediting one unit.
// Defaults to txn.Memory, which suits the in-memory stores.
func WithTx(runner txn.Runner) Option {
	return func(e *Engine) { e.tx = runner }
}

// NewEngine creates an assessment engine.
func NewEngine(store Store, graph content.Graph, crediter Crediter, locker lock.Locker, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		graph:    graph,
		crediter: crediter,
		locker:   locker,
		tx:       txn.Memory{},
		events:   events.NopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitQuiz grades the submission, records it as the learner's next
// attempt and credits the scheduled reward. The attempt and the credit
// commit together: if either fails, neither is kept.
func (e *Engine) SubmitQuiz(ctx context.Context, learnerID, quizID string, answers Answers) (Grade, error) {
	const op = "assessment.SubmitQuiz"

	quiz, ok := e.graph.Quiz(quizID)
	if !ok {
		return Grade{}, apperror.NotFound(op, "quiz %s not found", quizID)
	}
	result, err := Score(quiz, answers)
	if err != nil {
		return Grade{}, err
	}

	unlock, err := e.locker.Lock(ctx, lock.QuizKey(learnerID, quizID))
	if err != nil {
		return Grade{}, apperror.Internal(op, err)
	}
	defer unlock()

	var (
		attempt Attempt
		acct    rewards.Account
	)
	err = e.tx.InTx(ctx, func(ctx context.Context) error {
		prior, err := e.store.Count(ctx, learnerID, quizID)
		if err != nil {
			return err
		}

		attempt = Attempt{
			ID:           uuid.NewString(),
			LearnerID:    learnerID,
			QuizID:       quizID,
			Number:       prior + 1,
			Correct:      result.Correct,
			Total:        result.Total,
			Score:        result.Score,
			RewardPoints: quiz.RewardFor(prior + 1),
			SubmittedAt:  e.now(),
		}
		if err := e.store.Record(ctx, attempt); err != nil {
			return err
		}

		acct, err = e.crediter.Credit(ctx, learnerID, attempt.RewardPoints)
		return err
	})
	if err != nil {
		return Grade{}, apperror.Internal(op, err)
	}

	events.Emit(ctx, e.events, events.Event{
		LearnerID: learnerID,
		Type:      events.QuizGraded,
		Data: map[string]any{
			"quiz_id":        quizID,
			"attempt_number": attempt.Number,
			"score":          attempt.Score,
			"reward_points":  attempt.RewardPoints,
		},
	})

	return Grade{
		Result:        result,
		AttemptID:     attempt.ID,
		QuizID:        quizID,
		AttemptNumber: attempt.Number,
		RewardPoints:  attempt.RewardPoints,
		Account:       acct,
		SubmittedAt:   attempt.SubmittedAt,
	}, nil
}

// Attempts lists the learner's graded attempts on a quiz, oldest first.
func (e *Engine) Attempts(ctx context.Context, learnerID, quizID string) ([]Attempt, error) {
	if _, ok := e.graph.Quiz(quizID); !ok {
		return nil, apperror.NotFound("assessment.Attempts", "quiz %s not found", quizID)
	}
	return e.store.List(ctx, learnerID, quizID)
}
