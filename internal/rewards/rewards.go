// Package rewards keeps each learner's point total and derived badge. Totals
// only grow: credits must be non-negative.
package rewards

import (
	"context"
	"time"

	"github.com/p-n-ai/pai-learn/internal/apperror"
	"github.com/p-n-ai/pai-learn/internal/events"
	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

// Account is a learner's rewards state.
type Account struct {
	LearnerID   string    `json:"learner_id"`
	TotalPoints int64     `json:"total_points"`
	Badge       string    `json:"badge"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Store persists accounts.
type Store interface {
	// Get reports ok=false when the learner has never been credited.
	Get(ctx context.Context, learnerID string) (acct Account, ok bool, err error)
	// Add atomically adds points, materializing the account if needed, and
	// stores the badge returned by badgeFor for the new total.
	Add(ctx context.Context, learnerID string, points int64, badgeFor func(int64) string) (before, after Account, err error)
}

// Service credits and reads rewards accounts.
type Service struct {
	store  Store
	ladder Ladder
	events events.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEvents sets the event logger. Defaults to a no-op.
func WithEvents(logger events.Logger) Option {
	return func(s *Service) { s.events = logger }
}

// NewService creates a rewards service.
func NewService(store Store, ladder Ladder, opts ...Option) *Service {
	s := &Service{store: store, ladder: ladder, events: events.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credit adds points to the learner's total and re-derives the badge.
func (s *Service) Credit(ctx context.Context, learnerID string, points int) (Account, error) {
	const op = "rewards.Credit"

	if points < 0 {
		return Account{}, apperror.Invalid(op, "points must not be negative, got %d", points)
	}
	if learnerID == "" {
		return Account{}, apperror.Invalid(op, "learner id is required")
	}

	before, after, err := s.store.Add(ctx, learnerID, int64(points), s.ladder.BadgeFor)
	if err != nil {
		return Account{}, apperror.Internal(op, err)
	}

	// Inside a unit of work the events wait for its commit.
	txn.AfterCommit(ctx, func() {
		if points > 0 {
			events.Emit(ctx, s.events, events.Event{
				LearnerID: learnerID,
				Type:      events.PointsCredited,
				Data:      map[string]any{"points": points, "total_points": after.TotalPoints},
			})
		}
		if before.Badge != "" && before.Badge != after.Badge {
			events.Emit(ctx, s.events, events.Event{
				LearnerID: learnerID,
				Type:      events.BadgeChanged,
				Data:      map[string]any{"from": before.Badge, "to": after.Badge},
			})
		}
	})
	return after, nil
}

// Get returns the learner's account, or the zero state with the lowest badge
// when the learner has never been credited. Get never creates an account.
func (s *Service) Get(ctx context.Context, learnerID string) (Account, error) {
	acct, ok, err := s.store.Get(ctx, learnerID)
	if err != nil {
		return Account{}, apperror.Internal("rewards.Get", err)
	}
	if !ok {
		return Account{LearnerID: learnerID, Badge: s.ladder.Lowest()}, nil
	}
	// The ladder may have been retuned since the last credit.
	acct.Badge = s.ladder.BadgeFor(acct.TotalPoints)
	return acct, nil
}

// Ladder returns the badge ladder in use.
func (s *Service) Ladder() Ladder {
	return s.ladder
}
